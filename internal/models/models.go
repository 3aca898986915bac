// Package models defines the core data structures for Tipline.
//
// It includes the user, conversation, schedule and message-log records shared
// across modules, plus the inbound webhook payload shapes for both channels.
package models

import (
	"errors"
	"regexp"
	"time"
)

// Channel identifies an outbound delivery channel.
type Channel string

const (
	// ChannelWhatsApp delivers via the WhatsApp sender.
	ChannelWhatsApp Channel = "whatsapp"
	// ChannelDiscord delivers via the Discord REST API.
	ChannelDiscord Channel = "discord"
)

// Direction marks a message-log entry as inbound or outbound.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Conversation roles, matching the chat-completion wire format.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Preference keys stored in the user preference map.
const (
	PrefName          = "name"
	PrefInterests     = "interests"
	PrefPreferredTime = "preferred_time"
)

// Error variables for validation failures shared across modules.
var (
	ErrInvalidClockTime = errors.New("time must be in 24-hour HH:MM format")
	ErrEmptyRecipient   = errors.New("recipient cannot be empty")
	ErrEmptyBody        = errors.New("message body cannot be empty")
)

// clockTimeRe accepts 24-hour HH:MM with an optional leading zero on the hour.
var clockTimeRe = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):([0-5][0-9])$`)

// ParseClockTime validates a 24-hour "HH:MM" string and returns it in
// canonical zero-padded form ("8:05" becomes "08:05"). Returns
// ErrInvalidClockTime if the input does not parse.
func ParseClockTime(s string) (string, error) {
	m := clockTimeRe.FindStringSubmatch(s)
	if m == nil {
		return "", ErrInvalidClockTime
	}
	hour := m[1]
	if len(hour) == 1 {
		hour = "0" + hour
	}
	return hour + ":" + m[2], nil
}

// Preferences is the free-form per-user preference map collected during
// onboarding. A nil map means the user has never been greeted; an empty
// non-nil map means the welcome message was sent but no answers stored yet.
type Preferences map[string]string

// User is a durable contact record, reachable via one or more channel
// identities. Never hard-deleted.
type User struct {
	ID                string      `json:"id"`
	PhoneNumber       string      `json:"phone_number,omitempty"`
	DiscordID         string      `json:"discord_id,omitempty"`
	DisplayName       string      `json:"display_name"`
	Preferences       Preferences `json:"preferences,omitempty"`
	FirstSeenAt       time.Time   `json:"first_seen_at"`
	LastInteractionAt time.Time   `json:"last_interaction_at"`
	CreatedAt         time.Time   `json:"created_at"`
}

// ConversationEntry is a single prompt or response in a user's history.
type ConversationEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation holds the full (untrimmed) message history for one user.
type Conversation struct {
	UserID       string              `json:"user_id"`
	History      []ConversationEntry `json:"history"`
	LastPromptAt time.Time           `json:"last_prompt_at"`
}

// Schedule is a user's daily tip subscription. PreferredTime is canonical
// zero-padded "HH:MM". LastSentAt is nil until the first successful delivery.
type Schedule struct {
	UserID        string     `json:"user_id"`
	PreferredTime string     `json:"preferred_time"`
	Active        bool       `json:"active"`
	LastSentAt    *time.Time `json:"last_sent_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// UserSchedule is a schedule denormalized with its owning user, as consumed
// by the delivery sweep.
type UserSchedule struct {
	Schedule Schedule `json:"schedule"`
	User     User     `json:"user"`
}

// MessageLog is an append-only audit record of one inbound or outbound
// message. Never mutated after creation.
type MessageLog struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	Direction        Direction `json:"direction"`
	Body             string    `json:"body"`
	Channel          Channel   `json:"channel"`
	ChannelMessageID string    `json:"channel_message_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}
