// Package models defines inbound webhook payload shapes for Tipline.
package models

// WhatsAppInbound is the POST body of the WhatsApp-style webhook.
type WhatsAppInbound struct {
	Message   string `json:"message"`
	From      string `json:"from"`
	MessageID string `json:"message_id,omitempty"`
}

// Valid reports whether the payload carries a processable message event.
// Payloads missing the message or sender normalize to a no-op.
func (w WhatsAppInbound) Valid() bool {
	return w.Message != "" && w.From != ""
}

// Discord interaction types (inbound).
const (
	DiscordInteractionPing      = 1
	DiscordInteractionCommand   = 2
	DiscordInteractionComponent = 3
)

// Discord interaction callback types (outbound).
const (
	DiscordCallbackPong           = 1
	DiscordCallbackChannelMessage = 4
	DiscordCallbackDeferredUpdate = 6
)

// DiscordFlagEphemeral makes an interaction response visible only to the
// invoking user.
const DiscordFlagEphemeral = 64

// DiscordUser is the author or invoking member of a Discord event.
type DiscordUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot,omitempty"`
}

// DiscordCommandOption is one argument of a slash command.
type DiscordCommandOption struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// DiscordCommandData carries the invoked command name and its options.
type DiscordCommandData struct {
	Name    string                 `json:"name"`
	Options []DiscordCommandOption `json:"options,omitempty"`
}

// DiscordMember wraps the guild member of an interaction.
type DiscordMember struct {
	User DiscordUser `json:"user"`
}

// DiscordInbound is the POST body of the Discord webhook. Interactions carry
// Type/Data/Member; plain message events carry Content/Author/ChannelID.
type DiscordInbound struct {
	Type      int                 `json:"type,omitempty"`
	Data      *DiscordCommandData `json:"data,omitempty"`
	Member    *DiscordMember      `json:"member,omitempty"`
	ID        string              `json:"id,omitempty"`
	Content   string              `json:"content,omitempty"`
	Author    *DiscordUser        `json:"author,omitempty"`
	ChannelID string              `json:"channel_id,omitempty"`
}

// IsMessageEvent reports whether the payload is a processable plain message
// event. Bot-authored messages are ignored.
func (d DiscordInbound) IsMessageEvent() bool {
	return d.Content != "" && d.Author != nil && !d.Author.Bot
}

// Option returns the value of the named command option, if present.
func (d *DiscordCommandData) Option(name string) (string, bool) {
	for _, opt := range d.Options {
		if opt.Name == name {
			return opt.Value, true
		}
	}
	return "", false
}

// DiscordInteractionResponse is the JSON reply to an interaction.
type DiscordInteractionResponse struct {
	Type int                              `json:"type"`
	Data *DiscordInteractionResponseData `json:"data,omitempty"`
}

// DiscordInteractionResponseData is the message portion of an interaction
// response.
type DiscordInteractionResponseData struct {
	Content string `json:"content"`
	Flags   int    `json:"flags,omitempty"`
}

// EphemeralResponse builds a channel-message interaction response visible
// only to the invoking user.
func EphemeralResponse(content string) DiscordInteractionResponse {
	return DiscordInteractionResponse{
		Type: DiscordCallbackChannelMessage,
		Data: &DiscordInteractionResponseData{Content: content, Flags: DiscordFlagEphemeral},
	}
}
