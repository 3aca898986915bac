// Package store provides storage backends for Tipline.
//
// It exposes a single Store interface with in-memory, SQLite and PostgreSQL
// implementations. Find-or-create is an atomic upsert keyed on the channel
// identity, backed by unique constraints, so near-simultaneous webhooks for
// the same sender cannot create duplicate users.
package store

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/healthtipsdaily/tipline/internal/models"
)

// Store is the persistence surface shared by the webhook handlers and the
// delivery sweep.
type Store interface {
	// UpsertUserByPhone finds or atomically creates the user owning the
	// given phone number, updating last_interaction_at either way.
	// displayName is only applied on creation.
	UpsertUserByPhone(phone, displayName string, now time.Time) (models.User, error)

	// UpsertUserByDiscordID is the Discord-identity counterpart of
	// UpsertUserByPhone.
	UpsertUserByDiscordID(discordID, displayName string, now time.Time) (models.User, error)

	// GetUser returns the user with the given ID, or nil if absent.
	GetUser(id string) (*models.User, error)

	// UpdateUser persists display name, preferences and interaction time.
	UpdateUser(u models.User) error

	// GetConversation returns the user's conversation, or nil if none exists.
	GetConversation(userID string) (*models.Conversation, error)

	// SaveConversation stores or replaces the user's full history.
	SaveConversation(c models.Conversation) error

	// UpsertSchedule creates or updates the user's tip subscription,
	// preserving last_sent_at on update.
	UpsertSchedule(userID, preferredTime string, active bool, now time.Time) error

	// ListActiveSchedules returns all active schedules denormalized with
	// their users, in stable order.
	ListActiveSchedules() ([]models.UserSchedule, error)

	// MarkScheduleSent records a successful delivery.
	MarkScheduleSent(userID string, sentAt time.Time) error

	// AddMessageLog appends an audit record.
	AddMessageLog(l models.MessageLog) error

	// Stats returns store counters for the stats endpoint.
	Stats() (models.StoreStats, error)

	// ReserveTipDelivery claims the (user, day) idempotency key for a sweep
	// delivery. Returns false if the key was already claimed, which means
	// another sweep already handled this user today.
	ReserveTipDelivery(userID, day string) (bool, error)

	// ReleaseTipDelivery frees a claimed key after every channel failed, so
	// the schedule stays eligible for the next sweep.
	ReleaseTipDelivery(userID, day string) error

	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for a store backend.
type Option func(*Opts)

// WithSQLiteDSN sets a SQLite file path as the backend DSN.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets a PostgreSQL connection string as the backend DSN.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// New builds a Store from the given options, auto-detecting the backend from
// the DSN. An empty DSN yields an in-memory store.
func New(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	switch {
	case cfg.DSN == "":
		return NewMemoryStore(), nil
	case DetectDSNType(cfg.DSN) == "postgres":
		return NewPostgresStore(opts...)
	default:
		return NewSQLiteStore(opts...)
	}
}

// newID generates a random identifier with the given prefix, e.g. "usr_a1b2c3d4e5f60708".
func newID(prefix string) string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failure is unrecoverable; fall back to a timestamp id
		return fmt.Sprintf("%s%x", prefix, time.Now().UnixNano())
	}
	return prefix + hex.EncodeToString(b)
}

// NewUserID returns a fresh user identifier.
func NewUserID() string { return newID("usr_") }

// NewLogID returns a fresh message-log identifier.
func NewLogID() string { return newID("log_") }

// DeliveryDay formats the idempotency-key day component for a sweep time.
func DeliveryDay(t time.Time) string { return t.Format("2006-01-02") }
