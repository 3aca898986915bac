// Package store provides storage backends for Tipline.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/healthtipsdaily/tipline/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is a Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) UpsertUserByPhone(phone, displayName string, now time.Time) (models.User, error) {
	_, err := s.db.Exec(`
		INSERT INTO users (id, phone_number, display_name, first_seen_at, last_interaction_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (phone_number) DO UPDATE SET last_interaction_at = EXCLUDED.last_interaction_at`,
		NewUserID(), phone, displayName, now, now, now)
	if err != nil {
		slog.Error("PostgresStore UpsertUserByPhone failed", "error", err, "phone", phone)
		return models.User{}, fmt.Errorf("failed to upsert user by phone: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE phone_number = $1`, phone)
	u, err := scanUser(row)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to load user by phone: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) UpsertUserByDiscordID(discordID, displayName string, now time.Time) (models.User, error) {
	_, err := s.db.Exec(`
		INSERT INTO users (id, discord_id, display_name, first_seen_at, last_interaction_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (discord_id) DO UPDATE SET last_interaction_at = EXCLUDED.last_interaction_at`,
		NewUserID(), discordID, displayName, now, now, now)
	if err != nil {
		slog.Error("PostgresStore UpsertUserByDiscordID failed", "error", err, "discord_id", discordID)
		return models.User{}, fmt.Errorf("failed to upsert user by discord id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE discord_id = $1`, discordID)
	u, err := scanUser(row)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to load user by discord id: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) GetUser(id string) (*models.User, error) {
	row := s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) UpdateUser(u models.User) error {
	prefs, err := marshalPreferences(u.Preferences)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`UPDATE users SET display_name = $1, preferences = $2, last_interaction_at = $3 WHERE id = $4`,
		u.DisplayName, prefs, u.LastInteractionAt, u.ID)
	if err != nil {
		slog.Error("PostgresStore UpdateUser failed", "error", err, "user_id", u.ID)
		return fmt.Errorf("failed to update user %s: %w", u.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetConversation(userID string) (*models.Conversation, error) {
	var c models.Conversation
	var history string
	err := s.db.QueryRow(`SELECT user_id, history, last_prompt_at FROM conversations WHERE user_id = $1`, userID).
		Scan(&c.UserID, &history, &c.LastPromptAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if err := json.Unmarshal([]byte(history), &c.History); err != nil {
		return nil, fmt.Errorf("failed to decode conversation history: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) SaveConversation(c models.Conversation) error {
	history, err := json.Marshal(c.History)
	if err != nil {
		return fmt.Errorf("failed to encode conversation history: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO conversations (user_id, history, last_prompt_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET history = EXCLUDED.history, last_prompt_at = EXCLUDED.last_prompt_at`,
		c.UserID, string(history), c.LastPromptAt)
	if err != nil {
		slog.Error("PostgresStore SaveConversation failed", "error", err, "user_id", c.UserID)
		return fmt.Errorf("failed to save conversation for %s: %w", c.UserID, err)
	}
	return nil
}

func (s *PostgresStore) UpsertSchedule(userID, preferredTime string, active bool, now time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO schedules (user_id, preferred_time, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			preferred_time = EXCLUDED.preferred_time,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at`,
		userID, preferredTime, active, now, now)
	if err != nil {
		slog.Error("PostgresStore UpsertSchedule failed", "error", err, "user_id", userID)
		return fmt.Errorf("failed to upsert schedule for %s: %w", userID, err)
	}
	return nil
}

func (s *PostgresStore) ListActiveSchedules() ([]models.UserSchedule, error) {
	rows, err := s.db.Query(`
		SELECT s.user_id, s.preferred_time, s.active, s.last_sent_at, s.created_at, s.updated_at,
		       u.id, u.phone_number, u.discord_id, u.display_name, u.preferences, u.first_seen_at, u.last_interaction_at, u.created_at
		FROM schedules s JOIN users u ON u.id = s.user_id
		WHERE s.active
		ORDER BY s.user_id`)
	if err != nil {
		slog.Error("PostgresStore ListActiveSchedules query failed", "error", err)
		return nil, fmt.Errorf("failed to query active schedules: %w", err)
	}
	defer rows.Close()
	return scanUserSchedules(rows)
}

func (s *PostgresStore) MarkScheduleSent(userID string, sentAt time.Time) error {
	_, err := s.db.Exec(`UPDATE schedules SET last_sent_at = $1, updated_at = $1 WHERE user_id = $2`, sentAt, userID)
	if err != nil {
		slog.Error("PostgresStore MarkScheduleSent failed", "error", err, "user_id", userID)
		return fmt.Errorf("failed to mark schedule sent for %s: %w", userID, err)
	}
	return nil
}

func (s *PostgresStore) AddMessageLog(l models.MessageLog) error {
	_, err := s.db.Exec(`
		INSERT INTO message_logs (id, user_id, direction, body, channel, channel_message_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		l.ID, l.UserID, string(l.Direction), l.Body, string(l.Channel), nilIfEmpty(l.ChannelMessageID), l.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore AddMessageLog failed", "error", err, "user_id", l.UserID)
		return fmt.Errorf("failed to insert message log: %w", err)
	}
	return nil
}

func (s *PostgresStore) Stats() (models.StoreStats, error) {
	var stats models.StoreStats
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&stats.Users); err != nil {
		return stats, fmt.Errorf("failed to count users: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM schedules WHERE active`).Scan(&stats.ActiveSchedules); err != nil {
		return stats, fmt.Errorf("failed to count schedules: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM message_logs`).Scan(&stats.MessageLogs); err != nil {
		return stats, fmt.Errorf("failed to count message logs: %w", err)
	}
	return stats, nil
}

func (s *PostgresStore) ReserveTipDelivery(userID, day string) (bool, error) {
	res, err := s.db.Exec(`
		INSERT INTO tip_deliveries (user_id, day, delivered_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, day) DO NOTHING`,
		userID, day, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to reserve tip delivery: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("tip delivery rows affected check failed: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) ReleaseTipDelivery(userID, day string) error {
	_, err := s.db.Exec(`DELETE FROM tip_deliveries WHERE user_id = $1 AND day = $2`, userID, day)
	if err != nil {
		return fmt.Errorf("failed to release tip delivery: %w", err)
	}
	return nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
