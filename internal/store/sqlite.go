// Package store provides storage backends for Tipline.
//
// This file implements the SQLite-backed store, the default for single-node
// deployments.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/healthtipsdaily/tipline/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a Store backed by a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

const userColumns = `id, phone_number, discord_id, display_name, preferences, first_seen_at, last_interaction_at, created_at`

func (s *SQLiteStore) UpsertUserByPhone(phone, displayName string, now time.Time) (models.User, error) {
	_, err := s.db.Exec(`
		INSERT INTO users (id, phone_number, display_name, first_seen_at, last_interaction_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(phone_number) DO UPDATE SET last_interaction_at = excluded.last_interaction_at`,
		NewUserID(), phone, displayName, now, now, now)
	if err != nil {
		slog.Error("SQLiteStore UpsertUserByPhone failed", "error", err, "phone", phone)
		return models.User{}, fmt.Errorf("failed to upsert user by phone: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE phone_number = ?`, phone)
	u, err := scanUser(row)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to load user by phone: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) UpsertUserByDiscordID(discordID, displayName string, now time.Time) (models.User, error) {
	_, err := s.db.Exec(`
		INSERT INTO users (id, discord_id, display_name, first_seen_at, last_interaction_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(discord_id) DO UPDATE SET last_interaction_at = excluded.last_interaction_at`,
		NewUserID(), discordID, displayName, now, now, now)
	if err != nil {
		slog.Error("SQLiteStore UpsertUserByDiscordID failed", "error", err, "discord_id", discordID)
		return models.User{}, fmt.Errorf("failed to upsert user by discord id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE discord_id = ?`, discordID)
	u, err := scanUser(row)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to load user by discord id: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) GetUser(id string) (*models.User, error) {
	row := s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &u, nil
}

func (s *SQLiteStore) UpdateUser(u models.User) error {
	prefs, err := marshalPreferences(u.Preferences)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`UPDATE users SET display_name = ?, preferences = ?, last_interaction_at = ? WHERE id = ?`,
		u.DisplayName, prefs, u.LastInteractionAt, u.ID)
	if err != nil {
		slog.Error("SQLiteStore UpdateUser failed", "error", err, "user_id", u.ID)
		return fmt.Errorf("failed to update user %s: %w", u.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetConversation(userID string) (*models.Conversation, error) {
	var c models.Conversation
	var history string
	err := s.db.QueryRow(`SELECT user_id, history, last_prompt_at FROM conversations WHERE user_id = ?`, userID).
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

func (s *SQLiteStore) SaveConversation(c models.Conversation) error {
	history, err := json.Marshal(c.History)
	if err != nil {
		return fmt.Errorf("failed to encode conversation history: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO conversations (user_id, history, last_prompt_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET history = excluded.history, last_prompt_at = excluded.last_prompt_at`,
		c.UserID, string(history), c.LastPromptAt)
	if err != nil {
		slog.Error("SQLiteStore SaveConversation failed", "error", err, "user_id", c.UserID)
		return fmt.Errorf("failed to save conversation for %s: %w", c.UserID, err)
	}
	return nil
}

func (s *SQLiteStore) UpsertSchedule(userID, preferredTime string, active bool, now time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO schedules (user_id, preferred_time, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			preferred_time = excluded.preferred_time,
			active = excluded.active,
			updated_at = excluded.updated_at`,
		userID, preferredTime, active, now, now)
	if err != nil {
		slog.Error("SQLiteStore UpsertSchedule failed", "error", err, "user_id", userID)
		return fmt.Errorf("failed to upsert schedule for %s: %w", userID, err)
	}
	return nil
}

func (s *SQLiteStore) ListActiveSchedules() ([]models.UserSchedule, error) {
	rows, err := s.db.Query(`
		SELECT s.user_id, s.preferred_time, s.active, s.last_sent_at, s.created_at, s.updated_at,
		       u.id, u.phone_number, u.discord_id, u.display_name, u.preferences, u.first_seen_at, u.last_interaction_at, u.created_at
		FROM schedules s JOIN users u ON u.id = s.user_id
		WHERE s.active = 1
		ORDER BY s.user_id`)
	if err != nil {
		slog.Error("SQLiteStore ListActiveSchedules query failed", "error", err)
		return nil, fmt.Errorf("failed to query active schedules: %w", err)
	}
	defer rows.Close()
	return scanUserSchedules(rows)
}

func (s *SQLiteStore) MarkScheduleSent(userID string, sentAt time.Time) error {
	_, err := s.db.Exec(`UPDATE schedules SET last_sent_at = ?, updated_at = ? WHERE user_id = ?`, sentAt, sentAt, userID)
	if err != nil {
		slog.Error("SQLiteStore MarkScheduleSent failed", "error", err, "user_id", userID)
		return fmt.Errorf("failed to mark schedule sent for %s: %w", userID, err)
	}
	return nil
}

func (s *SQLiteStore) AddMessageLog(l models.MessageLog) error {
	_, err := s.db.Exec(`
		INSERT INTO message_logs (id, user_id, direction, body, channel, channel_message_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.UserID, string(l.Direction), l.Body, string(l.Channel), nilIfEmpty(l.ChannelMessageID), l.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AddMessageLog failed", "error", err, "user_id", l.UserID)
		return fmt.Errorf("failed to insert message log: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Stats() (models.StoreStats, error) {
	var stats models.StoreStats
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&stats.Users); err != nil {
		return stats, fmt.Errorf("failed to count users: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM schedules WHERE active = 1`).Scan(&stats.ActiveSchedules); err != nil {
		return stats, fmt.Errorf("failed to count schedules: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM message_logs`).Scan(&stats.MessageLogs); err != nil {
		return stats, fmt.Errorf("failed to count message logs: %w", err)
	}
	return stats, nil
}

func (s *SQLiteStore) ReserveTipDelivery(userID, day string) (bool, error) {
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO tip_deliveries (user_id, day, delivered_at) VALUES (?, ?, ?)`,
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

func (s *SQLiteStore) ReleaseTipDelivery(userID, day string) error {
	_, err := s.db.Exec(`DELETE FROM tip_deliveries WHERE user_id = ? AND day = ?`, userID, day)
	if err != nil {
		return fmt.Errorf("failed to release tip delivery: %w", err)
	}
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}

// scanUserSchedules reads joined schedule+user rows shared by both SQL backends.
func scanUserSchedules(rows *sql.Rows) ([]models.UserSchedule, error) {
	var out []models.UserSchedule
	for rows.Next() {
		var us models.UserSchedule
		var lastSent sql.NullTime
		var phone, discordID, prefs sql.NullString
		err := rows.Scan(
			&us.Schedule.UserID, &us.Schedule.PreferredTime, &us.Schedule.Active, &lastSent,
			&us.Schedule.CreatedAt, &us.Schedule.UpdatedAt,
			&us.User.ID, &phone, &discordID, &us.User.DisplayName, &prefs,
			&us.User.FirstSeenAt, &us.User.LastInteractionAt, &us.User.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule row: %w", err)
		}
		if lastSent.Valid {
			t := lastSent.Time
			us.Schedule.LastSentAt = &t
		}
		us.User.PhoneNumber = phone.String
		us.User.DiscordID = discordID.String
		us.User.Preferences, err = unmarshalPreferences(prefs)
		if err != nil {
			return nil, err
		}
		out = append(out, us)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate schedule rows: %w", err)
	}
	return out, nil
}
