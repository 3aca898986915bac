package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/healthtipsdaily/tipline/internal/models"
)

// DetectDSNType classifies a DSN as "postgres" or "sqlite". PostgreSQL DSNs
// use the postgres:// / postgresql:// URL schemes or key=value form with a
// host= component; anything else is treated as a SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// marshalPreferences encodes the preference map for storage. A nil map is
// stored as NULL so the "never greeted" state survives round-trips.
func marshalPreferences(p models.Preferences) (interface{}, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal preferences failed: %w", err)
	}
	return string(data), nil
}

// unmarshalPreferences decodes a nullable preferences column.
func unmarshalPreferences(raw sql.NullString) (models.Preferences, error) {
	if !raw.Valid || raw.String == "" || raw.String == "null" {
		return nil, nil
	}
	var p models.Preferences
	if err := json.Unmarshal([]byte(raw.String), &p); err != nil {
		return nil, fmt.Errorf("unmarshal preferences failed: %w", err)
	}
	if p == nil {
		p = models.Preferences{}
	}
	return p, nil
}

// userScanner abstracts sql.Row and sql.Rows for the shared user scan.
type userScanner interface {
	Scan(dest ...interface{}) error
}

// scanUser scans a user row in the canonical column order:
// id, phone_number, discord_id, display_name, preferences, first_seen_at,
// last_interaction_at, created_at.
func scanUser(row userScanner) (models.User, error) {
	var u models.User
	var phone, discordID, prefs sql.NullString
	err := row.Scan(&u.ID, &phone, &discordID, &u.DisplayName, &prefs, &u.FirstSeenAt, &u.LastInteractionAt, &u.CreatedAt)
	if err != nil {
		return u, err
	}
	u.PhoneNumber = phone.String
	u.DiscordID = discordID.String
	u.Preferences, err = unmarshalPreferences(prefs)
	if err != nil {
		return u, err
	}
	return u, nil
}
