package store

import (
	"database/sql"
	"errors"
	"time"
)

// CachedSettingsFor returns the cached settings payload for a user, or nil
// if nothing is cached.
func (db *DB) CachedSettingsFor(userID string) (*CachedSettings, error) {
	var cs CachedSettings
	err := db.QueryRow(
		`SELECT user_id, payload, updated_at FROM settings_cache WHERE user_id = ?`,
		userID,
	).Scan(&cs.UserID, &cs.Payload, &cs.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cs, nil
}

// CacheSettings stores the latest known settings payload for a user.
func (db *DB) CacheSettings(userID, payload string) error {
	_, err := db.Exec(`
		INSERT INTO settings_cache (user_id, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		userID, payload, time.Now().UnixMilli(),
	)
	return err
}
