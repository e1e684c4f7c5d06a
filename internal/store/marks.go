package store

import (
	"database/sql"
	"errors"
	"time"
)

// LastFreeSessionAt returns when the user last completed a free-tier
// session, or the zero time if they never have.
func (db *DB) LastFreeSessionAt(userID string) (time.Time, error) {
	var millis int64
	err := db.QueryRow(
		`SELECT last_free_session_at FROM free_session_marks WHERE user_id = ?`,
		userID,
	).Scan(&millis)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(millis), nil
}

// MarkFreeSession records the end time of a free-tier session, replacing any
// prior mark for the user.
func (db *DB) MarkFreeSession(userID string, at time.Time) error {
	_, err := db.Exec(`
		INSERT INTO free_session_marks (user_id, last_free_session_at)
		VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET last_free_session_at = excluded.last_free_session_at`,
		userID, at.UnixMilli(),
	)
	return err
}
