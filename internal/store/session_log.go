package store

import (
	"database/sql"
	"errors"
)

// LogSessionStart records a newly established session in the local journal.
func (db *DB) LogSessionStart(rec *SessionRecord) error {
	_, err := db.Exec(`
		INSERT INTO session_log (session_id, conversation_id, user_id, replica_id, started_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO NOTHING`,
		rec.SessionID, rec.ConversationID, rec.UserID, rec.ReplicaID, rec.StartedAt,
	)
	return err
}

// LogSessionEnd stamps the end time and final duration of a session.
func (db *DB) LogSessionEnd(sessionID string, endedAt int64, durationSeconds int) error {
	_, err := db.Exec(`
		UPDATE session_log SET ended_at = ?, duration_seconds = ?
		WHERE session_id = ?`,
		endedAt, durationSeconds, sessionID,
	)
	return err
}

// LastSessionFor returns the most recently started session for a user, or
// nil if none is recorded.
func (db *DB) LastSessionFor(userID string) (*SessionRecord, error) {
	var rec SessionRecord
	var endedAt sql.NullInt64
	err := db.QueryRow(`
		SELECT session_id, conversation_id, user_id, replica_id, started_at, ended_at, duration_seconds
		FROM session_log WHERE user_id = ?
		ORDER BY started_at DESC LIMIT 1`,
		userID,
	).Scan(&rec.SessionID, &rec.ConversationID, &rec.UserID, &rec.ReplicaID, &rec.StartedAt, &endedAt, &rec.DurationSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if endedAt.Valid {
		rec.EndedAt = endedAt.Int64
	}
	return &rec, nil
}

// SessionCount returns the number of journaled sessions for a user.
func (db *DB) SessionCount(userID string) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM session_log WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}
