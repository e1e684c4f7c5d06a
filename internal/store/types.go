package store

// SessionRecord is a row of the local session journal. It mirrors the
// backend video_sessions table so a session started under a failed
// persistence write still leaves a durable local trace.
type SessionRecord struct {
	SessionID       string
	ConversationID  string
	UserID          string
	ReplicaID       string
	StartedAt       int64 // epoch millis
	EndedAt         int64 // epoch millis, 0 while active
	DurationSeconds int
}

// CachedSettings is a row of the settings cache.
type CachedSettings struct {
	UserID    string
	Payload   string // JSON-encoded settings record
	UpdatedAt int64  // epoch millis
}
