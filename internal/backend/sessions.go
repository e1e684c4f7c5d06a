package backend

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// SessionRow is the wire form of a video_sessions record.
type SessionRow struct {
	UserID          string         `json:"user_id"`
	SessionID       string         `json:"session_id"`
	ConversationID  string         `json:"conversation_id,omitempty"`
	SessionConfig   map[string]any `json:"session_config,omitempty"`
	EndedAt         string         `json:"ended_at,omitempty"`
	DurationSeconds int            `json:"duration_seconds,omitempty"`
}

// InsertVideoSession records a newly established session.
func (c *Client) InsertVideoSession(ctx context.Context, row *SessionRow) error {
	const op = "backend.insert_video_session"
	_, err := c.discard(c.do(ctx, op, "POST", "/rest/v1/video_sessions", []*SessionRow{row}, map[string]string{
		"Prefer": "return=minimal",
	}))
	return err
}

// MarkVideoSessionEnded stamps end time and final duration on an existing
// session record.
func (c *Client) MarkVideoSessionEnded(ctx context.Context, sessionID, userID string, endedAt time.Time, durationSeconds int) error {
	const op = "backend.mark_video_session_ended"
	path := "/rest/v1/video_sessions?session_id=eq." + url.QueryEscape(sessionID) +
		"&user_id=eq." + url.QueryEscape(userID)
	body := map[string]any{
		"ended_at":         endedAt.UTC().Format(time.RFC3339),
		"duration_seconds": durationSeconds,
	}
	_, err := c.discard(c.do(ctx, op, "PATCH", path, body, map[string]string{
		"Prefer": "return=minimal",
	}))
	return err
}

// discard drains and closes a successful response body, passing errors
// through untouched.
func (c *Client) discard(resp *http.Response, err error) (*http.Response, error) {
	if err != nil {
		return nil, err
	}
	_ = resp.Body.Close()
	return resp, nil
}
