package backend

import (
	"context"
	"encoding/json"
	"net/url"
)

// SettingsRow is the wire form of a user_settings record.
type SettingsRow struct {
	UserID          string `json:"user_id"`
	Language        string `json:"language"`
	VoiceSpeed      string `json:"voice_speed"`
	AIPersonality   string `json:"ai_personality"`
	DataSharing     bool   `json:"data_sharing"`
	Analytics       bool   `json:"analytics"`
	VoiceRecordings bool   `json:"voice_recordings"`
}

// GetUserSettings fetches the settings record for a user. Returns (nil, nil)
// when no record exists; the caller distinguishes absence from failure.
func (c *Client) GetUserSettings(ctx context.Context, userID string) (*SettingsRow, error) {
	const op = "backend.get_user_settings"
	path := "/rest/v1/user_settings?user_id=eq." + url.QueryEscape(userID) + "&limit=1"

	resp, err := c.do(ctx, op, "GET", path, nil, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var rows []SettingsRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// InsertUserSettings creates a settings record. A racing creator surfaces as
// a DuplicateKey fault, which create-if-absent callers treat as success.
func (c *Client) InsertUserSettings(ctx context.Context, row *SettingsRow) error {
	const op = "backend.insert_user_settings"
	_, err := c.discard(c.do(ctx, op, "POST", "/rest/v1/user_settings", []*SettingsRow{row}, map[string]string{
		"Prefer": "return=minimal",
	}))
	return err
}

// UpsertUserSettings writes the full settings record, replacing any existing
// row for the user.
func (c *Client) UpsertUserSettings(ctx context.Context, row *SettingsRow) error {
	const op = "backend.upsert_user_settings"
	_, err := c.discard(c.do(ctx, op, "POST", "/rest/v1/user_settings?on_conflict=user_id", []*SettingsRow{row}, map[string]string{
		"Prefer": "resolution=merge-duplicates,return=minimal",
	}))
	return err
}
