// Package settings synchronizes the per-user preference record against the
// backend with create-if-absent semantics, caching the last known copy
// locally so the UI still has data while the backend is unreachable.
package settings

import (
	"github.com/Abhishek8642/MindPal-1.3/internal/backend"
)

// Voice speeds.
const (
	VoiceSlow   = "slow"
	VoiceNormal = "normal"
	VoiceFast   = "fast"
)

// AI personalities.
const (
	PersonalitySupportive   = "supportive"
	PersonalityProfessional = "professional"
	PersonalityFriendly     = "friendly"
	PersonalityMotivational = "motivational"
)

// Record is a user's settings. The backend owns the durable record, keyed by
// user id with a unique constraint; this is the client's copy.
type Record struct {
	UserID          string `json:"user_id"`
	Language        string `json:"language"`
	VoiceSpeed      string `json:"voice_speed"`
	AIPersonality   string `json:"ai_personality"`
	DataSharing     bool   `json:"data_sharing"`
	Analytics       bool   `json:"analytics"`
	VoiceRecordings bool   `json:"voice_recordings"`
}

// Partial is a sparse update; nil fields are left unchanged.
type Partial struct {
	Language        *string `json:"language,omitempty"`
	VoiceSpeed      *string `json:"voice_speed,omitempty"`
	AIPersonality   *string `json:"ai_personality,omitempty"`
	DataSharing     *bool   `json:"data_sharing,omitempty"`
	Analytics       *bool   `json:"analytics,omitempty"`
	VoiceRecordings *bool   `json:"voice_recordings,omitempty"`
}

// Defaults returns the default settings for a user.
func Defaults(userID string) *Record {
	return &Record{
		UserID:          userID,
		Language:        "en",
		VoiceSpeed:      VoiceNormal,
		AIPersonality:   PersonalitySupportive,
		DataSharing:     false,
		Analytics:       true,
		VoiceRecordings: true,
	}
}

// merge applies a partial over a record, returning the full merged record.
func merge(base *Record, p *Partial) *Record {
	out := *base
	if p == nil {
		return &out
	}
	if p.Language != nil {
		out.Language = *p.Language
	}
	if p.VoiceSpeed != nil {
		out.VoiceSpeed = *p.VoiceSpeed
	}
	if p.AIPersonality != nil {
		out.AIPersonality = *p.AIPersonality
	}
	if p.DataSharing != nil {
		out.DataSharing = *p.DataSharing
	}
	if p.Analytics != nil {
		out.Analytics = *p.Analytics
	}
	if p.VoiceRecordings != nil {
		out.VoiceRecordings = *p.VoiceRecordings
	}
	return &out
}

func toRow(r *Record) *backend.SettingsRow {
	return &backend.SettingsRow{
		UserID:          r.UserID,
		Language:        r.Language,
		VoiceSpeed:      r.VoiceSpeed,
		AIPersonality:   r.AIPersonality,
		DataSharing:     r.DataSharing,
		Analytics:       r.Analytics,
		VoiceRecordings: r.VoiceRecordings,
	}
}

func fromRow(row *backend.SettingsRow) *Record {
	return &Record{
		UserID:          row.UserID,
		Language:        row.Language,
		VoiceSpeed:      row.VoiceSpeed,
		AIPersonality:   row.AIPersonality,
		DataSharing:     row.DataSharing,
		Analytics:       row.Analytics,
		VoiceRecordings: row.VoiceRecordings,
	}
}
