package bus

import "time"

// Kind identifies an event type. Kinds are dot-separated so subscribers can
// filter on a namespace prefix ("network.", "video.", ...).
type Kind string

// Event kinds published by the core services.
const (
	// network.*: connectivity monitor.
	NetworkStatusChanged Kind = "network.status_changed"
	NetworkLost          Kind = "network.lost"
	NetworkRestored      Kind = "network.restored"

	// settings.*: remote settings store.
	SettingsCreated Kind = "settings.created"
	SettingsUpdated Kind = "settings.updated"

	// video.*: video session lifecycle.
	VideoStateChanged Kind = "video.state_changed"
	VideoStarted      Kind = "video.started"
	VideoEnded        Kind = "video.ended"
	VideoLimitReached Kind = "video.limit_reached"
	VideoPersistError Kind = "video.persist_error"
)

// Event is a domain event published on the bus. The JSON form is what the
// daemon's event feed delivers to websocket subscribers.
type Event struct {
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}
