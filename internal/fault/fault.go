// Package fault defines the error taxonomy shared by the connectivity,
// settings and video services. Every failure crossing a component boundary
// carries a Kind so callers can branch on classification instead of
// string-matching messages.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	// NetworkUnavailable: no local connectivity; fail fast, no attempt made.
	NetworkUnavailable Kind = "network_unavailable"
	// BackendUnreachable: online but the backend did not answer. Transient.
	BackendUnreachable Kind = "backend_unreachable"
	// NotAuthenticated: no user is signed in.
	NotAuthenticated Kind = "not_authenticated"
	// AuthTokenExpired: the backend rejected an expired token. Handled by
	// the auth collaborator, never retried.
	AuthTokenExpired Kind = "auth_token_expired"
	// MediaAccessDenied: camera/microphone acquisition failed.
	MediaAccessDenied Kind = "media_access_denied"
	// RemoteSessionCreateFailed: the avatar provider rejected session creation.
	RemoteSessionCreateFailed Kind = "remote_session_create_failed"
	// FreeTierCooldown: a free-tier session was requested inside the
	// 24-hour cooldown window.
	FreeTierCooldown Kind = "free_tier_cooldown"
	// SessionActive: a session start was rejected because one is already
	// in flight (single-flight guard).
	SessionActive Kind = "session_active"
	// PersistenceFailed: a best-effort durability write failed. Logged, not
	// surfaced.
	PersistenceFailed Kind = "persistence_failed"
	// DuplicateKey: a unique-constraint conflict. For create-if-absent
	// writes this is an expected outcome, not an error condition.
	DuplicateKey Kind = "duplicate_key"
	// Timeout: an operation exceeded its deadline. Transient.
	Timeout Kind = "timeout"
	// Internal: anything not otherwise classified.
	Internal Kind = "internal"
)

// Error is a classified failure.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "settings.load"
	Msg  string // human-readable detail
	Err  error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the classification of err, or Internal for unclassified
// errors. A nil error has no kind and returns "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsTransient reports whether err is worth retrying. Connectivity-level
// failures and timeouts are transient; authorization and validation failures
// are not.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case BackendUnreachable, Timeout:
		return true
	default:
		return false
	}
}

// IsConnectivity reports whether err is a network-level failure. These are
// the only failures cached-fallback paths may absorb; auth and validation
// failures must surface to the caller.
func IsConnectivity(err error) bool {
	switch KindOf(err) {
	case NetworkUnavailable, BackendUnreachable, Timeout:
		return true
	default:
		return false
	}
}

// IsDuplicateKey reports whether err is a unique-constraint conflict.
// createDefault treats this as success: the racing writer already produced
// the single desired record.
func IsDuplicateKey(err error) bool {
	return Is(err, DuplicateKey)
}
