// Package media models acquisition and release of the local camera and
// microphone. Acquired streams are scoped resources: every exit path from an
// active session must release them, so Stream.Stop is idempotent and safe to
// call from error paths.
package media

import (
	"context"
	"sync"
)

// TrackKind distinguishes captured tracks.
type TrackKind string

const (
	Video TrackKind = "video"
	Audio TrackKind = "audio"
)

// Devices acquires local capture devices.
type Devices interface {
	Acquire(ctx context.Context) (*Stream, error)
}

// Track is a single captured track. Disabling mutes without releasing the
// device; stopping releases it.
type Track struct {
	Kind TrackKind

	mu      sync.Mutex
	enabled bool
	stopped bool
}

// NewTrack creates an enabled, running track.
func NewTrack(kind TrackKind) *Track {
	return &Track{Kind: kind, enabled: true}
}

// SetEnabled mutes or unmutes the track.
func (t *Track) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

// Enabled reports whether the track is live (unmuted).
func (t *Track) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// Stop releases the underlying device. Idempotent.
func (t *Track) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

// Stopped reports whether the track has been released.
func (t *Track) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Stream is an acquired set of local tracks.
type Stream struct {
	mu      sync.Mutex
	tracks  []*Track
	release func()
}

// NewStream creates a stream over the given tracks. release may be nil; it
// runs once when the stream is stopped.
func NewStream(tracks []*Track, release func()) *Stream {
	return &Stream{tracks: tracks, release: release}
}

// Tracks returns the stream's tracks.
func (s *Stream) Tracks() []*Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Track(nil), s.tracks...)
}

// SetKindEnabled toggles all tracks of a kind, mirroring the UI's
// camera/microphone buttons.
func (s *Stream) SetKindEnabled(kind TrackKind, enabled bool) {
	for _, t := range s.Tracks() {
		if t.Kind == kind {
			t.SetEnabled(enabled)
		}
	}
}

// Stop stops every track and runs the release hook once. Idempotent.
func (s *Stream) Stop() {
	s.mu.Lock()
	release := s.release
	s.release = nil
	tracks := append([]*Track(nil), s.tracks...)
	s.mu.Unlock()

	for _, t := range tracks {
		t.Stop()
	}
	if release != nil {
		release()
	}
}

// Stopped reports whether every track has been released.
func (s *Stream) Stopped() bool {
	tracks := s.Tracks()
	if len(tracks) == 0 {
		return true
	}
	for _, t := range tracks {
		if !t.Stopped() {
			return false
		}
	}
	return true
}
