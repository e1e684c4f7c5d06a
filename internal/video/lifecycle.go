// Package video orchestrates the video consultation session: local media
// acquisition, remote conversation creation, metadata persistence, tier
// limits and teardown. Exactly one session may be in flight per daemon; the
// state machine enforces single-flight and guarantees local resources are
// released on every exit path.
package video

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Abhishek8642/MindPal-1.3/internal/auth"
	"github.com/Abhishek8642/MindPal-1.3/internal/avatar"
	"github.com/Abhishek8642/MindPal-1.3/internal/backend"
	"github.com/Abhishek8642/MindPal-1.3/internal/bus"
	"github.com/Abhishek8642/MindPal-1.3/internal/fault"
	"github.com/Abhishek8642/MindPal-1.3/internal/media"
	"github.com/Abhishek8642/MindPal-1.3/internal/retry"
	"github.com/Abhishek8642/MindPal-1.3/internal/sessiontimer"
	"github.com/Abhishek8642/MindPal-1.3/internal/store"
)

// State is a lifecycle state.
type State string

const (
	Idle                  State = "IDLE"
	AcquiringMedia        State = "ACQUIRING_MEDIA"
	CreatingRemoteSession State = "CREATING_REMOTE_SESSION"
	Active                State = "ACTIVE"
	Ending                State = "ENDING"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Idle:                  {AcquiringMedia},
	AcquiringMedia:        {CreatingRemoteSession, Idle},
	CreatingRemoteSession: {Active, Idle},
	Active:                {Ending},
	Ending:                {Idle},
}

// Tier is the session-duration policy bundle.
type Tier struct {
	Privileged bool `json:"privileged"`
	MaxSeconds int  `json:"max_seconds"`
}

// Session is an established video session.
type Session struct {
	SessionID       string    `json:"session_id"`
	ConversationID  string    `json:"conversation_id"`
	SessionURL      string    `json:"session_url"`
	UserID          string    `json:"user_id"`
	ReplicaID       string    `json:"replica_id"`
	Tier            Tier      `json:"tier"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at,omitzero"`
	DurationSeconds int       `json:"duration_seconds"`
}

// EndReason distinguishes why a session ended.
type EndReason string

const (
	EndedByUser  EndReason = "user"
	EndedByLimit EndReason = "tier_limit"
)

// Persister is the slice of the backend client the lifecycle needs.
type Persister interface {
	InsertVideoSession(ctx context.Context, row *backend.SessionRow) error
	MarkVideoSessionEnded(ctx context.Context, sessionID, userID string, endedAt time.Time, durationSeconds int) error
}

// Config wires the lifecycle's collaborators.
type Config struct {
	Devices   media.Devices
	Provider  avatar.Provider
	Persister Persister
	Exec      *retry.Executor
	Status    retry.StatusSource
	Auth      *auth.Manager
	DB        *store.DB
	Bus       *bus.Bus
	Logger    *zap.Logger
	Policy    retry.Policy
	Cooldown  time.Duration

	// TickInterval is the timer granularity; zero means one second.
	// Tests shrink it to advance session time quickly.
	TickInterval time.Duration
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// Lifecycle owns the video session state machine.
type Lifecycle struct {
	cfg   Config
	now   func() time.Time
	timer *sessiontimer.Service

	mu      sync.Mutex
	state   State
	session *Session
	stream  *media.Stream
}

// NewLifecycle creates an idle lifecycle.
func NewLifecycle(cfg Config) *Lifecycle {
	l := &Lifecycle{cfg: cfg, state: Idle, now: cfg.Now}
	if l.now == nil {
		l.now = time.Now
	}
	interval := cfg.TickInterval
	if interval <= 0 {
		interval = time.Second
	}
	l.timer = sessiontimer.NewWithInterval(interval, l.onTick)
	return l
}

// StateOf returns the current lifecycle state.
func (l *Lifecycle) StateOf() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Current returns a copy of the active session and its elapsed seconds, or
// nil when no session is in flight.
func (l *Lifecycle) Current() (*Session, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session == nil {
		return nil, 0
	}
	s := *l.session
	return &s, l.timer.Elapsed()
}

// SetKindEnabled toggles the camera or microphone of the active session.
func (l *Lifecycle) SetKindEnabled(kind media.TrackKind, enabled bool) {
	l.mu.Lock()
	stream := l.stream
	l.mu.Unlock()
	if stream != nil {
		stream.SetKindEnabled(kind, enabled)
	}
}

// transition moves the machine to a new state, publishing a state-change
// event. Caller must not hold l.mu.
func (l *Lifecycle) transition(to State) error {
	l.mu.Lock()
	from := l.state
	if !slices.Contains(validTransitions[from], to) {
		l.mu.Unlock()
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	l.state = to
	l.mu.Unlock()

	if l.cfg.Bus != nil {
		l.cfg.Bus.Emit(bus.VideoStateChanged, map[string]string{
			"from": string(from), "to": string(to),
		})
	}
	return nil
}

// StartSession establishes a new video session. Preconditions are checked
// before any state change: the machine must be idle, connectivity must be
// up, and a free-tier caller must be outside the cooldown window.
func (l *Lifecycle) StartSession(ctx context.Context, replicaID string, tier Tier) (*Session, error) {
	const op = "video.start_session"

	sess, err := l.cfg.Auth.Current()
	if err != nil {
		return nil, err
	}

	snap := l.cfg.Status.Snapshot()
	if !snap.IsOnline {
		return nil, fault.New(fault.NetworkUnavailable, op, "internet connection required for video sessions")
	}
	if !snap.IsBackendReachable {
		return nil, fault.New(fault.BackendUnreachable, op, "backend unreachable, cannot start a session")
	}

	if !tier.Privileged {
		last, err := l.cfg.DB.LastFreeSessionAt(sess.UserID)
		if err != nil {
			return nil, fault.Wrap(fault.Internal, op, err)
		}
		if !last.IsZero() {
			if wait := l.cfg.Cooldown - l.now().Sub(last); wait > 0 {
				return nil, fault.New(fault.FreeTierCooldown, op,
					fmt.Sprintf("next free session available in %s", wait.Round(time.Minute)))
			}
		}
	}

	// Single-flight: claim the machine before doing any work.
	l.mu.Lock()
	if l.state != Idle {
		l.mu.Unlock()
		return nil, fault.New(fault.SessionActive, op, "a video session is already in progress")
	}
	l.state = AcquiringMedia
	l.mu.Unlock()
	if l.cfg.Bus != nil {
		l.cfg.Bus.Emit(bus.VideoStateChanged, map[string]string{"from": string(Idle), "to": string(AcquiringMedia)})
	}

	stream, err := l.cfg.Devices.Acquire(ctx)
	if err != nil {
		_ = l.transition(Idle)
		if fault.Is(err, fault.MediaAccessDenied) {
			return nil, err
		}
		return nil, fault.Wrap(fault.MediaAccessDenied, op, err)
	}

	if err := l.transition(CreatingRemoteSession); err != nil {
		stream.Stop()
		return nil, err
	}

	conv, err := l.cfg.Provider.CreateConversation(ctx, replicaID)
	if err != nil {
		stream.Stop()
		_ = l.transition(Idle)
		return nil, err
	}

	session := &Session{
		SessionID:      uuid.NewString(),
		ConversationID: conv.ConversationID,
		SessionURL:     conv.ConversationURL,
		UserID:         sess.UserID,
		ReplicaID:      replicaID,
		Tier:           tier,
		StartedAt:      l.now(),
	}

	l.persistStart(ctx, session)

	l.mu.Lock()
	l.session = session
	l.stream = stream
	l.mu.Unlock()
	if err := l.transition(Active); err != nil {
		// Unreachable by construction; clean up defensively anyway.
		stream.Stop()
		return nil, err
	}

	l.timer.Reset()
	l.timer.Start()

	if l.cfg.Logger != nil {
		l.cfg.Logger.Info("video session started",
			zap.String("session_id", session.SessionID),
			zap.String("conversation_id", session.ConversationID),
			zap.Bool("privileged", tier.Privileged))
	}
	if l.cfg.Bus != nil {
		l.cfg.Bus.Emit(bus.VideoStarted, *session)
	}

	copied := *session
	return &copied, nil
}

// persistStart records session metadata best-effort. A failed durability
// write leaves the in-memory session fully usable.
func (l *Lifecycle) persistStart(ctx context.Context, s *Session) {
	err := l.cfg.Exec.Run(ctx, "video.persist_start", l.cfg.Policy, func(ctx context.Context) error {
		return l.cfg.Persister.InsertVideoSession(ctx, &backend.SessionRow{
			UserID:         s.UserID,
			SessionID:      s.SessionID,
			ConversationID: s.ConversationID,
			SessionConfig:  map[string]any{"replica_id": s.ReplicaID},
		})
	})
	if err != nil {
		if l.cfg.Logger != nil {
			l.cfg.Logger.Warn("failed to persist session start",
				zap.String("session_id", s.SessionID), zap.Error(err))
		}
		if l.cfg.Bus != nil {
			l.cfg.Bus.Emit(bus.VideoPersistError, map[string]string{
				"session_id": s.SessionID, "error": err.Error(),
			})
		}
	}

	if l.cfg.DB != nil {
		if err := l.cfg.DB.LogSessionStart(&store.SessionRecord{
			SessionID:      s.SessionID,
			ConversationID: s.ConversationID,
			UserID:         s.UserID,
			ReplicaID:      s.ReplicaID,
			StartedAt:      s.StartedAt.UnixMilli(),
		}); err != nil && l.cfg.Logger != nil {
			l.cfg.Logger.Warn("failed to journal session start", zap.Error(err))
		}
	}
}

// EndSession tears down the active session. Remote termination and the
// persistence update are best-effort; local cleanup is unconditional, so
// media is released and the timer stopped even when both remote calls fail.
// Calling while idle or already ending is a no-op.
func (l *Lifecycle) EndSession(ctx context.Context) error {
	return l.endSession(ctx, EndedByUser)
}

func (l *Lifecycle) endSession(ctx context.Context, reason EndReason) error {
	l.mu.Lock()
	if l.state == Idle || l.state == Ending {
		l.mu.Unlock()
		return nil
	}
	if l.state != Active {
		l.mu.Unlock()
		return fault.New(fault.Internal, "video.end_session",
			fmt.Sprintf("cannot end session from state %s", l.state))
	}
	l.state = Ending
	session := l.session
	stream := l.stream
	l.session = nil
	l.stream = nil
	l.mu.Unlock()
	if l.cfg.Bus != nil {
		l.cfg.Bus.Emit(bus.VideoStateChanged, map[string]string{"from": string(Active), "to": string(Ending)})
	}

	endedAt := l.now()
	duration := l.timer.Elapsed()
	session.EndedAt = endedAt
	session.DurationSeconds = duration

	// Local cleanup runs no matter what the remote calls do below.
	defer func() {
		if stream != nil {
			stream.Stop()
		}
		l.timer.Reset()

		if !session.Tier.Privileged && l.cfg.DB != nil {
			if err := l.cfg.DB.MarkFreeSession(session.UserID, endedAt); err != nil && l.cfg.Logger != nil {
				l.cfg.Logger.Warn("failed to record free session mark", zap.Error(err))
			}
		}

		_ = l.transition(Idle)
		if l.cfg.Logger != nil {
			l.cfg.Logger.Info("video session ended",
				zap.String("session_id", session.SessionID),
				zap.String("reason", string(reason)),
				zap.Int("duration_seconds", duration))
		}
		if l.cfg.Bus != nil {
			l.cfg.Bus.Emit(bus.VideoEnded, map[string]any{
				"session": *session, "reason": string(reason),
			})
		}
	}()

	if err := l.cfg.Provider.EndConversation(ctx, session.ConversationID); err != nil {
		if l.cfg.Logger != nil {
			l.cfg.Logger.Warn("failed to end remote conversation",
				zap.String("conversation_id", session.ConversationID), zap.Error(err))
		}
	}

	err := l.cfg.Exec.Run(ctx, "video.persist_end", l.cfg.Policy, func(ctx context.Context) error {
		return l.cfg.Persister.MarkVideoSessionEnded(ctx, session.SessionID, session.UserID, endedAt, duration)
	})
	if err != nil {
		if l.cfg.Logger != nil {
			l.cfg.Logger.Warn("failed to persist session end",
				zap.String("session_id", session.SessionID), zap.Error(err))
		}
		if l.cfg.Bus != nil {
			l.cfg.Bus.Emit(bus.VideoPersistError, map[string]string{
				"session_id": session.SessionID, "error": err.Error(),
			})
		}
	}

	if l.cfg.DB != nil {
		if err := l.cfg.DB.LogSessionEnd(session.SessionID, endedAt.UnixMilli(), duration); err != nil && l.cfg.Logger != nil {
			l.cfg.Logger.Warn("failed to journal session end", zap.Error(err))
		}
	}

	return nil
}

// onTick enforces the tier ceiling. Runs on the timer goroutine once per
// second while a session is active.
func (l *Lifecycle) onTick(elapsed int) {
	l.mu.Lock()
	session := l.session
	active := l.state == Active
	l.mu.Unlock()
	if !active || session == nil {
		return
	}
	if elapsed < session.Tier.MaxSeconds {
		return
	}

	if l.cfg.Bus != nil {
		l.cfg.Bus.Emit(bus.VideoLimitReached, map[string]any{
			"session_id":  session.SessionID,
			"max_seconds": session.Tier.MaxSeconds,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = l.endSession(ctx, EndedByLimit)
}
