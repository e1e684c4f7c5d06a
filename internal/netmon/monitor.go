// Package netmon tracks local network reachability and backend reachability
// as an explicit state machine. Local connectivity ("is there a network at
// all") and backend reachability ("does the managed service answer") are
// distinct signals; the monitor owns both and every other component reads
// them through Snapshot.
package netmon

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Abhishek8642/MindPal-1.3/internal/bus"
)

// State is a connectivity state.
type State string

const (
	Unknown           State = "UNKNOWN"
	OnlineReachable   State = "ONLINE_REACHABLE"
	OnlineUnreachable State = "ONLINE_UNREACHABLE"
	Offline           State = "OFFLINE"
)

// Snapshot is the externally visible connectivity state. IsBackendReachable
// is never true while IsOnline is false: backend probes short-circuit when
// the platform reports offline.
type Snapshot struct {
	State               State     `json:"state"`
	IsOnline            bool      `json:"is_online"`
	IsBackendReachable  bool      `json:"is_backend_reachable"`
	LastCheckedAt       time.Time `json:"last_checked_at"`
	ConsecutiveFailures uint      `json:"consecutive_failures"`
}

// Prober checks whether the backend answers. Implemented by backend.Client.
type Prober interface {
	Ping(ctx context.Context) error
}

// Platform supplies local-network signals: a synchronous online flag and a
// stream of online/offline transitions.
type Platform interface {
	Online() bool
	Events() <-chan bool
}

// Monitor owns the connectivity state. It probes periodically while not
// offline, reacts to platform online/offline events, and publishes bus
// events on state transitions only.
type Monitor struct {
	mu          sync.RWMutex
	state       State
	online      bool
	reachable   bool
	lastChecked time.Time
	failures    uint

	prober   Prober
	platform Platform
	bus      *bus.Bus
	logger   *zap.Logger
	interval time.Duration
	cancel   context.CancelFunc
}

// New creates a monitor in the Unknown state with optimistic defaults: the
// platform's current online flag, and backend assumed reachable until the
// first probe completes.
func New(prober Prober, platform Platform, b *bus.Bus, logger *zap.Logger, interval time.Duration) *Monitor {
	return &Monitor{
		state:     Unknown,
		online:    platform.Online(),
		reachable: true,
		prober:    prober,
		platform:  platform,
		bus:       b,
		logger:    logger,
		interval:  interval,
	}
}

// Start runs the initial probe and begins the periodic re-probe loop.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.Probe(ctx)
	go m.loop(ctx)
}

// Stop cancels the probe loop.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *Monitor) loop(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if m.Snapshot().State != Offline {
				m.Probe(ctx)
			}
		case online, ok := <-m.platform.Events():
			if !ok {
				return
			}
			if online {
				m.Probe(ctx)
			} else {
				m.setOffline()
			}
		case <-ctx.Done():
			return
		}
	}
}

// Snapshot returns the last computed state. No I/O.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		State:               m.state,
		IsOnline:            m.online,
		IsBackendReachable:  m.reachable,
		LastCheckedAt:       m.lastChecked,
		ConsecutiveFailures: m.failures,
	}
}

// Probe re-evaluates connectivity. The backend check short-circuits when the
// platform reports offline. Probe failures are captured as state and never
// surface as errors.
func (m *Monitor) Probe(ctx context.Context) Snapshot {
	if !m.platform.Online() {
		m.setOffline()
		return m.Snapshot()
	}

	err := m.prober.Ping(ctx)
	m.setOnline(err == nil)
	return m.Snapshot()
}

// Retry forces a probe outside the periodic cadence. Used by user-initiated
// "retry connection" actions.
func (m *Monitor) Retry(ctx context.Context) Snapshot {
	return m.Probe(ctx)
}

func (m *Monitor) setOffline() {
	m.mu.Lock()
	prev := m.state
	m.state = Offline
	m.online = false
	m.reachable = false
	m.lastChecked = time.Now()
	m.failures++
	m.mu.Unlock()

	m.announce(prev, Offline)
}

func (m *Monitor) setOnline(reachable bool) {
	next := OnlineUnreachable
	if reachable {
		next = OnlineReachable
	}

	m.mu.Lock()
	prev := m.state
	m.state = next
	m.online = true
	m.reachable = reachable
	m.lastChecked = time.Now()
	if reachable {
		m.failures = 0
	} else {
		m.failures++
	}
	m.mu.Unlock()

	m.announce(prev, next)
}

// announce publishes transition events. Repeated probes with an unchanged
// state stay silent so subscribers are not re-rendered redundantly.
func (m *Monitor) announce(prev, next State) {
	if prev == next {
		return
	}
	if m.logger != nil {
		m.logger.Info("connectivity changed",
			zap.String("from", string(prev)),
			zap.String("to", string(next)))
	}
	if m.bus == nil {
		return
	}
	m.bus.Emit(bus.NetworkStatusChanged, m.Snapshot())
	switch {
	case next == Offline && prev != Offline && prev != Unknown:
		m.bus.Emit(bus.NetworkLost, nil)
	case next == OnlineReachable && (prev == Offline || prev == OnlineUnreachable):
		m.bus.Emit(bus.NetworkRestored, nil)
	}
}
