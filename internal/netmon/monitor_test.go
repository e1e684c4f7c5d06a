package netmon

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Abhishek8642/MindPal-1.3/internal/bus"
	"github.com/Abhishek8642/MindPal-1.3/internal/fault"
)

type fakeProber struct {
	err   atomic.Value // error or nil sentinel
	calls atomic.Int32
}

func (f *fakeProber) setErr(err error) {
	if err == nil {
		f.err.Store(errSentinelNone)
	} else {
		f.err.Store(err)
	}
}

var errSentinelNone = errors.New("none")

func (f *fakeProber) Ping(context.Context) error {
	f.calls.Add(1)
	v, _ := f.err.Load().(error)
	if v == nil || errors.Is(v, errSentinelNone) {
		return nil
	}
	return v
}

type fakePlatform struct {
	online atomic.Bool
	ch     chan bool
}

func newFakePlatform(online bool) *fakePlatform {
	p := &fakePlatform{ch: make(chan bool, 8)}
	p.online.Store(online)
	return p
}

func (p *fakePlatform) Online() bool        { return p.online.Load() }
func (p *fakePlatform) Events() <-chan bool { return p.ch }

func (p *fakePlatform) flip(online bool) {
	p.online.Store(online)
	p.ch <- online
}

func newTestMonitor(prober *fakeProber, platform *fakePlatform, b *bus.Bus) *Monitor {
	return New(prober, platform, b, nil, time.Hour)
}

func TestInitialSnapshotOptimistic(t *testing.T) {
	m := newTestMonitor(&fakeProber{}, newFakePlatform(true), nil)

	snap := m.Snapshot()
	if snap.State != Unknown {
		t.Errorf("initial state = %s, want UNKNOWN", snap.State)
	}
	if !snap.IsOnline || !snap.IsBackendReachable {
		t.Errorf("initial snapshot = %+v, want optimistic online+reachable", snap)
	}
	if !snap.LastCheckedAt.IsZero() {
		t.Error("LastCheckedAt should be zero before first probe")
	}
}

func TestProbeReachable(t *testing.T) {
	m := newTestMonitor(&fakeProber{}, newFakePlatform(true), nil)

	snap := m.Probe(context.Background())
	if snap.State != OnlineReachable {
		t.Errorf("state = %s, want ONLINE_REACHABLE", snap.State)
	}
	if snap.LastCheckedAt.IsZero() {
		t.Error("LastCheckedAt not updated")
	}
}

func TestProbeUnreachable(t *testing.T) {
	prober := &fakeProber{}
	prober.setErr(fault.New(fault.BackendUnreachable, "backend.ping", "refused"))
	m := newTestMonitor(prober, newFakePlatform(true), nil)

	snap := m.Probe(context.Background())
	if snap.State != OnlineUnreachable {
		t.Errorf("state = %s, want ONLINE_UNREACHABLE", snap.State)
	}
	if !snap.IsOnline || snap.IsBackendReachable {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.ConsecutiveFailures != 1 {
		t.Errorf("ConsecutiveFailures = %d, want 1", snap.ConsecutiveFailures)
	}
}

func TestOfflineShortCircuitsBackendCheck(t *testing.T) {
	prober := &fakeProber{}
	m := newTestMonitor(prober, newFakePlatform(false), nil)

	snap := m.Probe(context.Background())
	if snap.State != Offline {
		t.Errorf("state = %s, want OFFLINE", snap.State)
	}
	if prober.calls.Load() != 0 {
		t.Error("backend probe should not run while offline")
	}
}

// Reachability may never be reported while the platform is offline, across
// any sequence of online/offline flips.
func TestReachableNeverTrueWhileOffline(t *testing.T) {
	prober := &fakeProber{}
	platform := newFakePlatform(true)
	m := newTestMonitor(prober, platform, nil)

	flips := []bool{false, true, false, false, true, false}
	for _, online := range flips {
		platform.online.Store(online)
		snap := m.Probe(context.Background())
		if !snap.IsOnline && snap.IsBackendReachable {
			t.Fatalf("invariant violated: reachable while offline (snapshot %+v)", snap)
		}
	}
}

func TestRetryResetsFailuresOnSuccess(t *testing.T) {
	prober := &fakeProber{}
	prober.setErr(errors.New("refused"))
	m := newTestMonitor(prober, newFakePlatform(true), nil)

	m.Probe(context.Background())
	m.Probe(context.Background())
	if got := m.Snapshot().ConsecutiveFailures; got != 2 {
		t.Fatalf("ConsecutiveFailures = %d, want 2", got)
	}

	prober.setErr(nil)
	snap := m.Retry(context.Background())
	if snap.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures after successful retry = %d, want 0", snap.ConsecutiveFailures)
	}
	if snap.State != OnlineReachable {
		t.Errorf("state = %s, want ONLINE_REACHABLE", snap.State)
	}
}

func TestEventsOnlyOnTransition(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("network.status_changed", 16)
	defer unsub()

	m := newTestMonitor(&fakeProber{}, newFakePlatform(true), b)

	m.Probe(context.Background()) // Unknown -> OnlineReachable
	m.Probe(context.Background()) // no change
	m.Probe(context.Background()) // no change

	count := 0
	timeout := time.After(200 * time.Millisecond)
drain:
	for {
		select {
		case <-ch:
			count++
		case <-timeout:
			break drain
		}
	}
	if count != 1 {
		t.Errorf("status_changed events = %d, want 1 (transitions only)", count)
	}
}

func TestLostAndRestoredAlerts(t *testing.T) {
	b := bus.New()
	lost, unsubLost := b.Subscribe("network.lost", 4)
	defer unsubLost()
	restored, unsubRestored := b.Subscribe("network.restored", 4)
	defer unsubRestored()

	platform := newFakePlatform(true)
	m := newTestMonitor(&fakeProber{}, platform, b)
	m.Probe(context.Background()) // establish OnlineReachable

	platform.online.Store(false)
	m.Probe(context.Background()) // -> Offline

	select {
	case <-lost:
	case <-time.After(time.Second):
		t.Fatal("no network.lost alert on going offline")
	}

	platform.online.Store(true)
	m.Probe(context.Background()) // -> OnlineReachable

	select {
	case <-restored:
	case <-time.After(time.Second):
		t.Fatal("no network.restored alert on recovery")
	}
}

func TestOfflineEventFromPlatform(t *testing.T) {
	platform := newFakePlatform(true)
	prober := &fakeProber{}
	m := newTestMonitor(prober, platform, nil)

	m.Start(context.Background())
	defer m.Stop()

	if m.Snapshot().State != OnlineReachable {
		t.Fatalf("state after Start = %s", m.Snapshot().State)
	}

	platform.flip(false)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.Snapshot().State == Offline {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("state = %s, want OFFLINE after platform offline event", m.Snapshot().State)
}
