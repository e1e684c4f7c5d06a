package dashboard

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/Abhishek8642/MindPal-1.3/internal/auth"
	"github.com/Abhishek8642/MindPal-1.3/internal/fault"
	"github.com/Abhishek8642/MindPal-1.3/internal/netmon"
	"github.com/Abhishek8642/MindPal-1.3/internal/retry"
)

type fakeCounter struct {
	mu     sync.Mutex
	counts map[string]int
	errs   map[string]error
	calls  map[string]int
}

func (f *fakeCounter) CountRows(_ context.Context, table, _ string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[table]++
	if err := f.errs[table]; err != nil {
		return 0, err
	}
	return f.counts[table], nil
}

type onlineStatus struct{}

func (onlineStatus) Snapshot() netmon.Snapshot {
	return netmon.Snapshot{IsOnline: true, IsBackendReachable: true}
}

func newService(counter *fakeCounter) *Service {
	mgr := auth.NewManager(nil)
	mgr.SetSession(&auth.Session{UserID: "u-1"})
	exec := retry.NewExecutor(onlineStatus{}, zap.NewNop())
	return NewService(counter, exec, mgr, zap.NewNop(), retry.Policy{MaxAttempts: 2})
}

func TestSummarize(t *testing.T) {
	counter := &fakeCounter{counts: map[string]int{
		"tasks": 7, "mood_entries": 3, "chat_sessions": 12,
	}}
	s := newService(counter)

	got, err := s.Summarize(context.Background())
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	want := Summary{Tasks: 7, MoodEntries: 3, ChatSessions: 12}
	if *got != want {
		t.Errorf("summary = %+v, want %+v", *got, want)
	}
}

func TestSummarizeDegradesFailedCountToZero(t *testing.T) {
	counter := &fakeCounter{
		counts: map[string]int{"tasks": 7, "chat_sessions": 12},
		errs: map[string]error{
			"mood_entries": fault.New(fault.Internal, "backend.count_mood_entries", "boom"),
		},
	}
	s := newService(counter)

	got, err := s.Summarize(context.Background())
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if got.Tasks != 7 || got.ChatSessions != 12 {
		t.Errorf("healthy counts lost: %+v", *got)
	}
	if got.MoodEntries != 0 {
		t.Errorf("failed count = %d, want 0", got.MoodEntries)
	}
}

func TestSummarizeRetriesTransientFailures(t *testing.T) {
	counter := &fakeCounter{
		counts: map[string]int{"tasks": 1},
		errs: map[string]error{
			"tasks": fault.New(fault.BackendUnreachable, "backend.count_tasks", "503"),
		},
	}
	s := newService(counter)
	s.policy = retry.Policy{MaxAttempts: 2, BaseDelay: 0, Multiplier: 1}

	if _, err := s.Summarize(context.Background()); err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	counter.mu.Lock()
	defer counter.mu.Unlock()
	if counter.calls["tasks"] != 2 {
		t.Errorf("tasks count attempts = %d, want 2", counter.calls["tasks"])
	}
}

func TestSummarizeRequiresAuth(t *testing.T) {
	s := newService(&fakeCounter{})
	s.auth = auth.NewManager(nil)

	_, err := s.Summarize(context.Background())
	if !fault.Is(err, fault.NotAuthenticated) {
		t.Fatalf("kind = %v, want NotAuthenticated", fault.KindOf(err))
	}
}
