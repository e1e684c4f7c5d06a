package daemon

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Abhishek8642/MindPal-1.3/internal/api"
	"github.com/Abhishek8642/MindPal-1.3/internal/auth"
	"github.com/Abhishek8642/MindPal-1.3/internal/avatar"
	"github.com/Abhishek8642/MindPal-1.3/internal/backend"
	"github.com/Abhishek8642/MindPal-1.3/internal/bus"
	"github.com/Abhishek8642/MindPal-1.3/internal/dashboard"
	"github.com/Abhishek8642/MindPal-1.3/internal/lock"
	"github.com/Abhishek8642/MindPal-1.3/internal/media"
	"github.com/Abhishek8642/MindPal-1.3/internal/netmon"
	"github.com/Abhishek8642/MindPal-1.3/internal/retry"
	"github.com/Abhishek8642/MindPal-1.3/internal/settings"
	"github.com/Abhishek8642/MindPal-1.3/internal/store"
	"github.com/Abhishek8642/MindPal-1.3/internal/video"
)

type okProber struct{}

func (okProber) Ping(context.Context) error { return nil }

type onlinePlatform struct{ ch chan bool }

func (p *onlinePlatform) Online() bool        { return true }
func (p *onlinePlatform) Events() <-chan bool { return p.ch }

type memBackend struct{ rows map[string]*backend.SettingsRow }

func (m *memBackend) GetUserSettings(_ context.Context, userID string) (*backend.SettingsRow, error) {
	return m.rows[userID], nil
}

func (m *memBackend) InsertUserSettings(_ context.Context, row *backend.SettingsRow) error {
	m.rows[row.UserID] = row
	return nil
}

func (m *memBackend) UpsertUserSettings(_ context.Context, row *backend.SettingsRow) error {
	m.rows[row.UserID] = row
	return nil
}

type stubDevices struct{}

func (stubDevices) Acquire(context.Context) (*media.Stream, error) {
	return media.NewStream([]*media.Track{media.NewTrack(media.Video)}, nil), nil
}

type stubProvider struct{}

func (stubProvider) CreateConversation(context.Context, string) (*avatar.Conversation, error) {
	return &avatar.Conversation{ConversationID: "c-1", ConversationURL: "https://provider.example/c-1"}, nil
}

func (stubProvider) EndConversation(context.Context, string) error { return nil }

type stubPersister struct{}

func (stubPersister) InsertVideoSession(context.Context, *backend.SessionRow) error { return nil }
func (stubPersister) MarkVideoSessionEnded(context.Context, string, string, time.Time, int) error {
	return nil
}

type stubCounter struct{}

func (stubCounter) CountRows(context.Context, string, string) (int, error) { return 0, nil }

func testHandler(t *testing.T, db *store.DB) *api.Handler {
	t.Helper()
	logger := zap.NewNop()
	b := bus.New()
	monitor := netmon.New(okProber{}, &onlinePlatform{ch: make(chan bool)}, b, logger, time.Hour)
	exec := retry.NewExecutor(monitor, logger)
	policy := retry.Policy{MaxAttempts: 1}

	// No session preset: callers sign in through the API the way the
	// browser does.
	mgr := auth.NewManager(nil)

	st := settings.NewStore(&memBackend{rows: make(map[string]*backend.SettingsRow)},
		exec, monitor, mgr, db, b, logger, policy)
	lc := video.NewLifecycle(video.Config{
		Devices:      stubDevices{},
		Provider:     stubProvider{},
		Persister:    stubPersister{},
		Exec:         exec,
		Status:       monitor,
		Auth:         mgr,
		DB:           db,
		Bus:          b,
		Logger:       logger,
		Policy:       policy,
		Cooldown:     24 * time.Hour,
		TickInterval: time.Hour,
	})
	t.Cleanup(func() { _ = lc.EndSession(context.Background()) })
	dash := dashboard.NewService(stubCounter{}, exec, mgr, logger, policy)

	return api.NewHandler(monitor, st, lc, dash, mgr, b, logger, "r-1", api.Tiers{
		Free:       video.Tier{MaxSeconds: 300},
		Privileged: video.Tier{Privileged: true, MaxSeconds: 3600},
	})
}

func socketClient(socketPath string) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
		Timeout: 5 * time.Second,
	}
}

func TestDaemonLifecycle(t *testing.T) {
	// Use a short path to avoid the 104-char unix socket limit on macOS.
	tmpDir, err := os.MkdirTemp("/tmp", "mindpal-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	socketPath := filepath.Join(tmpDir, "d.sock")

	lk, err := lock.Acquire(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lk.Release() }()

	db, err := store.Open(filepath.Join(tmpDir, "mindpal.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	srv, err := NewServer(Params{SocketPath: socketPath}, zap.NewNop(), testHandler(t, db))
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Start() }()
	defer srv.Stop(context.Background())

	time.Sleep(50 * time.Millisecond)

	client := socketClient(socketPath)

	resp, err := client.Get("http://unix/v1/status")
	if err != nil {
		t.Fatalf("GET /v1/status error = %v", err)
	}
	var snap netmon.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if !snap.IsOnline {
		t.Errorf("snapshot = %+v", snap)
	}

	resp, err = client.Get("http://unix/v1/settings?user_id=u-1")
	if err != nil {
		t.Fatalf("GET /v1/settings error = %v", err)
	}
	var rec settings.Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if rec.Language != "en" {
		t.Errorf("settings = %+v", rec)
	}

	resp, err = client.Post("http://unix/v1/video/session", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /v1/video/session error = %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("signed-out start session status = %d, want 401", resp.StatusCode)
	}

	body := strings.NewReader(`{"user_id":"u-1","access_token":"tok","refresh_token":"rot-1"}`)
	resp, err = client.Post("http://unix/v1/auth/session", "application/json", body)
	if err != nil {
		t.Fatalf("POST /v1/auth/session error = %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("install session status = %d", resp.StatusCode)
	}

	resp, err = client.Post("http://unix/v1/video/session", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /v1/video/session error = %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("start session status = %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodDelete, "http://unix/v1/video/session", nil)
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("DELETE /v1/video/session error = %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("end session status = %d", resp.StatusCode)
	}
}

// NewServer must accept Params rather than a bare string so the fx graph can
// resolve it.
func TestServerCreatesSocket(t *testing.T) {
	tmpDir, err := os.MkdirTemp("/tmp", "mindpal-sock-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	socketPath := filepath.Join(tmpDir, "d.sock")

	db, err := store.Open(filepath.Join(tmpDir, "mindpal.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}

	srv, err := NewServer(Params{SocketPath: socketPath}, zap.NewNop(), testHandler(t, db))
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	if _, statErr := os.Stat(socketPath); statErr != nil {
		t.Fatalf("socket not created at %s: %v", socketPath, statErr)
	}

	srv.Stop(context.Background())
	if _, statErr := os.Stat(socketPath); !os.IsNotExist(statErr) {
		t.Error("socket file not removed on stop")
	}
}

// A second daemon against the same directory must be refused while the first
// holds the lock.
func TestSingleInstanceLock(t *testing.T) {
	tmpDir, err := os.MkdirTemp("/tmp", "mindpal-lock-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	lk, err := lock.Acquire(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lk.Release() }()

	if _, err := lock.Acquire(tmpDir); err == nil {
		t.Fatal("second Acquire() succeeded while lock held")
	}
}
