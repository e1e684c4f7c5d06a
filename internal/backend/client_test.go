package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Abhishek8642/MindPal-1.3/internal/auth"
	"github.com/Abhishek8642/MindPal-1.3/internal/fault"
)

type staticToken string

func (s staticToken) AccessToken() (string, error) { return string(s), nil }

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, "anon-key", staticToken("tok"), 2*time.Second)
}

func TestPingReachable(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("probe method = %s, want HEAD", r.Method)
		}
		if r.Header.Get("apikey") != "anon-key" {
			t.Error("probe missing apikey header")
		}
		w.WriteHeader(http.StatusOK)
	}))

	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestPingErrorStatusStillReachable(t *testing.T) {
	// The server answered; an HTTP error status is not unreachability.
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping() with 503 = %v, want nil", err)
	}
}

func TestPingTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // connection refused from here on
	c := New(srv.URL, "anon-key", nil, 2*time.Second)

	err := c.Ping(context.Background())
	if !fault.Is(err, fault.BackendUnreachable) {
		t.Errorf("Ping() kind = %v, want BackendUnreachable", fault.KindOf(err))
	}
}

func TestGetUserSettingsAbsent(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Error("missing bearer token")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
	}))

	row, err := c.GetUserSettings(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if row != nil {
		t.Errorf("GetUserSettings() = %+v, want nil for absent record", row)
	}
}

func TestGetUserSettingsPresent(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("user_id"); got != "eq.u1" {
			t.Errorf("user_id filter = %q, want eq.u1", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]SettingsRow{{
			UserID: "u1", Language: "en", VoiceSpeed: "fast", AIPersonality: "friendly",
		}})
	}))

	row, err := c.GetUserSettings(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if row == nil || row.VoiceSpeed != "fast" {
		t.Errorf("GetUserSettings() = %+v", row)
	}
}

func TestInsertDuplicateKeyClassified(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"23505","message":"duplicate key value violates unique constraint \"user_settings_user_id_key\""}`))
	}))

	err := c.InsertUserSettings(context.Background(), &SettingsRow{UserID: "u1"})
	if !fault.IsDuplicateKey(err) {
		t.Errorf("InsertUserSettings() kind = %v, want DuplicateKey", fault.KindOf(err))
	}
}

func TestExpiredTokenClassified(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":"PGRST301","message":"JWT expired"}`))
	}))

	_, err := c.GetUserSettings(context.Background(), "u1")
	if !fault.Is(err, fault.AuthTokenExpired) {
		t.Errorf("kind = %v, want AuthTokenExpired", fault.KindOf(err))
	}
	if fault.IsTransient(err) {
		t.Error("AuthTokenExpired must not be transient")
	}
}

// refreshingClient wires an auth manager as both the token source and the
// refresh target, the way the daemon assembles them.
func refreshingClient(t *testing.T, handler http.Handler) (*Client, *auth.Manager) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	am := auth.NewManager(nil)
	c := New(srv.URL, "anon-key", am, 2*time.Second)
	am.SetRefresher(c)
	return c, am
}

func TestExpiredTokenRefreshedAndReplayed(t *testing.T) {
	restHits := 0
	c, am := refreshingClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/auth/v1/token") {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"fresh","refresh_token":"rot-2"}`))
			return
		}
		restHits++
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":"PGRST301","message":"JWT expired"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
	}))
	am.SetSession(&auth.Session{UserID: "u1", AccessToken: "stale", RefreshToken: "rot-1"})

	if _, err := c.GetUserSettings(context.Background(), "u1"); err != nil {
		t.Fatalf("GetUserSettings() after refresh = %v, want success", err)
	}
	if restHits != 2 {
		t.Errorf("rest requests = %d, want expired attempt plus one replay", restHits)
	}

	s, _ := am.Current()
	if s.AccessToken != "fresh" || s.RefreshToken != "rot-2" {
		t.Errorf("session tokens = %q/%q, want fresh/rot-2", s.AccessToken, s.RefreshToken)
	}
}

func TestFailedRefreshSurfacesExpiry(t *testing.T) {
	restHits := 0
	c, am := refreshingClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/auth/v1/token") {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		restHits++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":"PGRST301","message":"JWT expired"}`))
	}))
	am.SetSession(&auth.Session{UserID: "u1", AccessToken: "stale", RefreshToken: "rot-1"})

	_, err := c.GetUserSettings(context.Background(), "u1")
	if !fault.Is(err, fault.AuthTokenExpired) {
		t.Errorf("kind = %v, want AuthTokenExpired", fault.KindOf(err))
	}
	if restHits != 1 {
		t.Errorf("rest requests = %d, want no replay after failed refresh", restHits)
	}
}

func TestRefreshExchange(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/auth/v1/token" {
			t.Errorf("refresh request = %s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q, want refresh_token", got)
		}
		if r.Header.Get("apikey") != "anon-key" {
			t.Error("refresh missing apikey header")
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["refresh_token"] != "rot-1" {
			t.Errorf("refresh_token = %q, want rot-1", body["refresh_token"])
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh","refresh_token":"rot-2"}`))
	}))

	tokens, err := c.Refresh(context.Background(), "rot-1")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if tokens.AccessToken != "fresh" || tokens.RefreshToken != "rot-2" {
		t.Errorf("Refresh() = %+v", tokens)
	}
}

func TestRefreshRejected(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"refresh token revoked"}`))
	}))

	_, err := c.Refresh(context.Background(), "revoked")
	if !fault.Is(err, fault.NotAuthenticated) {
		t.Errorf("kind = %v, want NotAuthenticated", fault.KindOf(err))
	}
}

func TestUpsertSendsMergeDuplicates(t *testing.T) {
	var prefer, query string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prefer = r.Header.Get("Prefer")
		query = r.URL.RawQuery
		w.WriteHeader(http.StatusCreated)
	}))

	if err := c.UpsertUserSettings(context.Background(), &SettingsRow{UserID: "u1"}); err != nil {
		t.Fatal(err)
	}
	if prefer != "resolution=merge-duplicates,return=minimal" {
		t.Errorf("Prefer = %q", prefer)
	}
	if query != "on_conflict=user_id" {
		t.Errorf("query = %q, want on_conflict=user_id", query)
	}
}

func TestMarkVideoSessionEnded(t *testing.T) {
	var method string
	var body map[string]any
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusNoContent)
	}))

	err := c.MarkVideoSessionEnded(context.Background(), "s1", "u1", time.Now(), 120)
	if err != nil {
		t.Fatal(err)
	}
	if method != http.MethodPatch {
		t.Errorf("method = %s, want PATCH", method)
	}
	if body["duration_seconds"] != float64(120) {
		t.Errorf("duration_seconds = %v, want 120", body["duration_seconds"])
	}
}

func TestCountRows(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Prefer") != "count=exact" {
			t.Error("missing count=exact preference")
		}
		w.Header().Set("Content-Range", "0-0/42")
		w.WriteHeader(http.StatusOK)
	}))

	n, err := c.CountRows(context.Background(), "tasks", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 42 {
		t.Errorf("CountRows() = %d, want 42", n)
	}
}

func TestCountRowsEmpty(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Range", "*/0")
		w.WriteHeader(http.StatusOK)
	}))

	n, err := c.CountRows(context.Background(), "mood_entries", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("CountRows() = %d, want 0", n)
	}
}
