package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Abhishek8642/MindPal-1.3/internal/netmon"
	"github.com/Abhishek8642/MindPal-1.3/internal/paths"
	"github.com/Abhishek8642/MindPal-1.3/internal/settings"
)

func main() {
	socketFlag := flag.String("socket", "", "daemon socket path (overrides default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	socketPath := *socketFlag
	if socketPath == "" {
		socketPath = paths.SocketPath()
	}
	c := newClient(socketPath)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, *jsonFlag)
	case "retry":
		cmdRetry(ctx, c, *jsonFlag)
	case "auth":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: mindpalctl auth <login <user-id> <access-token> [refresh-token]|logout|status>")
			os.Exit(1)
		}
		cmdAuth(ctx, c, args[1:], *jsonFlag)
	case "settings":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: mindpalctl settings <get <user-id>|set <key> <value>>")
			os.Exit(1)
		}
		cmdSettings(ctx, c, args[1:], *jsonFlag)
	case "session":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: mindpalctl session <start|end|status>")
			os.Exit(1)
		}
		cmdSession(ctx, c, args[1], *jsonFlag)
	case "dashboard":
		cmdDashboard(ctx, c, *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: mindpalctl [--socket <path>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                    Show connectivity status")
	fmt.Fprintln(os.Stderr, "  retry                     Force a connectivity probe")
	fmt.Fprintln(os.Stderr, "  auth login <id> <token> [refresh]  Install the auth session")
	fmt.Fprintln(os.Stderr, "  auth logout               Sign out")
	fmt.Fprintln(os.Stderr, "  auth status               Show who is signed in")
	fmt.Fprintln(os.Stderr, "  settings get <user-id>    Show user settings")
	fmt.Fprintln(os.Stderr, "  settings set <key> <val>  Update one setting")
	fmt.Fprintln(os.Stderr, "  session start             Start a video session")
	fmt.Fprintln(os.Stderr, "  session end               End the video session")
	fmt.Fprintln(os.Stderr, "  session status            Show the video session")
	fmt.Fprintln(os.Stderr, "  dashboard                 Show activity summary")
}

// client talks HTTP to the daemon over its unix socket.
type client struct {
	http *http.Client
}

func newClient(socketPath string) *client {
	return &client{http: &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
		Timeout: 30 * time.Second,
	}}
}

func (c *client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, "http://mindpald"+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cannot reach daemon (is mindpald running?): %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("daemon returned %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func printSnapshot(snap *netmon.Snapshot) {
	fmt.Printf("State:     %s\n", snap.State)
	fmt.Printf("Online:    %v\n", snap.IsOnline)
	fmt.Printf("Backend:   reachable=%v\n", snap.IsBackendReachable)
	if !snap.LastCheckedAt.IsZero() {
		fmt.Printf("Checked:   %s\n", snap.LastCheckedAt.Format(time.RFC3339))
	}
	if snap.ConsecutiveFailures > 0 {
		fmt.Printf("Failures:  %d\n", snap.ConsecutiveFailures)
	}
}

func cmdStatus(ctx context.Context, c *client, jsonOut bool) {
	var snap netmon.Snapshot
	if err := c.do(ctx, http.MethodGet, "/v1/status", nil, &snap); err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(snap)
		return
	}
	printSnapshot(&snap)
}

func cmdRetry(ctx context.Context, c *client, jsonOut bool) {
	var snap netmon.Snapshot
	if err := c.do(ctx, http.MethodPost, "/v1/status/retry", nil, &snap); err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(snap)
		return
	}
	printSnapshot(&snap)
}

func cmdAuth(ctx context.Context, c *client, args []string, jsonOut bool) {
	type authView struct {
		Authenticated bool   `json:"authenticated"`
		UserID        string `json:"user_id,omitempty"`
		Email         string `json:"email,omitempty"`
	}

	switch args[0] {
	case "login":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: mindpalctl auth login <user-id> <access-token> [refresh-token]")
			os.Exit(1)
		}
		payload := map[string]string{"user_id": args[1], "access_token": args[2]}
		if len(args) > 3 {
			payload["refresh_token"] = args[3]
		}
		body, _ := json.Marshal(payload)
		var view authView
		if err := c.do(ctx, http.MethodPost, "/v1/auth/session", strings.NewReader(string(body)), &view); err != nil {
			fatal(err)
		}
		if jsonOut {
			outputJSON(view)
			return
		}
		fmt.Printf("signed in as %s\n", view.UserID)
	case "logout":
		if err := c.do(ctx, http.MethodDelete, "/v1/auth/session", nil, nil); err != nil {
			fatal(err)
		}
		fmt.Println("signed out")
	case "status":
		var view authView
		if err := c.do(ctx, http.MethodGet, "/v1/auth/session", nil, &view); err != nil {
			fatal(err)
		}
		if jsonOut {
			outputJSON(view)
			return
		}
		if !view.Authenticated {
			fmt.Println("not signed in")
			return
		}
		fmt.Printf("signed in as %s", view.UserID)
		if view.Email != "" {
			fmt.Printf(" (%s)", view.Email)
		}
		fmt.Println()
	default:
		fmt.Fprintf(os.Stderr, "unknown auth command: %s\n", args[0])
		os.Exit(1)
	}
}

func cmdSettings(ctx context.Context, c *client, args []string, jsonOut bool) {
	switch args[0] {
	case "get":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: mindpalctl settings get <user-id>")
			os.Exit(1)
		}
		var rec settings.Record
		if err := c.do(ctx, http.MethodGet, "/v1/settings?user_id="+args[1], nil, &rec); err != nil {
			fatal(err)
		}
		if jsonOut {
			outputJSON(rec)
			return
		}
		fmt.Printf("Language:         %s\n", rec.Language)
		fmt.Printf("Voice speed:      %s\n", rec.VoiceSpeed)
		fmt.Printf("AI personality:   %s\n", rec.AIPersonality)
		fmt.Printf("Data sharing:     %v\n", rec.DataSharing)
		fmt.Printf("Analytics:        %v\n", rec.Analytics)
		fmt.Printf("Voice recordings: %v\n", rec.VoiceRecordings)
	case "set":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: mindpalctl settings set <key> <value>")
			os.Exit(1)
		}
		partial, err := partialFor(args[1], args[2])
		if err != nil {
			fatal(err)
		}
		body, _ := json.Marshal(partial)
		var rec settings.Record
		if err := c.do(ctx, http.MethodPatch, "/v1/settings", strings.NewReader(string(body)), &rec); err != nil {
			fatal(err)
		}
		if jsonOut {
			outputJSON(rec)
			return
		}
		fmt.Println("settings updated")
	default:
		fmt.Fprintf(os.Stderr, "unknown settings command: %s\n", args[0])
		os.Exit(1)
	}
}

func partialFor(key, value string) (*settings.Partial, error) {
	var p settings.Partial
	switch key {
	case "language":
		p.Language = &value
	case "voice_speed":
		p.VoiceSpeed = &value
	case "ai_personality":
		p.AIPersonality = &value
	case "data_sharing", "analytics", "voice_recordings":
		b := value == "true" || value == "on"
		switch key {
		case "data_sharing":
			p.DataSharing = &b
		case "analytics":
			p.Analytics = &b
		case "voice_recordings":
			p.VoiceRecordings = &b
		}
	default:
		return nil, fmt.Errorf("unknown settings key %q", key)
	}
	return &p, nil
}

func cmdSession(ctx context.Context, c *client, subcmd string, jsonOut bool) {
	type sessionView struct {
		Session *struct {
			SessionID  string `json:"session_id"`
			SessionURL string `json:"session_url"`
		} `json:"session"`
		State   string `json:"state"`
		Elapsed int    `json:"elapsed_seconds"`
	}

	switch subcmd {
	case "start":
		var view sessionView
		if err := c.do(ctx, http.MethodPost, "/v1/video/session", strings.NewReader("{}"), &view); err != nil {
			fatal(err)
		}
		if jsonOut {
			outputJSON(view)
			return
		}
		fmt.Printf("Session started: %s\n", view.Session.SessionID)
		fmt.Printf("URL: %s\n", view.Session.SessionURL)
	case "end":
		if err := c.do(ctx, http.MethodDelete, "/v1/video/session", nil, nil); err != nil {
			fatal(err)
		}
		fmt.Println("session ended")
	case "status":
		var view sessionView
		if err := c.do(ctx, http.MethodGet, "/v1/video/session", nil, &view); err != nil {
			fatal(err)
		}
		if jsonOut {
			outputJSON(view)
			return
		}
		fmt.Printf("State: %s\n", view.State)
		if view.Session != nil {
			fmt.Printf("Session: %s\n", view.Session.SessionID)
			fmt.Printf("Elapsed: %ds\n", view.Elapsed)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown session command: %s\n", subcmd)
		os.Exit(1)
	}
}

func cmdDashboard(ctx context.Context, c *client, jsonOut bool) {
	var summary struct {
		Tasks        int `json:"tasks"`
		MoodEntries  int `json:"mood_entries"`
		ChatSessions int `json:"chat_sessions"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/dashboard/summary", nil, &summary); err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(summary)
		return
	}
	fmt.Printf("Tasks:         %d\n", summary.Tasks)
	fmt.Printf("Mood entries:  %d\n", summary.MoodEntries)
	fmt.Printf("Chat sessions: %d\n", summary.ChatSessions)
}
