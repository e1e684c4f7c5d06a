package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Abhishek8642/MindPal-1.3/internal/auth"
	"github.com/Abhishek8642/MindPal-1.3/internal/fault"
)

// Refresh exchanges a refresh token for a fresh token pair via the auth
// endpoint. A rejected exchange means the session is gone and the user has
// to sign in again, so it classifies as NotAuthenticated rather than
// AuthTokenExpired.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*auth.Tokens, error) {
	const op = "backend.refresh_token"

	payload, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, fault.Wrap(fault.Internal, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/auth/v1/token?grant_type=refresh_token", bytes.NewReader(payload))
	if err != nil {
		return nil, fault.Wrap(fault.Internal, op, err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fault.Wrap(fault.Timeout, op, err)
		}
		return nil, fault.Wrap(fault.BackendUnreachable, op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode >= 500 {
			return nil, fault.New(fault.BackendUnreachable, op,
				fmt.Sprintf("server error %d", resp.StatusCode))
		}
		return nil, fault.New(fault.NotAuthenticated, op,
			fmt.Sprintf("refresh rejected with status %d: %s", resp.StatusCode, raw))
	}

	var out struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fault.Wrap(fault.Internal, op, err)
	}
	if out.AccessToken == "" {
		return nil, fault.New(fault.Internal, op, "refresh response missing access token")
	}
	return &auth.Tokens{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken}, nil
}
