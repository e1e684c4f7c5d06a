// Package backend is the REST client for the managed data/auth service. The
// service speaks PostgREST conventions: table endpoints under /rest/v1/,
// filters as query parameters, upsert behavior via Prefer headers.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Abhishek8642/MindPal-1.3/internal/fault"
)

// TokenSource yields the signed-in user's access token.
type TokenSource interface {
	AccessToken() (string, error)
}

// expiredHandler is the optional refresh hook on a TokenSource. When the
// source implements it, a 401 triggers one refresh attempt and one replay of
// the failed request.
type expiredHandler interface {
	HandleExpired(ctx context.Context, cause error) error
}

// Client talks to the backend REST API.
type Client struct {
	baseURL      string
	anonKey      string
	tokens       TokenSource
	http         *http.Client
	probeTimeout time.Duration
}

// New creates a backend client. tokens may be nil for probe-only use.
func New(baseURL, anonKey string, tokens TokenSource, probeTimeout time.Duration) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		anonKey:      anonKey,
		tokens:       tokens,
		http:         &http.Client{Timeout: 30 * time.Second},
		probeTimeout: probeTimeout,
	}
}

// Ping checks backend reachability with a short-deadline HEAD request to the
// REST base endpoint. Any HTTP response, including an error status, means
// the server answered and counts as reachable; only transport-level failures
// and timeouts count as unreachable.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/rest/v1/", nil)
	if err != nil {
		return fault.Wrap(fault.Internal, "backend.ping", err)
	}
	req.Header.Set("apikey", c.anonKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fault.Wrap(fault.Timeout, "backend.ping", err)
		}
		return fault.Wrap(fault.BackendUnreachable, "backend.ping", err)
	}
	_ = resp.Body.Close()
	return nil
}

// pgError is the PostgREST error envelope.
type pgError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// do executes an authenticated request against a table endpoint and
// classifies failures. When the token source can refresh, an expired token
// gets one refresh attempt and one replay before the failure surfaces.
// extraHeaders may be nil.
func (c *Client) do(ctx context.Context, op, method, path string, body any, extraHeaders map[string]string) (*http.Response, error) {
	var payload []byte
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fault.Wrap(fault.Internal, op, err)
		}
		payload = buf
	}

	resp, err := c.send(ctx, op, method, path, payload, extraHeaders)
	if fault.Is(err, fault.AuthTokenExpired) {
		handler, ok := c.tokens.(expiredHandler)
		if !ok {
			return nil, err
		}
		if refreshErr := handler.HandleExpired(ctx, err); refreshErr != nil {
			return nil, refreshErr
		}
		return c.send(ctx, op, method, path, payload, extraHeaders)
	}
	return resp, err
}

// send performs a single authenticated request attempt.
func (c *Client) send(ctx context.Context, op, method, path string, payload []byte, extraHeaders map[string]string) (*http.Response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fault.Wrap(fault.Internal, op, err)
	}
	req.Header.Set("apikey", c.anonKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.AccessToken()
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fault.Wrap(fault.Timeout, op, err)
		}
		return nil, fault.Wrap(fault.BackendUnreachable, op, err)
	}

	if resp.StatusCode >= 400 {
		defer func() { _ = resp.Body.Close() }()
		return nil, c.classifyStatus(op, resp)
	}
	return resp, nil
}

// classifyStatus maps an HTTP error response onto the fault taxonomy.
func (c *Client) classifyStatus(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var pe pgError
	_ = json.Unmarshal(raw, &pe)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || pe.Code == "PGRST301":
		return fault.New(fault.AuthTokenExpired, op, pe.Message)
	case resp.StatusCode == http.StatusConflict || pe.Code == "23505":
		// Unique-constraint violation. Create-if-absent callers treat this
		// as the record already existing.
		return fault.New(fault.DuplicateKey, op, pe.Message)
	case resp.StatusCode >= 500:
		return fault.New(fault.BackendUnreachable, op,
			fmt.Sprintf("server error %d: %s", resp.StatusCode, pe.Message))
	default:
		return fault.New(fault.Internal, op,
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}
}
