// Package avatar is the HTTP client for the conversational-avatar provider.
// The provider is an opaque remote session resource: create a conversation
// scoped to a replica, embed its URL, end it when done.
package avatar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Abhishek8642/MindPal-1.3/internal/fault"
)

// Conversation is a created remote session.
type Conversation struct {
	ConversationID  string `json:"conversation_id"`
	ConversationURL string `json:"conversation_url"`
}

// Provider creates and ends remote conversational sessions.
type Provider interface {
	CreateConversation(ctx context.Context, replicaID string) (*Conversation, error)
	EndConversation(ctx context.Context, conversationID string) error
}

// Client implements Provider over the vendor's HTTPS API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates an avatar provider client.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// CreateConversation starts a remote session for the given replica.
func (c *Client) CreateConversation(ctx context.Context, replicaID string) (*Conversation, error) {
	const op = "avatar.create_conversation"

	body, err := json.Marshal(map[string]string{"replica_id": replicaID})
	if err != nil {
		return nil, fault.Wrap(fault.Internal, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/conversations", bytes.NewReader(body))
	if err != nil {
		return nil, fault.Wrap(fault.Internal, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fault.Wrap(fault.RemoteSessionCreateFailed, op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		// Carry the provider's error detail so the UI can show it.
		return nil, fault.New(fault.RemoteSessionCreateFailed, op,
			fmt.Sprintf("provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))))
	}

	var conv Conversation
	if err := json.NewDecoder(resp.Body).Decode(&conv); err != nil {
		return nil, fault.Wrap(fault.RemoteSessionCreateFailed, op, err)
	}
	if conv.ConversationID == "" {
		return nil, fault.New(fault.RemoteSessionCreateFailed, op, "provider response missing conversation_id")
	}
	return &conv, nil
}

// EndConversation terminates a remote session. Best-effort callers ignore
// the returned error after logging it.
func (c *Client) EndConversation(ctx context.Context, conversationID string) error {
	const op = "avatar.end_conversation"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v2/conversations/"+conversationID+"/end", nil)
	if err != nil {
		return fault.Wrap(fault.Internal, op, err)
	}
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fault.Wrap(fault.BackendUnreachable, op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fault.New(fault.Internal, op,
			fmt.Sprintf("provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))))
	}
	return nil
}
