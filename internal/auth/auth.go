// Package auth holds the signed-in user session. Token refresh is the
// responsibility of a collaborator; the retry layer never retries
// authorization failures.
package auth

import (
	"context"
	"sync"

	"github.com/Abhishek8642/MindPal-1.3/internal/fault"
)

// Session is the signed-in user.
type Session struct {
	UserID       string
	Email        string
	AccessToken  string
	RefreshToken string
}

// Tokens is a fresh access/refresh token pair issued by the backend.
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// TokenRefresher exchanges a refresh token for a fresh token pair.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Tokens, error)
}

// Manager owns the current auth session. All reads go through Current; no
// other component mutates the session.
type Manager struct {
	mu        sync.RWMutex
	session   *Session
	refresher TokenRefresher
}

// NewManager creates an auth manager. refresher may be nil, in which case an
// expired token simply surfaces as AuthTokenExpired.
func NewManager(refresher TokenRefresher) *Manager {
	return &Manager{refresher: refresher}
}

// SetRefresher installs the refresh collaborator. The backend client cannot
// be handed to NewManager directly because it needs the manager as its token
// source.
func (m *Manager) SetRefresher(r TokenRefresher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresher = r
}

// SetSession installs the signed-in user.
func (m *Manager) SetSession(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = s
}

// Clear signs the user out.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
}

// Current returns the signed-in session, or a NotAuthenticated fault.
func (m *Manager) Current() (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil, fault.New(fault.NotAuthenticated, "auth.current", "no user signed in")
	}
	s := *m.session
	return &s, nil
}

// AccessToken returns the signed-in user's access token, or a
// NotAuthenticated fault.
func (m *Manager) AccessToken() (string, error) {
	s, err := m.Current()
	if err != nil {
		return "", err
	}
	return s.AccessToken, nil
}

// HandleExpired exchanges the session's refresh token for a fresh pair and
// installs it. Returns the original error when no refresher is configured,
// no refresh token is held, or the exchange fails. The lock is held across
// the exchange so only one refresh is in flight at a time.
func (m *Manager) HandleExpired(ctx context.Context, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refresher == nil || m.session == nil || m.session.RefreshToken == "" {
		return cause
	}
	fresh, err := m.refresher.Refresh(ctx, m.session.RefreshToken)
	if err != nil {
		return cause
	}
	m.session.AccessToken = fresh.AccessToken
	if fresh.RefreshToken != "" {
		m.session.RefreshToken = fresh.RefreshToken
	}
	return nil
}
