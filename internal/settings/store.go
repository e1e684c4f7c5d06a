package settings

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/Abhishek8642/MindPal-1.3/internal/auth"
	"github.com/Abhishek8642/MindPal-1.3/internal/backend"
	"github.com/Abhishek8642/MindPal-1.3/internal/bus"
	"github.com/Abhishek8642/MindPal-1.3/internal/fault"
	"github.com/Abhishek8642/MindPal-1.3/internal/retry"
	"github.com/Abhishek8642/MindPal-1.3/internal/store"
)

// Backend is the slice of the backend client the store needs.
type Backend interface {
	GetUserSettings(ctx context.Context, userID string) (*backend.SettingsRow, error)
	InsertUserSettings(ctx context.Context, row *backend.SettingsRow) error
	UpsertUserSettings(ctx context.Context, row *backend.SettingsRow) error
}

// Store is the remote settings store.
type Store struct {
	backend Backend
	exec    *retry.Executor
	status  retry.StatusSource
	auth    *auth.Manager
	db      *store.DB
	bus     *bus.Bus
	logger  *zap.Logger
	policy  retry.Policy

	mu       sync.Mutex
	current  map[string]*Record // last known record per user
	creating map[string]bool    // create-default in flight, per user
}

// NewStore creates a settings store. db may be nil to disable the local
// cache (tests).
func NewStore(be Backend, exec *retry.Executor, status retry.StatusSource, am *auth.Manager, db *store.DB, b *bus.Bus, logger *zap.Logger, policy retry.Policy) *Store {
	return &Store{
		backend:  be,
		exec:     exec,
		status:   status,
		auth:     am,
		db:       db,
		bus:      b,
		logger:   logger,
		policy:   policy,
		current:  make(map[string]*Record),
		creating: make(map[string]bool),
	}
}

// Load fetches the settings record for a user, creating the default record
// if none exists. Connectivity failures fall back to the last cached copy;
// any other failure, auth rejections included, surfaces to the caller.
func (s *Store) Load(ctx context.Context, userID string) (*Record, error) {
	row, err := retry.Run(ctx, s.exec, "settings.load", s.policy, func(ctx context.Context) (*backend.SettingsRow, error) {
		return s.backend.GetUserSettings(ctx, userID)
	})
	if err != nil {
		if fault.IsConnectivity(err) {
			if cached := s.cached(userID); cached != nil {
				if s.logger != nil {
					s.logger.Warn("settings load failed, serving cached copy",
						zap.String("user_id", userID), zap.Error(err))
				}
				return cached, nil
			}
		}
		return nil, err
	}

	if row == nil {
		// Record absent: create-if-absent, then the defaults are the record.
		if err := s.CreateDefault(ctx, userID); err != nil {
			return nil, err
		}
		rec := Defaults(userID)
		s.remember(rec)
		return rec, nil
	}

	rec := fromRow(row)
	s.remember(rec)
	return rec, nil
}

// CreateDefault writes the default settings record for a user. At most one
// creation is in flight per user within this client instance, and a
// duplicate-key conflict on the user_id unique constraint is an expected
// success: the racing writer already produced the single desired record.
func (s *Store) CreateDefault(ctx context.Context, userID string) error {
	s.mu.Lock()
	if s.creating[userID] {
		s.mu.Unlock()
		return nil
	}
	s.creating[userID] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.creating, userID)
		s.mu.Unlock()
	}()

	rec := Defaults(userID)
	err := s.exec.Run(ctx, "settings.create_default", s.policy, func(ctx context.Context) error {
		return s.backend.InsertUserSettings(ctx, toRow(rec))
	})
	if err != nil && !fault.IsDuplicateKey(err) {
		return err
	}
	if fault.IsDuplicateKey(err) && s.logger != nil {
		s.logger.Info("default settings already created by a racing writer",
			zap.String("user_id", userID))
	}

	s.remember(rec)
	if s.bus != nil {
		s.bus.Emit(bus.SettingsCreated, rec)
	}
	return nil
}

// Update merges partial over the current record and upserts the full merged
// record, so the backend row always reflects a complete, consistent set of
// fields. Fails fast with NotAuthenticated when no user is signed in and
// with BackendUnreachable when the backend is currently unreachable.
func (s *Store) Update(ctx context.Context, partial *Partial) (*Record, error) {
	sess, err := s.auth.Current()
	if err != nil {
		return nil, err
	}

	if s.status != nil && !s.status.Snapshot().IsBackendReachable {
		return nil, fault.New(fault.BackendUnreachable, "settings.update",
			"cannot save settings: no connection to server")
	}

	base := s.cached(sess.UserID)
	if base == nil {
		base = Defaults(sess.UserID)
	}
	merged := merge(base, partial)

	err = s.exec.Run(ctx, "settings.update", s.policy, func(ctx context.Context) error {
		return s.backend.UpsertUserSettings(ctx, toRow(merged))
	})
	if err != nil {
		return nil, err
	}

	s.remember(merged)
	if s.bus != nil {
		s.bus.Emit(bus.SettingsUpdated, merged)
	}
	return merged, nil
}

// cached returns the in-memory copy, falling back to the durable cache.
func (s *Store) cached(userID string) *Record {
	s.mu.Lock()
	rec := s.current[userID]
	s.mu.Unlock()
	if rec != nil {
		copied := *rec
		return &copied
	}

	if s.db == nil {
		return nil
	}
	cs, err := s.db.CachedSettingsFor(userID)
	if err != nil || cs == nil {
		return nil
	}
	var r Record
	if err := json.Unmarshal([]byte(cs.Payload), &r); err != nil {
		return nil
	}
	return &r
}

func (s *Store) remember(rec *Record) {
	s.mu.Lock()
	copied := *rec
	s.current[rec.UserID] = &copied
	s.mu.Unlock()

	if s.db == nil {
		return
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := s.db.CacheSettings(rec.UserID, string(payload)); err != nil && s.logger != nil {
		s.logger.Warn("failed to cache settings locally",
			zap.String("user_id", rec.UserID), zap.Error(err))
	}
}
