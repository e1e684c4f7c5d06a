// Package dashboard aggregates per-user activity counts for the home screen.
// Counts are fetched concurrently through the retry layer; a failed counter
// degrades to zero with a logged warning rather than failing the whole
// summary.
package dashboard

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Abhishek8642/MindPal-1.3/internal/auth"
	"github.com/Abhishek8642/MindPal-1.3/internal/retry"
)

// Summary is the per-user activity overview.
type Summary struct {
	Tasks        int `json:"tasks"`
	MoodEntries  int `json:"mood_entries"`
	ChatSessions int `json:"chat_sessions"`
}

// Counter counts a user's rows in a backend table. Implemented by
// backend.Client.
type Counter interface {
	CountRows(ctx context.Context, table, userID string) (int, error)
}

// Service fetches dashboard summaries.
type Service struct {
	counter Counter
	exec    *retry.Executor
	auth    *auth.Manager
	logger  *zap.Logger
	policy  retry.Policy
}

// NewService creates a dashboard service.
func NewService(counter Counter, exec *retry.Executor, authMgr *auth.Manager, logger *zap.Logger, policy retry.Policy) *Service {
	return &Service{counter: counter, exec: exec, auth: authMgr, logger: logger, policy: policy}
}

// Summarize fetches the signed-in user's activity counts. The three tables
// are counted in parallel; each count retries independently and falls back
// to zero on final failure.
func (s *Service) Summarize(ctx context.Context) (*Summary, error) {
	sess, err := s.auth.Current()
	if err != nil {
		return nil, err
	}

	var summary Summary
	targets := []struct {
		table string
		dest  *int
	}{
		{"tasks", &summary.Tasks},
		{"mood_entries", &summary.MoodEntries},
		{"chat_sessions", &summary.ChatSessions},
	}

	var wg sync.WaitGroup
	for _, tgt := range targets {
		tgt := tgt
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := retry.Run(ctx, s.exec, "dashboard.count_"+tgt.table, s.policy, func(ctx context.Context) (int, error) {
				return s.counter.CountRows(ctx, tgt.table, sess.UserID)
			})
			if err != nil {
				if s.logger != nil {
					s.logger.Warn("dashboard count failed",
						zap.String("table", tgt.table), zap.Error(err))
				}
				return
			}
			*tgt.dest = n
		}()
	}
	wg.Wait()

	return &summary, nil
}
