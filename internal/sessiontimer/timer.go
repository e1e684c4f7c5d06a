// Package sessiontimer tracks elapsed wall-clock time of an active video
// session with a one-tick-per-second counter. The timer knows nothing about
// tiers or limits; the owning lifecycle compares elapsed time against the
// tier ceiling on each tick.
package sessiontimer

import (
	"sync"
	"time"
)

// Service is the session timer. Safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	elapsed int
	stop    chan struct{}
	onTick  func(elapsed int)
	tick    time.Duration
}

// New creates a stopped timer. onTick may be nil; it is invoked outside the
// timer's lock with the elapsed seconds after each increment.
func New(onTick func(elapsed int)) *Service {
	return &Service{onTick: onTick, tick: time.Second}
}

// NewWithInterval creates a timer with a custom tick interval. Tests use
// this to advance "seconds" quickly; production code uses New.
func NewWithInterval(interval time.Duration, onTick func(elapsed int)) *Service {
	return &Service{onTick: onTick, tick: interval}
}

// Start begins incrementing elapsed time once per tick. Idempotent: calling
// while already running cancels the existing tick source before installing
// a new one, so time is never double-counted.
func (s *Service) Start() {
	s.mu.Lock()
	if s.stop != nil {
		close(s.stop)
	}
	stop := make(chan struct{})
	s.stop = stop
	s.mu.Unlock()

	go s.run(stop)
}

func (s *Service) run(stop chan struct{}) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			if s.stop != stop {
				// A newer Start replaced this tick source.
				s.mu.Unlock()
				return
			}
			s.elapsed++
			elapsed := s.elapsed
			cb := s.onTick
			s.mu.Unlock()
			if cb != nil {
				cb(elapsed)
			}
		case <-stop:
			return
		}
	}
}

// Stop halts incrementing but preserves the current elapsed value.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}

// Reset stops the timer and zeroes the elapsed value.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	s.elapsed = 0
}

// Elapsed returns the current elapsed seconds.
func (s *Service) Elapsed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed
}

// Running reports whether the timer is currently ticking.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}
