package reconcile

import (
	"context"
	"sync"
)

// Session holds at most one active watch. Starting a new watch cancels the
// previous one.
type Session struct {
	watcher *Watcher

	mu     sync.Mutex
	gen    uint64
	state  State
	cancel context.CancelFunc
}

func NewSession(w *Watcher) *Session {
	return &Session{watcher: w, state: StateIdle}
}

// Start begins watching target. The returned channel receives the final
// result once and is then closed.
func (s *Session) Start(ctx context.Context, target Target) <-chan Result {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	watchCtx, cancel := context.WithCancel(ctx)
	s.gen++
	gen := s.gen
	s.cancel = cancel
	s.state = StateWatching
	s.mu.Unlock()

	out := make(chan Result, 1)
	go func() {
		defer close(out)
		defer cancel()
		res, err := s.watcher.Watch(watchCtx, target)
		if err != nil {
			res.State = StateIdle
		}

		s.mu.Lock()
		if s.gen == gen {
			s.state = res.State
			s.cancel = nil
		}
		s.mu.Unlock()
		out <- res
	}()
	return out
}

// Stop clears the active watch, if any.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// State reports the state of the most recent watch.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
