package session

import (
	"context"
	"sync"
	"time"
)

// Sweeper periodically evicts idle sessions from a [Manager], in addition to
// the sweep every Create performs.
type Sweeper struct {
	mgr      *Manager
	interval time.Duration

	done     chan struct{}
	stopOnce sync.Once
}

// NewSweeper returns a Sweeper for mgr. interval must be positive.
func NewSweeper(mgr *Manager, interval time.Duration) *Sweeper {
	return &Sweeper{mgr: mgr, interval: interval, done: make(chan struct{})}
}

// Start runs the sweep loop until [Sweeper.Stop] is called or ctx is
// cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	go s.loop(ctx)
}

// Stop halts the loop. Safe to call multiple times.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

func (s *Sweeper) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.mgr.Sweep()
		}
	}
}
