package fsm

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/flowerbot/core/logger"
	"github.com/m3rciful/flowerbot/internal/storage"
)

// Sweeper periodically deletes sessions idle for longer than the TTL.
type Sweeper struct {
	sessions storage.Sessions
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
	onSweep  func(removed int)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper builds a stopped Sweeper. onSweep may be nil.
func NewSweeper(sessions storage.Sessions, ttl, interval time.Duration, onSweep func(int)) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		sessions: sessions,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
		onSweep:  onSweep,
	}
}

// SweepOnce removes the expired sessions and returns how many were removed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	n, err := s.sessions.Expire(ctx, s.now().Add(-s.ttl))
	if err != nil {
		logger.Warn(ctx, componentFSM, "sweep.failed", slog.String("err", err.Error()))
		return 0, err
	}
	if n > 0 {
		logger.Info(ctx, componentFSM, "sweep.done", slog.Int("count", n))
	}
	if s.onSweep != nil {
		s.onSweep(n)
	}
	return n, nil
}

// Start launches the sweeping loop. Calling Start twice is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

// Stop ends the loop and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = s.SweepOnce(ctx)
		}
	}
}
