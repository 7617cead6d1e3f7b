package auth

import (
	"context"
	"sync"
	"time"
)

// sweeper periodically removes expired reset and magic login tokens. Refresh
// tokens are not swept here: an expired refresh token is deleted the moment
// someone presents it.
type sweeper struct {
	interval time.Duration
	reset    *ResetTokens
	magic    *MagicLinks
	logger   Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func newSweeper(interval time.Duration, reset *ResetTokens, magic *MagicLinks, logger Logger) *sweeper {
	if logger == nil {
		logger = defLogger{}
	}
	return &sweeper{
		interval: interval,
		reset:    reset,
		magic:    magic,
		logger:   logger,
	}
}

// Start launches the background sweep loop. Calling Start on a running
// sweeper is a no-op.
func (s *sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx, s.done)
}

// Stop halts the sweep loop and waits for an in-flight sweep to finish.
func (s *sweeper) Stop() {
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

func (s *sweeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *sweeper) sweep(ctx context.Context) {
	s.logger.Debug("sweeping expired tokens")
	if s.reset != nil {
		s.reset.sweepExpired(ctx)
	}
	if s.magic != nil {
		s.magic.sweepExpired(ctx)
	}
}
