package registry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/znerol74/call/internal/service/conversation"
)

// Sweeper finalizes and evicts sessions nobody ends explicitly: calls whose
// status callback never arrived and test connections that vanished.
type Sweeper struct {
	registry    *Registry
	idleTimeout time.Duration
	interval    time.Duration
	finalizeTTL time.Duration
	now         func() time.Time
	logger      *zap.Logger
}

// NewSweeper returns a Sweeper evicting sessions idle for longer than
// idleTimeout, checking every interval.
func NewSweeper(r *Registry, idleTimeout, interval, finalizeTimeout time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		registry:    r,
		idleTimeout: idleTimeout,
		interval:    interval,
		finalizeTTL: finalizeTimeout,
		now:         time.Now,
		logger:      logger.With(zap.String("component", "sweeper")),
	}
}

// WithClock replaces time.Now.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.Sweep(ctx); n > 0 {
				s.logger.Info("swept sessions", zap.Int("count", n))
			}
		}
	}
}

// Sweep evicts terminal sessions and finalizes idle ones, returning how many
// were removed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	cutoff := s.now().Add(-s.idleTimeout)
	removed := 0
	for _, session := range s.registry.Snapshot() {
		terminal := session.Status().Terminal()
		idle := session.LastActivity().Before(cutoff)
		if !terminal && !idle {
			continue
		}
		if !session.Finalized() {
			fctx, cancel := context.WithTimeout(ctx, s.finalizeTTL)
			_, ok, err := session.TryFinalize(fctx)
			cancel()
			if !ok {
				// Mid-submit; picked up by a later sweep.
				s.logger.Debug("sweep skipped busy session", zap.String("session", session.Key()))
				continue
			}
			if err != nil && !errors.Is(err, conversation.ErrAlreadyFinalized) {
				// Kept registered so the next sweep retries the save.
				s.logger.Warn("finalize during sweep failed", zap.String("session", session.Key()), zap.Error(err))
				continue
			}
		}
		if err := s.registry.Remove(session.Key()); err != nil {
			s.logger.Debug("sweep skipped session", zap.String("session", session.Key()), zap.Error(err))
			continue
		}
		removed++
	}
	return removed
}
