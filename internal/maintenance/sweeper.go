// Package maintenance runs periodic background jobs for the Granta server.
package maintenance

import (
	"context"
	"errors"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// SweeperStore defines the interface for expiry sweep data access.
type SweeperStore interface {
	ExpireStaleEntitlements(ctx context.Context) (int64, error)
}

// ExpirySweeper periodically flips active entitlements whose expiry has
// passed to expired. This is cache hygiene for the admin list views; the
// validator re-derives expiry from the timestamp on every request either way.
type ExpirySweeper struct {
	store   SweeperStore
	cron    *cron.Cron
	logger  zerolog.Logger
	mu      sync.Mutex
	running bool
}

// NewExpirySweeper creates a new expiry sweeper.
func NewExpirySweeper(store SweeperStore, logger zerolog.Logger) *ExpirySweeper {
	return &ExpirySweeper{
		store:  store,
		cron:   cron.New(),
		logger: logger.With().Str("component", "sweeper").Logger(),
	}
}

// Start begins the hourly sweep schedule.
func (s *ExpirySweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("expiry sweeper already running")
	}

	_, err := s.cron.AddFunc("0 * * * *", s.runSweep)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().Msg("expiry sweeper started (hourly)")
	return nil
}

// Stop stops the sweeper gracefully.
func (s *ExpirySweeper) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}

	s.running = false
	s.logger.Info().Msg("stopping expiry sweeper")
	return s.cron.Stop()
}

// runSweep executes one expiry sweep.
func (s *ExpirySweeper) runSweep() {
	ctx := context.Background()

	expired, err := s.store.ExpireStaleEntitlements(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("expiry sweep failed")
		return
	}

	if expired > 0 {
		s.logger.Info().Int64("expired_rows", expired).Msg("expiry sweep completed")
	}
}

// RunNow triggers an immediate sweep (useful for testing).
func (s *ExpirySweeper) RunNow() {
	s.runSweep()
}
