package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/wanderpath/booking-api/internal/clock"
	"github.com/wanderpath/booking-api/internal/domain"
	"github.com/wanderpath/booking-api/internal/metrics"
)

const sweepReason = "hold expired"

// HoldSweeper cancels ON_HOLD bookings that were never confirmed, handing
// their units back to the ledger. Without it an abandoned hold leaks capacity
// forever.
type HoldSweeper struct {
	svc       *BookingService
	repo      BookingRepository
	clock     clock.Clock
	logger    zerolog.Logger
	holdTTL   time.Duration
	interval  time.Duration
	batchSize int
}

const (
	defaultHoldTTL       = 30 * time.Minute
	defaultSweepInterval = 1 * time.Minute
	defaultSweepBatch    = 100
)

func NewHoldSweeper(svc *BookingService, repo BookingRepository, clk clock.Clock, logger zerolog.Logger, opts ...SweeperOption) *HoldSweeper {
	s := &HoldSweeper{
		svc:       svc,
		repo:      repo,
		clock:     clk,
		logger:    logger,
		holdTTL:   defaultHoldTTL,
		interval:  defaultSweepInterval,
		batchSize: defaultSweepBatch,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type SweeperOption func(*HoldSweeper)

func WithHoldTTL(d time.Duration) SweeperOption {
	return func(s *HoldSweeper) {
		if d > 0 {
			s.holdTTL = d
		}
	}
}

func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *HoldSweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// Run blocks until the context is cancelled, sweeping once per interval.
func (s *HoldSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error().Err(err).Msg("hold sweep failed")
			} else if n > 0 {
				metrics.IncHoldsExpired(n)
				s.logger.Info().Int("expired", n).Msg("expired stale holds")
			}
		}
	}
}

// SweepOnce cancels one batch of stale holds and reports how many landed.
// Each cancellation goes through the same conditional transition as a client
// cancel, so a hold confirmed mid-sweep is left alone.
func (s *HoldSweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.holdTTL)
	uuids, err := s.repo.ListStaleHolds(ctx, cutoff, s.batchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, uuid := range uuids {
		if _, err := s.svc.CancelBooking(ctx, uuid, sweepReason); err != nil {
			var statusErr *domain.InvalidStatusError
			if errors.As(err, &statusErr) {
				// Lost the race against a confirm or a client cancel.
				continue
			}
			return expired, err
		}
		expired++
	}
	return expired, nil
}
