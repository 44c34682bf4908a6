package sniper

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/snipekit/snipekit/internal/domain/auction"
	"github.com/snipekit/snipekit/internal/infrastructure/marketplace"
	"github.com/snipekit/snipekit/internal/infrastructure/repository"
)

const (
	// maxBidAttempts bounds the retry loop inside the bid window.
	maxBidAttempts = 4

	// bidWatchdogMargin stops retries when the deadline is this close.
	bidWatchdogMargin = 300 * time.Millisecond

	// windowTolerance is how far ahead of a trigger instant the tick may
	// fire and still act on it.
	windowTolerance = time.Second
)

// retryDelays are interleaved between bid attempts.
var retryDelays = []time.Duration{100 * time.Millisecond, 250 * time.Millisecond, 500 * time.Millisecond}

// Scheduler is the timing-driven loop that evaluates every active auction on
// each tick, runs the pre-bid guard at T-60s, claims the auction at
// T-bid_offset, and executes the bid with bounded retries inside the window.
type Scheduler struct {
	db         TxRunner
	auctions   repository.AuctionRepository
	attempts   repository.BidAttemptRepository
	market     marketplace.Client
	prices     PriceRefresher
	creds      Credentials
	reconciler *Reconciler
	clock      auction.Clock
	metrics    *Metrics
	logger     *zap.Logger

	tickInterval   time.Duration
	bidOffset      time.Duration
	preCheckOffset time.Duration
}

// NewScheduler creates the scheduler.
func NewScheduler(
	db TxRunner,
	auctions repository.AuctionRepository,
	attempts repository.BidAttemptRepository,
	market marketplace.Client,
	prices PriceRefresher,
	creds Credentials,
	reconciler *Reconciler,
	clock auction.Clock,
	metrics *Metrics,
	logger *zap.Logger,
	tickInterval, bidOffset, preCheckOffset time.Duration,
) *Scheduler {
	return &Scheduler{
		db:             db,
		auctions:       auctions,
		attempts:       attempts,
		market:         market,
		prices:         prices,
		creds:          creds,
		reconciler:     reconciler,
		clock:          clock,
		metrics:        metrics,
		logger:         logger,
		tickInterval:   tickInterval,
		bidOffset:      bidOffset,
		preCheckOffset: preCheckOffset,
	}
}

// Run ticks until the context is cancelled. All per-auction errors are caught
// and logged; the loop never stops on them.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		zap.Duration("tick_interval", s.tickInterval),
		zap.Duration("bid_offset", s.bidOffset))

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scheduler pass followed by the outcome reconciliation pass.
func (s *Scheduler) Tick(ctx context.Context) {
	start := time.Now()
	defer func() {
		s.metrics.TickDuration.Observe(time.Since(start).Seconds())
	}()

	active, err := s.auctions.ListByStatuses(ctx, auction.StatusScheduled, auction.StatusExecuting)
	if err != nil {
		s.logger.Error("failed to list active auctions", zap.Error(err))
		return
	}

	for _, a := range active {
		s.processAuction(ctx, a)
	}

	s.reconciler.Run(ctx)
}

// processAuction drives a single auction through its timing windows. Each
// auction is handled in its own session scope so one failure never blocks
// the rest of the tick.
func (s *Scheduler) processAuction(ctx context.Context, a *auction.Auction) {
	now := s.clock.Now()
	logger := s.logger.With(
		zap.Int64("auction_id", a.ID),
		zap.String("listing_id", a.ListingID))

	switch a.Status {
	case auction.StatusExecuting:
		// Crash recovery: an executor died mid-bid and the auction has
		// since ended.
		if a.Ended(now) {
			s.failStuckExecution(ctx, a, logger)
		}
		return

	case auction.StatusScheduled:
		if a.Ended(now) {
			// Clock gaps or worker downtime: the deadline passed
			// while the auction was still waiting.
			s.failExpiredScheduled(ctx, a, now, logger)
			return
		}

		preCheckAt := a.EndTime.Add(-s.preCheckOffset)
		if inWindow(now, preCheckAt) {
			if !s.preBidCheck(ctx, a, logger) {
				return
			}
		}

		bidAt := a.EndTime.Add(-s.bidOffset)
		if inWindow(now, bidAt) {
			s.executeBid(ctx, a, logger)
		}
	}
}

// inWindow reports whether now is within (at-windowTolerance, at]: the
// trigger fires on the last tick before the instant, never after it.
func inWindow(now, at time.Time) bool {
	d := at.Sub(now)
	return d >= 0 && d < windowTolerance
}

func (s *Scheduler) failStuckExecution(ctx context.Context, a *auction.Auction, logger *zap.Logger) {
	// The attempt may already exist if the crash happened after recording
	// it; Create is first-writer-wins.
	changed, err := s.settle(ctx, auction.StatusExecuting, &auction.BidAttempt{
		AuctionID:    a.ID,
		AttemptTime:  s.clock.Now(),
		Result:       auction.BidResultFailed,
		ErrorMessage: "Worker crashed during execution, auction ended",
	})
	if err != nil {
		logger.Error("failed to fail stuck execution", zap.Error(err))
		return
	}
	if !changed {
		return
	}

	s.metrics.BidsFailed.Inc()
	logger.Warn("marked stuck execution as failed")
}

func (s *Scheduler) failExpiredScheduled(ctx context.Context, a *auction.Auction, now time.Time, logger *zap.Logger) {
	// No bid was ever attempted here; the attempt row is fabricated so the
	// one-attempt-per-terminated-auction relation holds for downstream
	// consumers of the logs.
	changed, err := s.settle(ctx, auction.StatusScheduled, &auction.BidAttempt{
		AuctionID:    a.ID,
		AttemptTime:  now,
		Result:       auction.BidResultFailed,
		ErrorMessage: "Auction ended before worker could process it",
	})
	if err != nil {
		logger.Error("failed to fail expired auction", zap.Error(err))
		return
	}
	if !changed {
		return
	}

	s.metrics.BidsFailed.Inc()
	logger.Warn("auction ended before processing")
}

// preBidCheck runs the T-60s price guard. Returns false when the auction was
// skipped. Any guard error proceeds to the bid attempt, which remains the
// authoritative check.
func (s *Scheduler) preBidCheck(ctx context.Context, a *auction.Auction, logger *zap.Logger) bool {
	refreshed, err := s.prices.ForceRefresh(ctx, a)
	if err != nil {
		logger.Warn("pre-bid price check failed, proceeding", zap.Error(err))
		return true
	}
	*a = *refreshed

	if a.CurrentPrice.GreaterThan(a.MaxBid) {
		skipped, err := s.auctions.MarkSkipped(ctx, a.ID, "Current price exceeded max bid at T−60s")
		if err != nil {
			logger.Error("failed to mark auction skipped", zap.Error(err))
			return true
		}
		if skipped {
			s.metrics.AuctionsSkipped.Inc()
			logger.Info("auction skipped by pre-bid guard",
				zap.String("current_price", a.CurrentPrice.String()),
				zap.String("max_bid", a.MaxBid.String()))
		}
		return false
	}
	return true
}

// executeBid claims the auction and places the proxy bid with bounded retries
// inside the bid window. The claim CAS makes execution exactly-once: losers
// abort silently without side effects.
func (s *Scheduler) executeBid(ctx context.Context, a *auction.Auction, logger *zap.Logger) {
	claimed, err := s.auctions.ClaimForExecution(ctx, a.ID)
	if err != nil {
		logger.Error("failed to claim auction for execution", zap.Error(err))
		return
	}
	if !claimed {
		// Another worker won the claim, or the status changed under us.
		return
	}

	if a.Ended(s.clock.Now()) {
		s.recordFailure(ctx, a.ID, "Auction ended before bid could be placed", logger)
		return
	}

	// Preemptive refresh so the user token outlives the bid window.
	if err := s.creds.EnsureUserTokenUntil(ctx, a.EndTime); err != nil {
		logger.Warn("user token refresh failed before bid", zap.Error(err))
	}

	for attempt := 0; attempt < maxBidAttempts; attempt++ {
		if !s.clock.Now().Before(a.EndTime.Add(-bidWatchdogMargin)) {
			s.recordFailure(ctx, a.ID, "Ran out of time window", logger)
			return
		}

		err := s.market.PlaceBid(ctx, a.ListingID, a.MaxBid)
		if err == nil {
			s.recordSuccess(ctx, a.ID, logger)
			return
		}

		switch {
		case marketplace.IsTimeout(err):
			logger.Warn("bid attempt timed out",
				zap.Int("attempt", attempt+1))
		case marketplace.IsRetryable(err):
			logger.Warn("retryable bid error",
				zap.Int("attempt", attempt+1),
				zap.Error(err))
		default:
			s.recordFailure(ctx, a.ID, err.Error(), logger)
			return
		}

		if attempt < maxBidAttempts-1 {
			time.Sleep(retryDelays[min(attempt, len(retryDelays)-1)])
		}
	}

	s.recordFailure(ctx, a.ID, "All retry attempts exhausted", logger)
}

func (s *Scheduler) recordSuccess(ctx context.Context, id int64, logger *zap.Logger) {
	changed, err := s.settle(ctx, auction.StatusExecuting, &auction.BidAttempt{
		AuctionID:   id,
		AttemptTime: s.clock.Now(),
		Result:      auction.BidResultSuccess,
	})
	if err != nil {
		logger.Error("failed to record successful bid", zap.Error(err))
		return
	}
	if !changed {
		return
	}

	s.metrics.BidsPlaced.Inc()
	logger.Info("bid placed")
}

func (s *Scheduler) recordFailure(ctx context.Context, id int64, message string, logger *zap.Logger) {
	changed, err := s.settle(ctx, auction.StatusExecuting, &auction.BidAttempt{
		AuctionID:    id,
		AttemptTime:  s.clock.Now(),
		Result:       auction.BidResultFailed,
		ErrorMessage: message,
	})
	if err != nil {
		logger.Error("failed to record failed bid", zap.Error(err))
		return
	}
	if !changed {
		return
	}

	s.metrics.BidsFailed.Inc()
	logger.Warn("bid failed", zap.String("reason", message))
}

// settle writes the attempt and the matching status transition in a single
// transaction so the attempt log and the auction status cannot diverge: a
// success attempt never survives a failed BidPlaced write. The target status
// follows the attempt result.
func (s *Scheduler) settle(ctx context.Context, from auction.Status, attempt *auction.BidAttempt) (bool, error) {
	to := auction.StatusFailed
	if attempt.Result == auction.BidResultSuccess {
		to = auction.StatusBidPlaced
	}

	var changed bool
	err := s.db.Transaction(ctx, func(tx pgx.Tx) error {
		var err error
		changed, err = s.auctions.WithTx(tx).TransitionStatus(ctx, attempt.AuctionID, from, to)
		if err != nil {
			return err
		}
		if !changed {
			// Another writer settled the auction first; its attempt
			// row stands.
			return nil
		}
		return s.attempts.WithTx(tx).Create(ctx, attempt)
	})
	return changed && err == nil, err
}
