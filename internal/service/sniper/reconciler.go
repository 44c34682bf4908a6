package sniper

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/snipekit/snipekit/internal/domain/auction"
	"github.com/snipekit/snipekit/internal/infrastructure/marketplace"
	"github.com/snipekit/snipekit/internal/infrastructure/repository"
)

// Reconciler settles outcomes for auctions whose bid was placed and whose end
// time has passed. It runs at the tail of every scheduler tick; per-auction
// errors are logged and the pass continues.
type Reconciler struct {
	auctions    repository.AuctionRepository
	market      marketplace.Client
	clock       auction.Clock
	metrics     *Metrics
	logger      *zap.Logger
	settleDelay time.Duration
}

// NewReconciler creates the reconciler. settleDelay is how long after an
// auction's end time before the marketplace's settlement view is trusted.
func NewReconciler(
	auctions repository.AuctionRepository,
	market marketplace.Client,
	clock auction.Clock,
	metrics *Metrics,
	logger *zap.Logger,
	settleDelay time.Duration,
) *Reconciler {
	return &Reconciler{
		auctions:    auctions,
		market:      market,
		clock:       clock,
		metrics:     metrics,
		logger:      logger,
		settleDelay: settleDelay,
	}
}

// Run performs one reconciliation pass: settle pending outcomes, then backfill
// final prices for ended auctions that never got one.
func (r *Reconciler) Run(ctx context.Context) {
	endedBefore := r.clock.Now().Add(-r.settleDelay)

	pending, err := r.auctions.ListAwaitingOutcome(ctx, endedBefore)
	if err != nil {
		r.logger.Error("failed to list auctions awaiting outcome", zap.Error(err))
		return
	}

	for _, a := range pending {
		r.settle(ctx, a)
	}

	r.backfillFinalPrices(ctx, endedBefore)
}

// settle resolves one auction's outcome from the marketplace's bidding view.
// The outcome stays Pending until the marketplace reports the auction ENDED;
// an unknown-standing reply also leaves it Pending for the next pass.
func (r *Reconciler) settle(ctx context.Context, a *auction.Auction) {
	logger := r.logger.With(
		zap.Int64("auction_id", a.ID),
		zap.String("listing_id", a.ListingID))

	standing, err := r.market.GetBidOutcome(ctx, a.ListingID)
	if err != nil {
		if errors.Is(err, marketplace.ErrOutcomeUnknown) {
			logger.Debug("marketplace has no bidding record yet, outcome stays pending")
			return
		}
		logger.Warn("failed to query bid outcome", zap.Error(err))
		return
	}

	if standing.AuctionStatus != marketplace.AuctionStatusEnded {
		// Still running on the marketplace side despite our recorded end
		// time, likely extended. Try again next pass.
		return
	}

	outcome := auction.OutcomeLost
	if standing.HighBidder {
		outcome = auction.OutcomeWon
	}

	if err := r.auctions.SetOutcome(ctx, a.ID, outcome, standing.CurrentPrice); err != nil {
		logger.Error("failed to record outcome", zap.Error(err))
		return
	}

	r.metrics.OutcomesSettled.WithLabelValues(string(outcome)).Inc()
	logger.Info("outcome settled", zap.String("outcome", string(outcome)))
}

// backfillFinalPrices records a closing price for ended auctions that never
// terminated through the bid path, so the listing view can show what the item
// went for. The outcome is never touched here.
func (r *Reconciler) backfillFinalPrices(ctx context.Context, endedBefore time.Time) {
	ended, err := r.auctions.ListEndedWithoutFinalPrice(ctx, endedBefore)
	if err != nil {
		r.logger.Error("failed to list auctions for price backfill", zap.Error(err))
		return
	}

	for _, a := range ended {
		logger := r.logger.With(
			zap.Int64("auction_id", a.ID),
			zap.String("listing_id", a.ListingID))

		details, err := r.market.GetItem(ctx, a.ListingID)
		if err != nil {
			logger.Debug("failed to fetch ended listing for price backfill", zap.Error(err))
			continue
		}

		if err := r.auctions.SetFinalPrice(ctx, a.ID, details.CurrentPrice); err != nil {
			logger.Error("failed to record final price", zap.Error(err))
		}
	}
}
