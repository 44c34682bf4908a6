// Package sniper contains the bidding engine: the ingest service the API
// calls into, the timing-driven scheduler, and the outcome reconciler.
package sniper

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/snipekit/snipekit/internal/domain/auction"
	domainerrors "github.com/snipekit/snipekit/internal/domain/errors"
	"github.com/snipekit/snipekit/internal/domain/values"
	"github.com/snipekit/snipekit/internal/infrastructure/marketplace"
	"github.com/snipekit/snipekit/internal/infrastructure/repository"
)

// Service implements the ingest operations behind the public API. All writes
// funnel through the repository's guarded transitions, so concurrent API and
// scheduler activity cannot corrupt an auction's lifecycle.
type Service struct {
	auctions repository.AuctionRepository
	attempts repository.BidAttemptRepository
	market   marketplace.Client
	prices   PriceRefresher
	clock    auction.Clock
	logger   *zap.Logger
}

// NewService creates the ingest service.
func NewService(
	auctions repository.AuctionRepository,
	attempts repository.BidAttemptRepository,
	market marketplace.Client,
	prices PriceRefresher,
	clock auction.Clock,
	logger *zap.Logger,
) *Service {
	return &Service{
		auctions: auctions,
		attempts: attempts,
		market:   market,
		prices:   prices,
		clock:    clock,
		logger:   logger,
	}
}

// BulkItem is one entry of a bulk-add request.
type BulkItem struct {
	ListingID string
	MaxBid    decimal.Decimal
}

// BulkResult reports the per-item outcome of a bulk add, aligned with the
// request order.
type BulkResult struct {
	ListingID string           `json:"listing_id"`
	Success   bool             `json:"success"`
	Message   string           `json:"message,omitempty"`
	Auction   *auction.Auction `json:"auction,omitempty"`
}

// AddAuction validates the listing against the live marketplace and schedules
// a snipe for it. The max bid is denominated in the listing's own currency.
func (s *Service) AddAuction(ctx context.Context, listingID string, maxBid decimal.Decimal) (*auction.Auction, error) {
	if listingID == "" {
		return nil, domainerrors.NewValidationError("MISSING_LISTING_ID", "Listing ID is required")
	}
	if !maxBid.IsPositive() {
		return nil, domainerrors.NewValidationError("INVALID_MAX_BID", "Max bid must be greater than zero")
	}

	// Cheap duplicate check first; the partial unique index is the real
	// guard against a concurrent add racing past this read.
	if _, err := s.auctions.GetActiveByListingID(ctx, listingID); err == nil {
		return nil, domainerrors.ErrAuctionExists
	} else if !repository.IsNotFound(err) {
		return nil, domainerrors.NewInternalError("failed to check for existing auction").WithCause(err)
	}

	details, err := s.market.GetItem(ctx, listingID)
	if err != nil {
		return nil, s.mapLookupError(err, listingID)
	}

	now := s.clock.Now()
	if !details.EndTime.After(now) {
		return nil, domainerrors.ErrAuctionEnded
	}

	bid, err := values.NewMoney(maxBid, details.CurrentPrice.Currency())
	if err != nil {
		return nil, domainerrors.NewValidationError("INVALID_MAX_BID", err.Error())
	}
	if !bid.GreaterThan(details.CurrentPrice) {
		return nil, domainerrors.ErrBidTooLow
	}

	created, err := s.auctions.Create(ctx, &auction.Auction{
		ListingID:    details.ListingID,
		ListingURL:   details.ListingURL,
		ItemTitle:    details.Title,
		Seller:       details.Seller,
		CurrentPrice: details.CurrentPrice,
		MaxBid:       bid,
		EndTime:      details.EndTime,
		LastRefresh:  &now,
		Status:       auction.StatusScheduled,
		Outcome:      auction.OutcomePending,
	})
	if err != nil {
		if repository.IsDuplicateKeyViolation(err) {
			return nil, domainerrors.ErrAuctionExists
		}
		return nil, domainerrors.NewInternalError("failed to create auction").WithCause(err)
	}

	s.logger.Info("auction scheduled",
		zap.Int64("auction_id", created.ID),
		zap.String("listing_id", created.ListingID),
		zap.String("max_bid", created.MaxBid.String()),
		zap.Time("end_time", created.EndTime))

	return created, nil
}

// BulkAdd schedules several listings in one call. A failed item never aborts
// the rest; the result slice is aligned with the input.
func (s *Service) BulkAdd(ctx context.Context, items []BulkItem) []BulkResult {
	results := make([]BulkResult, len(items))
	for i, item := range items {
		a, err := s.AddAuction(ctx, item.ListingID, item.MaxBid)
		if err != nil {
			results[i] = BulkResult{
				ListingID: item.ListingID,
				Message:   userMessage(err),
			}
			continue
		}
		results[i] = BulkResult{
			ListingID: item.ListingID,
			Success:   true,
			Auction:   a,
		}
	}
	return results
}

// List returns every tracked auction ordered by end time, refreshing stale
// prices in bounded parallel on the way out.
func (s *Service) List(ctx context.Context) ([]*auction.Auction, error) {
	auctions, err := s.auctions.List(ctx)
	if err != nil {
		return nil, domainerrors.NewInternalError("failed to list auctions").WithCause(err)
	}
	return s.prices.RefreshAllStale(ctx, auctions), nil
}

// GetStatus returns one auction, refreshed inline when its price is stale.
func (s *Service) GetStatus(ctx context.Context, id int64) (*auction.Auction, error) {
	a, err := s.auctions.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domainerrors.ErrAuctionNotFound
		}
		return nil, domainerrors.NewInternalError("failed to load auction").WithCause(err)
	}
	return s.prices.RefreshIfStale(ctx, a), nil
}

// Cancel withdraws a scheduled snipe. Only Scheduled auctions are
// cancellable; anything already executing or terminated is refused.
func (s *Service) Cancel(ctx context.Context, id int64) (*auction.Auction, error) {
	a, err := s.auctions.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domainerrors.ErrAuctionNotFound
		}
		return nil, domainerrors.NewInternalError("failed to load auction").WithCause(err)
	}

	if a.Status != auction.StatusScheduled {
		return nil, domainerrors.ErrNotCancellable
	}

	changed, err := s.auctions.TransitionStatus(ctx, id, auction.StatusScheduled, auction.StatusCancelled)
	if err != nil {
		return nil, domainerrors.NewInternalError("failed to cancel auction").WithCause(err)
	}
	if !changed {
		// The scheduler claimed it between our read and the CAS.
		return nil, domainerrors.ErrNotCancellable
	}

	a.Status = auction.StatusCancelled
	s.logger.Info("auction cancelled",
		zap.Int64("auction_id", a.ID),
		zap.String("listing_id", a.ListingID))
	return a, nil
}

// GetLogs returns the bid attempt for an auction, or nil when no bid has been
// recorded yet.
func (s *Service) GetLogs(ctx context.Context, id int64) (*auction.BidAttempt, error) {
	if _, err := s.auctions.GetByID(ctx, id); err != nil {
		if repository.IsNotFound(err) {
			return nil, domainerrors.ErrAuctionNotFound
		}
		return nil, domainerrors.NewInternalError("failed to load auction").WithCause(err)
	}

	attempt, err := s.attempts.GetByAuctionID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil
		}
		return nil, domainerrors.NewInternalError("failed to load bid attempt").WithCause(err)
	}
	return attempt, nil
}

// mapLookupError translates marketplace lookup failures into the errors the
// API surfaces.
func (s *Service) mapLookupError(err error, listingID string) error {
	switch {
	case errors.Is(err, marketplace.ErrItemNotFound):
		return domainerrors.NewNotFoundError("Listing")
	case errors.Is(err, marketplace.ErrNotAuction):
		return domainerrors.ErrNotAnAuction
	default:
		s.logger.Error("marketplace lookup failed",
			zap.String("listing_id", listingID),
			zap.Error(err))
		return domainerrors.NewExternalError("marketplace", "failed to fetch listing details").WithCause(err)
	}
}

// userMessage extracts the message shown to API callers in bulk results.
func userMessage(err error) string {
	var appErr *domainerrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
