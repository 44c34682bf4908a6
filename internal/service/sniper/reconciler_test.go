package sniper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/snipekit/snipekit/internal/domain/auction"
	"github.com/snipekit/snipekit/internal/domain/values"
	"github.com/snipekit/snipekit/internal/infrastructure/marketplace"
	"github.com/snipekit/snipekit/internal/testutil/mocks"
)

type reconcilerFixture struct {
	reconciler *Reconciler
	auctions   *mocks.AuctionRepository
	market     *mocks.MarketClient
	clock      *auction.MockClock
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()
	f := &reconcilerFixture{
		auctions: new(mocks.AuctionRepository),
		market:   new(mocks.MarketClient),
		clock:    &auction.MockClock{CurrentTime: schedTestNow},
	}
	metrics := NewMetrics(prometheus.NewRegistry())
	f.reconciler = NewReconciler(f.auctions, f.market, f.clock, metrics, zap.NewNop(), 30*time.Second)
	return f
}

func awaitingAuction(id int64, listingID string) *auction.Auction {
	return &auction.Auction{
		ID:        id,
		ListingID: listingID,
		MaxBid:    values.MustNewMoneyFromFloat(50, "USD"),
		EndTime:   schedTestNow.Add(-5 * time.Minute),
		Status:    auction.StatusBidPlaced,
		Outcome:   auction.OutcomePending,
	}
}

func (f *reconcilerFixture) expectNoBackfill() {
	f.auctions.On("ListEndedWithoutFinalPrice", mock.Anything, mock.Anything).
		Return([]*auction.Auction{}, nil)
}

func TestReconcilerSettlesWon(t *testing.T) {
	f := newReconcilerFixture(t)
	a := awaitingAuction(1, "111")
	final := values.MustNewMoneyFromFloat(42, "USD")

	f.auctions.On("ListAwaitingOutcome", mock.Anything, schedTestNow.Add(-30*time.Second)).
		Return([]*auction.Auction{a}, nil)
	f.market.On("GetBidOutcome", mock.Anything, "111").Return(&marketplace.BidOutcome{
		AuctionStatus: marketplace.AuctionStatusEnded,
		HighBidder:    true,
		CurrentPrice:  &final,
	}, nil)
	f.auctions.On("SetOutcome", mock.Anything, int64(1), auction.OutcomeWon, &final).Return(nil)
	f.expectNoBackfill()

	f.reconciler.Run(context.Background())

	f.auctions.AssertExpectations(t)
}

func TestReconcilerSettlesLost(t *testing.T) {
	f := newReconcilerFixture(t)
	a := awaitingAuction(1, "111")
	final := values.MustNewMoneyFromFloat(55, "USD")

	f.auctions.On("ListAwaitingOutcome", mock.Anything, mock.Anything).
		Return([]*auction.Auction{a}, nil)
	f.market.On("GetBidOutcome", mock.Anything, "111").Return(&marketplace.BidOutcome{
		AuctionStatus: marketplace.AuctionStatusEnded,
		HighBidder:    false,
		CurrentPrice:  &final,
	}, nil)
	f.auctions.On("SetOutcome", mock.Anything, int64(1), auction.OutcomeLost, &final).Return(nil)
	f.expectNoBackfill()

	f.reconciler.Run(context.Background())

	f.auctions.AssertExpectations(t)
}

func TestReconcilerLeavesPendingWhenOutcomeUnknown(t *testing.T) {
	f := newReconcilerFixture(t)
	a := awaitingAuction(1, "111")

	f.auctions.On("ListAwaitingOutcome", mock.Anything, mock.Anything).
		Return([]*auction.Auction{a}, nil)
	f.market.On("GetBidOutcome", mock.Anything, "111").
		Return(nil, marketplace.ErrOutcomeUnknown)
	f.expectNoBackfill()

	f.reconciler.Run(context.Background())

	f.auctions.AssertNotCalled(t, "SetOutcome",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcilerLeavesPendingWhileAuctionStillActive(t *testing.T) {
	f := newReconcilerFixture(t)
	a := awaitingAuction(1, "111")

	f.auctions.On("ListAwaitingOutcome", mock.Anything, mock.Anything).
		Return([]*auction.Auction{a}, nil)
	f.market.On("GetBidOutcome", mock.Anything, "111").Return(&marketplace.BidOutcome{
		AuctionStatus: marketplace.AuctionStatusActive,
		HighBidder:    true,
	}, nil)
	f.expectNoBackfill()

	f.reconciler.Run(context.Background())

	f.auctions.AssertNotCalled(t, "SetOutcome",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcilerErrorOnOneAuctionContinuesPass(t *testing.T) {
	f := newReconcilerFixture(t)
	a1 := awaitingAuction(1, "111")
	a2 := awaitingAuction(2, "222")
	final := values.MustNewMoneyFromFloat(42, "USD")

	f.auctions.On("ListAwaitingOutcome", mock.Anything, mock.Anything).
		Return([]*auction.Auction{a1, a2}, nil)
	f.market.On("GetBidOutcome", mock.Anything, "111").
		Return(nil, errors.New("connection refused"))
	f.market.On("GetBidOutcome", mock.Anything, "222").Return(&marketplace.BidOutcome{
		AuctionStatus: marketplace.AuctionStatusEnded,
		HighBidder:    true,
		CurrentPrice:  &final,
	}, nil)
	f.auctions.On("SetOutcome", mock.Anything, int64(2), auction.OutcomeWon, &final).Return(nil)
	f.expectNoBackfill()

	f.reconciler.Run(context.Background())

	f.auctions.AssertExpectations(t)
}

func TestReconcilerBackfillsFinalPrice(t *testing.T) {
	f := newReconcilerFixture(t)
	ended := awaitingAuction(3, "333")
	ended.Status = auction.StatusFailed
	price := values.MustNewMoneyFromFloat(30, "USD")

	f.auctions.On("ListAwaitingOutcome", mock.Anything, mock.Anything).
		Return([]*auction.Auction{}, nil)
	f.auctions.On("ListEndedWithoutFinalPrice", mock.Anything, mock.Anything).
		Return([]*auction.Auction{ended}, nil)
	f.market.On("GetItem", mock.Anything, "333").Return(&marketplace.ItemDetails{
		ListingID:    "333",
		CurrentPrice: price,
		EndTime:      ended.EndTime,
		ListingType:  marketplace.ListingTypeAuction,
	}, nil)
	f.auctions.On("SetFinalPrice", mock.Anything, int64(3), price).Return(nil)

	f.reconciler.Run(context.Background())

	// The backfill records the closing price only; outcomes are never
	// touched on this path.
	f.auctions.AssertNotCalled(t, "SetOutcome",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.auctions.AssertExpectations(t)
}
