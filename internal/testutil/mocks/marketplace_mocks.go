package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/snipekit/snipekit/internal/domain/auction"
	"github.com/snipekit/snipekit/internal/domain/values"
	"github.com/snipekit/snipekit/internal/infrastructure/marketplace"
)

// MarketClient is a testify mock of marketplace.Client.
type MarketClient struct {
	mock.Mock
}

func (m *MarketClient) GetItem(ctx context.Context, listingID string) (*marketplace.ItemDetails, error) {
	args := m.Called(ctx, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*marketplace.ItemDetails), args.Error(1)
}

func (m *MarketClient) PlaceBid(ctx context.Context, listingID string, amount values.Money) error {
	args := m.Called(ctx, listingID, amount)
	return args.Error(0)
}

func (m *MarketClient) GetBidOutcome(ctx context.Context, listingID string) (*marketplace.BidOutcome, error) {
	args := m.Called(ctx, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*marketplace.BidOutcome), args.Error(1)
}

// Credentials is a testify mock of the bid-path credential surface.
type Credentials struct {
	mock.Mock
}

func (m *Credentials) EnsureUserTokenUntil(ctx context.Context, deadline time.Time) error {
	args := m.Called(ctx, deadline)
	return args.Error(0)
}

// PriceRefresher is a testify mock of the price cache surface.
type PriceRefresher struct {
	mock.Mock
}

func (m *PriceRefresher) RefreshIfStale(ctx context.Context, a *auction.Auction) *auction.Auction {
	args := m.Called(ctx, a)
	return args.Get(0).(*auction.Auction)
}

func (m *PriceRefresher) RefreshAllStale(ctx context.Context, auctions []*auction.Auction) []*auction.Auction {
	args := m.Called(ctx, auctions)
	return args.Get(0).([]*auction.Auction)
}

func (m *PriceRefresher) ForceRefresh(ctx context.Context, a *auction.Auction) (*auction.Auction, error) {
	args := m.Called(ctx, a)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auction.Auction), args.Error(1)
}
