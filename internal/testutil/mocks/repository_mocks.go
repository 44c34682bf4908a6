// Package mocks provides shared testify mocks for the repository and
// marketplace interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/mock"

	"github.com/snipekit/snipekit/internal/domain/auction"
	"github.com/snipekit/snipekit/internal/domain/values"
	"github.com/snipekit/snipekit/internal/infrastructure/repository"
)

// AuctionRepository is a testify mock of repository.AuctionRepository.
type AuctionRepository struct {
	mock.Mock
}

func (m *AuctionRepository) Create(ctx context.Context, a *auction.Auction) (*auction.Auction, error) {
	args := m.Called(ctx, a)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auction.Auction), args.Error(1)
}

func (m *AuctionRepository) GetByID(ctx context.Context, id int64) (*auction.Auction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auction.Auction), args.Error(1)
}

func (m *AuctionRepository) GetActiveByListingID(ctx context.Context, listingID string) (*auction.Auction, error) {
	args := m.Called(ctx, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auction.Auction), args.Error(1)
}

func (m *AuctionRepository) List(ctx context.Context) ([]*auction.Auction, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*auction.Auction), args.Error(1)
}

func (m *AuctionRepository) ListByStatuses(ctx context.Context, statuses ...auction.Status) ([]*auction.Auction, error) {
	callArgs := make([]interface{}, 0, len(statuses)+1)
	callArgs = append(callArgs, ctx)
	for _, s := range statuses {
		callArgs = append(callArgs, s)
	}
	args := m.Called(callArgs...)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*auction.Auction), args.Error(1)
}

func (m *AuctionRepository) ListAwaitingOutcome(ctx context.Context, endedBefore time.Time) ([]*auction.Auction, error) {
	args := m.Called(ctx, endedBefore)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*auction.Auction), args.Error(1)
}

func (m *AuctionRepository) ListEndedWithoutFinalPrice(ctx context.Context, endedBefore time.Time) ([]*auction.Auction, error) {
	args := m.Called(ctx, endedBefore)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*auction.Auction), args.Error(1)
}

func (m *AuctionRepository) ClaimForExecution(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *AuctionRepository) TransitionStatus(ctx context.Context, id int64, from, to auction.Status) (bool, error) {
	args := m.Called(ctx, id, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *AuctionRepository) MarkSkipped(ctx context.Context, id int64, reason string) (bool, error) {
	args := m.Called(ctx, id, reason)
	return args.Bool(0), args.Error(1)
}

func (m *AuctionRepository) UpdatePrice(ctx context.Context, id int64, price values.Money, listingURL, title, seller string, endTime, refreshedAt time.Time) error {
	args := m.Called(ctx, id, price, listingURL, title, seller, endTime, refreshedAt)
	return args.Error(0)
}

func (m *AuctionRepository) SetOutcome(ctx context.Context, id int64, outcome auction.Outcome, finalPrice *values.Money) error {
	args := m.Called(ctx, id, outcome, finalPrice)
	return args.Error(0)
}

func (m *AuctionRepository) SetFinalPrice(ctx context.Context, id int64, price values.Money) error {
	args := m.Called(ctx, id, price)
	return args.Error(0)
}

// WithTx returns the same mock; transaction scoping is a no-op in tests.
func (m *AuctionRepository) WithTx(tx pgx.Tx) repository.AuctionRepository {
	return m
}

// BidAttemptRepository is a testify mock of repository.BidAttemptRepository.
type BidAttemptRepository struct {
	mock.Mock
}

func (m *BidAttemptRepository) Create(ctx context.Context, attempt *auction.BidAttempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

func (m *BidAttemptRepository) GetByAuctionID(ctx context.Context, auctionID int64) (*auction.BidAttempt, error) {
	args := m.Called(ctx, auctionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auction.BidAttempt), args.Error(1)
}

// WithTx returns the same mock; transaction scoping is a no-op in tests.
func (m *BidAttemptRepository) WithTx(tx pgx.Tx) repository.BidAttemptRepository {
	return m
}

// TxRunner satisfies the service-layer transaction interface by invoking the
// function directly with a nil transaction and counting the invocations.
type TxRunner struct {
	Calls int
}

func (r *TxRunner) Transaction(ctx context.Context, fn func(pgx.Tx) error) error {
	r.Calls++
	return fn(nil)
}
