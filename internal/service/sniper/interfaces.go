package sniper

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/snipekit/snipekit/internal/domain/auction"
)

// TxRunner executes a function inside one database transaction.
type TxRunner interface {
	Transaction(ctx context.Context, fn func(pgx.Tx) error) error
}

// Credentials is the slice of the credential manager the bid path needs.
type Credentials interface {
	// EnsureUserTokenUntil refreshes the user token when it would expire
	// before the given instant
	EnsureUserTokenUntil(ctx context.Context, deadline time.Time) error
}

// PriceRefresher is the slice of the price cache the engine and API consume.
type PriceRefresher interface {
	// RefreshIfStale returns the row, refreshed when stale, best-effort
	RefreshIfStale(ctx context.Context, a *auction.Auction) *auction.Auction

	// RefreshAllStale refreshes stale rows in bounded parallel
	RefreshAllStale(ctx context.Context, auctions []*auction.Auction) []*auction.Auction

	// ForceRefresh refreshes regardless of TTL and surfaces the error
	ForceRefresh(ctx context.Context, a *auction.Auction) (*auction.Auction, error)
}
