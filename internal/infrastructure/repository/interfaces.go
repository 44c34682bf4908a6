package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/snipekit/snipekit/internal/domain/auction"
	"github.com/snipekit/snipekit/internal/domain/values"
)

// Querier is the subset of pgx operations the repositories need. Both
// *pgxpool.Pool and pgx.Tx satisfy it, so a repository can run against the
// shared pool or inside a caller-owned transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AuctionRepository defines persistence for tracked auctions.
type AuctionRepository interface {
	// Create inserts a new auction and returns it with its assigned ID.
	// Fails with ErrDuplicateKey when a non-terminal auction for the same
	// listing already exists.
	Create(ctx context.Context, a *auction.Auction) (*auction.Auction, error)

	// GetByID retrieves an auction by ID
	GetByID(ctx context.Context, id int64) (*auction.Auction, error)

	// GetActiveByListingID returns the non-terminal auction for a listing,
	// or ErrNotFound
	GetActiveByListingID(ctx context.Context, listingID string) (*auction.Auction, error)

	// List returns all auctions ordered by end time ascending
	List(ctx context.Context) ([]*auction.Auction, error)

	// ListByStatuses returns auctions whose status is in the given set
	ListByStatuses(ctx context.Context, statuses ...auction.Status) ([]*auction.Auction, error)

	// ListAwaitingOutcome returns BidPlaced auctions with a Pending outcome
	// whose end time passed before the given instant
	ListAwaitingOutcome(ctx context.Context, endedBefore time.Time) ([]*auction.Auction, error)

	// ListEndedWithoutFinalPrice returns ended auctions with a Pending
	// outcome and no recorded final price, for opportunistic backfill
	ListEndedWithoutFinalPrice(ctx context.Context, endedBefore time.Time) ([]*auction.Auction, error)

	// ClaimForExecution atomically advances Scheduled -> Executing and
	// reports whether this caller won the claim. This is the exactly-once
	// handoff for bid execution.
	ClaimForExecution(ctx context.Context, id int64) (bool, error)

	// TransitionStatus advances from -> to only when the row still holds
	// the from status, reporting whether the row changed
	TransitionStatus(ctx context.Context, id int64, from, to auction.Status) (bool, error)

	// MarkSkipped transitions Scheduled -> Skipped recording the reason
	MarkSkipped(ctx context.Context, id int64, reason string) (bool, error)

	// UpdatePrice writes through the observed price and display metadata
	// and advances last_refresh_utc
	UpdatePrice(ctx context.Context, id int64, price values.Money, listingURL, title, seller string, endTime, refreshedAt time.Time) error

	// SetOutcome records the settled outcome and, when present, the final
	// price
	SetOutcome(ctx context.Context, id int64, outcome auction.Outcome, finalPrice *values.Money) error

	// SetFinalPrice records the final price without touching the outcome
	SetFinalPrice(ctx context.Context, id int64, price values.Money) error

	// WithTx returns a repository bound to the given transaction
	WithTx(tx pgx.Tx) AuctionRepository
}

// BidAttemptRepository defines persistence for bid attempts. An auction has
// at most one attempt; attempt creation is first-writer-wins.
type BidAttemptRepository interface {
	// Create records the attempt unless one already exists for the auction
	Create(ctx context.Context, attempt *auction.BidAttempt) error

	// GetByAuctionID returns the attempt for an auction, or ErrNotFound
	GetByAuctionID(ctx context.Context, auctionID int64) (*auction.BidAttempt, error)

	// WithTx returns a repository bound to the given transaction
	WithTx(tx pgx.Tx) BidAttemptRepository
}
