package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/snipekit/snipekit/internal/domain/auction"
)

// bidAttemptRepository implements BidAttemptRepository using PostgreSQL
type bidAttemptRepository struct {
	db Querier
}

// NewBidAttemptRepository creates a new bid attempt repository
func NewBidAttemptRepository(db Querier) BidAttemptRepository {
	return &bidAttemptRepository{db: db}
}

// Create records the attempt. The auction_id primary key makes this
// first-writer-wins: a second attempt for the same auction is a no-op, which
// preserves the at-most-one-attempt invariant across crash recovery.
func (r *bidAttemptRepository) Create(ctx context.Context, attempt *auction.BidAttempt) error {
	if attempt.AuctionID == 0 {
		return errors.New("auction_id cannot be zero")
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO bid_attempts (auction_id, attempt_time_utc, result, error_message)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		ON CONFLICT (auction_id) DO NOTHING
	`, attempt.AuctionID, attempt.AttemptTime, string(attempt.Result), attempt.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to create bid attempt: %w", err)
	}
	return nil
}

func (r *bidAttemptRepository) GetByAuctionID(ctx context.Context, auctionID int64) (*auction.BidAttempt, error) {
	var (
		attempt   auction.BidAttempt
		resultStr string
		errMsg    *string
	)

	err := r.db.QueryRow(ctx, `
		SELECT auction_id, attempt_time_utc, result, error_message
		FROM bid_attempts
		WHERE auction_id = $1
	`, auctionID).Scan(&attempt.AuctionID, &attempt.AttemptTime, &resultStr, &errMsg)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get bid attempt: %w", err)
	}

	attempt.Result = auction.BidResult(resultStr)
	if errMsg != nil {
		attempt.ErrorMessage = *errMsg
	}
	return &attempt, nil
}

func (r *bidAttemptRepository) WithTx(tx pgx.Tx) BidAttemptRepository {
	return &bidAttemptRepository{db: tx}
}
