package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/snipekit/snipekit/internal/domain/auction"
	"github.com/snipekit/snipekit/internal/domain/values"
)

// auctionRepository implements AuctionRepository using PostgreSQL
type auctionRepository struct {
	db Querier
}

// NewAuctionRepository creates a new auction repository
func NewAuctionRepository(db Querier) AuctionRepository {
	return &auctionRepository{db: db}
}

func (r *auctionRepository) WithTx(tx pgx.Tx) AuctionRepository {
	return &auctionRepository{db: tx}
}

const auctionColumns = `
	id, listing_id, listing_url, item_title, COALESCE(seller, ''),
	current_price, max_bid, currency, end_time_utc, last_refresh_utc,
	status, COALESCE(skip_reason, ''), outcome, final_price,
	created_at, updated_at
`

func (r *auctionRepository) Create(ctx context.Context, a *auction.Auction) (*auction.Auction, error) {
	if a.ListingID == "" {
		return nil, errors.New("listing_id cannot be empty")
	}
	if !a.MaxBid.IsPositive() {
		return nil, errors.New("max_bid must be positive")
	}

	query := `
		INSERT INTO auctions (
			listing_id, listing_url, item_title, seller,
			current_price, max_bid, currency, end_time_utc,
			last_refresh_utc, status, outcome, created_at, updated_at
		) VALUES (
			$1, $2, $3, NULLIF($4, ''),
			$5, $6, $7, $8,
			$9, $10, $11, now(), now()
		)
		RETURNING id, created_at, updated_at
	`

	created := *a
	err := r.db.QueryRow(ctx, query,
		a.ListingID, a.ListingURL, a.ItemTitle, a.Seller,
		a.CurrentPrice.Amount(), a.MaxBid.Amount(), a.CurrentPrice.Currency(), a.EndTime,
		a.LastRefresh, string(a.Status), string(a.Outcome),
	).Scan(&created.ID, &created.CreatedAt, &created.UpdatedAt)

	if err != nil {
		if IsDuplicateKeyViolation(err) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("failed to create auction: %w", err)
	}

	return &created, nil
}

func (r *auctionRepository) GetByID(ctx context.Context, id int64) (*auction.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = $1`

	a, err := scanAuction(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get auction: %w", err)
	}
	return a, nil
}

func (r *auctionRepository) GetActiveByListingID(ctx context.Context, listingID string) (*auction.Auction, error) {
	query := `
		SELECT ` + auctionColumns + `
		FROM auctions
		WHERE listing_id = $1 AND status IN ('Scheduled', 'Executing')
	`

	a, err := scanAuction(r.db.QueryRow(ctx, query, listingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get auction by listing: %w", err)
	}
	return a, nil
}

func (r *auctionRepository) List(ctx context.Context) ([]*auction.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions ORDER BY end_time_utc ASC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list auctions: %w", err)
	}
	defer rows.Close()

	return collectAuctions(rows)
}

func (r *auctionRepository) ListByStatuses(ctx context.Context, statuses ...auction.Status) ([]*auction.Auction, error) {
	strs := make([]string, len(statuses))
	for i, s := range statuses {
		strs[i] = string(s)
	}

	query := `
		SELECT ` + auctionColumns + `
		FROM auctions
		WHERE status = ANY($1)
		ORDER BY end_time_utc ASC
	`

	rows, err := r.db.Query(ctx, query, strs)
	if err != nil {
		return nil, fmt.Errorf("failed to list auctions by status: %w", err)
	}
	defer rows.Close()

	return collectAuctions(rows)
}

func (r *auctionRepository) ListAwaitingOutcome(ctx context.Context, endedBefore time.Time) ([]*auction.Auction, error) {
	query := `
		SELECT ` + auctionColumns + `
		FROM auctions
		WHERE status = 'BidPlaced' AND outcome = 'Pending' AND end_time_utc < $1
		ORDER BY end_time_utc ASC
	`

	rows, err := r.db.Query(ctx, query, endedBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to list auctions awaiting outcome: %w", err)
	}
	defer rows.Close()

	return collectAuctions(rows)
}

func (r *auctionRepository) ListEndedWithoutFinalPrice(ctx context.Context, endedBefore time.Time) ([]*auction.Auction, error) {
	query := `
		SELECT ` + auctionColumns + `
		FROM auctions
		WHERE outcome = 'Pending'
		AND final_price IS NULL
		AND status IN ('BidPlaced', 'Failed')
		AND end_time_utc < $1
		ORDER BY end_time_utc ASC
	`

	rows, err := r.db.Query(ctx, query, endedBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to list ended auctions without final price: %w", err)
	}
	defer rows.Close()

	return collectAuctions(rows)
}

// ClaimForExecution is the single serializable write the exactly-once bid
// execution guarantee rests on.
func (r *auctionRepository) ClaimForExecution(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE auctions
		SET status = 'Executing', updated_at = now()
		WHERE id = $1 AND status = 'Scheduled'
	`, id)
	if err != nil {
		return false, fmt.Errorf("failed to claim auction %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *auctionRepository) TransitionStatus(ctx context.Context, id int64, from, to auction.Status) (bool, error) {
	if !from.CanTransition(to) {
		return false, fmt.Errorf("illegal status transition %s -> %s", from, to)
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE auctions
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
	`, id, string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("failed to transition auction %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *auctionRepository) MarkSkipped(ctx context.Context, id int64, reason string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE auctions
		SET status = 'Skipped', skip_reason = $2, updated_at = now()
		WHERE id = $1 AND status = 'Scheduled'
	`, id, reason)
	if err != nil {
		return false, fmt.Errorf("failed to mark auction %d skipped: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *auctionRepository) UpdatePrice(ctx context.Context, id int64, price values.Money, listingURL, title, seller string, endTime, refreshedAt time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE auctions
		SET current_price = $2,
		    currency = $3,
		    listing_url = COALESCE(NULLIF($4, ''), listing_url),
		    item_title = COALESCE(NULLIF($5, ''), item_title),
		    seller = COALESCE(NULLIF($6, ''), seller),
		    end_time_utc = $7,
		    last_refresh_utc = $8,
		    updated_at = now()
		WHERE id = $1
	`, id, price.Amount(), price.Currency(), listingURL, title, seller, endTime, refreshedAt)
	if err != nil {
		return fmt.Errorf("failed to update price for auction %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *auctionRepository) SetOutcome(ctx context.Context, id int64, outcome auction.Outcome, finalPrice *values.Money) error {
	var amount *decimal.Decimal
	if finalPrice != nil {
		v := finalPrice.Amount()
		amount = &v
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE auctions
		SET outcome = $2,
		    final_price = COALESCE($3, final_price),
		    updated_at = now()
		WHERE id = $1 AND outcome = 'Pending'
	`, id, string(outcome), amount)
	if err != nil {
		return fmt.Errorf("failed to set outcome for auction %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *auctionRepository) SetFinalPrice(ctx context.Context, id int64, price values.Money) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE auctions
		SET final_price = $2, updated_at = now()
		WHERE id = $1
	`, id, price.Amount())
	if err != nil {
		return fmt.Errorf("failed to set final price for auction %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanAuction scans a single row into an Auction
func scanAuction(row pgx.Row) (*auction.Auction, error) {
	var (
		a           auction.Auction
		statusStr   string
		outcomeStr  string
		currency    string
		price       decimal.Decimal
		maxBid      decimal.Decimal
		finalPrice  decimal.NullDecimal
		lastRefresh *time.Time
	)

	err := row.Scan(
		&a.ID, &a.ListingID, &a.ListingURL, &a.ItemTitle, &a.Seller,
		&price, &maxBid, &currency, &a.EndTime, &lastRefresh,
		&statusStr, &a.SkipReason, &outcomeStr, &finalPrice,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.CurrentPrice, err = values.NewMoney(price, currency)
	if err != nil {
		return nil, fmt.Errorf("invalid current_price: %w", err)
	}
	a.MaxBid, err = values.NewMoney(maxBid, currency)
	if err != nil {
		return nil, fmt.Errorf("invalid max_bid: %w", err)
	}
	if finalPrice.Valid {
		fp, err := values.NewMoney(finalPrice.Decimal, currency)
		if err != nil {
			return nil, fmt.Errorf("invalid final_price: %w", err)
		}
		a.FinalPrice = &fp
	}
	a.LastRefresh = lastRefresh
	a.Status = auction.Status(statusStr)
	a.Outcome = auction.Outcome(outcomeStr)
	a.EndTime = a.EndTime.UTC()

	return &a, nil
}

func collectAuctions(rows pgx.Rows) ([]*auction.Auction, error) {
	var auctions []*auction.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan auction: %w", err)
		}
		auctions = append(auctions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return auctions, nil
}
