package marketplace

import (
	"context"
	"time"

	"github.com/snipekit/snipekit/internal/domain/values"
)

// ItemDetails is the live listing snapshot returned by the marketplace.
type ItemDetails struct {
	ListingID    string
	ListingURL   string
	Title        string
	Seller       string
	CurrentPrice values.Money
	EndTime      time.Time
	ListingType  string
}

// IsAuction reports whether the listing is a bid-on-able auction.
func (d *ItemDetails) IsAuction() bool {
	return d.ListingType == ListingTypeAuction
}

// ListingTypeAuction is the only listing type the sniper accepts.
const ListingTypeAuction = "AUCTION"

// Auction settlement states reported by the bidding-outcome endpoint.
const (
	AuctionStatusActive = "ACTIVE"
	AuctionStatusEnded  = "ENDED"
)

// BidOutcome is the marketplace's view of our standing on a listing.
type BidOutcome struct {
	AuctionStatus string
	HighBidder    bool
	CurrentPrice  *values.Money
}

// Client is the narrow marketplace surface the engine consumes. It is the
// only outbound egress; implementations must be safe for concurrent use and
// enforce per-call deadlines internally.
type Client interface {
	// GetItem fetches live listing details. A legacy-id lookup is tried
	// first with a canonical-id fallback on 404. Non-auction listings fail
	// with ErrNotAuction.
	GetItem(ctx context.Context, listingID string) (*ItemDetails, error)

	// PlaceBid submits a proxy bid for the given maximum amount. The
	// marketplace's bidding ladder handles increments.
	PlaceBid(ctx context.Context, listingID string, amount values.Money) error

	// GetBidOutcome queries our bidding standing after an auction ends.
	// Returns ErrOutcomeUnknown when the marketplace has no record of a
	// bid from us.
	GetBidOutcome(ctx context.Context, listingID string) (*BidOutcome, error)
}
