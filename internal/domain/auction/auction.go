package auction

import (
	"time"

	"github.com/snipekit/snipekit/internal/domain/values"
)

// Status is the pre-outcome lifecycle phase of a tracked auction.
type Status string

const (
	StatusScheduled Status = "Scheduled"
	StatusExecuting Status = "Executing"
	StatusBidPlaced Status = "BidPlaced"
	StatusFailed    Status = "Failed"
	StatusCancelled Status = "Cancelled"
	StatusSkipped   Status = "Skipped"
)

// Outcome is the post-settlement axis, independent of Status.
type Outcome string

const (
	OutcomePending Outcome = "Pending"
	OutcomeWon     Outcome = "Won"
	OutcomeLost    Outcome = "Lost"
)

// BidResult is the recorded result of a bid attempt.
type BidResult string

const (
	BidResultSuccess BidResult = "success"
	BidResultFailed  BidResult = "failed"
)

// Auction is the durable per-listing snipe record. It is created Scheduled
// with a Pending outcome and mutated only by the scheduler, the outcome
// reconciler, or a user cancel.
type Auction struct {
	ID           int64         `json:"id"`
	ListingID    string        `json:"listing_id"`
	ListingURL   string        `json:"listing_url"`
	ItemTitle    string        `json:"item_title"`
	Seller       string        `json:"seller,omitempty"`
	CurrentPrice values.Money  `json:"current_price"`
	MaxBid       values.Money  `json:"max_bid"`
	EndTime      time.Time     `json:"end_time_utc"`
	LastRefresh  *time.Time    `json:"last_refresh_utc,omitempty"`
	Status       Status        `json:"status"`
	SkipReason   string        `json:"skip_reason,omitempty"`
	Outcome      Outcome       `json:"outcome"`
	FinalPrice   *values.Money `json:"final_price,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// BidAttempt records the single bid execution for an auction. At most one
// exists per auction; the auction_id is its primary key.
type BidAttempt struct {
	AuctionID    int64     `json:"auction_id"`
	AttemptTime  time.Time `json:"attempt_time_utc"`
	Result       BidResult `json:"result"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// IsTerminal reports whether the status admits no further pre-outcome
// transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusBidPlaced, StatusFailed, StatusCancelled, StatusSkipped:
		return true
	}
	return false
}

// CanTransition reports whether a status transition is legal.
//
//	Scheduled -> Executing | Cancelled | Skipped | Failed
//	Executing -> BidPlaced | Failed
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusScheduled:
		switch to {
		case StatusExecuting, StatusCancelled, StatusSkipped, StatusFailed:
			return true
		}
	case StatusExecuting:
		switch to {
		case StatusBidPlaced, StatusFailed:
			return true
		}
	}
	return false
}

// NeedsRefresh reports whether the cached price is stale under the
// refresh-on-read policy. Terminal-for-refresh states never refresh;
// BidPlaced stops refreshing once the auction has ended.
func (a *Auction) NeedsRefresh(now time.Time, ttl time.Duration) bool {
	switch a.Status {
	case StatusCancelled, StatusFailed, StatusSkipped:
		return false
	case StatusBidPlaced:
		if !now.Before(a.EndTime) {
			return false
		}
	}

	if a.LastRefresh == nil {
		return true
	}
	return now.Sub(*a.LastRefresh) > ttl
}

// Ended reports whether the auction deadline has passed.
func (a *Auction) Ended(now time.Time) bool {
	return !now.Before(a.EndTime)
}
