package marketplace

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors for distinguished upstream conditions.
var (
	// ErrRateLimited maps HTTP 429. Reads fall back to cached data; bid
	// attempts may retry inside the window.
	ErrRateLimited = errors.New("marketplace rate limited")

	// ErrItemNotFound maps HTTP 404 on item lookups after the canonical
	// fallback has also missed.
	ErrItemNotFound = errors.New("listing not found")

	// ErrNotAuction marks a listing whose type cannot be bid on.
	ErrNotAuction = errors.New("listing is not an auction")

	// ErrOutcomeUnknown marks a bidding-outcome lookup the marketplace has
	// no record for. The outcome stays Pending.
	ErrOutcomeUnknown = errors.New("no bidding record for listing")
)

// ServerError is a 5xx from the marketplace, retryable inside the bid window.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("marketplace server error: HTTP %d", e.StatusCode)
}

// BidErrorKind tags the known marketplace bid rejection classes.
type BidErrorKind int

const (
	BidErrorOther BidErrorKind = iota
	BidErrorItemEnded
	BidErrorTooLow
	BidErrorTooHigh
	BidErrorBlocked
)

func (k BidErrorKind) String() string {
	switch k {
	case BidErrorItemEnded:
		return "item_ended"
	case BidErrorTooLow:
		return "bid_too_low"
	case BidErrorTooHigh:
		return "bid_too_high"
	case BidErrorBlocked:
		return "bidder_blocked"
	default:
		return "other"
	}
}

// BidError is a structured bid rejection decoded from the marketplace reply.
// All bid errors are permanent; retryability is decided on the error type,
// never on message text.
type BidError struct {
	Kind    BidErrorKind
	Code    int
	Message string
}

func (e *BidError) Error() string {
	return fmt.Sprintf("bid rejected (%s, code %d): %s", e.Kind, e.Code, e.Message)
}

// Known marketplace error codes and their human-readable messages.
var bidErrorMessages = map[int]string{
	10729: "Item not found or auction has ended",
	10730: "Bid retraction is not allowed",
	10731: "You cannot bid on your own item",
	10732: "Bidding on behalf of another user is not allowed",
	10733: "You are blocked from bidding on this seller's items",
	10734: "Item not found or auction has ended",
	10735: "Bid exceeds the allowed maximum",
	10736: "Bid is below the minimum increment",
}

func newBidError(code int, rawMessage string) *BidError {
	kind := BidErrorOther
	switch code {
	case 10729, 10734:
		kind = BidErrorItemEnded
	case 10736:
		kind = BidErrorTooLow
	case 10735:
		kind = BidErrorTooHigh
	case 10733:
		kind = BidErrorBlocked
	}

	msg := bidErrorMessages[code]
	if msg == "" {
		msg = rawMessage
	}
	return &BidError{Kind: kind, Code: code, Message: msg}
}

// IsTimeout reports whether the error is a call deadline expiry. Timeouts
// are always retryable on the bid path.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsRetryable reports whether a bid-path error may be retried while attempts
// remain: timeouts, rate limiting, and server errors. Decoded bid rejections
// are permanent.
func IsRetryable(err error) bool {
	if IsTimeout(err) {
		return true
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var srvErr *ServerError
	return errors.As(err, &srvErr)
}
