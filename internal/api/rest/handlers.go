package rest

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/snipekit/snipekit/internal/domain/auction"
	domainerrors "github.com/snipekit/snipekit/internal/domain/errors"
	"github.com/snipekit/snipekit/internal/infrastructure/auth"
	"github.com/snipekit/snipekit/internal/service/sniper"
)

// Handler carries the dependencies of the public API endpoints.
type Handler struct {
	sniper   *sniper.Service
	auth     auth.Service
	username string
	password string
	health   HealthChecker
	logger   *zap.Logger
}

// HealthChecker is what the health endpoint probes.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// NewHandler creates the API handler set.
func NewHandler(
	sniperSvc *sniper.Service,
	authSvc auth.Service,
	username, password string,
	health HealthChecker,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		sniper:   sniperSvc,
		auth:     authSvc,
		username: username,
		password: password,
		health:   health,
		logger:   logger,
	}
}

type authRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string `json:"token"`
}

// Authenticate issues a bearer token for the configured API credentials.
func (h *Handler) Authenticate(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, domainerrors.NewValidationError("INVALID_BODY", "Invalid request body"))
		return
	}

	if h.username == "" ||
		subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.username)) != 1 ||
		subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.password)) != 1 {
		writeError(w, h.logger, domainerrors.NewUnauthorizedError("Invalid credentials"))
		return
	}

	token, err := h.auth.GenerateToken(req.Username)
	if err != nil {
		writeError(w, h.logger, domainerrors.NewInternalError("failed to issue token").WithCause(err))
		return
	}

	writeJSON(w, http.StatusOK, authResponse{Token: token})
}

type addRequest struct {
	ListingID string      `json:"listing_id"`
	MaxBid    json.Number `json:"max_bid"`
}

// AddAuction schedules a snipe for one listing.
func (h *Handler) AddAuction(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, domainerrors.NewValidationError("INVALID_BODY", "Invalid request body"))
		return
	}

	maxBid, err := parseAmount(req.MaxBid)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	a, err := h.sniper.AddAuction(r.Context(), req.ListingID, maxBid)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, a)
}

type bulkRequest struct {
	Items []addRequest `json:"items"`
}

type bulkResponse struct {
	Results []sniper.BulkResult `json:"results"`
}

// BulkAdd schedules several listings; per-item failures never abort the rest.
func (h *Handler) BulkAdd(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, domainerrors.NewValidationError("INVALID_BODY", "Invalid request body"))
		return
	}
	if len(req.Items) == 0 {
		writeError(w, h.logger, domainerrors.NewValidationError("EMPTY_BULK", "At least one item is required"))
		return
	}

	items := make([]sniper.BulkItem, len(req.Items))
	for i, item := range req.Items {
		maxBid, err := parseAmount(item.MaxBid)
		if err != nil {
			// Leave the amount zero; the service rejects it with the
			// per-item message so the result stays aligned.
			maxBid = decimal.Zero
		}
		items[i] = sniper.BulkItem{ListingID: item.ListingID, MaxBid: maxBid}
	}

	writeJSON(w, http.StatusOK, bulkResponse{Results: h.sniper.BulkAdd(r.Context(), items)})
}

type listResponse struct {
	Auctions []*auction.Auction `json:"auctions"`
	Count    int                `json:"count"`
}

// List returns every tracked auction with fresh prices.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	auctions, err := h.sniper.List(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Auctions: auctions, Count: len(auctions)})
}

// GetStatus returns one auction with a fresh price.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := auctionID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	a, err := h.sniper.GetStatus(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// Cancel withdraws a scheduled snipe.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := auctionID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	a, err := h.sniper.Cancel(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type logsResponse struct {
	AuctionID int64               `json:"auction_id"`
	Attempt   *auction.BidAttempt `json:"attempt"`
}

// GetLogs returns the bid attempt for an auction, null when no bid has run.
func (h *Handler) GetLogs(w http.ResponseWriter, r *http.Request) {
	id, err := auctionID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	attempt, err := h.sniper.GetLogs(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, logsResponse{AuctionID: id, Attempt: attempt})
}

// Health reports process and database liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.health.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"reason": "database unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func auctionID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, domainerrors.NewValidationError("INVALID_ID", "Auction ID must be an integer")
	}
	return id, nil
}

func parseAmount(raw json.Number) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, domainerrors.NewValidationError("MISSING_MAX_BID", "Max bid is required")
	}
	d, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Zero, domainerrors.NewValidationError("INVALID_MAX_BID", "Max bid must be a decimal number")
	}
	return d, nil
}
