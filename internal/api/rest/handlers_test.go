package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/snipekit/snipekit/internal/domain/auction"
	"github.com/snipekit/snipekit/internal/domain/values"
	"github.com/snipekit/snipekit/internal/infrastructure/auth"
	"github.com/snipekit/snipekit/internal/infrastructure/config"
	"github.com/snipekit/snipekit/internal/infrastructure/marketplace"
	"github.com/snipekit/snipekit/internal/infrastructure/repository"
	"github.com/snipekit/snipekit/internal/service/sniper"
	"github.com/snipekit/snipekit/internal/testutil/mocks"
)

var apiTestNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type apiFixture struct {
	router   http.Handler
	auctions *mocks.AuctionRepository
	attempts *mocks.BidAttemptRepository
	market   *mocks.MarketClient
	prices   *mocks.PriceRefresher
	auth     auth.Service
}

type healthStub struct{ err error }

func (h healthStub) Ping(ctx context.Context) error { return h.err }

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	f := &apiFixture{
		auctions: new(mocks.AuctionRepository),
		attempts: new(mocks.BidAttemptRepository),
		market:   new(mocks.MarketClient),
		prices:   new(mocks.PriceRefresher),
	}
	clock := &auction.MockClock{CurrentTime: apiTestNow}
	f.auth = auth.NewService("test-secret", time.Hour, clock)

	svc := sniper.NewService(f.auctions, f.attempts, f.market, f.prices, clock, zap.NewNop())
	handler := NewHandler(svc, f.auth, "operator", "hunter2", healthStub{}, zap.NewNop())

	security := config.SecurityConfig{
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 1000, BurstSize: 1000},
	}
	f.router = newRouter(security, handler, f.auth, prometheus.NewRegistry(), zap.NewNop())
	return f
}

func (f *apiFixture) bearer(t *testing.T) string {
	t.Helper()
	token, err := f.auth.GenerateToken("operator")
	require.NoError(t, err)
	return "Bearer " + token
}

func (f *apiFixture) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestAuthIssuesToken(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/auth", "",
		`{"username":"operator","password":"hunter2"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)

	claims, err := f.auth.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "operator", claims.Subject)
}

func TestAuthRejectsBadCredentials(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/auth",
		"", `{"username":"operator","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSniperRoutesRequireToken(t *testing.T) {
	f := newAPIFixture(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/sniper/list"},
		{http.MethodPost, "/sniper/add"},
		{http.MethodGet, "/sniper/1/status"},
		{http.MethodDelete, "/sniper/1"},
		{http.MethodGet, "/sniper/1/logs"},
	}

	for _, p := range paths {
		t.Run(p.method+" "+p.path, func(t *testing.T) {
			rec := f.do(t, p.method, p.path, "", "")
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestInvalidTokenRejected(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/sniper/list", "Bearer garbage", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAddAuction(t *testing.T) {
	f := newAPIFixture(t)

	f.auctions.On("GetActiveByListingID", mock.Anything, "111").
		Return(nil, repository.ErrNotFound)
	f.market.On("GetItem", mock.Anything, "111").Return(&marketplace.ItemDetails{
		ListingID:    "111",
		Title:        "Vintage Camera",
		CurrentPrice: values.MustNewMoneyFromFloat(10, "USD"),
		EndTime:      apiTestNow.Add(time.Hour),
		ListingType:  marketplace.ListingTypeAuction,
	}, nil)
	f.auctions.On("Create", mock.Anything, mock.Anything).
		Return(&auction.Auction{
			ID:           7,
			ListingID:    "111",
			CurrentPrice: values.MustNewMoneyFromFloat(10, "USD"),
			MaxBid:       values.MustNewMoneyFromFloat(50, "USD"),
			Status:       auction.StatusScheduled,
		}, nil)

	rec := f.do(t, http.MethodPost, "/sniper/add", f.bearer(t),
		`{"listing_id":"111","max_bid":"50.00"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	var created auction.Auction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, int64(7), created.ID)
}

func TestAddAuctionDuplicateConflict(t *testing.T) {
	f := newAPIFixture(t)

	f.auctions.On("GetActiveByListingID", mock.Anything, "111").
		Return(&auction.Auction{ID: 1}, nil)

	rec := f.do(t, http.MethodPost, "/sniper/add", f.bearer(t),
		`{"listing_id":"111","max_bid":"50.00"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Auction already exists")
}

func TestAddAuctionMalformedBody(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/sniper/add", f.bearer(t), `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBulkAdd(t *testing.T) {
	f := newAPIFixture(t)

	f.auctions.On("GetActiveByListingID", mock.Anything, "111").
		Return(&auction.Auction{ID: 1}, nil)
	f.auctions.On("GetActiveByListingID", mock.Anything, "222").
		Return(nil, repository.ErrNotFound)
	f.market.On("GetItem", mock.Anything, "222").Return(&marketplace.ItemDetails{
		ListingID:    "222",
		CurrentPrice: values.MustNewMoneyFromFloat(10, "USD"),
		EndTime:      apiTestNow.Add(time.Hour),
		ListingType:  marketplace.ListingTypeAuction,
	}, nil)
	f.auctions.On("Create", mock.Anything, mock.Anything).
		Return(&auction.Auction{
			ID:           2,
			ListingID:    "222",
			CurrentPrice: values.MustNewMoneyFromFloat(10, "USD"),
			MaxBid:       values.MustNewMoneyFromFloat(50, "USD"),
		}, nil)

	rec := f.do(t, http.MethodPost, "/sniper/bulk", f.bearer(t),
		`{"items":[{"listing_id":"111","max_bid":50},{"listing_id":"222","max_bid":50}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp bulkResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	assert.False(t, resp.Results[0].Success)
	assert.Equal(t, "Auction already exists", resp.Results[0].Message)
	assert.True(t, resp.Results[1].Success)
}

func TestList(t *testing.T) {
	f := newAPIFixture(t)
	auctions := []*auction.Auction{
		{
			ID:           1,
			ListingID:    "111",
			CurrentPrice: values.MustNewMoneyFromFloat(10, "USD"),
			MaxBid:       values.MustNewMoneyFromFloat(50, "USD"),
			Status:       auction.StatusScheduled,
		},
		{
			ID:           2,
			ListingID:    "222",
			CurrentPrice: values.MustNewMoneyFromFloat(20, "USD"),
			MaxBid:       values.MustNewMoneyFromFloat(60, "USD"),
			Status:       auction.StatusBidPlaced,
		},
	}

	f.auctions.On("List", mock.Anything).Return(auctions, nil)
	f.prices.On("RefreshAllStale", mock.Anything, auctions).Return(auctions)

	rec := f.do(t, http.MethodGet, "/sniper/list", f.bearer(t), "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
}

func TestGetStatusInvalidID(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/sniper/abc/status", f.bearer(t), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetStatusNotFound(t *testing.T) {
	f := newAPIFixture(t)

	f.auctions.On("GetByID", mock.Anything, int64(9)).Return(nil, repository.ErrNotFound)

	rec := f.do(t, http.MethodGet, "/sniper/9/status", f.bearer(t), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancel(t *testing.T) {
	f := newAPIFixture(t)

	f.auctions.On("GetByID", mock.Anything, int64(1)).
		Return(&auction.Auction{ID: 1, Status: auction.StatusScheduled}, nil)
	f.auctions.On("TransitionStatus", mock.Anything, int64(1),
		auction.StatusScheduled, auction.StatusCancelled).Return(true, nil)

	rec := f.do(t, http.MethodDelete, "/sniper/1", f.bearer(t), "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), string(auction.StatusCancelled))
}

func TestGetLogsNullWithoutAttempt(t *testing.T) {
	f := newAPIFixture(t)

	f.auctions.On("GetByID", mock.Anything, int64(1)).
		Return(&auction.Auction{ID: 1}, nil)
	f.attempts.On("GetByAuctionID", mock.Anything, int64(1)).
		Return(nil, repository.ErrNotFound)

	rec := f.do(t, http.MethodGet, "/sniper/1/logs", f.bearer(t), "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp logsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.Attempt)
}

func TestHealthz(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestMetricsExposed(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	f := newAPIFixture(t)

	// Rebuild the router with a one-request budget.
	security := config.SecurityConfig{
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1},
	}
	clock := &auction.MockClock{CurrentTime: apiTestNow}
	svc := sniper.NewService(f.auctions, f.attempts, f.market, f.prices, clock, zap.NewNop())
	handler := NewHandler(svc, f.auth, "operator", "hunter2", healthStub{}, zap.NewNop())
	f.router = newRouter(security, handler, f.auth, prometheus.NewRegistry(), zap.NewNop())

	first := f.do(t, http.MethodGet, "/healthz", "", "")
	second := f.do(t, http.MethodGet, "/healthz", "", "")

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}
