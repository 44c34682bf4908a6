package marketplace

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/snipekit/snipekit/internal/domain/auction"
	"github.com/snipekit/snipekit/internal/domain/values"
	"github.com/snipekit/snipekit/internal/infrastructure/config"
)

// fakeMarketplace is an httptest-backed marketplace with a working token
// endpoint and programmable item, bid, and bidding-outcome handlers.
type fakeMarketplace struct {
	server *httptest.Server
	mux    *http.ServeMux

	tokenRequests int
}

func newFakeMarketplace(t *testing.T) *fakeMarketplace {
	t.Helper()
	f := &fakeMarketplace{mux: http.NewServeMux()}

	f.mux.HandleFunc("/identity/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenRequests++
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"tok-abc","expires_in":7200}`)
	})

	f.server = httptest.NewServer(f.mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeMarketplace) newClient(t *testing.T) Client {
	t.Helper()
	return f.newClientWithMetrics(t, nil)
}

func (f *fakeMarketplace) newClientWithMetrics(t *testing.T, metrics *Metrics) Client {
	t.Helper()
	cfg := config.MarketplaceConfig{
		BaseURL:          f.server.URL,
		ClientID:         "client-id",
		ClientSecret:     "client-secret",
		UserRefreshToken: "refresh-tok",
		ReadTimeout:      5 * time.Second,
		BidTimeout:       5 * time.Second,
		TokenTimeout:     5 * time.Second,
	}
	creds := NewCredentialManager(cfg, auction.RealClock{}, zap.NewNop())
	return NewClient(cfg, creds, metrics, zap.NewNop())
}

const auctionItemJSON = `{
	"itemId": "v1|111|0",
	"title": "Vintage Camera",
	"itemWebUrl": "https://example.com/itm/111",
	"seller": {"username": "camera_store"},
	"currentBidPrice": {"value": "27.50", "currency": "USD"},
	"price": {"value": "999.00", "currency": "USD"},
	"itemEndDate": "2025-06-01T15:00:00.000Z",
	"buyingOptions": ["AUCTION"]
}`

func TestGetItemLegacyLookup(t *testing.T) {
	f := newFakeMarketplace(t)
	f.mux.HandleFunc("/buy/browse/v1/item/get_item_by_legacy_id", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "111", r.URL.Query().Get("legacy_item_id"))
		assert.Equal(t, "Bearer tok-abc", r.Header.Get("Authorization"))
		fmt.Fprint(w, auctionItemJSON)
	})

	details, err := f.newClient(t).GetItem(context.Background(), "111")
	require.NoError(t, err)

	assert.Equal(t, "111", details.ListingID)
	assert.Equal(t, "Vintage Camera", details.Title)
	assert.Equal(t, "camera_store", details.Seller)
	// currentBidPrice wins over the fixed-price field.
	assert.Equal(t, "27.50", details.CurrentPrice.StringFixed())
	assert.Equal(t, time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC), details.EndTime)
	assert.True(t, details.IsAuction())
}

func TestGetItemFallsBackToCanonicalID(t *testing.T) {
	f := newFakeMarketplace(t)
	f.mux.HandleFunc("/buy/browse/v1/item/get_item_by_legacy_id", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	f.mux.HandleFunc("/buy/browse/v1/item/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, auctionItemJSON)
	})

	details, err := f.newClient(t).GetItem(context.Background(), "v1|111|0")
	require.NoError(t, err)
	assert.Equal(t, "Vintage Camera", details.Title)
}

func TestGetItemNotFoundOnBothPaths(t *testing.T) {
	f := newFakeMarketplace(t)
	f.mux.HandleFunc("/buy/browse/v1/item/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := f.newClient(t).GetItem(context.Background(), "999")
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestGetItemRejectsFixedPriceListing(t *testing.T) {
	f := newFakeMarketplace(t)
	f.mux.HandleFunc("/buy/browse/v1/item/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"itemId": "v1|111|0",
			"title": "Fixed Price Item",
			"price": {"value": "10.00", "currency": "USD"},
			"itemEndDate": "2025-06-01T15:00:00.000Z",
			"buyingOptions": ["FIXED_PRICE"]
		}`)
	})

	_, err := f.newClient(t).GetItem(context.Background(), "111")
	assert.ErrorIs(t, err, ErrNotAuction)
}

func TestGetItemRateLimited(t *testing.T) {
	f := newFakeMarketplace(t)
	f.mux.HandleFunc("/buy/browse/v1/item/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := f.newClient(t).GetItem(context.Background(), "111")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestPlaceBidSuccess(t *testing.T) {
	f := newFakeMarketplace(t)
	f.mux.HandleFunc("/ws/api.dll", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "PlaceOffer", r.Header.Get("X-EBAY-API-CALL-NAME"))
		assert.Equal(t, "tok-abc", r.Header.Get("X-EBAY-API-IAF-TOKEN"))
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
			<PlaceOfferResponse xmlns="urn:ebay:apis:eBLBaseComponents">
				<Ack>Success</Ack>
			</PlaceOfferResponse>`)
	})

	err := f.newClient(t).PlaceBid(context.Background(), "111",
		values.MustNewMoneyFromFloat(50, "USD"))
	assert.NoError(t, err)
}

func TestPlaceBidWarningAckStillSucceeds(t *testing.T) {
	f := newFakeMarketplace(t)
	f.mux.HandleFunc("/ws/api.dll", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
			<PlaceOfferResponse xmlns="urn:ebay:apis:eBLBaseComponents">
				<Ack>Warning</Ack>
				<Errors>
					<ErrorCode>21917091</ErrorCode>
					<SeverityCode>Warning</SeverityCode>
				</Errors>
			</PlaceOfferResponse>`)
	})

	err := f.newClient(t).PlaceBid(context.Background(), "111",
		values.MustNewMoneyFromFloat(50, "USD"))
	assert.NoError(t, err)
}

func TestPlaceBidRejectionsMapToTaggedErrors(t *testing.T) {
	tests := []struct {
		code int
		kind BidErrorKind
	}{
		{10729, BidErrorItemEnded},
		{10734, BidErrorItemEnded},
		{10736, BidErrorTooLow},
		{10735, BidErrorTooHigh},
		{10733, BidErrorBlocked},
		{10730, BidErrorOther},
		{10731, BidErrorOther},
		{10732, BidErrorOther},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("code_%d", tt.code), func(t *testing.T) {
			f := newFakeMarketplace(t)
			f.mux.HandleFunc("/ws/api.dll", func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
					<PlaceOfferResponse xmlns="urn:ebay:apis:eBLBaseComponents">
						<Ack>Failure</Ack>
						<Errors>
							<ErrorCode>%d</ErrorCode>
							<LongMessage>rejected</LongMessage>
							<SeverityCode>Error</SeverityCode>
						</Errors>
					</PlaceOfferResponse>`, tt.code)
			})

			err := f.newClient(t).PlaceBid(context.Background(), "111",
				values.MustNewMoneyFromFloat(50, "USD"))

			var bidErr *BidError
			require.ErrorAs(t, err, &bidErr)
			assert.Equal(t, tt.kind, bidErr.Kind)
			assert.Equal(t, tt.code, bidErr.Code)
			assert.False(t, IsRetryable(err))
		})
	}
}

func TestPlaceBidServerErrorIsRetryable(t *testing.T) {
	f := newFakeMarketplace(t)
	f.mux.HandleFunc("/ws/api.dll", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	err := f.newClient(t).PlaceBid(context.Background(), "111",
		values.MustNewMoneyFromFloat(50, "USD"))

	var srvErr *ServerError
	require.ErrorAs(t, err, &srvErr)
	assert.Equal(t, http.StatusBadGateway, srvErr.StatusCode)
	assert.True(t, IsRetryable(err))
}

func TestGetBidOutcome(t *testing.T) {
	f := newFakeMarketplace(t)
	f.mux.HandleFunc("/buy/offer/v1_beta/bidding/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"auctionStatus": "ENDED",
			"highBidder": true,
			"currentPrice": {"value": "42.00", "currency": "USD"}
		}`)
	})

	outcome, err := f.newClient(t).GetBidOutcome(context.Background(), "111")
	require.NoError(t, err)

	assert.Equal(t, AuctionStatusEnded, outcome.AuctionStatus)
	assert.True(t, outcome.HighBidder)
	require.NotNil(t, outcome.CurrentPrice)
	assert.Equal(t, "42.00", outcome.CurrentPrice.StringFixed())
}

func TestGetBidOutcomeNoRecord(t *testing.T) {
	f := newFakeMarketplace(t)
	f.mux.HandleFunc("/buy/offer/v1_beta/bidding/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := f.newClient(t).GetBidOutcome(context.Background(), "111")
	assert.ErrorIs(t, err, ErrOutcomeUnknown)
}

func TestMetricsCountCalls(t *testing.T) {
	f := newFakeMarketplace(t)
	f.mux.HandleFunc("/buy/browse/v1/item/get_item_by_legacy_id", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, auctionItemJSON)
	})

	metrics := NewMetrics(prometheus.NewRegistry())
	_, err := f.newClientWithMetrics(t, metrics).GetItem(context.Background(), "111")
	require.NoError(t, err)

	counted := promtestutil.ToFloat64(metrics.CallsTotal.WithLabelValues("browse_item", "200"))
	assert.Equal(t, 1.0, counted)
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(context.DeadlineExceeded))
	assert.True(t, IsTimeout(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.False(t, IsTimeout(ErrRateLimited))
	assert.False(t, IsTimeout(nil))
}
