package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/snipekit/snipekit/internal/domain/values"
	"github.com/snipekit/snipekit/internal/infrastructure/config"
)

const (
	browseItemPath       = "/buy/browse/v1/item/"
	browseLegacyItemPath = "/buy/browse/v1/item/get_item_by_legacy_id"
	biddingPath          = "/buy/offer/v1_beta/bidding/"
	tradingAPIPath       = "/ws/api.dll"
)

// client is the production marketplace client. Item reads go through the
// Browse API with the application token; bid placement goes through the
// Trading API's PlaceOffer with the user token.
type client struct {
	cfg        config.MarketplaceConfig
	baseURL    string
	httpClient *http.Client
	creds      *CredentialManager
	metrics    *Metrics
	logger     *zap.Logger
}

// NewClient creates the marketplace client. metrics may be nil.
func NewClient(cfg config.MarketplaceConfig, creds *CredentialManager, metrics *Metrics, logger *zap.Logger) Client {
	return &client{
		cfg:        cfg,
		baseURL:    cfg.ResolveBaseURL(),
		httpClient: &http.Client{},
		creds:      creds,
		metrics:    metrics,
		logger:     logger,
	}
}

// do executes the request and records the call under the given endpoint label.
func (c *client) do(req *http.Request, endpoint string) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	c.metrics.record(endpoint, status, err)
	return resp, err
}

// browseItem mirrors the Browse API item payload.
type browseItem struct {
	ItemID  string `json:"itemId"`
	Title   string `json:"title"`
	ItemURL string `json:"itemWebUrl"`
	Seller  struct {
		Username string `json:"username"`
	} `json:"seller"`
	Price           *browsePrice `json:"price"`
	CurrentBidPrice *browsePrice `json:"currentBidPrice"`
	ItemEndDate     string       `json:"itemEndDate"`
	BuyingOptions   []string     `json:"buyingOptions"`
}

type browsePrice struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

func (p *browsePrice) toMoney() (values.Money, error) {
	amount, err := decimal.NewFromString(p.Value)
	if err != nil {
		return values.Money{}, fmt.Errorf("invalid price value %q: %w", p.Value, err)
	}
	return values.NewMoney(amount, p.Currency)
}

func (c *client) GetItem(ctx context.Context, listingID string) (*ItemDetails, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReadTimeout)
	defer cancel()

	// Primary path: legacy-id lookup. Canonical-id lookup on 404.
	item, err := c.fetchBrowseItem(ctx,
		c.baseURL+browseLegacyItemPath+"?legacy_item_id="+url.QueryEscape(listingID))
	if err == ErrItemNotFound {
		item, err = c.fetchBrowseItem(ctx,
			c.baseURL+browseItemPath+url.PathEscape(listingID))
	}
	if err != nil {
		return nil, err
	}

	details := &ItemDetails{
		ListingID:  listingID,
		ListingURL: item.ItemURL,
		Title:      item.Title,
		Seller:     item.Seller.Username,
	}

	for _, opt := range item.BuyingOptions {
		if opt == ListingTypeAuction {
			details.ListingType = ListingTypeAuction
			break
		}
	}
	if details.ListingType != ListingTypeAuction {
		return nil, ErrNotAuction
	}

	// Auctions report the live price in currentBidPrice; price is the
	// fixed-price fallback.
	priceField := item.CurrentBidPrice
	if priceField == nil {
		priceField = item.Price
	}
	if priceField == nil {
		return nil, fmt.Errorf("listing %s has no price information", listingID)
	}
	details.CurrentPrice, err = priceField.toMoney()
	if err != nil {
		return nil, err
	}

	if item.ItemEndDate == "" {
		return nil, fmt.Errorf("listing %s has no end date", listingID)
	}
	endTime, err := time.Parse(time.RFC3339, item.ItemEndDate)
	if err != nil {
		return nil, fmt.Errorf("invalid end date %q: %w", item.ItemEndDate, err)
	}
	details.EndTime = endTime.UTC()

	return details, nil
}

func (c *client) fetchBrowseItem(ctx context.Context, rawURL string) (*browseItem, error) {
	token, err := c.creds.AppToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("obtaining application token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building item request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req, "browse_item")
	if err != nil {
		return nil, fmt.Errorf("item request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	var item browseItem
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&item); err != nil {
		return nil, fmt.Errorf("decoding item response: %w", err)
	}
	return &item, nil
}

// placeOfferRequest is the Trading API PlaceOffer payload.
type placeOfferRequest struct {
	XMLName     xml.Name `xml:"urn:ebay:apis:eBLBaseComponents PlaceOfferRequest"`
	ItemID      string   `xml:"ItemID"`
	MaxBid      string   `xml:"Offer>MaxBid"`
	Quantity    int      `xml:"Offer>Quantity"`
	Action      string   `xml:"Offer>Action"`
	EndUserIP   string   `xml:"EndUserIP,omitempty"`
	ErrorLang   string   `xml:"ErrorLanguage,omitempty"`
	WarningMode string   `xml:"WarningLevel,omitempty"`
}

type placeOfferResponse struct {
	XMLName xml.Name          `xml:"PlaceOfferResponse"`
	Ack     string            `xml:"Ack"`
	Errors  []placeOfferError `xml:"Errors"`
}

type placeOfferError struct {
	Code     int    `xml:"ErrorCode"`
	Short    string `xml:"ShortMessage"`
	Long     string `xml:"LongMessage"`
	Severity string `xml:"SeverityCode"`
}

func (c *client) PlaceBid(ctx context.Context, listingID string, amount values.Money) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.BidTimeout)
	defer cancel()

	token, err := c.creds.UserToken(ctx)
	if err != nil {
		return fmt.Errorf("obtaining user token: %w", err)
	}

	payload, err := xml.Marshal(placeOfferRequest{
		ItemID:   listingID,
		MaxBid:   amount.StringFixed(),
		Quantity: 1,
		Action:   "Bid",
	})
	if err != nil {
		return fmt.Errorf("encoding bid request: %w", err)
	}
	body := append([]byte(xml.Header), payload...)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+tradingAPIPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building bid request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml")
	req.Header.Set("X-EBAY-API-CALL-NAME", "PlaceOffer")
	req.Header.Set("X-EBAY-API-COMPATIBILITY-LEVEL", "1149")
	req.Header.Set("X-EBAY-API-SITEID", "0")
	req.Header.Set("X-EBAY-API-IAF-TOKEN", token)

	resp, err := c.do(req, "place_offer")
	if err != nil {
		return fmt.Errorf("bid request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp.StatusCode); err != nil {
		return err
	}

	var offerResp placeOfferResponse
	if err := xml.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&offerResp); err != nil {
		return fmt.Errorf("decoding bid response: %w", err)
	}

	// Warnings still carry Ack=Warning with a successful offer; only a
	// failure Ack with error entries rejects the bid.
	if offerResp.Ack == "Success" || offerResp.Ack == "Warning" {
		return nil
	}

	for _, e := range offerResp.Errors {
		if e.Severity == "Error" {
			return newBidError(e.Code, e.Long)
		}
	}
	return fmt.Errorf("bid rejected with Ack=%s and no error detail", offerResp.Ack)
}

// biddingResponse mirrors the bidding-outcome payload.
type biddingResponse struct {
	AuctionStatus string       `json:"auctionStatus"`
	HighBidder    bool         `json:"highBidder"`
	CurrentPrice  *browsePrice `json:"currentPrice"`
}

func (c *client) GetBidOutcome(ctx context.Context, listingID string) (*BidOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReadTimeout)
	defer cancel()

	token, err := c.creds.UserToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("obtaining user token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+biddingPath+url.PathEscape(listingID), nil)
	if err != nil {
		return nil, fmt.Errorf("building outcome request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req, "bid_outcome")
	if err != nil {
		return nil, fmt.Errorf("outcome request failed: %w", err)
	}
	defer resp.Body.Close()

	// 404 means the marketplace has no bidding record for us.
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrOutcomeUnknown
	}
	if err := checkStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	var br biddingResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&br); err != nil {
		return nil, fmt.Errorf("decoding outcome response: %w", err)
	}

	outcome := &BidOutcome{
		AuctionStatus: br.AuctionStatus,
		HighBidder:    br.HighBidder,
	}
	if br.CurrentPrice != nil {
		price, err := br.CurrentPrice.toMoney()
		if err != nil {
			return nil, err
		}
		outcome.CurrentPrice = &price
	}
	return outcome, nil
}

// checkStatus maps HTTP status codes to the package's typed errors.
func checkStatus(status int) error {
	switch {
	case status == http.StatusOK || status == http.StatusCreated:
		return nil
	case status == http.StatusNotFound:
		return ErrItemNotFound
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status >= 500:
		return &ServerError{StatusCode: status}
	default:
		return fmt.Errorf("marketplace returned HTTP %d", status)
	}
}
