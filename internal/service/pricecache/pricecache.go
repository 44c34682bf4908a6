// Package pricecache enforces the refresh-on-read policy for cached auction
// prices: stale rows are refreshed inline through the coalescer, and upstream
// rate limiting degrades to stale-while-rate-limited instead of failing the
// read.
package pricecache

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/snipekit/snipekit/internal/domain/auction"
	"github.com/snipekit/snipekit/internal/infrastructure/marketplace"
	"github.com/snipekit/snipekit/internal/infrastructure/repository"
	"github.com/snipekit/snipekit/internal/service/coalesce"
)

// Cache applies the TTL-based refresh policy over the durable auction rows.
type Cache struct {
	repo        repository.AuctionRepository
	market      marketplace.Client
	coalescer   *coalesce.Coalescer
	clock       auction.Clock
	ttl         time.Duration
	parallelism int
	logger      *zap.Logger
}

// New creates the price cache.
func New(
	repo repository.AuctionRepository,
	market marketplace.Client,
	coalescer *coalesce.Coalescer,
	clock auction.Clock,
	ttl time.Duration,
	parallelism int,
	logger *zap.Logger,
) *Cache {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Cache{
		repo:        repo,
		market:      market,
		coalescer:   coalescer,
		clock:       clock,
		ttl:         ttl,
		parallelism: parallelism,
		logger:      logger,
	}
}

// RefreshIfStale refreshes a single auction's price when the row is stale.
// Reads are always best-effort: on any upstream failure the cached row is
// returned unchanged. A 429 leaves last_refresh_utc untouched so the next
// read retries.
func (c *Cache) RefreshIfStale(ctx context.Context, a *auction.Auction) *auction.Auction {
	if !a.NeedsRefresh(c.clock.Now(), c.ttl) {
		return a
	}
	return c.refresh(ctx, a)
}

// RefreshAllStale refreshes every stale row in bounded parallel. Each worker
// runs with its own session; the coalescer guarantees one marketplace call
// per listing even across concurrent list readers. The input order is
// preserved.
func (c *Cache) RefreshAllStale(ctx context.Context, auctions []*auction.Auction) []*auction.Auction {
	now := c.clock.Now()
	out := make([]*auction.Auction, len(auctions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)

	for i, a := range auctions {
		if !a.NeedsRefresh(now, c.ttl) {
			out[i] = a
			continue
		}
		i, a := i, a
		g.Go(func() error {
			out[i] = c.refresh(gctx, a)
			return nil
		})
	}

	// Workers never return errors; reads degrade to cached rows.
	_ = g.Wait()
	return out
}

// ForceRefresh refreshes regardless of TTL and surfaces the upstream error.
// The pre-bid guard uses this: it needs the live price and decides itself
// what an upstream failure means.
func (c *Cache) ForceRefresh(ctx context.Context, a *auction.Auction) (*auction.Auction, error) {
	updated, err := c.refreshErr(ctx, a)
	if err != nil {
		return a, err
	}
	return updated, nil
}

// refresh performs the coalesced fetch and write-through for one auction,
// degrading to the cached row on any failure.
func (c *Cache) refresh(ctx context.Context, a *auction.Auction) *auction.Auction {
	updated, err := c.refreshErr(ctx, a)
	if err != nil {
		if errors.Is(err, marketplace.ErrRateLimited) {
			// Stale-while-rate-limited: return the cached row and do
			// not advance the freshness timestamp.
			c.logger.Warn("rate limited refreshing price, serving cached value",
				zap.Int64("auction_id", a.ID),
				zap.String("listing_id", a.ListingID))
			return a
		}
		c.logger.Error("failed to refresh price, serving cached value",
			zap.Int64("auction_id", a.ID),
			zap.String("listing_id", a.ListingID),
			zap.Error(err))
		return a
	}
	return updated
}

func (c *Cache) refreshErr(ctx context.Context, a *auction.Auction) (*auction.Auction, error) {
	v, err := c.coalescer.GetOrExecute(a.ListingID, func() (interface{}, error) {
		details, err := c.market.GetItem(ctx, a.ListingID)
		if err != nil {
			return nil, err
		}

		refreshedAt := c.clock.Now()
		if err := c.repo.UpdatePrice(ctx, a.ID, details.CurrentPrice,
			details.ListingURL, details.Title, details.Seller,
			details.EndTime, refreshedAt); err != nil {
			return nil, err
		}
		return &refreshed{details: details, at: refreshedAt}, nil
	})
	if err != nil {
		return nil, err
	}

	r := v.(*refreshed)
	updated := *a
	updated.CurrentPrice = r.details.CurrentPrice
	updated.ListingURL = r.details.ListingURL
	updated.ItemTitle = r.details.Title
	if r.details.Seller != "" {
		updated.Seller = r.details.Seller
	}
	updated.EndTime = r.details.EndTime
	updated.LastRefresh = &r.at
	return &updated, nil
}

type refreshed struct {
	details *marketplace.ItemDetails
	at      time.Time
}
