package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/polytrader/internal/domain"
)

// BBOCache implements domain.BBOCache with one hash per asset at
// "bbo:{assetID}" holding 1/1000 prices and sizes and a nanosecond timestamp.
type BBOCache struct {
	c   *Client
	ttl time.Duration
}

// NewBBOCache creates a BBOCache. Entries expire after ttl when it is
// positive, so a dead feed does not leave stale quotes behind.
func NewBBOCache(c *Client, ttl time.Duration) *BBOCache {
	return &BBOCache{c: c, ttl: ttl}
}

// SetBBO stores bbo.
func (bc *BBOCache) SetBBO(ctx context.Context, bbo domain.BBO) error {
	key := bc.c.key("bbo", bbo.AssetID)
	pipe := bc.c.rdb.TxPipeline()
	pipe.HSet(ctx, key, encodeBBO(bbo))
	if bc.ttl > 0 {
		pipe.Expire(ctx, key, bc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set bbo %s: %w", bbo.AssetID, err)
	}
	return nil
}

// GetBBO returns the cached quote of assetID or domain.ErrNotFound.
func (bc *BBOCache) GetBBO(ctx context.Context, assetID string) (domain.BBO, error) {
	vals, err := bc.c.rdb.HGetAll(ctx, bc.c.key("bbo", assetID)).Result()
	if err != nil {
		return domain.BBO{}, fmt.Errorf("redis: get bbo %s: %w", assetID, err)
	}
	if len(vals) == 0 {
		return domain.BBO{}, fmt.Errorf("redis: get bbo %s: %w", assetID, domain.ErrNotFound)
	}
	bbo, err := decodeBBO(assetID, vals)
	if err != nil {
		return domain.BBO{}, fmt.Errorf("redis: get bbo %s: %w", assetID, err)
	}
	return bbo, nil
}

var bboFields = [...]string{"bid_price", "bid_size", "ask_price", "ask_size", "ts"}

func encodeBBO(b domain.BBO) map[string]any {
	return map[string]any{
		"bid_price": strconv.FormatInt(b.Bid.Price1000, 10),
		"bid_size":  strconv.FormatInt(b.Bid.Size1000, 10),
		"ask_price": strconv.FormatInt(b.Ask.Price1000, 10),
		"ask_size":  strconv.FormatInt(b.Ask.Size1000, 10),
		"ts":        strconv.FormatInt(b.UpdatedAt.UnixNano(), 10),
	}
}

func decodeBBO(assetID string, vals map[string]string) (domain.BBO, error) {
	var n [len(bboFields)]int64
	for i, f := range bboFields {
		s, ok := vals[f]
		if !ok {
			return domain.BBO{}, fmt.Errorf("missing field %q: %w", f, domain.ErrNotFound)
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return domain.BBO{}, fmt.Errorf("parse %s: %w", f, err)
		}
		n[i] = v
	}
	return domain.BBO{
		AssetID:   assetID,
		Bid:       domain.PriceLevel{Price1000: n[0], Size1000: n[1]},
		Ask:       domain.PriceLevel{Price1000: n[2], Size1000: n[3]},
		UpdatedAt: time.Unix(0, n[4]).UTC(),
	}, nil
}

var _ domain.BBOCache = (*BBOCache)(nil)
