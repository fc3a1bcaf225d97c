package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polytrader/internal/domain"
)

func TestJoinKey(t *testing.T) {
	assert.Equal(t, "lock:runner", joinKey("", "lock", "runner"))
	assert.Equal(t, "pt:bbo:123", joinKey("pt", "bbo", "123"))
	assert.Equal(t, "pt", joinKey("pt"))
}

func TestBBOEncoding(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := domain.BBO{
		AssetID:   "tok",
		Bid:       domain.PriceLevel{Price1000: 410, Size1000: 25_000},
		Ask:       domain.PriceLevel{Price1000: 430, Size1000: 7_000},
		UpdatedAt: ts,
	}
	vals := make(map[string]string)
	for k, v := range encodeBBO(in) {
		vals[k] = v.(string)
	}

	out, err := decodeBBO("tok", vals)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeBBOErrors(t *testing.T) {
	_, err := decodeBBO("tok", map[string]string{"bid_price": "1"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = decodeBBO("tok", map[string]string{
		"bid_price": "x", "bid_size": "1", "ask_price": "1", "ask_size": "1", "ts": "1",
	})
	assert.Error(t, err)
}

func TestHasPattern(t *testing.T) {
	assert.True(t, hasPattern("polytrader:*"))
	assert.False(t, hasPattern("polytrader:actions"))
}
