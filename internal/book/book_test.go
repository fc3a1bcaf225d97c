package book

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polytrader/internal/domain"
)

func TestBookSnapshotAndChanges(t *testing.T) {
	b := NewBook1000()
	_, ok := b.BestBid()
	assert.False(t, ok)

	now := time.Now()
	b.ApplySnapshot(
		[]domain.PriceLevel{{Price1000: 450, Size1000: 100_000}, {Price1000: 470, Size1000: 5_000}, {Price1000: 460, Size1000: 0}},
		[]domain.PriceLevel{{Price1000: 520, Size1000: 7_000}, {Price1000: 500, Size1000: 1_000}},
		now,
	)

	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, domain.PriceLevel{Price1000: 470, Size1000: 5_000}, bid)
	ask, ok := b.BestAsk()
	require.True(t, ok)
	assert.Equal(t, int64(500), ask.Price1000)
	mid, ok := b.Mid()
	require.True(t, ok)
	assert.Equal(t, int64(485), mid)
	assert.Len(t, b.Bids(0), 2, "zero-size levels are skipped")

	b.ApplyChange(domain.OrderSideBuy, 470, 0, now.Add(time.Second))
	b.ApplyChange(domain.OrderSideBuy, 480, 2_000, now.Add(time.Second))
	b.ApplyChange(domain.OrderSideSell, 490, 3_000, now.Add(time.Second))

	assert.Equal(t, []domain.PriceLevel{{Price1000: 480, Size1000: 2_000}, {Price1000: 450, Size1000: 100_000}}, b.Bids(0))
	assert.Equal(t, []domain.PriceLevel{{Price1000: 490, Size1000: 3_000}}, b.Asks(1))
	assert.Equal(t, now.Add(time.Second), b.UpdatedAt())
}

func TestMidNeedsBothSides(t *testing.T) {
	b := NewBook1000()
	b.ApplyChange(domain.OrderSideBuy, 400, 1_000, time.Now())
	_, ok := b.Mid()
	assert.False(t, ok)
}

func TestMarketOrderBook(t *testing.T) {
	m := NewMarketOrderBook()
	_, ok := m.BestBid("yes")
	assert.False(t, ok)

	m.ApplySnapshot(domain.OrderbookSnapshot{
		AssetID: "yes",
		Bids:    []domain.PriceLevel{{Price1000: 300, Size1000: 1_000}},
		Asks:    []domain.PriceLevel{{Price1000: 320, Size1000: 1_000}},
	})
	m.ApplyPriceChange(domain.PriceChange{AssetID: "no", Side: domain.OrderSideSell, Price1000: 700, Size1000: 4_000})

	bid, ok := m.BestBid("yes")
	require.True(t, ok)
	assert.Equal(t, int64(300), bid.Price1000)
	ask, ok := m.BestAsk("no")
	require.True(t, ok)
	assert.Equal(t, int64(700), ask.Price1000)
	assert.ElementsMatch(t, []string{"yes", "no"}, m.Assets())
}
