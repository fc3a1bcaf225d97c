// Package book keeps in-memory order books in 1/1000 fixed-point units.
package book

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/alanyoungcy/polytrader/internal/domain"
)

// Book1000 is one asset's book: price level -> size, both in 1/1000 units.
type Book1000 struct {
	mu      sync.RWMutex
	bids    map[int64]int64
	asks    map[int64]int64
	updated time.Time
}

// NewBook1000 creates an empty book.
func NewBook1000() *Book1000 {
	return &Book1000{
		bids: make(map[int64]int64),
		asks: make(map[int64]int64),
	}
}

// ApplySnapshot replaces both sides of the book.
func (b *Book1000) ApplySnapshot(bids, asks []domain.PriceLevel, ts time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.bids)
	clear(b.asks)
	for _, l := range bids {
		if l.Size1000 > 0 {
			b.bids[l.Price1000] = l.Size1000
		}
	}
	for _, l := range asks {
		if l.Size1000 > 0 {
			b.asks[l.Price1000] = l.Size1000
		}
	}
	b.updated = ts
}

// ApplyChange sets one level. BUY updates bids, SELL asks; size 0 removes
// the level.
func (b *Book1000) ApplyChange(side domain.OrderSide, price1000, size1000 int64, ts time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	levels := b.asks
	if side == domain.OrderSideBuy {
		levels = b.bids
	}
	if size1000 <= 0 {
		delete(levels, price1000)
	} else {
		levels[price1000] = size1000
	}
	b.updated = ts
}

// BestBid returns the highest bid.
func (b *Book1000) BestBid() (domain.PriceLevel, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return best(b.bids, func(p, q int64) bool { return p > q })
}

// BestAsk returns the lowest ask.
func (b *Book1000) BestAsk() (domain.PriceLevel, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return best(b.asks, func(p, q int64) bool { return p < q })
}

// Mid returns the midpoint of best bid and ask, rounded down.
func (b *Book1000) Mid() (int64, bool) {
	bid, ok := b.BestBid()
	if !ok {
		return 0, false
	}
	ask, ok := b.BestAsk()
	if !ok {
		return 0, false
	}
	return (bid.Price1000 + ask.Price1000) / 2, true
}

// Bids returns up to depth levels, best first. depth <= 0 returns all.
func (b *Book1000) Bids(depth int) []domain.PriceLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return sorted(b.bids, depth, func(x, y domain.PriceLevel) int { return cmp.Compare(y.Price1000, x.Price1000) })
}

// Asks returns up to depth levels, best first. depth <= 0 returns all.
func (b *Book1000) Asks(depth int) []domain.PriceLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return sorted(b.asks, depth, func(x, y domain.PriceLevel) int { return cmp.Compare(x.Price1000, y.Price1000) })
}

// UpdatedAt returns the timestamp of the last applied message.
func (b *Book1000) UpdatedAt() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.updated
}

func best(levels map[int64]int64, better func(p, q int64) bool) (domain.PriceLevel, bool) {
	var out domain.PriceLevel
	found := false
	for p, s := range levels {
		if !found || better(p, out.Price1000) {
			out = domain.PriceLevel{Price1000: p, Size1000: s}
			found = true
		}
	}
	return out, found
}

func sorted(levels map[int64]int64, depth int, order func(x, y domain.PriceLevel) int) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(levels))
	for p, s := range levels {
		out = append(out, domain.PriceLevel{Price1000: p, Size1000: s})
	}
	slices.SortFunc(out, order)
	if depth > 0 && len(out) > depth {
		out = out[:depth]
	}
	return out
}
