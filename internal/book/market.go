package book

import (
	"sync"

	"github.com/alanyoungcy/polytrader/internal/domain"
)

// MarketOrderBook holds one Book1000 per asset id.
type MarketOrderBook struct {
	mu    sync.RWMutex
	books map[string]*Book1000
}

// NewMarketOrderBook creates an empty collection.
func NewMarketOrderBook() *MarketOrderBook {
	return &MarketOrderBook{books: make(map[string]*Book1000)}
}

func (m *MarketOrderBook) bookFor(assetID string) *Book1000 {
	m.mu.RLock()
	b, ok := m.books[assetID]
	m.mu.RUnlock()
	if ok {
		return b
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok = m.books[assetID]; !ok {
		b = NewBook1000()
		m.books[assetID] = b
	}
	return b
}

// ApplySnapshot replaces the book of snap.AssetID.
func (m *MarketOrderBook) ApplySnapshot(snap domain.OrderbookSnapshot) {
	m.bookFor(snap.AssetID).ApplySnapshot(snap.Bids, snap.Asks, snap.Timestamp)
}

// ApplyPriceChange updates one level of change.AssetID.
func (m *MarketOrderBook) ApplyPriceChange(change domain.PriceChange) {
	m.bookFor(change.AssetID).ApplyChange(change.Side, change.Price1000, change.Size1000, change.Timestamp)
}

// Book returns the book of assetID, if any message was applied for it.
func (m *MarketOrderBook) Book(assetID string) (*Book1000, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[assetID]
	return b, ok
}

// BestBid returns the best bid of assetID.
func (m *MarketOrderBook) BestBid(assetID string) (domain.PriceLevel, bool) {
	b, ok := m.Book(assetID)
	if !ok {
		return domain.PriceLevel{}, false
	}
	return b.BestBid()
}

// BestAsk returns the best ask of assetID.
func (m *MarketOrderBook) BestAsk(assetID string) (domain.PriceLevel, bool) {
	b, ok := m.Book(assetID)
	if !ok {
		return domain.PriceLevel{}, false
	}
	return b.BestAsk()
}

// Assets lists the asset ids with a book.
func (m *MarketOrderBook) Assets() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.books))
	for id := range m.books {
		out = append(out, id)
	}
	return out
}
