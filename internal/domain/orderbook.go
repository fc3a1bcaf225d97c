package domain

import "time"

// PriceLevel is a single price+size entry in an orderbook, in 1/1000 units.
type PriceLevel struct {
	Price1000 int64
	Size1000  int64
}

// OrderbookSnapshot is a full snapshot of bids and asks for an asset.
type OrderbookSnapshot struct {
	AssetID   string
	Market    string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Timestamp time.Time
}

// PriceChange is an incremental orderbook level update.
type PriceChange struct {
	AssetID   string
	Side      OrderSide // BUY updates bids, SELL updates asks
	Price1000 int64
	Size1000  int64 // 0 means remove level
	Timestamp time.Time
}

// BBO is the top of one asset's book. A zero level means that side is empty.
type BBO struct {
	AssetID   string     `json:"asset_id"`
	Bid       PriceLevel `json:"bid"`
	Ask       PriceLevel `json:"ask"`
	UpdatedAt time.Time  `json:"updated_at"`
}
