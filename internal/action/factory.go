package action

import (
	"math"

	"github.com/alanyoungcy/polytrader/internal/domain"
)

// Scale1000 converts a display price or size to 1/1000 units, rounding half
// away from zero.
func Scale1000(v float64) int64 {
	return int64(math.Round(v * 1000))
}

// Long builds a GTC LONG order on a two-outcome market.
func Long(mainAssetID, counterAssetID string, mainPrice1000, size1000 int64) (*PlaceBoolMarketOrder, error) {
	return NewPlaceBoolMarketOrder(PlaceBoolMarketOrderParams{
		MainAssetID:    mainAssetID,
		CounterAssetID: counterAssetID,
		MainPrice1000:  mainPrice1000,
		Size1000:       size1000,
		BoolSide:       domain.BoolSideLong,
		OrderType:      domain.OrderTypeGTC,
	})
}

// Short builds a GTC SHORT order on a two-outcome market. mainPrice1000 is
// still quoted on the main asset.
func Short(mainAssetID, counterAssetID string, mainPrice1000, size1000 int64) (*PlaceBoolMarketOrder, error) {
	return NewPlaceBoolMarketOrder(PlaceBoolMarketOrderParams{
		MainAssetID:    mainAssetID,
		CounterAssetID: counterAssetID,
		MainPrice1000:  mainPrice1000,
		Size1000:       size1000,
		BoolSide:       domain.BoolSideShort,
		OrderType:      domain.OrderTypeGTC,
	})
}

// Buy builds a GTC buy order on a single token.
func Buy(tokenID string, price1000, size1000 int64) (*PlaceDirectOrder, error) {
	return NewPlaceDirectOrder(PlaceDirectOrderParams{
		TokenID:   tokenID,
		Price1000: price1000,
		Size1000:  size1000,
		Side:      domain.OrderSideBuy,
		OrderType: domain.OrderTypeGTC,
	})
}

// Sell builds a GTC sell order on a single token.
func Sell(tokenID string, price1000, size1000 int64) (*PlaceDirectOrder, error) {
	return NewPlaceDirectOrder(PlaceDirectOrderParams{
		TokenID:   tokenID,
		Price1000: price1000,
		Size1000:  size1000,
		Side:      domain.OrderSideSell,
		OrderType: domain.OrderTypeGTC,
	})
}
