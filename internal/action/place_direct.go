package action

import (
	"fmt"

	"github.com/alanyoungcy/polytrader/internal/domain"
)

// PlaceDirectOrderParams describes a single limit order on one token.
type PlaceDirectOrderParams struct {
	TokenID   string
	Price1000 int64
	Size1000  int64
	Side      domain.OrderSide
	OrderType domain.OrderType
}

// PlaceDirectOrder is the atomic "place one order" action.
type PlaceDirectOrder struct {
	base
	p PlaceDirectOrderParams
}

// NewPlaceDirectOrder validates p and returns a Proposed action.
func NewPlaceDirectOrder(p PlaceDirectOrderParams) (*PlaceDirectOrder, error) {
	return newPlaceDirectOrder(p, "")
}

func newPlaceDirectOrder(p PlaceDirectOrderParams, parentID string) (*PlaceDirectOrder, error) {
	a := &PlaceDirectOrder{p: p}
	a.init(parentID)
	switch {
	case p.TokenID == "":
		return nil, invalid(KindPlaceDirectOrder, "empty token id")
	case p.Price1000 <= 0 || p.Price1000 >= 1000:
		return nil, invalid(KindPlaceDirectOrder, "price1000 %d out of (0, 1000)", p.Price1000)
	case p.Size1000 <= 0:
		return nil, invalid(KindPlaceDirectOrder, "size1000 %d must be positive", p.Size1000)
	case p.Size1000 > MaxSize1000:
		return nil, invalid(KindPlaceDirectOrder, "size1000 %d above maximum %d", p.Size1000, MaxSize1000)
	case p.Price1000*p.Size1000 < MinNotional:
		return nil, invalid(KindPlaceDirectOrder, "notional %d below minimum %d", p.Price1000*p.Size1000, MinNotional)
	case !p.Side.Valid():
		return nil, invalid(KindPlaceDirectOrder, "invalid side %q", p.Side)
	case !p.OrderType.Valid():
		return nil, invalid(KindPlaceDirectOrder, "invalid order type %q", p.OrderType)
	}
	return a, nil
}

// Params returns a copy of the order parameters.
func (a *PlaceDirectOrder) Params() PlaceDirectOrderParams { return a.p }

// OrderRequest converts the action into the exchange-level request.
func (a *PlaceDirectOrder) OrderRequest() domain.OrderRequest {
	return domain.OrderRequest{
		TokenID:   a.p.TokenID,
		Price1000: a.p.Price1000,
		Size1000:  a.p.Size1000,
		Side:      a.p.Side,
		Type:      a.p.OrderType,
	}
}

func (a *PlaceDirectOrder) Kind() Kind { return KindPlaceDirectOrder }

func (a *PlaceDirectOrder) ToAtomicActions() ([]Action, error) { return []Action{a}, nil }

func (a *PlaceDirectOrder) DedupKey(label string) Key {
	return makeKey(KindPlaceDirectOrder, label,
		a.p.TokenID, itoa(a.p.Price1000), itoa(a.p.Size1000), string(a.p.Side), string(a.p.OrderType))
}

func (a *PlaceDirectOrder) Accept(v Visitor) error { return v.VisitPlaceDirectOrder(a) }

func (a *PlaceDirectOrder) String() string {
	return fmt.Sprintf("PlaceDirectOrder(id=%s %s %s %d@%d/1000 %s)",
		a.id, a.p.Side, a.p.TokenID, a.p.Size1000, a.p.Price1000, a.p.OrderType)
}
