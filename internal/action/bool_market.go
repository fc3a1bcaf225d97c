package action

import (
	"fmt"

	"github.com/alanyoungcy/polytrader/internal/domain"
)

// PlaceBoolMarketOrderParams describes a position on a two-outcome market.
// MainPrice1000 is always quoted on the main asset; a SHORT buys the counter
// asset at 1000-MainPrice1000.
type PlaceBoolMarketOrderParams struct {
	MainAssetID    string
	CounterAssetID string
	MainPrice1000  int64
	Size1000       int64
	BoolSide       domain.BoolSide
	OrderType      domain.OrderType
}

// PlaceBoolMarketOrder is a composite action that decomposes into one
// PlaceDirectOrder on either the main or the counter asset.
type PlaceBoolMarketOrder struct {
	base
	p PlaceBoolMarketOrderParams
}

// NewPlaceBoolMarketOrder validates p and returns a Proposed action.
func NewPlaceBoolMarketOrder(p PlaceBoolMarketOrderParams) (*PlaceBoolMarketOrder, error) {
	a := &PlaceBoolMarketOrder{p: p}
	a.init("")
	switch {
	case p.MainAssetID == "" || p.CounterAssetID == "":
		return nil, invalid(KindPlaceBoolMarketOrder, "empty asset id")
	case p.MainAssetID == p.CounterAssetID:
		return nil, invalid(KindPlaceBoolMarketOrder, "main and counter asset are both %s", p.MainAssetID)
	case p.MainPrice1000 <= 0 || p.MainPrice1000 >= 1000:
		return nil, invalid(KindPlaceBoolMarketOrder, "main price1000 %d out of (0, 1000)", p.MainPrice1000)
	case p.Size1000 <= 0:
		return nil, invalid(KindPlaceBoolMarketOrder, "size1000 %d must be positive", p.Size1000)
	case p.Size1000 > MaxSize1000:
		return nil, invalid(KindPlaceBoolMarketOrder, "size1000 %d above maximum %d", p.Size1000, MaxSize1000)
	case p.MainPrice1000*p.Size1000 < MinNotional:
		return nil, invalid(KindPlaceBoolMarketOrder, "main leg notional %d below minimum %d", p.MainPrice1000*p.Size1000, MinNotional)
	case (1000-p.MainPrice1000)*p.Size1000 < MinNotional:
		return nil, invalid(KindPlaceBoolMarketOrder, "counter leg notional %d below minimum %d", (1000-p.MainPrice1000)*p.Size1000, MinNotional)
	case !p.BoolSide.Valid():
		return nil, invalid(KindPlaceBoolMarketOrder, "invalid bool side %q", p.BoolSide)
	case !p.OrderType.Valid():
		return nil, invalid(KindPlaceBoolMarketOrder, "invalid order type %q", p.OrderType)
	}
	return a, nil
}

// Params returns a copy of the order parameters.
func (a *PlaceBoolMarketOrder) Params() PlaceBoolMarketOrderParams { return a.p }

func (a *PlaceBoolMarketOrder) Kind() Kind { return KindPlaceBoolMarketOrder }

// ToAtomicActions starts the order and builds its single child. It can only
// run once; the parent keeps the child id, never the child itself.
func (a *PlaceBoolMarketOrder) ToAtomicActions() ([]Action, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.split {
		return nil, a.transitionErr("decompose again")
	}
	if err := a.startLocked(); err != nil {
		return nil, err
	}

	child := PlaceDirectOrderParams{
		TokenID:   a.p.MainAssetID,
		Price1000: a.p.MainPrice1000,
		Size1000:  a.p.Size1000,
		Side:      domain.OrderSideBuy,
		OrderType: a.p.OrderType,
	}
	if a.p.BoolSide == domain.BoolSideShort {
		child.TokenID = a.p.CounterAssetID
		child.Price1000 = 1000 - a.p.MainPrice1000
	}
	c, err := newPlaceDirectOrder(child, a.id)
	if err != nil {
		return nil, err
	}
	a.split = true
	a.children = []string{c.ID()}
	return []Action{c}, nil
}

// SetStateFromAtomicActions settles the parent from its finished children.
// The parent succeeds only if every child succeeded.
func (a *PlaceBoolMarketOrder) SetStateFromAtomicActions(children []Action) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.split {
		return a.transitionErr("settle before decomposition")
	}
	if len(children) != len(a.children) {
		return fmt.Errorf("action %s: got %d children, want %d: %w",
			a.id, len(children), len(a.children), domain.ErrInvalidTransition)
	}

	want := make(map[string]bool, len(a.children))
	for _, id := range a.children {
		want[id] = true
	}
	var related []string
	allOK := true
	for _, c := range children {
		if c == nil || !want[c.ID()] || c.ParentID() != a.id {
			return fmt.Errorf("action %s: child set does not match decomposition: %w", a.id, domain.ErrInvalidTransition)
		}
		delete(want, c.ID())
		if !c.IsDone() {
			return fmt.Errorf("action %s: child %s is %s: %w", a.id, c.ID(), c.State(), domain.ErrInvalidTransition)
		}
		related = append(related, c.RelatedOrderIDs()...)
		allOK = allOK && c.IsSuccess()
	}

	if err := a.finishLocked(allOK, !allOK); err != nil {
		return err
	}
	a.related = append(a.related, related...)
	return nil
}

func (a *PlaceBoolMarketOrder) DedupKey(label string) Key {
	return makeKey(KindPlaceBoolMarketOrder, label,
		a.p.MainAssetID, a.p.CounterAssetID, itoa(a.p.MainPrice1000), string(a.p.BoolSide))
}

func (a *PlaceBoolMarketOrder) Accept(v Visitor) error { return v.VisitPlaceBoolMarketOrder(a) }

func (a *PlaceBoolMarketOrder) String() string {
	return fmt.Sprintf("PlaceBoolMarketOrder(id=%s %s main=%s counter=%s %d@%d/1000 %s)",
		a.id, a.p.BoolSide, a.p.MainAssetID, a.p.CounterAssetID, a.p.Size1000, a.p.MainPrice1000, a.p.OrderType)
}
