package action

import (
	"fmt"
	"slices"
	"strings"
)

// CancelOrdersByIDs cancels the given exchange orders.
type CancelOrdersByIDs struct {
	base
	ids []string
}

// NewCancelOrdersByIDs requires at least one non-empty id.
func NewCancelOrdersByIDs(ids ...string) (*CancelOrdersByIDs, error) {
	a := &CancelOrdersByIDs{ids: slices.Clone(ids)}
	a.init("")
	if len(ids) == 0 {
		return nil, invalid(KindCancelOrdersByIDs, "no order ids")
	}
	for i, id := range ids {
		if id == "" {
			return nil, invalid(KindCancelOrdersByIDs, "empty order id at %d", i)
		}
	}
	return a, nil
}

// OrderIDs returns the ids to cancel in submission order.
func (a *CancelOrdersByIDs) OrderIDs() []string { return slices.Clone(a.ids) }

func (a *CancelOrdersByIDs) Kind() Kind { return KindCancelOrdersByIDs }

func (a *CancelOrdersByIDs) ToAtomicActions() ([]Action, error) { return []Action{a}, nil }

// DedupKey ignores the order the ids were given in.
func (a *CancelOrdersByIDs) DedupKey(label string) Key {
	sorted := slices.Clone(a.ids)
	slices.Sort(sorted)
	return makeKey(KindCancelOrdersByIDs, label, sorted...)
}

func (a *CancelOrdersByIDs) Accept(v Visitor) error { return v.VisitCancelOrdersByIDs(a) }

func (a *CancelOrdersByIDs) String() string {
	return fmt.Sprintf("CancelOrdersByIds(id=%s orders=[%s])", a.id, strings.Join(a.ids, ","))
}

// CancelOrdersByMarket cancels every resting order of a market, optionally
// narrowed to one asset.
type CancelOrdersByMarket struct {
	base
	conditionID string
	assetID     string
}

// NewCancelOrdersByMarket requires a condition id; assetID may be empty.
func NewCancelOrdersByMarket(conditionID, assetID string) (*CancelOrdersByMarket, error) {
	a := &CancelOrdersByMarket{conditionID: conditionID, assetID: assetID}
	a.init("")
	if conditionID == "" {
		return nil, invalid(KindCancelOrdersByMarket, "empty condition id")
	}
	return a, nil
}

func (a *CancelOrdersByMarket) ConditionID() string { return a.conditionID }
func (a *CancelOrdersByMarket) AssetID() string     { return a.assetID }

func (a *CancelOrdersByMarket) Kind() Kind { return KindCancelOrdersByMarket }

func (a *CancelOrdersByMarket) ToAtomicActions() ([]Action, error) { return []Action{a}, nil }

func (a *CancelOrdersByMarket) DedupKey(label string) Key {
	return makeKey(KindCancelOrdersByMarket, label, a.conditionID, a.assetID)
}

func (a *CancelOrdersByMarket) Accept(v Visitor) error { return v.VisitCancelOrdersByMarket(a) }

func (a *CancelOrdersByMarket) String() string {
	if a.assetID == "" {
		return fmt.Sprintf("CancelOrdersByMarket(id=%s market=%s)", a.id, a.conditionID)
	}
	return fmt.Sprintf("CancelOrdersByMarket(id=%s market=%s asset=%s)", a.id, a.conditionID, a.assetID)
}

// CancelAllOrders cancels every resting order of the wallet.
type CancelAllOrders struct {
	base
}

func NewCancelAllOrders() *CancelAllOrders {
	a := &CancelAllOrders{}
	a.init("")
	return a
}

func (a *CancelAllOrders) Kind() Kind { return KindCancelAllOrders }

func (a *CancelAllOrders) ToAtomicActions() ([]Action, error) { return []Action{a}, nil }

func (a *CancelAllOrders) DedupKey(label string) Key {
	return makeKey(KindCancelAllOrders, label)
}

func (a *CancelAllOrders) Accept(v Visitor) error { return v.VisitCancelAllOrders(a) }

func (a *CancelAllOrders) String() string { return fmt.Sprintf("CancelAllOrders(id=%s)", a.id) }
