// Package action models trading intents (place an order, cancel orders) as a
// closed set of variants that move through an explicit approval lifecycle.
//
// Every variant is created through a validating constructor, carries an
// immutable parameter set and a mutable lifecycle, and derives its own
// dedup key. Composite variants decompose into atomic ones; parents only
// remember the ids of their children and are settled through a Registry.
package action

import (
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/alanyoungcy/polytrader/internal/domain"
)

// MinNotional is the smallest accepted price1000*size1000 product, i.e. one
// unit of collateral.
const MinNotional int64 = 1_000_000

// MaxSize1000 is the largest accepted size1000. It keeps price1000*size1000
// and the 6-decimal share amount size1000*1000 inside int64.
const MaxSize1000 int64 = math.MaxInt64 / 1000

// Kind tags the concrete variant of an Action.
type Kind uint8

const (
	KindPlaceDirectOrder Kind = iota + 1
	KindPlaceBoolMarketOrder
	KindCancelOrdersByIDs
	KindCancelOrdersByMarket
	KindCancelAllOrders
)

// String returns the variant name used in dedup keys and logs.
func (k Kind) String() string {
	switch k {
	case KindPlaceDirectOrder:
		return "PlaceDirectOrder"
	case KindPlaceBoolMarketOrder:
		return "PlaceBoolMarketOrder"
	case KindCancelOrdersByIDs:
		return "CancelOrdersByIds"
	case KindCancelOrdersByMarket:
		return "CancelOrdersByMarket"
	case KindCancelAllOrders:
		return "CancelAllOrders"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// IsCancel reports whether the variant only removes exposure.
func (k Kind) IsCancel() bool {
	switch k {
	case KindCancelOrdersByIDs, KindCancelOrdersByMarket, KindCancelAllOrders:
		return true
	}
	return false
}

// IsComposite reports whether the variant decomposes into other actions.
func (k Kind) IsComposite() bool {
	return k == KindPlaceBoolMarketOrder
}

// Action is implemented only by the variants of this package.
type Action interface {
	ID() string
	ParentID() string
	ChildIDs() []string
	Kind() Kind
	State() State
	RelatedOrderIDs() []string

	IsApproved() bool
	IsStarted() bool
	IsPending() bool
	IsDone() bool
	IsSuccess() bool
	IsFailed() bool
	IsAborted() bool

	SetApproved() error
	SetStarted() error
	SetFinalStatus(success, failed bool) error
	SetAborted() error
	AttachOrderIDs(ids ...string) error

	// ToAtomicActions returns the executable actions behind this one. Atomic
	// variants return themselves; composites start and decompose once.
	ToAtomicActions() ([]Action, error)

	// DedupKey identifies "the same logical request" under the given label.
	DedupKey(label string) Key

	// Accept dispatches to the visitor method of the concrete variant.
	Accept(v Visitor) error

	String() string

	core() *base
}

// Visitor receives one call per concrete variant.
type Visitor interface {
	VisitPlaceDirectOrder(a *PlaceDirectOrder) error
	VisitPlaceBoolMarketOrder(a *PlaceBoolMarketOrder) error
	VisitCancelOrdersByIDs(a *CancelOrdersByIDs) error
	VisitCancelOrdersByMarket(a *CancelOrdersByMarket) error
	VisitCancelAllOrders(a *CancelAllOrders) error
}

// base holds identity and lifecycle shared by every variant.
type base struct {
	id       string
	parentID string

	mu       sync.Mutex
	state    State
	related  []string
	children []string
	split    bool
}

func (b *base) init(parentID string) {
	b.id = uuid.New().String()
	b.parentID = parentID
	b.state = StateProposed
}

func (b *base) core() *base { return b }

// ID returns the action's unique internal id.
func (b *base) ID() string { return b.id }

// ParentID returns the id of the composite this action was decomposed from.
func (b *base) ParentID() string { return b.parentID }

// ChildIDs returns the ids produced by decomposition, nil for atomic actions.
func (b *base) ChildIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.children) == 0 {
		return nil
	}
	out := make([]string, len(b.children))
	copy(out, b.children)
	return out
}

// RelatedOrderIDs returns the exchange order ids attached after execution.
func (b *base) RelatedOrderIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.related))
	copy(out, b.related)
	return out
}

// AttachOrderIDs appends exchange order ids. Only valid while the action is
// pending.
func (b *base) AttachOrderIDs(ids ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateStarted {
		return b.transitionErr("attach order ids")
	}
	b.related = append(b.related, ids...)
	return nil
}

func invalid(k Kind, format string, args ...any) error {
	return fmt.Errorf("action: new %s: %s: %w", k, fmt.Sprintf(format, args...), domain.ErrInvalidAction)
}
