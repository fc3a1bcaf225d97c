package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polytrader/internal/domain"
)

func TestNewPlaceDirectOrderValidation(t *testing.T) {
	valid := PlaceDirectOrderParams{
		TokenID: "tok", Price1000: 500, Size1000: 2_000,
		Side: domain.OrderSideBuy, OrderType: domain.OrderTypeGTC,
	}
	_, err := NewPlaceDirectOrder(valid)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(p *PlaceDirectOrderParams)
	}{
		{"empty token", func(p *PlaceDirectOrderParams) { p.TokenID = "" }},
		{"zero price", func(p *PlaceDirectOrderParams) { p.Price1000 = 0 }},
		{"price at one", func(p *PlaceDirectOrderParams) { p.Price1000 = 1000 }},
		{"zero size", func(p *PlaceDirectOrderParams) { p.Size1000 = 0 }},
		{"below min notional", func(p *PlaceDirectOrderParams) { p.Size1000 = 1_999 }},
		{"notional overflows", func(p *PlaceDirectOrderParams) { p.Price1000, p.Size1000 = 5, 1<<62 }},
		{"size above maximum", func(p *PlaceDirectOrderParams) { p.Size1000 = MaxSize1000 + 1 }},
		{"bad side", func(p *PlaceDirectOrderParams) { p.Side = "HOLD" }},
		{"bad order type", func(p *PlaceDirectOrderParams) { p.OrderType = "IOC" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := valid
			tc.mutate(&p)
			a, err := NewPlaceDirectOrder(p)
			assert.Nil(t, a)
			assert.ErrorIs(t, err, domain.ErrInvalidAction)
		})
	}
}

func TestNewPlaceBoolMarketOrderValidation(t *testing.T) {
	_, err := Long("yes", "no", 500, 2_000)
	require.NoError(t, err)

	_, err = Long("yes", "yes", 500, 2_000)
	assert.ErrorIs(t, err, domain.ErrInvalidAction, "same asset on both legs")

	_, err = Long("", "no", 500, 2_000)
	assert.ErrorIs(t, err, domain.ErrInvalidAction)

	// 900 * 2000 passes on the main leg but the counter leg is 100 * 2000.
	_, err = Short("yes", "no", 900, 2_000)
	assert.ErrorIs(t, err, domain.ErrInvalidAction)

	_, err = NewPlaceBoolMarketOrder(PlaceBoolMarketOrderParams{
		MainAssetID: "yes", CounterAssetID: "no", MainPrice1000: 500, Size1000: 2_000,
		BoolSide: "FLAT", OrderType: domain.OrderTypeGTC,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAction)

	// 5 * 2^62 wraps past int64.
	_, err = Long("yes", "no", 5, 1<<62)
	assert.ErrorIs(t, err, domain.ErrInvalidAction)

	_, err = Long("yes", "no", 500, MaxSize1000)
	require.NoError(t, err)
}

func TestCancelConstructors(t *testing.T) {
	_, err := NewCancelOrdersByIDs()
	assert.ErrorIs(t, err, domain.ErrInvalidAction)
	_, err = NewCancelOrdersByIDs("a", "")
	assert.ErrorIs(t, err, domain.ErrInvalidAction)

	_, err = NewCancelOrdersByMarket("", "asset")
	assert.ErrorIs(t, err, domain.ErrInvalidAction)
	m, err := NewCancelOrdersByMarket("0xcond", "")
	require.NoError(t, err)
	assert.Equal(t, "0xcond", m.ConditionID())
	assert.Empty(t, m.AssetID())

	assert.True(t, KindCancelAllOrders.IsCancel())
	assert.False(t, KindPlaceDirectOrder.IsCancel())
}

func TestIDsAreUnique(t *testing.T) {
	a := NewCancelAllOrders()
	b := NewCancelAllOrders()
	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Empty(t, a.ParentID())
}

func TestAtomicToAtomicActionsIsIdentity(t *testing.T) {
	a := mustBuy(t)
	out, err := a.ToAtomicActions()
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Same(t, a, out[0])
	assert.Equal(t, StateProposed, a.State(), "no side effect on atomic actions")
}

func TestBoolMarketDecomposition(t *testing.T) {
	tests := []struct {
		side      domain.BoolSide
		wantToken string
		wantPrice int64
	}{
		{domain.BoolSideLong, "yes", 420},
		{domain.BoolSideShort, "no", 580},
	}
	for _, tc := range tests {
		t.Run(string(tc.side), func(t *testing.T) {
			parent, err := NewPlaceBoolMarketOrder(PlaceBoolMarketOrderParams{
				MainAssetID: "yes", CounterAssetID: "no", MainPrice1000: 420, Size1000: 5_000,
				BoolSide: tc.side, OrderType: domain.OrderTypeFOK,
			})
			require.NoError(t, err)
			require.NoError(t, parent.SetApproved())

			children, err := parent.ToAtomicActions()
			require.NoError(t, err)
			require.Len(t, children, 1)
			assert.True(t, parent.IsPending())

			child, ok := children[0].(*PlaceDirectOrder)
			require.True(t, ok)
			p := child.Params()
			assert.Equal(t, tc.wantToken, p.TokenID)
			assert.Equal(t, tc.wantPrice, p.Price1000)
			assert.Equal(t, int64(5_000), p.Size1000)
			assert.Equal(t, domain.OrderSideBuy, p.Side)
			assert.Equal(t, domain.OrderTypeFOK, p.OrderType)
			assert.Equal(t, parent.ID(), child.ParentID())
			assert.Equal(t, []string{child.ID()}, parent.ChildIDs())

			_, err = parent.ToAtomicActions()
			assert.ErrorIs(t, err, domain.ErrInvalidTransition, "decompose only once")
		})
	}
}

func TestBoolMarketDecompositionRequiresApproval(t *testing.T) {
	parent, err := Long("yes", "no", 500, 2_000)
	require.NoError(t, err)
	_, err = parent.ToAtomicActions()
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Nil(t, parent.ChildIDs())
}

func TestDedupKeys(t *testing.T) {
	a1, _ := Long("yes", "no", 500, 2_000)
	a2, _ := Long("yes", "no", 500, 9_000)
	a3, _ := Short("yes", "no", 500, 2_000)
	assert.Equal(t, a1.DedupKey("q"), a2.DedupKey("q"), "bool market key ignores size")
	assert.NotEqual(t, a1.DedupKey("q"), a3.DedupKey("q"))
	assert.NotEqual(t, a1.DedupKey("q"), a1.DedupKey("other"))

	d1, _ := Buy("tok", 500, 2_000)
	d2, _ := Buy("tok", 500, 3_000)
	assert.NotEqual(t, d1.DedupKey(""), d2.DedupKey(""), "direct key includes size")

	c1, _ := NewCancelOrdersByIDs("b", "a")
	c2, _ := NewCancelOrdersByIDs("a", "b")
	assert.Equal(t, c1.DedupKey("x"), c2.DedupKey("x"))
	assert.Equal(t, []string{"b", "a"}, c1.OrderIDs(), "submission order is kept")

	// Quoting keeps separators inside fields from colliding.
	k1 := makeKey(KindCancelOrdersByMarket, "l", "a|b", "")
	k2 := makeKey(KindCancelOrdersByMarket, "l", "a", "b")
	assert.NotEqual(t, k1, k2)

	assert.Equal(t, NewCancelAllOrders().DedupKey("x"), NewCancelAllOrders().DedupKey("x"))
}

type kindVisitor struct{ seen []Kind }

func (v *kindVisitor) VisitPlaceDirectOrder(*PlaceDirectOrder) error {
	v.seen = append(v.seen, KindPlaceDirectOrder)
	return nil
}
func (v *kindVisitor) VisitPlaceBoolMarketOrder(*PlaceBoolMarketOrder) error {
	v.seen = append(v.seen, KindPlaceBoolMarketOrder)
	return nil
}
func (v *kindVisitor) VisitCancelOrdersByIDs(*CancelOrdersByIDs) error {
	v.seen = append(v.seen, KindCancelOrdersByIDs)
	return nil
}
func (v *kindVisitor) VisitCancelOrdersByMarket(*CancelOrdersByMarket) error {
	v.seen = append(v.seen, KindCancelOrdersByMarket)
	return nil
}
func (v *kindVisitor) VisitCancelAllOrders(*CancelAllOrders) error {
	v.seen = append(v.seen, KindCancelAllOrders)
	return nil
}

func TestAcceptDispatchesByKind(t *testing.T) {
	d, _ := Buy("tok", 500, 2_000)
	b, _ := Long("yes", "no", 500, 2_000)
	ci, _ := NewCancelOrdersByIDs("o1")
	cm, _ := NewCancelOrdersByMarket("c", "")
	all := []Action{d, b, ci, cm, NewCancelAllOrders()}

	v := &kindVisitor{}
	for _, a := range all {
		require.NoError(t, a.Accept(v))
	}
	for i, a := range all {
		assert.Equal(t, a.Kind(), v.seen[i])
	}
}

func TestScale1000(t *testing.T) {
	assert.Equal(t, int64(450), Scale1000(0.45))
	assert.Equal(t, int64(457), Scale1000(0.4567))
	assert.Equal(t, int64(-457), Scale1000(-0.4567))
	assert.Equal(t, int64(12_345), Scale1000(12.345))
}
