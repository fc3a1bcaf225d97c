package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polytrader/internal/domain"
)

func decomposed(t *testing.T, r *Registry) (*PlaceBoolMarketOrder, Action) {
	t.Helper()
	parent, err := Long("yes", "no", 400, 5_000)
	require.NoError(t, err)
	require.NoError(t, parent.SetApproved())
	children, err := parent.ToAtomicActions()
	require.NoError(t, err)
	require.NoError(t, r.Add(parent))
	require.NoError(t, r.Add(children...))
	return parent, children[0]
}

func TestRegistryAddGet(t *testing.T) {
	r := NewRegistry()
	a := NewCancelAllOrders()
	require.NoError(t, r.Add(a))
	assert.ErrorIs(t, r.Add(a), domain.ErrAlreadyExists)
	assert.ErrorIs(t, r.Add(nil), domain.ErrUnknownAction)

	got, ok := r.Get(a.ID())
	require.True(t, ok)
	assert.Same(t, a, got)
	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistrySettleSuccess(t *testing.T) {
	r := NewRegistry()
	parent, child := decomposed(t, r)

	children, err := r.Children(parent.ID())
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Same(t, child, children[0])

	require.NoError(t, child.SetApproved())
	require.NoError(t, child.SetStarted())
	require.NoError(t, child.AttachOrderIDs("0x1"))
	require.NoError(t, child.SetFinalStatus(true, false))

	require.NoError(t, r.Settle(parent.ID()))
	assert.True(t, parent.IsSuccess())
	assert.Equal(t, []string{"0x1"}, parent.RelatedOrderIDs())
}

func TestRegistrySettleFailure(t *testing.T) {
	r := NewRegistry()
	parent, child := decomposed(t, r)

	require.NoError(t, child.SetApproved())
	require.NoError(t, child.SetStarted())
	require.NoError(t, child.SetFinalStatus(false, true))

	require.NoError(t, r.Settle(parent.ID()))
	assert.True(t, parent.IsFailed())
	assert.Empty(t, parent.RelatedOrderIDs())
}

func TestSettleRequiresFinishedChildren(t *testing.T) {
	r := NewRegistry()
	parent, _ := decomposed(t, r)

	assert.ErrorIs(t, r.Settle(parent.ID()), domain.ErrInvalidTransition)
	assert.True(t, parent.IsPending())
}

func TestSetStateFromAtomicActionsRejectsForeignChildren(t *testing.T) {
	r := NewRegistry()
	parent, _ := decomposed(t, r)

	stranger := mustBuy(t)
	require.NoError(t, stranger.SetApproved())
	require.NoError(t, stranger.SetStarted())
	require.NoError(t, stranger.SetFinalStatus(true, false))

	assert.ErrorIs(t, parent.SetStateFromAtomicActions([]Action{stranger}), domain.ErrInvalidTransition)
	assert.ErrorIs(t, parent.SetStateFromAtomicActions(nil), domain.ErrInvalidTransition)
}

func TestSettleNonComposite(t *testing.T) {
	r := NewRegistry()
	a := NewCancelAllOrders()
	require.NoError(t, r.Add(a))
	assert.ErrorIs(t, r.Settle(a.ID()), domain.ErrInvalidTransition)
	assert.ErrorIs(t, r.Settle("nope"), domain.ErrNotFound)
}

func TestRegistryForgetDropsChildren(t *testing.T) {
	r := NewRegistry()
	parent, child := decomposed(t, r)
	assert.Equal(t, 2, r.Len())

	r.Forget(parent.ID())
	assert.Equal(t, 0, r.Len())
	_, ok := r.Get(child.ID())
	assert.False(t, ok)

	_, err := r.Children(parent.ID())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
