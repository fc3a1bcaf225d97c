package patience

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polytrader/internal/action"
	"github.com/alanyoungcy/polytrader/internal/domain"
)

func buy(t *testing.T, price, size int64) *action.PlaceDirectOrder {
	t.Helper()
	a, err := action.Buy("tok", price, size)
	require.NoError(t, err)
	return a
}

// tick runs one full bracket and returns what was approved.
func tick(t *testing.T, p *Patience, submit func()) []action.Action {
	t.Helper()
	require.NoError(t, p.StartIteration())
	submit()
	out, err := p.FinishIteration()
	require.NoError(t, err)
	return out
}

func TestAbsentPassThrough(t *testing.T) {
	p := New()
	a := buy(t, 500, 2_000)
	out := tick(t, p, func() {
		ok, err := p.ProcActionWish(a, "q", 0, false)
		require.NoError(t, err)
		assert.True(t, ok)
	})
	require.Len(t, out, 1)
	assert.Same(t, a, out[0])
	assert.True(t, a.IsApproved())
	assert.Empty(t, p.Snapshot())
}

func TestAccumulation(t *testing.T) {
	p := New()
	var last action.Action
	var approved [][]action.Action
	for range 3 {
		last = buy(t, 500, 2_000)
		approved = append(approved, tick(t, p, func() {
			_, err := p.ProcActionWish(last, "q", 2, false)
			require.NoError(t, err)
		}))
	}
	assert.Empty(t, approved[0])
	assert.Empty(t, approved[1])
	require.Len(t, approved[2], 1)
	assert.Same(t, last, approved[2][0], "the latest submission is the one approved")
	assert.Empty(t, p.Snapshot())
}

func TestExpiryResetsCount(t *testing.T) {
	p := New()
	submit := func() {
		_, err := p.ProcActionWish(buy(t, 500, 2_000), "q", 1, false)
		require.NoError(t, err)
	}

	assert.Empty(t, tick(t, p, submit))
	require.Len(t, p.Snapshot(), 1)

	assert.Empty(t, tick(t, p, func() {}))
	assert.Empty(t, p.Snapshot(), "skipped iteration expires the entry")

	assert.Empty(t, tick(t, p, submit), "fresh key again")
	assert.Len(t, tick(t, p, submit), 1)
}

func TestUrgentRequestBypassesWaitingEntry(t *testing.T) {
	p := New()
	tick(t, p, func() {
		_, err := p.ProcActionWish(buy(t, 500, 2_000), "q", 5, false)
		require.NoError(t, err)
	})
	require.Len(t, p.Snapshot(), 1)

	urgent := buy(t, 500, 2_000)
	out := tick(t, p, func() {
		ok, err := p.ProcActionWish(urgent, "q", 0, false)
		require.NoError(t, err)
		assert.True(t, ok)
	})
	assert.Equal(t, []action.Action{urgent}, out)
	assert.Empty(t, p.Snapshot())
}

func TestPauseReleaseHoldsIndefinitely(t *testing.T) {
	p := New()
	for i := range 4 {
		out := tick(t, p, func() {
			ok, err := p.ProcActionWish(buy(t, 500, 2_000), "q", 0, true)
			require.NoError(t, err)
			assert.False(t, ok)
		})
		assert.Empty(t, out)
		snap := p.Snapshot()
		require.Len(t, snap, 1)
		assert.Equal(t, i, snap[0].Count)
	}

	// Dropping pauseRelease releases once the count is reached.
	out := tick(t, p, func() {
		_, err := p.ProcActionWish(buy(t, 500, 2_000), "q", 2, false)
		require.NoError(t, err)
	})
	assert.Len(t, out, 1)
}

func TestKeysAreIndependent(t *testing.T) {
	p := New()
	small := func() action.Action { return buy(t, 500, 2_000) }
	large := func() action.Action { return buy(t, 500, 3_000) }

	tick(t, p, func() {
		_, _ = p.ProcActionWish(small(), "q", 1, false)
		_, _ = p.ProcActionWish(large(), "q", 1, false)
	})
	assert.Len(t, p.Snapshot(), 2)

	out := tick(t, p, func() {
		_, _ = p.ProcActionWish(large(), "q", 1, false)
	})
	require.Len(t, out, 1)
	assert.Equal(t, int64(3_000), out[0].(*action.PlaceDirectOrder).Params().Size1000)
	assert.Empty(t, p.Snapshot(), "small expired, large approved")
}

func TestLabelsSeparateKeys(t *testing.T) {
	p := New()
	tick(t, p, func() {
		_, _ = p.ProcActionWish(buy(t, 500, 2_000), "entry", 1, false)
	})
	out := tick(t, p, func() {
		_, _ = p.ProcActionWish(buy(t, 500, 2_000), "exit", 1, false)
	})
	assert.Empty(t, out)
}

func TestCancelByIDsOrderIndependent(t *testing.T) {
	p := New()
	tick(t, p, func() {
		a, _ := action.NewCancelOrdersByIDs("b", "a")
		_, _ = p.ProcActionWish(a, "q", 1, false)
	})
	out := tick(t, p, func() {
		a, _ := action.NewCancelOrdersByIDs("a", "b")
		_, _ = p.ProcActionWish(a, "q", 1, false)
	})
	assert.Len(t, out, 1)
}

func TestSubmissionOrderPreserved(t *testing.T) {
	p := New()
	c := action.NewCancelAllOrders()
	d := buy(t, 500, 2_000)
	m, _ := action.NewCancelOrdersByMarket("cond", "")
	out := tick(t, p, func() {
		for _, a := range []action.Action{c, d, m} {
			_, err := p.ProcActionWish(a, "", 0, false)
			require.NoError(t, err)
		}
	})
	assert.Equal(t, []action.Action{c, d, m}, out)
}

func TestBracketMisuse(t *testing.T) {
	p := New()
	_, err := p.ProcActionWish(buy(t, 500, 2_000), "q", 0, false)
	assert.ErrorIs(t, err, domain.ErrIterationState)

	_, err = p.FinishIteration()
	assert.ErrorIs(t, err, domain.ErrIterationState)

	require.NoError(t, p.StartIteration())
	assert.ErrorIs(t, p.StartIteration(), domain.ErrIterationState)
	assert.True(t, p.InIteration())
	assert.Equal(t, int64(1), p.IterationNr())

	_, err = p.ProcActionWish(buy(t, 500, 2_000), "q", -1, false)
	assert.ErrorIs(t, err, domain.ErrInvalidAction)
	_, err = p.ProcActionWish(nil, "q", 0, false)
	assert.ErrorIs(t, err, domain.ErrUnknownAction)
}

func TestApprovingTwiceFails(t *testing.T) {
	p := New()
	a := buy(t, 500, 2_000)
	require.NoError(t, p.StartIteration())
	_, err := p.ProcActionWish(a, "q", 0, false)
	require.NoError(t, err)
	_, err = p.ProcActionWish(a, "q", 0, false)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestClear(t *testing.T) {
	p := New()
	require.NoError(t, p.StartIteration())
	_, _ = p.ProcActionWish(buy(t, 500, 2_000), "q", 0, false)
	_, _ = p.ProcActionWish(buy(t, 600, 2_000), "q", 3, false)
	p.Clear()
	out, err := p.FinishIteration()
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, p.Snapshot())
	assert.Equal(t, int64(1), p.IterationNr())
}

func TestRepeatWithinIterationIsOneObservation(t *testing.T) {
	p := New()
	var second action.Action
	out := tick(t, p, func() {
		ok, err := p.ProcActionWish(buy(t, 500, 10_000), "x", 1, false)
		require.NoError(t, err)
		assert.False(t, ok)

		second = buy(t, 500, 10_000)
		ok, err = p.ProcActionWish(second, "x", 1, false)
		require.NoError(t, err)
		assert.False(t, ok, "same iteration does not count")
	})
	assert.Empty(t, out)
	snap := p.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, 0, snap[0].Count)
	assert.Equal(t, second.ID(), snap[0].ActionID, "latest submission replaces the waiting one")

	out = tick(t, p, func() {
		ok, err := p.ProcActionWish(buy(t, 500, 10_000), "x", 1, false)
		require.NoError(t, err)
		assert.True(t, ok)
	})
	assert.Len(t, out, 1)
}

func TestFailedApprovalKeepsWaitingEntry(t *testing.T) {
	p := New()
	tick(t, p, func() {
		_, err := p.ProcActionWish(buy(t, 500, 2_000), "q", 1, false)
		require.NoError(t, err)
	})
	require.Len(t, p.Snapshot(), 1)

	stale := buy(t, 500, 2_000)
	require.NoError(t, stale.SetApproved())
	fresh := buy(t, 500, 2_000)
	out := tick(t, p, func() {
		_, err := p.ProcActionWish(stale, "q", 1, false)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		require.Len(t, p.Snapshot(), 1, "entry survives the failed approval")

		ok, err := p.ProcActionWish(fresh, "q", 1, false)
		require.NoError(t, err)
		assert.True(t, ok)
	})
	assert.Equal(t, []action.Action{fresh}, out)
	assert.Empty(t, p.Snapshot())
}
