package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polytrader/internal/action"
	"github.com/alanyoungcy/polytrader/internal/domain"
	"github.com/alanyoungcy/polytrader/internal/executor"
	"github.com/alanyoungcy/polytrader/internal/journal"
	"github.com/alanyoungcy/polytrader/internal/permission"
	"github.com/alanyoungcy/polytrader/internal/platform/paper"
	"github.com/alanyoungcy/polytrader/internal/strategy"
)

// scriptedBrain returns fresh wishes from next on every call and remembers
// what it saw.
type scriptedBrain struct {
	next     func() []strategy.Wish
	freezes  []bool
	executed [][]action.Action
}

func (b *scriptedBrain) Name() string { return "scripted" }

func (b *scriptedBrain) UpdateStateAndGetActions(_ context.Context, freeze bool) ([]strategy.Wish, error) {
	b.freezes = append(b.freezes, freeze)
	if freeze || b.next == nil {
		return nil, nil
	}
	return b.next(), nil
}

func (b *scriptedBrain) OnExecuted(_ context.Context, as []action.Action) {
	b.executed = append(b.executed, as)
}

type fixture struct {
	runner  *Runner
	brain   *scriptedBrain
	lock    *permission.Lock
	ex      *paper.Exchange
	journal *journal.Journal
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ex := paper.New(logger)
	ex.RegisterMarket(domain.Market{ConditionID: "cond", TokenIDs: [2]string{"yes", "no"}})
	reg := action.NewRegistry()
	lock := permission.New()
	j := journal.New("run-test", logger)
	brain := &scriptedBrain{}
	r := New(cfg, brain, lock, executor.NewExecutor(ex, reg, logger), reg, j, logger)
	return &fixture{runner: r, brain: brain, lock: lock, ex: ex, journal: j}
}

func longWish(t *testing.T, require int) func() []strategy.Wish {
	return func() []strategy.Wish {
		a, err := action.Long("yes", "no", 400, 5_000)
		if err != nil {
			t.Fatal(err)
		}
		return []strategy.Wish{{Action: a, Label: "quote", IterationRequire: require}}
	}
}

func TestTickPlacesAfterPatience(t *testing.T) {
	f := newFixture(t, Config{})
	f.brain.next = longWish(t, 2)
	ctx := context.Background()

	require.NoError(t, f.runner.Tick(ctx))
	require.NoError(t, f.runner.Tick(ctx))
	assert.Empty(t, f.ex.OpenOrders())
	st := f.runner.Status()
	require.Len(t, st.Waiting, 1)
	assert.Equal(t, 1, st.Waiting[0].Count)

	require.NoError(t, f.runner.Tick(ctx))
	open := f.ex.OpenOrders()
	require.Len(t, open, 1)
	assert.Equal(t, "yes", open[0].TokenID)
	assert.Equal(t, int64(400), open[0].Price1000)

	last := f.brain.executed[2]
	require.Len(t, last, 1)
	assert.True(t, last[0].IsSuccess())
	assert.Equal(t, []string{open[0].ID}, last[0].RelatedOrderIDs())

	recs := f.journal.Records()
	require.Len(t, recs, 2, "parent and child are journaled")
	assert.Equal(t, "PlaceBoolMarketOrder", recs[0].Kind)
	assert.Equal(t, "PlaceDirectOrder", recs[1].Kind)
	assert.Equal(t, recs[0].ID, recs[1].ParentID)
	assert.Equal(t, "quote", recs[1].Label)
	assert.Equal(t, int64(3), recs[0].Iteration)

	assert.Equal(t, 0, f.runner.Status().RegisteredActions, "settled composites leave the registry")
}

func TestTickCancelOnlyAbortsPlacements(t *testing.T) {
	f := newFixture(t, Config{})
	f.brain.next = func() []strategy.Wish {
		place, _ := action.Buy("yes", 400, 5_000)
		cancel, _ := action.NewCancelOrdersByMarket("cond", "")
		return []strategy.Wish{{Action: place}, {Action: cancel}}
	}
	require.NoError(t, f.lock.PutLock(permission.LevelCancelOnly, "risk", false))

	require.NoError(t, f.runner.Tick(context.Background()))
	got := f.brain.executed[0]
	require.Len(t, got, 2)
	assert.True(t, got[0].IsAborted())
	assert.True(t, got[1].IsSuccess())
	assert.Empty(t, f.ex.OpenOrders())
}

func TestTickFreezesAtSuspend(t *testing.T) {
	f := newFixture(t, Config{})
	f.brain.next = longWish(t, 0)
	require.NoError(t, f.lock.PutLock(permission.LevelSuspend, "ops", false))

	require.NoError(t, f.runner.Tick(context.Background()))
	assert.Equal(t, []bool{true}, f.brain.freezes)
	assert.Empty(t, f.ex.OpenOrders())
}

func TestBackoffAfterFailures(t *testing.T) {
	f := newFixture(t, Config{BackoffAfterFailures: 2, BackoffIterations: 2})
	f.brain.next = func() []strategy.Wish {
		a, _ := action.Buy("yes", 400, 5_000)
		return []strategy.Wish{{Action: a, Label: "entry"}}
	}
	var events []bool
	f.runner.OnBackoff(func(entered bool, _ string) { events = append(events, entered) })

	ctx := context.Background()
	f.ex.FailNext(2, errors.New("503"))

	require.NoError(t, f.runner.Tick(ctx))
	assert.Equal(t, permission.LevelNormalTrade, f.lock.CurrentLevel())
	require.NoError(t, f.runner.Tick(ctx))
	assert.Equal(t, permission.LevelBackoff, f.lock.CurrentLevel())
	assert.True(t, f.runner.Status().InBackoff)
	assert.Equal(t, []bool{true}, events)

	// First backoff tick: one cancel-all goes out, placements are denied.
	require.NoError(t, f.runner.Tick(ctx))
	got := f.brain.executed[2]
	require.Len(t, got, 2)
	assert.Equal(t, action.KindCancelAllOrders, got[0].Kind())
	assert.True(t, got[0].IsSuccess())
	assert.True(t, got[1].IsAborted())

	// Second clean tick releases the runner's lock; no second cancel-all.
	require.NoError(t, f.runner.Tick(ctx))
	require.Len(t, f.brain.executed[3], 1)
	assert.Equal(t, permission.LevelNormalTrade, f.lock.CurrentLevel())
	assert.Equal(t, []bool{true, false}, events)

	require.NoError(t, f.runner.Tick(ctx))
	assert.Len(t, f.ex.OpenOrders(), 1)
}

func TestTickReturnsInvariantViolations(t *testing.T) {
	f := newFixture(t, Config{})
	reused, err := action.Buy("yes", 400, 5_000)
	require.NoError(t, err)
	f.brain.next = func() []strategy.Wish {
		return []strategy.Wish{{Action: reused}}
	}
	ctx := context.Background()
	require.NoError(t, f.runner.Tick(ctx))

	err = f.runner.Tick(ctx)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.False(t, f.runner.Patience().InIteration())
}

func TestRunStopsOnContext(t *testing.T) {
	f := newFixture(t, Config{TickInterval: 5 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := f.runner.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Positive(t, f.runner.Status().Ticks)
}
