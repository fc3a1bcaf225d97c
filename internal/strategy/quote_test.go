package strategy

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polytrader/internal/action"
	"github.com/alanyoungcy/polytrader/internal/domain"
)

type staticBooks map[string]int64

func (s staticBooks) BestBid(assetID string) (domain.PriceLevel, bool) {
	p, ok := s[assetID]
	return domain.PriceLevel{Price1000: p, Size1000: 1_000_000}, ok
}

func (s staticBooks) BestAsk(string) (domain.PriceLevel, bool) { return domain.PriceLevel{}, false }

func quoteCfg() Config {
	return Config{
		Name:           QuoteBrainName,
		ConditionID:    "0xcond",
		MainAssetID:    "yes",
		CounterAssetID: "no",
		Size1000:       10_000,
		PlaceRequire:   2,
		CancelRequire:  1,
		MaxDrift1000:   5,
	}
}

func newQuote(t *testing.T, books staticBooks) *QuoteBrain {
	t.Helper()
	b, err := NewQuoteBrain(quoteCfg(), Deps{Books: books, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, err)
	return b.(*QuoteBrain)
}

// execute pretends the exchange accepted a and returned orderIDs.
func execute(t *testing.T, a action.Action, orderIDs ...string) {
	t.Helper()
	require.NoError(t, a.SetApproved())
	require.NoError(t, a.SetStarted())
	require.NoError(t, a.AttachOrderIDs(orderIDs...))
	require.NoError(t, a.SetFinalStatus(true, false))
}

func TestQuoteBrainPlacesAtBestBid(t *testing.T) {
	q := newQuote(t, staticBooks{"yes": 420})

	wishes, err := q.UpdateStateAndGetActions(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, wishes, 1)
	w := wishes[0]
	assert.Equal(t, quotePlaceLabel, w.Label)
	assert.Equal(t, 2, w.IterationRequire)
	assert.False(t, w.PauseRelease)

	long, ok := w.Action.(*action.PlaceBoolMarketOrder)
	require.True(t, ok)
	p := long.Params()
	assert.Equal(t, int64(420), p.MainPrice1000)
	assert.Equal(t, domain.BoolSideLong, p.BoolSide)
	assert.Equal(t, int64(10_000), p.Size1000)
}

func TestQuoteBrainFreeze(t *testing.T) {
	q := newQuote(t, staticBooks{"yes": 420})
	wishes, err := q.UpdateStateAndGetActions(context.Background(), true)
	require.NoError(t, err)
	assert.Empty(t, wishes)
}

func TestQuoteBrainNoBook(t *testing.T) {
	q := newQuote(t, staticBooks{})
	wishes, err := q.UpdateStateAndGetActions(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, wishes)
}

func TestQuoteBrainCancelsDriftedQuote(t *testing.T) {
	books := staticBooks{"yes": 420}
	q := newQuote(t, books)
	ctx := context.Background()

	wishes, err := q.UpdateStateAndGetActions(ctx, false)
	require.NoError(t, err)
	execute(t, wishes[0].Action, "0xq1")
	q.OnExecuted(ctx, []action.Action{wishes[0].Action})
	assert.Equal(t, map[string]int64{"0xq1": 420}, q.Resting())

	books["yes"] = 424
	wishes, err = q.UpdateStateAndGetActions(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, wishes, "drift within tolerance")

	books["yes"] = 440
	wishes, err = q.UpdateStateAndGetActions(ctx, false)
	require.NoError(t, err)
	require.Len(t, wishes, 1)
	cancel, ok := wishes[0].Action.(*action.CancelOrdersByIDs)
	require.True(t, ok)
	assert.Equal(t, []string{"0xq1"}, cancel.OrderIDs())
	assert.Equal(t, quoteCancelLabel, wishes[0].Label)
	assert.Equal(t, 1, wishes[0].IterationRequire)

	execute(t, cancel, "0xq1")
	q.OnExecuted(ctx, []action.Action{cancel})
	assert.Empty(t, q.Resting())
}

func TestQuoteBrainIgnoresUnsuccessfulActions(t *testing.T) {
	q := newQuote(t, staticBooks{"yes": 420})
	a, err := action.Long("yes", "no", 420, 10_000)
	require.NoError(t, err)
	require.NoError(t, a.SetAborted())
	q.OnExecuted(context.Background(), []action.Action{a})
	assert.Empty(t, q.Resting())
}

func TestQuoteBrainCancelAllClears(t *testing.T) {
	q := newQuote(t, staticBooks{"yes": 420})
	ctx := context.Background()
	wishes, _ := q.UpdateStateAndGetActions(ctx, false)
	execute(t, wishes[0].Action, "0xq1")
	q.OnExecuted(ctx, []action.Action{wishes[0].Action})

	all := action.NewCancelAllOrders()
	execute(t, all)
	q.OnExecuted(ctx, []action.Action{all})
	assert.Empty(t, q.Resting())
}

func TestQuoteBrainSkipsUnplaceablePrice(t *testing.T) {
	// 50 * 10_000 is below the minimum notional.
	q := newQuote(t, staticBooks{"yes": 50})
	wishes, err := q.UpdateStateAndGetActions(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, wishes)
}

func TestNewQuoteBrainValidation(t *testing.T) {
	_, err := NewQuoteBrain(Config{Name: QuoteBrainName}, Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "condition id is required")
	assert.Contains(t, err.Error(), "book reader is required")
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{ImbalanceBrainName, QuoteBrainName}, r.List())

	b, err := r.Build(quoteCfg(), Deps{Books: staticBooks{}})
	require.NoError(t, err)
	assert.Equal(t, QuoteBrainName, b.Name())

	_, err = r.Build(Config{Name: "nope"}, Deps{})
	assert.ErrorContains(t, err, "not registered")
}
