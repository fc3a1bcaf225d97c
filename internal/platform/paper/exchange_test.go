package paper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polytrader/internal/domain"
)

func newExchange() *Exchange {
	e := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.RegisterMarket(domain.Market{ConditionID: "c1", TokenIDs: [2]string{"yes1", "no1"}})
	e.RegisterMarket(domain.Market{ConditionID: "c2", TokenIDs: [2]string{"yes2", "no2"}})
	return e
}

func place(t *testing.T, e *Exchange, token string, typ domain.OrderType) string {
	t.Helper()
	id, err := e.PlaceOrder(context.Background(), domain.OrderRequest{
		TokenID: token, Price1000: 500, Size1000: 2_000, Side: domain.OrderSideBuy, Type: typ,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	return id
}

func TestPlaceAndCancel(t *testing.T) {
	e := newExchange()
	ctx := context.Background()
	a := place(t, e, "yes1", domain.OrderTypeGTC)
	b := place(t, e, "no1", domain.OrderTypeGTD)
	place(t, e, "yes1", domain.OrderTypeFOK)
	c := place(t, e, "yes2", domain.OrderTypeGTC)

	open := e.OpenOrders()
	require.Len(t, open, 3, "FOK orders do not rest")
	assert.Equal(t, a, open[0].ID)
	assert.Equal(t, "c1", open[0].ConditionID)

	canceled, err := e.CancelOrders(ctx, []string{b, "unknown"})
	require.NoError(t, err)
	assert.Equal(t, []string{b}, canceled)

	canceled, err = e.CancelMarketOrders(ctx, "c1", "no1")
	require.NoError(t, err)
	assert.Empty(t, canceled)

	canceled, err = e.CancelMarketOrders(ctx, "c1", "")
	require.NoError(t, err)
	assert.Equal(t, []string{a}, canceled)

	canceled, err = e.CancelAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{c}, canceled)
	assert.Empty(t, e.OpenOrders())
}

func TestFailNext(t *testing.T) {
	e := newExchange()
	boom := errors.New("boom")
	e.FailNext(1, boom)

	_, err := e.CancelAll(context.Background())
	assert.ErrorIs(t, err, boom)
	_, err = e.CancelAll(context.Background())
	assert.NoError(t, err)
}
