package journal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polytrader/internal/action"
	"github.com/alanyoungcy/polytrader/internal/domain"
)

type memStore struct {
	recs []domain.ActionRecord
	err  error
}

func (m *memStore) Insert(_ context.Context, rec domain.ActionRecord) error {
	if m.err != nil {
		return m.err
	}
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memStore) ListByRun(context.Context, string, domain.ListOpts) ([]domain.ActionRecord, error) {
	return m.recs, nil
}

type memBus struct{ msgs map[string][][]byte }

func (m *memBus) Publish(_ context.Context, ch string, payload []byte) error {
	if m.msgs == nil {
		m.msgs = map[string][][]byte{}
	}
	m.msgs[ch] = append(m.msgs[ch], payload)
	return nil
}

func (m *memBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRecord(t *testing.T) {
	store := &memStore{}
	bus := &memBus{}
	j := New("run-1", discard())
	j.SetStore(store)
	j.SetBus(bus)

	a, err := action.NewCancelOrdersByIDs("o1")
	require.NoError(t, err)
	require.NoError(t, a.SetApproved())
	require.NoError(t, a.SetStarted())
	require.NoError(t, a.AttachOrderIDs("o1"))
	require.NoError(t, a.SetFinalStatus(true, false))

	require.NoError(t, j.Record(context.Background(), 7, "quote-cancel", a))

	require.Len(t, store.recs, 1)
	rec := store.recs[0]
	assert.Equal(t, a.ID(), rec.ID)
	assert.Equal(t, "run-1", rec.RunID)
	assert.Equal(t, "CancelOrdersByIds", rec.Kind)
	assert.Equal(t, "succeeded", rec.State)
	assert.Equal(t, "quote-cancel", rec.Label)
	assert.Equal(t, []string{"o1"}, rec.RelatedOrderIDs)
	assert.Equal(t, int64(7), rec.Iteration)

	require.Len(t, bus.msgs[Channel], 1)
	var published domain.ActionRecord
	require.NoError(t, json.Unmarshal(bus.msgs[Channel][0], &published))
	assert.Equal(t, rec.ID, published.ID)

	assert.Len(t, j.Records(), 1)
}

func TestRecordKeepsMemoryCopyOnStoreError(t *testing.T) {
	boom := errors.New("db down")
	j := New("run-1", discard())
	j.SetStore(&memStore{err: boom})

	err := j.Record(context.Background(), 1, "", action.NewCancelAllOrders())
	assert.ErrorIs(t, err, boom)
	assert.Len(t, j.Records(), 1)
}

func TestLimit(t *testing.T) {
	j := New("run-1", discard())
	j.SetLimit(2)
	for i := range 5 {
		require.NoError(t, j.Record(context.Background(), int64(i), "", action.NewCancelAllOrders()))
	}
	recs := j.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, int64(3), recs[0].Iteration)
	assert.Equal(t, 3, j.Dropped())
}
