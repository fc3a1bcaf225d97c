// Package journal records the outcome of every action of a run. Records go
// to the action store and the signal bus when configured, and are kept in
// memory for the run archive.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/alanyoungcy/polytrader/internal/action"
	"github.com/alanyoungcy/polytrader/internal/domain"
)

// Channel is the signal bus channel action records are published on.
const Channel = "polytrader:actions"

const defaultLimit = 50_000

// Journal is safe for concurrent use.
type Journal struct {
	runID  string
	store  domain.ActionStore
	bus    domain.SignalBus
	logger *slog.Logger

	mu      sync.Mutex
	records []domain.ActionRecord
	limit   int
	dropped int
}

// New creates a journal for runID.
func New(runID string, logger *slog.Logger) *Journal {
	return &Journal{
		runID:  runID,
		logger: logger.With(slog.String("component", "journal")),
		limit:  defaultLimit,
	}
}

// SetStore persists records to store.
func (j *Journal) SetStore(store domain.ActionStore) { j.store = store }

// SetBus publishes records on bus.
func (j *Journal) SetBus(bus domain.SignalBus) { j.bus = bus }

// SetLimit bounds the number of records kept in memory; the oldest are
// dropped first.
func (j *Journal) SetLimit(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.limit = n
}

// RunID returns the run this journal belongs to.
func (j *Journal) RunID() string { return j.runID }

// NewRecord builds the persisted form of a.
func NewRecord(runID string, iteration int64, label string, a action.Action) domain.ActionRecord {
	return domain.ActionRecord{
		ID:              a.ID(),
		ParentID:        a.ParentID(),
		RunID:           runID,
		Kind:            a.Kind().String(),
		State:           a.State().String(),
		Label:           label,
		Detail:          a.String(),
		RelatedOrderIDs: a.RelatedOrderIDs(),
		Iteration:       iteration,
		RecordedAt:      time.Now().UTC(),
	}
}

// Record stores the current state of a. Store and bus failures are returned
// joined; the in-memory record is kept either way.
func (j *Journal) Record(ctx context.Context, iteration int64, label string, a action.Action) error {
	rec := NewRecord(j.runID, iteration, label, a)

	j.mu.Lock()
	j.records = append(j.records, rec)
	if j.limit > 0 && len(j.records) > j.limit {
		over := len(j.records) - j.limit
		j.records = slices.Delete(j.records, 0, over)
		j.dropped += over
	}
	j.mu.Unlock()

	var errs []error
	if j.store != nil {
		if err := j.store.Insert(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("journal: store %s: %w", rec.ID, err))
		}
	}
	if j.bus != nil {
		payload, err := json.Marshal(rec)
		if err == nil {
			err = j.bus.Publish(ctx, Channel, payload)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("journal: publish %s: %w", rec.ID, err))
		}
	}

	j.logger.Debug("action recorded",
		slog.String("action_id", rec.ID),
		slog.String("kind", rec.Kind),
		slog.String("state", rec.State),
		slog.Int64("iteration", iteration),
	)
	return errors.Join(errs...)
}

// Records returns a copy of the in-memory records in recording order.
func (j *Journal) Records() []domain.ActionRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Clone(j.records)
}

// Dropped reports how many records fell out of the in-memory window.
func (j *Journal) Dropped() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dropped
}
