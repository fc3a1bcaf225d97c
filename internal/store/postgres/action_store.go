package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polytrader/internal/domain"
)

// ActionStore implements domain.ActionStore using PostgreSQL. Records are
// keyed by (run_id, id); recording the same action again overwrites its
// state.
type ActionStore struct {
	pool *pgxpool.Pool
}

// NewActionStore creates an ActionStore backed by the given pool.
func NewActionStore(pool *pgxpool.Pool) *ActionStore {
	return &ActionStore{pool: pool}
}

// Insert upserts rec.
func (s *ActionStore) Insert(ctx context.Context, rec domain.ActionRecord) error {
	const query = `
		INSERT INTO actions (id, run_id, parent_id, kind, state, label, detail,
		                     related_order_ids, iteration, recorded_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (run_id, id) DO UPDATE SET
			state = EXCLUDED.state,
			detail = EXCLUDED.detail,
			related_order_ids = EXCLUDED.related_order_ids,
			recorded_at = EXCLUDED.recorded_at`

	related := rec.RelatedOrderIDs
	if related == nil {
		related = []string{}
	}
	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.RunID, rec.ParentID, rec.Kind, rec.State, rec.Label, rec.Detail,
		related, rec.Iteration, rec.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert action %s: %w", rec.ID, err)
	}
	return nil
}

// ListByRun returns the records of runID in recording order.
func (s *ActionStore) ListByRun(ctx context.Context, runID string, opts domain.ListOpts) ([]domain.ActionRecord, error) {
	query, args := listQuery(
		`SELECT id, run_id, COALESCE(parent_id, ''), kind, state, label, detail,
		        related_order_ids, iteration, recorded_at
		   FROM actions WHERE run_id = $1`,
		"recorded_at", "ASC", opts, runID,
	)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list actions of %s: %w", runID, err)
	}
	recs, err := pgx.CollectRows(rows, scanAction)
	if err != nil {
		return nil, fmt.Errorf("postgres: list actions of %s: %w", runID, err)
	}
	return recs, nil
}

func scanAction(row pgx.CollectableRow) (domain.ActionRecord, error) {
	var r domain.ActionRecord
	err := row.Scan(&r.ID, &r.RunID, &r.ParentID, &r.Kind, &r.State, &r.Label, &r.Detail,
		&r.RelatedOrderIDs, &r.Iteration, &r.RecordedAt)
	return r, err
}

var _ domain.ActionStore = (*ActionStore)(nil)
