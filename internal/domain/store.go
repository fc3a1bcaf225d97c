package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ActionRecord is the persisted outcome of one trading action.
type ActionRecord struct {
	ID              string    `json:"id"`
	ParentID        string    `json:"parent_id,omitempty"`
	RunID           string    `json:"run_id"`
	Kind            string    `json:"kind"`
	State           string    `json:"state"`
	Label           string    `json:"label,omitempty"`
	Detail          string    `json:"detail"`
	RelatedOrderIDs []string  `json:"related_order_ids,omitempty"`
	Iteration       int64     `json:"iteration"`
	RecordedAt      time.Time `json:"recorded_at"`
}

// ActionStore persists finished actions.
type ActionStore interface {
	Insert(ctx context.Context, rec ActionRecord) error
	ListByRun(ctx context.Context, runID string, opts ListOpts) ([]ActionRecord, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
