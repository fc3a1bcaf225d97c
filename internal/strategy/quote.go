package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/alanyoungcy/polytrader/internal/action"
)

// QuoteBrainName is the registry name of QuoteBrain.
const QuoteBrainName = "quote"

const (
	quotePlaceLabel  = "quote-place"
	quoteCancelLabel = "quote-cancel"
)

// QuoteBrain keeps one LONG quote resting at the best bid of a two-outcome
// market. A missing quote is placed after PlaceRequire stable iterations; a
// quote that drifted more than MaxDrift1000 from the bid is cancelled after
// CancelRequire stable iterations.
type QuoteBrain struct {
	cfg    Config
	books  BookReader
	logger *slog.Logger

	mu      sync.Mutex
	resting map[string]int64 // order id -> main price1000
}

// NewQuoteBrain validates cfg and builds a QuoteBrain.
func NewQuoteBrain(cfg Config, deps Deps) (Brain, error) {
	if err := validate(cfg, deps); err != nil {
		return nil, err
	}
	return &QuoteBrain{
		cfg:     cfg,
		books:   deps.Books,
		logger:  brainLogger(deps, QuoteBrainName),
		resting: make(map[string]int64),
	}, nil
}

// Name returns the strategy identifier.
func (q *QuoteBrain) Name() string { return QuoteBrainName }

func (q *QuoteBrain) UpdateStateAndGetActions(_ context.Context, freeze bool) ([]Wish, error) {
	bid, ok := q.books.BestBid(q.cfg.MainAssetID)
	if !ok || freeze {
		return nil, nil
	}
	target := bid.Price1000

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.resting) == 0 {
		if target <= 0 || target >= 1000 {
			return nil, nil
		}
		a, err := action.Long(q.cfg.MainAssetID, q.cfg.CounterAssetID, target, q.cfg.Size1000)
		if err != nil {
			// The bid moved to a price where the configured size misses the
			// minimum notional; wait for the book to move back.
			q.logger.Debug("quote not placeable", slog.Int64("price1000", target), slog.String("error", err.Error()))
			return nil, nil
		}
		return []Wish{{Action: a, Label: quotePlaceLabel, IterationRequire: q.cfg.PlaceRequire}}, nil
	}

	var drifted []string
	for id, price := range q.resting {
		if abs(price-target) > q.cfg.MaxDrift1000 {
			drifted = append(drifted, id)
		}
	}
	if len(drifted) == 0 {
		return nil, nil
	}
	slices.Sort(drifted)
	a, err := action.NewCancelOrdersByIDs(drifted...)
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", QuoteBrainName, err)
	}
	return []Wish{{Action: a, Label: quoteCancelLabel, IterationRequire: q.cfg.CancelRequire}}, nil
}

func (q *QuoteBrain) OnExecuted(_ context.Context, actions []action.Action) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, a := range actions {
		if !a.IsSuccess() {
			continue
		}
		switch v := a.(type) {
		case *action.PlaceBoolMarketOrder:
			p := v.Params()
			if p.MainAssetID != q.cfg.MainAssetID {
				continue
			}
			for _, id := range v.RelatedOrderIDs() {
				q.resting[id] = p.MainPrice1000
			}
		case *action.CancelOrdersByIDs:
			for _, id := range v.OrderIDs() {
				delete(q.resting, id)
			}
		case *action.CancelOrdersByMarket:
			if v.ConditionID() == q.cfg.ConditionID {
				clear(q.resting)
			}
		case *action.CancelAllOrders:
			clear(q.resting)
		}
	}
}

// Resting returns the tracked resting quotes.
func (q *QuoteBrain) Resting() map[string]int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return maps.Clone(q.resting)
}

// validate checks the settings every built-in brain needs.
func validate(cfg Config, deps Deps) error {
	var errs []error
	if cfg.ConditionID == "" {
		errs = append(errs, errors.New("condition id is required"))
	}
	if cfg.MainAssetID == "" || cfg.CounterAssetID == "" {
		errs = append(errs, errors.New("main and counter asset ids are required"))
	}
	if cfg.Size1000 <= 0 {
		errs = append(errs, fmt.Errorf("size1000 must be positive, got %d", cfg.Size1000))
	}
	if cfg.PlaceRequire < 0 || cfg.CancelRequire < 0 {
		errs = append(errs, errors.New("patience requirements must not be negative"))
	}
	if cfg.MaxDrift1000 < 0 {
		errs = append(errs, errors.New("max drift must not be negative"))
	}
	if deps.Books == nil {
		errs = append(errs, errors.New("book reader is required"))
	}
	return errors.Join(errs...)
}

func brainLogger(deps Deps, name string) *slog.Logger {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("strategy", name))
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
