package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/alanyoungcy/polytrader/internal/action"
	"github.com/alanyoungcy/polytrader/internal/domain"
)

// ImbalanceBrainName is the registry name of ImbalanceBrain.
const ImbalanceBrainName = "imbalance"

const (
	imbalanceLongLabel   = "imbalance-long"
	imbalanceShortLabel  = "imbalance-short"
	imbalanceCancelLabel = "imbalance-cancel"

	defaultRatioThreshold = 1.5
)

// ImbalanceBrain follows top-of-book pressure on the main asset. When the
// notional resting at the best bid outweighs the best ask by RatioThreshold
// it joins the bid with a LONG; the mirror case joins the ask with a SHORT.
// Resting orders are cancelled once the imbalance fades or flips.
//
// Params:
//
//	ratio_threshold  bid/ask notional ratio that counts as pressure (> 1, default 1.5)
//	min_notional     minimum combined top-of-book notional in USDC (default 0)
type ImbalanceBrain struct {
	cfg       Config
	books     BookReader
	logger    *slog.Logger
	threshold float64
	minNotion float64

	mu      sync.Mutex
	resting map[string]domain.BoolSide
}

// NewImbalanceBrain validates cfg and builds an ImbalanceBrain.
func NewImbalanceBrain(cfg Config, deps Deps) (Brain, error) {
	if err := validate(cfg, deps); err != nil {
		return nil, err
	}
	threshold, err := paramFloat(cfg.Params, "ratio_threshold", defaultRatioThreshold)
	if err != nil {
		return nil, err
	}
	if threshold <= 1 {
		return nil, fmt.Errorf("ratio_threshold must be greater than 1, got %g", threshold)
	}
	minNotional, err := paramFloat(cfg.Params, "min_notional", 0)
	if err != nil {
		return nil, err
	}
	return &ImbalanceBrain{
		cfg:       cfg,
		books:     deps.Books,
		logger:    brainLogger(deps, ImbalanceBrainName),
		threshold: threshold,
		minNotion: minNotional,
		resting:   make(map[string]domain.BoolSide),
	}, nil
}

func (b *ImbalanceBrain) Name() string { return ImbalanceBrainName }

func (b *ImbalanceBrain) UpdateStateAndGetActions(_ context.Context, freeze bool) ([]Wish, error) {
	if freeze {
		return nil, nil
	}
	bid, okBid := b.books.BestBid(b.cfg.MainAssetID)
	ask, okAsk := b.books.BestAsk(b.cfg.MainAssetID)
	if !okBid || !okAsk {
		return nil, nil
	}
	signal, ratio := b.pressure(bid, ask)

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.resting) == 0 {
		var (
			a     *action.PlaceBoolMarketOrder
			label string
			err   error
		)
		switch signal {
		case domain.BoolSideLong:
			a, err = action.Long(b.cfg.MainAssetID, b.cfg.CounterAssetID, bid.Price1000, b.cfg.Size1000)
			label = imbalanceLongLabel
		case domain.BoolSideShort:
			a, err = action.Short(b.cfg.MainAssetID, b.cfg.CounterAssetID, ask.Price1000, b.cfg.Size1000)
			label = imbalanceShortLabel
		default:
			return nil, nil
		}
		if err != nil {
			b.logger.Debug("imbalance order not placeable", slog.Float64("ratio", ratio), slog.String("error", err.Error()))
			return nil, nil
		}
		return []Wish{{Action: a, Label: label, IterationRequire: b.cfg.PlaceRequire}}, nil
	}

	var stale []string
	for id, side := range b.resting {
		if side != signal {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return nil, nil
	}
	slices.Sort(stale)
	a, err := action.NewCancelOrdersByIDs(stale...)
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", ImbalanceBrainName, err)
	}
	return []Wish{{Action: a, Label: imbalanceCancelLabel, IterationRequire: b.cfg.CancelRequire}}, nil
}

// pressure returns the side the top of book leans to, or the empty side when
// it is balanced or too thin.
func (b *ImbalanceBrain) pressure(bid, ask domain.PriceLevel) (domain.BoolSide, float64) {
	bidNotional := float64(bid.Price1000) * float64(bid.Size1000) / 1e6
	askNotional := float64(ask.Price1000) * float64(ask.Size1000) / 1e6
	if bidNotional <= 0 || askNotional <= 0 || bidNotional+askNotional < b.minNotion {
		return "", 0
	}
	ratio := bidNotional / askNotional
	switch {
	case ratio >= b.threshold:
		return domain.BoolSideLong, ratio
	case 1/ratio >= b.threshold:
		return domain.BoolSideShort, ratio
	default:
		return "", ratio
	}
}

func (b *ImbalanceBrain) OnExecuted(_ context.Context, actions []action.Action) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, a := range actions {
		if !a.IsSuccess() {
			continue
		}
		switch v := a.(type) {
		case *action.PlaceBoolMarketOrder:
			p := v.Params()
			if p.MainAssetID != b.cfg.MainAssetID {
				continue
			}
			for _, id := range v.RelatedOrderIDs() {
				b.resting[id] = p.BoolSide
			}
		case *action.CancelOrdersByIDs:
			for _, id := range v.OrderIDs() {
				delete(b.resting, id)
			}
		case *action.CancelOrdersByMarket:
			if v.ConditionID() == b.cfg.ConditionID {
				clear(b.resting)
			}
		case *action.CancelAllOrders:
			clear(b.resting)
		}
	}
}

// Resting returns the tracked resting orders by side.
func (b *ImbalanceBrain) Resting() map[string]domain.BoolSide {
	b.mu.Lock()
	defer b.mu.Unlock()
	return maps.Clone(b.resting)
}

// paramFloat reads a numeric param. TOML decodes integers as int64.
func paramFloat(params map[string]any, key string, def float64) (float64, error) {
	v, ok := params[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("param %s: want a number, got %T", key, v)
	}
}
