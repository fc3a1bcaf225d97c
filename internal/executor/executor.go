package executor

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/alanyoungcy/polytrader/internal/action"
	"github.com/alanyoungcy/polytrader/internal/domain"
	"github.com/alanyoungcy/polytrader/internal/metrics"
)

// ExchangeClient is the exchange surface the executor drives. Each method is
// one remote call; retries, if any, belong to the implementation.
type ExchangeClient interface {
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (orderID string, err error)
	CancelOrders(ctx context.Context, orderIDs []string) (canceled []string, err error)
	CancelMarketOrders(ctx context.Context, conditionID, assetID string) (canceled []string, err error)
	CancelAll(ctx context.Context) (canceled []string, err error)
}

// groupOrder is the execution order of action kinds: exposure is removed
// before new orders go out.
var groupOrder = map[action.Kind]int{
	action.KindCancelAllOrders:      0,
	action.KindCancelOrdersByMarket: 1,
	action.KindCancelOrdersByIDs:    2,
	action.KindPlaceBoolMarketOrder: 3,
	action.KindPlaceDirectOrder:     4,
}

// Executor turns approved actions into exchange calls, one call per atomic
// action, and records the outcome on each action.
type Executor struct {
	client   ExchangeClient
	registry *action.Registry
	logger   *slog.Logger

	limiter domain.RateLimiter
	rateKey string
	metrics *metrics.Metrics
}

// NewExecutor creates an Executor. Children of composite actions are
// registered in registry so their parents can be settled.
func NewExecutor(client ExchangeClient, registry *action.Registry, logger *slog.Logger) *Executor {
	return &Executor{
		client:   client,
		registry: registry,
		logger:   logger.With(slog.String("component", "executor")),
	}
}

// SetRateLimiter makes every exchange call wait on limiter under key.
func (e *Executor) SetRateLimiter(limiter domain.RateLimiter, key string) {
	e.limiter = limiter
	e.rateKey = key
}

// SetMetrics enables exchange call metrics.
func (e *Executor) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// Execute runs approved actions grouped by kind (cancel-all, cancel by
// market, cancel by ids, bool market orders, direct orders), keeping
// submission order within a group. The first exchange failure marks its
// action failed, aborts every action not yet started and is returned.
func (e *Executor) Execute(ctx context.Context, approved []action.Action) error {
	for i, a := range approved {
		if a == nil {
			return fmt.Errorf("executor: action %d is nil: %w", i, domain.ErrUnknownAction)
		}
	}

	ordered := slices.Clone(approved)
	slices.SortStableFunc(ordered, func(a, b action.Action) int {
		return groupOrder[a.Kind()] - groupOrder[b.Kind()]
	})

	v := &visitor{ctx: ctx, e: e}
	for i, a := range ordered {
		if err := a.Accept(v); err != nil {
			e.abortUnstarted(ordered[i:])
			return err
		}
	}
	return nil
}

func (e *Executor) abortUnstarted(as []action.Action) {
	for _, a := range as {
		if a.IsStarted() || a.IsAborted() {
			continue
		}
		if err := a.SetAborted(); err != nil {
			e.logger.Warn("abort failed", slog.String("action_id", a.ID()), slog.String("error", err.Error()))
			continue
		}
		e.logger.Info("action aborted",
			slog.String("action_id", a.ID()),
			slog.String("kind", a.Kind().String()),
		)
	}
}

// run starts a, performs one exchange call and records its outcome.
func (e *Executor) run(ctx context.Context, a action.Action, op string, call func(context.Context) ([]string, error)) error {
	log := e.logger.With(
		slog.String("action_id", a.ID()),
		slog.String("kind", a.Kind().String()),
	)
	if a.ParentID() != "" {
		log = log.With(slog.String("parent_id", a.ParentID()))
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx, e.rateKey); err != nil {
			return fmt.Errorf("executor: %s %s: rate limit: %w", op, a.ID(), err)
		}
	}
	if err := a.SetStarted(); err != nil {
		return fmt.Errorf("executor: %s: %w", op, err)
	}

	start := time.Now()
	orderIDs, callErr := call(ctx)
	e.metrics.ObserveExchangeCall(op, time.Since(start), callErr)

	if callErr != nil {
		if err := a.SetFinalStatus(false, true); err != nil {
			return fmt.Errorf("executor: %s: %w", op, err)
		}
		log.Error("exchange call failed",
			slog.String("op", op),
			slog.String("error", callErr.Error()),
		)
		return fmt.Errorf("executor: %s %s: %w", op, a.ID(), callErr)
	}

	if err := a.AttachOrderIDs(orderIDs...); err != nil {
		return fmt.Errorf("executor: %s: %w", op, err)
	}
	if err := a.SetFinalStatus(true, false); err != nil {
		return fmt.Errorf("executor: %s: %w", op, err)
	}
	log.Info("action executed",
		slog.String("op", op),
		slog.Any("order_ids", orderIDs),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}

// visitor dispatches each variant to its exchange call.
type visitor struct {
	ctx context.Context
	e   *Executor
}

func (v *visitor) VisitPlaceDirectOrder(a *action.PlaceDirectOrder) error {
	req := a.OrderRequest()
	return v.e.run(v.ctx, a, "place_order", func(ctx context.Context) ([]string, error) {
		id, err := v.e.client.PlaceOrder(ctx, req)
		if err != nil {
			return nil, err
		}
		return []string{id}, nil
	})
}

func (v *visitor) VisitCancelOrdersByIDs(a *action.CancelOrdersByIDs) error {
	ids := a.OrderIDs()
	return v.e.run(v.ctx, a, "cancel_orders", func(ctx context.Context) ([]string, error) {
		return v.e.client.CancelOrders(ctx, ids)
	})
}

func (v *visitor) VisitCancelOrdersByMarket(a *action.CancelOrdersByMarket) error {
	return v.e.run(v.ctx, a, "cancel_market_orders", func(ctx context.Context) ([]string, error) {
		return v.e.client.CancelMarketOrders(ctx, a.ConditionID(), a.AssetID())
	})
}

func (v *visitor) VisitCancelAllOrders(a *action.CancelAllOrders) error {
	return v.e.run(v.ctx, a, "cancel_all", func(ctx context.Context) ([]string, error) {
		return v.e.client.CancelAll(ctx)
	})
}

// VisitPlaceBoolMarketOrder decomposes the composite, executes its children
// and settles the parent from them.
func (v *visitor) VisitPlaceBoolMarketOrder(a *action.PlaceBoolMarketOrder) error {
	reg := v.e.registry
	if _, ok := reg.Get(a.ID()); !ok {
		if err := reg.Add(a); err != nil {
			return fmt.Errorf("executor: register %s: %w", a.ID(), err)
		}
	}

	children, err := a.ToAtomicActions()
	if err != nil {
		return fmt.Errorf("executor: decompose %s: %w", a.ID(), err)
	}
	if err := reg.Add(children...); err != nil {
		return fmt.Errorf("executor: register children of %s: %w", a.ID(), err)
	}

	var execErr error
	for i, c := range children {
		if err := c.SetApproved(); err != nil {
			return fmt.Errorf("executor: approve child %s: %w", c.ID(), err)
		}
		if execErr = c.Accept(v); execErr != nil {
			v.e.abortUnstarted(children[i+1:])
			break
		}
	}

	for _, c := range children {
		if !c.IsDone() {
			// An aborted child leaves the parent unsettleable.
			if err := a.SetAborted(); err != nil {
				return fmt.Errorf("executor: abort %s: %w", a.ID(), err)
			}
			return execErr
		}
	}
	if err := reg.Settle(a.ID()); err != nil {
		return fmt.Errorf("executor: settle %s: %w", a.ID(), err)
	}
	return execErr
}
