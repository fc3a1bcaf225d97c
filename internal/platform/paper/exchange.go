// Package paper is an in-memory exchange used for paper trading. Orders
// never fill: good-till orders rest until cancelled, FOK/FAK orders expire
// immediately.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/polytrader/internal/domain"
)

// Order is a resting paper order.
type Order struct {
	ID          string
	ConditionID string
	domain.OrderRequest
	CreatedAt time.Time

	seq int64
}

// Exchange is a paper ExchangeClient. It is safe for concurrent use.
type Exchange struct {
	mu      sync.Mutex
	orders  map[string]Order
	markets map[string]string // token id -> condition id
	seq     int64
	logger  *slog.Logger

	failures int
	failErr  error
}

// New creates an empty paper exchange.
func New(logger *slog.Logger) *Exchange {
	return &Exchange{
		orders:  make(map[string]Order),
		markets: make(map[string]string),
		logger:  logger.With(slog.String("component", "paper_exchange")),
	}
}

// RegisterMarket maps both outcome tokens of m to its condition id so
// market-wide cancels can find their orders.
func (e *Exchange) RegisterMarket(m domain.Market) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, tok := range m.TokenIDs {
		if tok != "" {
			e.markets[tok] = m.ConditionID
		}
	}
}

// FailNext makes the next n calls return err.
func (e *Exchange) FailNext(n int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures = n
	e.failErr = err
}

func (e *Exchange) injected(op string) error {
	if e.failures <= 0 {
		return nil
	}
	e.failures--
	return fmt.Errorf("paper: %s: %w", op, e.failErr)
}

// PlaceOrder accepts the order and returns its id.
func (e *Exchange) PlaceOrder(_ context.Context, req domain.OrderRequest) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.injected("place order"); err != nil {
		return "", err
	}

	id := "paper-" + uuid.New().String()
	e.seq++
	if req.Type == domain.OrderTypeGTC || req.Type == domain.OrderTypeGTD {
		e.orders[id] = Order{
			ID:           id,
			ConditionID:  e.markets[req.TokenID],
			OrderRequest: req,
			CreatedAt:    time.Now().UTC(),
			seq:          e.seq,
		}
	}
	e.logger.Info("paper order placed",
		slog.String("order_id", id),
		slog.String("token", req.TokenID),
		slog.String("side", string(req.Side)),
		slog.Float64("price", req.Price()),
		slog.Float64("size", req.Size()),
	)
	return id, nil
}

// CancelOrders removes the given orders and returns those that were open.
func (e *Exchange) CancelOrders(_ context.Context, orderIDs []string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.injected("cancel orders"); err != nil {
		return nil, err
	}
	var canceled []string
	for _, id := range orderIDs {
		if _, ok := e.orders[id]; ok {
			delete(e.orders, id)
			canceled = append(canceled, id)
		}
	}
	return canceled, nil
}

// CancelMarketOrders removes every order of conditionID, narrowed to
// assetID when set.
func (e *Exchange) CancelMarketOrders(_ context.Context, conditionID, assetID string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.injected("cancel market orders"); err != nil {
		return nil, err
	}
	return e.cancelWhere(func(o Order) bool {
		return o.ConditionID == conditionID && (assetID == "" || o.TokenID == assetID)
	}), nil
}

// CancelAll removes every open order.
func (e *Exchange) CancelAll(_ context.Context) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.injected("cancel all"); err != nil {
		return nil, err
	}
	return e.cancelWhere(func(Order) bool { return true }), nil
}

func (e *Exchange) cancelWhere(match func(Order) bool) []string {
	var hit []Order
	for _, o := range e.orders {
		if match(o) {
			hit = append(hit, o)
		}
	}
	slices.SortFunc(hit, func(a, b Order) int { return int(a.seq - b.seq) })
	ids := make([]string, 0, len(hit))
	for _, o := range hit {
		delete(e.orders, o.ID)
		ids = append(ids, o.ID)
	}
	return ids
}

// OpenOrders returns the resting orders in placement order.
func (e *Exchange) OpenOrders() []Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Order, 0, len(e.orders))
	for _, o := range e.orders {
		out = append(out, o)
	}
	slices.SortFunc(out, func(a, b Order) int { return int(a.seq - b.seq) })
	return out
}
