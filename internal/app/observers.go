package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polytrader/internal/domain"
	"github.com/alanyoungcy/polytrader/internal/executor"
	"github.com/alanyoungcy/polytrader/internal/notify"
	"github.com/alanyoungcy/polytrader/internal/permission"
)

const observerTimeout = 10 * time.Second

// notifyAsync sends a notification without blocking the caller, which is
// usually inside a tick.
func (a *App) notifyAsync(n *notify.Notifier, event, title, message string) {
	if !n.Enabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), observerTimeout)
		defer cancel()
		if err := n.Notify(ctx, event, title, message); err != nil {
			a.logger.Warn("notification failed", slog.String("event", event), slog.String("error", err.Error()))
		}
	}()
}

// lockChange is the audit and bus form of a permission.Change.
type lockChange struct {
	Op       string    `json:"op"`
	Owner    string    `json:"owner,omitempty"`
	Level    int       `json:"level"`
	Previous int       `json:"previous"`
	Current  int       `json:"current"`
	Label    string    `json:"label"`
	At       time.Time `json:"at"`
}

// lockObserver fans permission lock changes out to the audit log, the signal
// bus and, when the effective level moves, the notifier.
func (a *App) lockObserver(ctx context.Context, deps *Dependencies, lock *permission.Lock) func(permission.Change) {
	return func(ch permission.Change) {
		ev := lockChange{
			Op:       ch.Op,
			Owner:    ch.Owner,
			Level:    ch.Level,
			Previous: ch.Previous,
			Current:  ch.Current,
			Label:    lock.Label(ch.Current),
			At:       ch.At,
		}
		a.logger.Info("permission lock changed",
			slog.String("op", ev.Op),
			slog.String("owner", ev.Owner),
			slog.Int("previous", ev.Previous),
			slog.Int("current", ev.Current),
			slog.String("label", ev.Label),
		)

		if ev.Previous != ev.Current {
			a.notifyAsync(deps.Notifier, notify.EventLockChange,
				"Permission lock "+ev.Label,
				fmt.Sprintf("%s by %q: level %d -> %d", ev.Op, ev.Owner, ev.Previous, ev.Current))
		}
		if deps.AuditStore == nil && deps.SignalBus == nil {
			return
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), observerTimeout)
			defer cancel()
			if deps.AuditStore != nil {
				err := deps.AuditStore.Log(ctx, "permission."+ev.Op, map[string]any{
					"owner":    ev.Owner,
					"level":    ev.Level,
					"previous": ev.Previous,
					"current":  ev.Current,
				})
				if err != nil {
					a.logger.Warn("audit lock change failed", slog.String("error", err.Error()))
				}
			}
			if deps.SignalBus != nil {
				payload, _ := json.Marshal(ev)
				if err := deps.SignalBus.Publish(ctx, lockChannel, payload); err != nil {
					a.logger.Warn("publish lock change failed", slog.String("error", err.Error()))
				}
			}
		}()
	}
}

// notifyingExchange reports failed exchange calls to the notifier. The
// notifier's dedup window keeps a failing exchange from flooding channels.
type notifyingExchange struct {
	executor.ExchangeClient
	notifier *notify.Notifier
	logger   *slog.Logger
}

func (n *notifyingExchange) report(op string, err error) {
	if err == nil || !n.notifier.Enabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), observerTimeout)
		defer cancel()
		if nerr := n.notifier.Notify(ctx, notify.EventExecutionFail, "Exchange "+op+" failed", err.Error()); nerr != nil {
			n.logger.Warn("notification failed", slog.String("error", nerr.Error()))
		}
	}()
}

func (n *notifyingExchange) PlaceOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	id, err := n.ExchangeClient.PlaceOrder(ctx, req)
	n.report("place_order", err)
	return id, err
}

func (n *notifyingExchange) CancelOrders(ctx context.Context, orderIDs []string) ([]string, error) {
	ids, err := n.ExchangeClient.CancelOrders(ctx, orderIDs)
	n.report("cancel_orders", err)
	return ids, err
}

func (n *notifyingExchange) CancelMarketOrders(ctx context.Context, conditionID, assetID string) ([]string, error) {
	ids, err := n.ExchangeClient.CancelMarketOrders(ctx, conditionID, assetID)
	n.report("cancel_market_orders", err)
	return ids, err
}

func (n *notifyingExchange) CancelAll(ctx context.Context) ([]string, error) {
	ids, err := n.ExchangeClient.CancelAll(ctx)
	n.report("cancel_all", err)
	return ids, err
}
