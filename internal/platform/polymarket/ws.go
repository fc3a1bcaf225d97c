package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/polytrader/internal/domain"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// BookUpdateHandler receives full book snapshots.
type BookUpdateHandler func(domain.OrderbookSnapshot)

// PriceChangeHandler receives incremental level updates.
type PriceChangeHandler func(domain.PriceChange)

// WSClient follows the CLOB market channel for a fixed set of assets and
// dispatches book events to handlers. Register handlers before Run.
type WSClient struct {
	wsURL    string
	assetIDs []string
	logger   *slog.Logger
	dialer   websocket.Dialer

	handlerMu     sync.RWMutex
	bookHandlers  []BookUpdateHandler
	priceHandlers []PriceChangeHandler
}

// NewWSClient creates a client for wsURL, e.g.
// "wss://ws-subscriptions-clob.polymarket.com/ws/market".
func NewWSClient(wsURL string, assetIDs []string, logger *slog.Logger) *WSClient {
	return &WSClient{
		wsURL:    wsURL,
		assetIDs: assetIDs,
		logger:   logger.With(slog.String("component", "ws")),
		dialer:   websocket.Dialer{HandshakeTimeout: 15 * time.Second},
	}
}

// OnBookUpdate registers a snapshot handler.
func (w *WSClient) OnBookUpdate(h BookUpdateHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.bookHandlers = append(w.bookHandlers, h)
}

// OnPriceChange registers a level update handler.
func (w *WSClient) OnPriceChange(h PriceChangeHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.priceHandlers = append(w.priceHandlers, h)
}

// Run connects, subscribes and reads until ctx is done, reconnecting with
// exponential backoff after every disconnect. The server sends a fresh book
// snapshot after each subscribe, so no state is carried across connections.
func (w *WSClient) Run(ctx context.Context) error {
	delay := reconnectDelay
	for {
		err := w.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			delay = reconnectDelay
		}
		w.logger.Warn("market feed disconnected, reconnecting",
			slog.String("error", errString(err)),
			slog.Duration("delay", delay),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

// session runs one connection. It returns nil when at least one message was
// read before the disconnect, so the backoff restarts.
func (w *WSClient) session(ctx context.Context) error {
	conn, _, err := w.dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("polymarket/ws: connect: %w", err)
	}
	defer conn.Close()

	cmd, err := json.Marshal(subscribeCommand{Type: "market", AssetIDs: w.assetIDs})
	if err != nil {
		return fmt.Errorf("polymarket/ws: marshal subscribe: %w", err)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, cmd); err != nil {
		return fmt.Errorf("polymarket/ws: subscribe: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	var writeMu sync.Mutex
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				writeMu.Lock()
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				writeMu.Unlock()
				_ = conn.Close()
				return
			case <-ticker.C:
				writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
				writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	w.logger.Info("market feed connected", slog.Int("assets", len(w.assetIDs)))
	read := 0
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if read > 0 {
				return nil
			}
			return fmt.Errorf("polymarket/ws: read: %w: %w", domain.ErrWSDisconnect, err)
		}
		read++
		w.handleMessage(msg)
	}
}

// handleMessage decodes one frame, which is either a single event or an
// array of events, and dispatches it.
func (w *WSClient) handleMessage(raw []byte) {
	events, err := decodeEvents(raw)
	if err != nil {
		w.logger.Debug("dropping undecodable frame", slog.String("error", err.Error()))
		return
	}

	w.handlerMu.RLock()
	books, prices := w.bookHandlers, w.priceHandlers
	w.handlerMu.RUnlock()

	for _, ev := range events {
		switch ev.EventType {
		case "book":
			snap, err := ev.snapshot()
			if err != nil {
				w.logger.Warn("bad book event", slog.String("error", err.Error()))
				continue
			}
			for _, h := range books {
				h(snap)
			}
		case "price_change":
			changes, err := ev.changes()
			if err != nil {
				w.logger.Warn("bad price change event", slog.String("error", err.Error()))
				continue
			}
			for _, c := range changes {
				for _, h := range prices {
					h(c)
				}
			}
		}
	}
}

func decodeEvents(raw []byte) ([]wsEvent, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("empty frame")
	}
	if raw[0] == '[' {
		var evs []wsEvent
		if err := json.Unmarshal(raw, &evs); err != nil {
			return nil, err
		}
		return evs, nil
	}
	var ev wsEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, err
	}
	return []wsEvent{ev}, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
