package polymarket

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/polytrader/internal/crypto"
	"github.com/alanyoungcy/polytrader/internal/domain"
)

// flexBool unmarshals from a JSON bool or a "true"/"false" string; Gamma
// sends both.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// stringList unmarshals a JSON array or a JSON-encoded array inside a string,
// e.g. "[\"Yes\",\"No\"]".
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*l = arr
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*l = nil
		return nil
	}
	if err := json.Unmarshal([]byte(s), &arr); err != nil {
		return fmt.Errorf("decode embedded list %q: %w", s, err)
	}
	*l = arr
	return nil
}

// --------------------------------------------------------------------------
// CLOB
// --------------------------------------------------------------------------

// signedOrder is the order object of POST /order.
type signedOrder struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

type postOrderRequest struct {
	Order     signedOrder `json:"order"`
	Owner     string      `json:"owner"`
	OrderType string      `json:"orderType"`
}

// apiOrderResult is the response of POST /order.
type apiOrderResult struct {
	Success     bool   `json:"success"`
	ErrorMsg    string `json:"errorMsg,omitempty"`
	OrderID     string `json:"orderID,omitempty"`
	Status      string `json:"status,omitempty"`
	ShouldRetry bool   `json:"shouldRetry,omitempty"`
}

func (r apiOrderResult) toDomain() domain.OrderResult {
	res := domain.OrderResult{
		Success:     r.Success,
		OrderID:     r.OrderID,
		Message:     r.ErrorMsg,
		ShouldRetry: r.ShouldRetry,
	}
	switch r.Status {
	case "live", "open":
		res.Status = domain.OrderStatusOpen
	case "matched":
		res.Status = domain.OrderStatusMatched
	case "delayed", "unmatched":
		res.Status = domain.OrderStatusPending
	default:
		if r.Success {
			res.Status = domain.OrderStatusPending
		} else {
			res.Status = domain.OrderStatusFailed
		}
	}
	return res
}

// cancelResponse is the response of every cancel endpoint.
type cancelResponse struct {
	Canceled    []string          `json:"canceled"`
	NotCanceled map[string]string `json:"not_canceled"`
}

// orderAmounts converts a 1/1000 order into the 6-decimal maker and taker
// amounts of the signed struct. A BUY gives USDC and takes shares; a SELL
// gives shares and takes USDC. Prices outside (0, 1000) and sizes whose
// share amount does not fit int64 are rejected.
func orderAmounts(req domain.OrderRequest) (maker, taker int64, side int, err error) {
	if req.Price1000 <= 0 || req.Price1000 >= 1000 {
		return 0, 0, 0, fmt.Errorf("price1000 %d out of (0, 1000): %w", req.Price1000, domain.ErrInvalidAction)
	}
	if req.Size1000 <= 0 || req.Size1000 > math.MaxInt64/1000 {
		return 0, 0, 0, fmt.Errorf("size1000 %d out of range: %w", req.Size1000, domain.ErrInvalidAction)
	}
	usdc := req.Price1000 * req.Size1000 // (p/1e3)*(s/1e3)*1e6
	shares := req.Size1000 * 1000        // (s/1e3)*1e6
	if req.Side == domain.OrderSideSell {
		return shares, usdc, crypto.SideSell, nil
	}
	return usdc, shares, crypto.SideBuy, nil
}

// --------------------------------------------------------------------------
// Gamma
// --------------------------------------------------------------------------

// apiMarket is the subset of a Gamma market the runner uses.
type apiMarket struct {
	ID           string     `json:"id"`
	Question     string     `json:"question"`
	ConditionID  string     `json:"conditionId"`
	Slug         string     `json:"slug"`
	Active       flexBool   `json:"active"`
	Closed       flexBool   `json:"closed"`
	NegRisk      bool       `json:"negRisk"`
	Outcomes     stringList `json:"outcomes"`
	ClobTokenIDs stringList `json:"clobTokenIds"`
}

func (m apiMarket) toDomain() (domain.Market, error) {
	if len(m.ClobTokenIDs) != 2 {
		return domain.Market{}, fmt.Errorf("market %s has %d outcome tokens, want 2", m.ConditionID, len(m.ClobTokenIDs))
	}
	dm := domain.Market{
		ConditionID: m.ConditionID,
		Question:    m.Question,
		Slug:        m.Slug,
		Outcomes:    [2]string{"Yes", "No"},
		TokenIDs:    [2]string{m.ClobTokenIDs[0], m.ClobTokenIDs[1]},
		Active:      bool(m.Active),
		Closed:      bool(m.Closed),
		NegRisk:     m.NegRisk,
	}
	if len(m.Outcomes) == 2 {
		dm.Outcomes = [2]string{m.Outcomes[0], m.Outcomes[1]}
	}
	return dm, nil
}

// --------------------------------------------------------------------------
// WebSocket
// --------------------------------------------------------------------------

// subscribeCommand is the market channel subscription frame.
type subscribeCommand struct {
	Type     string   `json:"type"`
	AssetIDs []string `json:"assets_ids"`
}

type wsLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type wsPriceChange struct {
	AssetID string `json:"asset_id"`
	Price   string `json:"price"`
	Size    string `json:"size"`
	Side    string `json:"side"`
}

// wsEvent covers the book and price_change events of the market channel.
// Older feeds put one asset's changes in Changes; newer ones list
// per-asset changes in PriceChanges.
type wsEvent struct {
	EventType    string          `json:"event_type"`
	AssetID      string          `json:"asset_id"`
	Market       string          `json:"market"`
	Timestamp    string          `json:"timestamp"`
	Bids         []wsLevel       `json:"bids"`
	Asks         []wsLevel       `json:"asks"`
	Changes      []wsPriceChange `json:"changes"`
	PriceChanges []wsPriceChange `json:"price_changes"`
}

func (e wsEvent) snapshot() (domain.OrderbookSnapshot, error) {
	snap := domain.OrderbookSnapshot{
		AssetID:   e.AssetID,
		Market:    e.Market,
		Timestamp: parseTimestamp(e.Timestamp),
	}
	var err error
	if snap.Bids, err = levels(e.Bids); err != nil {
		return snap, fmt.Errorf("book %s bids: %w", e.AssetID, err)
	}
	if snap.Asks, err = levels(e.Asks); err != nil {
		return snap, fmt.Errorf("book %s asks: %w", e.AssetID, err)
	}
	return snap, nil
}

func (e wsEvent) changes() ([]domain.PriceChange, error) {
	ts := parseTimestamp(e.Timestamp)
	raw := e.PriceChanges
	if len(raw) == 0 {
		raw = e.Changes
	}
	out := make([]domain.PriceChange, 0, len(raw))
	for _, c := range raw {
		asset := c.AssetID
		if asset == "" {
			asset = e.AssetID
		}
		p, err := parse1000(c.Price)
		if err != nil {
			return nil, fmt.Errorf("price change %s: %w", asset, err)
		}
		s, err := parse1000(c.Size)
		if err != nil {
			return nil, fmt.Errorf("price change %s: %w", asset, err)
		}
		side := domain.OrderSide(strings.ToUpper(c.Side))
		if !side.Valid() {
			return nil, fmt.Errorf("price change %s: unknown side %q", asset, c.Side)
		}
		out = append(out, domain.PriceChange{
			AssetID:   asset,
			Side:      side,
			Price1000: p,
			Size1000:  s,
			Timestamp: ts,
		})
	}
	return out, nil
}

func levels(in []wsLevel) ([]domain.PriceLevel, error) {
	out := make([]domain.PriceLevel, 0, len(in))
	for _, l := range in {
		p, err := parse1000(l.Price)
		if err != nil {
			return nil, err
		}
		s, err := parse1000(l.Size)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.PriceLevel{Price1000: p, Size1000: s})
	}
	return out, nil
}

// parse1000 parses a decimal string into 1/1000 units, rounding half away
// from zero.
func parse1000(s string) (int64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, err)
	}
	return int64(math.Round(f * 1000)), nil
}

// parseTimestamp accepts unix milliseconds, unix seconds or RFC 3339 and
// falls back to now.
func parseTimestamp(s string) time.Time {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC()
		}
		return time.Unix(n, 0).UTC()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Now().UTC()
}
