// Package polymarket holds the thin Polymarket clients: the CLOB REST API
// for orders, Gamma for market metadata and the market websocket feed.
package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"math/rand/v2"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/polytrader/internal/crypto"
	"github.com/alanyoungcy/polytrader/internal/domain"
)

// ClobConfig configures a ClobClient.
type ClobConfig struct {
	// BaseURL is the CLOB API root, e.g. "https://clob.polymarket.com".
	BaseURL string
	// Funder is the address holding the funds. Empty means the signer's
	// own address (EOA trading).
	Funder        string
	SignatureType int
	FeeRateBps    int
	Timeout       time.Duration
}

// ClobClient is the REST client for the Polymarket CLOB. It implements the
// executor's ExchangeClient: one HTTP call per method.
type ClobClient struct {
	cfg        ClobConfig
	httpClient *http.Client
	signer     *crypto.Signer
	logger     *slog.Logger

	mu       sync.RWMutex
	hmacAuth *crypto.HMACAuth
	negRisk  map[string]bool // token id -> neg-risk market

	salt func() int64
	now  func() time.Time
}

// NewClobClient creates a CLOB client. auth may be nil until DeriveAPIKey
// has run.
func NewClobClient(cfg ClobConfig, signer *crypto.Signer, auth *crypto.HMACAuth, logger *slog.Logger) *ClobClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &ClobClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		signer:     signer,
		hmacAuth:   auth,
		negRisk:    make(map[string]bool),
		logger:     logger.With(slog.String("component", "clob")),
		salt:       func() int64 { return rand.Int64N(1 << 53) },
		now:        time.Now,
	}
}

// RegisterMarket records which exchange contract verifies orders on m's
// tokens.
func (c *ClobClient) RegisterMarket(m domain.Market) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tok := range m.TokenIDs {
		if tok != "" {
			c.negRisk[tok] = m.NegRisk
		}
	}
}

// PlaceOrder signs req and posts it. A response with success=false is an
// error.
func (c *ClobClient) PlaceOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	body, err := c.buildOrder(req)
	if err != nil {
		return "", fmt.Errorf("polymarket/clob: place order: %w", err)
	}

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodPost, "/order", body)
	if err != nil {
		return "", fmt.Errorf("polymarket/clob: place order: %w", err)
	}
	var apiResult apiOrderResult
	if err := json.Unmarshal(respBody, &apiResult); err != nil {
		return "", fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}
	res := apiResult.toDomain()
	if !res.Success || res.OrderID == "" {
		return "", fmt.Errorf("polymarket/clob: order rejected: %s", res.Message)
	}
	c.logger.Debug("order posted",
		slog.String("order_id", res.OrderID),
		slog.String("status", string(res.Status)),
	)
	return res.OrderID, nil
}

func (c *ClobClient) buildOrder(req domain.OrderRequest) (postOrderRequest, error) {
	if _, ok := new(big.Int).SetString(req.TokenID, 10); !ok {
		return postOrderRequest{}, fmt.Errorf("token id %q is not a decimal integer", req.TokenID)
	}
	if req.Price1000 <= 0 || req.Price1000 >= 1000 || req.Size1000 <= 0 {
		return postOrderRequest{}, fmt.Errorf("price %d / size %d out of range: %w",
			req.Price1000, req.Size1000, domain.ErrInvalidAction)
	}

	c.mu.RLock()
	auth := c.hmacAuth
	negRisk := c.negRisk[req.TokenID]
	c.mu.RUnlock()
	if auth == nil {
		return postOrderRequest{}, fmt.Errorf("no api credentials: %w", domain.ErrUnauthorized)
	}

	exchange, err := crypto.ExchangeContract(c.signer.ChainID(), negRisk)
	if err != nil {
		return postOrderRequest{}, err
	}

	signerAddr := c.signer.Address().Hex()
	maker := signerAddr
	if c.cfg.Funder != "" {
		maker = common.HexToAddress(c.cfg.Funder).Hex()
	}
	makerAmt, takerAmt, side, err := orderAmounts(req)
	if err != nil {
		return postOrderRequest{}, err
	}
	salt := c.salt()

	payload := crypto.OrderPayload{
		Salt:          strconv.FormatInt(salt, 10),
		Maker:         maker,
		Signer:        signerAddr,
		Taker:         common.Address{}.Hex(),
		TokenID:       req.TokenID,
		MakerAmount:   strconv.FormatInt(makerAmt, 10),
		TakerAmount:   strconv.FormatInt(takerAmt, 10),
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    strconv.Itoa(c.cfg.FeeRateBps),
		Side:          side,
		SignatureType: c.cfg.SignatureType,
	}
	sig, err := c.signer.SignOrder(payload, exchange)
	if err != nil {
		return postOrderRequest{}, fmt.Errorf("%w: %w", domain.ErrSigningFailed, err)
	}

	return postOrderRequest{
		Order: signedOrder{
			Salt:          salt,
			Maker:         payload.Maker,
			Signer:        payload.Signer,
			Taker:         payload.Taker,
			TokenID:       payload.TokenID,
			MakerAmount:   payload.MakerAmount,
			TakerAmount:   payload.TakerAmount,
			Expiration:    payload.Expiration,
			Nonce:         payload.Nonce,
			FeeRateBps:    payload.FeeRateBps,
			Side:          string(req.Side),
			SignatureType: payload.SignatureType,
			Signature:     sig,
		},
		Owner:     auth.Key,
		OrderType: string(req.Type),
	}, nil
}

// CancelOrders cancels orderIDs and returns those the exchange cancelled.
func (c *ClobClient) CancelOrders(ctx context.Context, orderIDs []string) ([]string, error) {
	return c.cancel(ctx, "/orders", orderIDs)
}

// CancelMarketOrders cancels every order on conditionID, narrowed to
// assetID when set.
func (c *ClobClient) CancelMarketOrders(ctx context.Context, conditionID, assetID string) ([]string, error) {
	body := map[string]string{"market": conditionID}
	if assetID != "" {
		body["asset_id"] = assetID
	}
	return c.cancel(ctx, "/cancel-market-orders", body)
}

// CancelAll cancels every open order of the account.
func (c *ClobClient) CancelAll(ctx context.Context) ([]string, error) {
	return c.cancel(ctx, "/cancel-all", nil)
}

func (c *ClobClient) cancel(ctx context.Context, path string, body any) ([]string, error) {
	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodDelete, path, body)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: cancel %s: %w", path, err)
	}
	var res cancelResponse
	if err := json.Unmarshal(respBody, &res); err != nil {
		return nil, fmt.Errorf("polymarket/clob: decode cancel %s: %w", path, err)
	}
	for id, reason := range res.NotCanceled {
		c.logger.Info("order not cancelled", slog.String("order_id", id), slog.String("reason", reason))
	}
	return res.Canceled, nil
}

// DeriveAPIKey runs the L1 auth flow and stores the returned credentials.
func (c *ClobClient) DeriveAPIKey(ctx context.Context) (*crypto.HMACAuth, error) {
	address := c.signer.Address().Hex()
	timestamp := c.now().Unix()
	const nonce = 0

	sig, err := c.signer.SignAuthMessage(timestamp, nonce)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: sign auth message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/auth/derive-api-key", nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: create auth request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", address)
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", strconv.FormatInt(timestamp, 10))
	req.Header.Set("POLY_NONCE", strconv.Itoa(nonce))

	respBody, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: derive api key: %w", err)
	}

	var authResp struct {
		APIKey     string `json:"apiKey"`
		Secret     string `json:"secret"`
		Passphrase string `json:"passphrase"`
	}
	if err := json.Unmarshal(respBody, &authResp); err != nil {
		return nil, fmt.Errorf("polymarket/clob: decode auth response: %w", err)
	}
	auth := &crypto.HMACAuth{
		Key:        authResp.APIKey,
		Secret:     authResp.Secret,
		Passphrase: authResp.Passphrase,
	}

	c.mu.Lock()
	c.hmacAuth = auth
	c.mu.Unlock()
	return auth, nil
}

// doAuthenticatedRequest sends an L2-signed request and returns the body.
func (c *ClobClient) doAuthenticatedRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	c.mu.RLock()
	auth := c.hmacAuth
	c.mu.RUnlock()
	if auth == nil {
		return nil, fmt.Errorf("no api credentials: %w", domain.ErrUnauthorized)
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	headers := auth.L2HeadersAt(c.signer.Address().Hex(), method, path, string(payload), c.now().Unix())
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.do(req)
}

func (c *ClobClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
