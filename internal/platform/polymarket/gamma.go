package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/alanyoungcy/polytrader/internal/domain"
)

// GammaClient reads market metadata from the Polymarket Gamma API.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGammaClient creates a Gamma client for baseURL, e.g.
// "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string) *GammaClient {
	return &GammaClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// GetMarket resolves a market and its two outcome tokens by condition id.
func (g *GammaClient) GetMarket(ctx context.Context, conditionID string) (domain.Market, error) {
	params := url.Values{}
	params.Set("condition_ids", conditionID)
	m, err := g.single(ctx, "/markets?"+params.Encode())
	if err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: get market %s: %w", conditionID, err)
	}
	return m, nil
}

// GetMarketBySlug resolves a market by its URL slug.
func (g *GammaClient) GetMarketBySlug(ctx context.Context, slug string) (domain.Market, error) {
	params := url.Values{}
	params.Set("slug", slug)
	m, err := g.single(ctx, "/markets?"+params.Encode())
	if err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: get market by slug %s: %w", slug, err)
	}
	return m, nil
}

func (g *GammaClient) single(ctx context.Context, path string) (domain.Market, error) {
	body, err := g.doGet(ctx, path)
	if err != nil {
		return domain.Market{}, err
	}
	var markets []apiMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return domain.Market{}, fmt.Errorf("decode markets: %w", err)
	}
	if len(markets) == 0 {
		return domain.Market{}, domain.ErrNotFound
	}
	return markets[0].toDomain()
}

func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}
