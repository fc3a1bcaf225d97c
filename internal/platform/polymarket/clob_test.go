package polymarket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polytrader/internal/crypto"
	"github.com/alanyoungcy/polytrader/internal/domain"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type capturedRequest struct {
	method string
	path   string
	header http.Header
	body   []byte
}

type recorder struct {
	mu   sync.Mutex
	reqs []capturedRequest
}

func (r *recorder) all() []capturedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.reqs)
}

func newTestClob(t *testing.T, handler func(w http.ResponseWriter, r capturedRequest)) (*ClobClient, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		cr := capturedRequest{method: r.Method, path: r.URL.Path, header: r.Header.Clone(), body: body}
		rec.mu.Lock()
		rec.reqs = append(rec.reqs, cr)
		rec.mu.Unlock()
		handler(w, cr)
	}))
	t.Cleanup(srv.Close)

	signer, err := crypto.NewSigner(testKey, crypto.ChainPolygon)
	require.NoError(t, err)
	auth := &crypto.HMACAuth{Key: "api-key", Secret: "c2VjcmV0", Passphrase: "pp"}
	c := NewClobClient(ClobConfig{BaseURL: srv.URL}, signer, auth, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.salt = func() int64 { return 42 }
	c.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return c, rec
}

func TestOrderAmounts(t *testing.T) {
	maker, taker, side, err := orderAmounts(domain.OrderRequest{Price1000: 400, Size1000: 5_000, Side: domain.OrderSideBuy})
	require.NoError(t, err)
	assert.Equal(t, int64(2_000_000), maker, "0.4 * 5 = 2 USDC")
	assert.Equal(t, int64(5_000_000), taker, "5 shares")
	assert.Equal(t, crypto.SideBuy, side)

	maker, taker, side, err = orderAmounts(domain.OrderRequest{Price1000: 400, Size1000: 5_000, Side: domain.OrderSideSell})
	require.NoError(t, err)
	assert.Equal(t, int64(5_000_000), maker)
	assert.Equal(t, int64(2_000_000), taker)
	assert.Equal(t, crypto.SideSell, side)
}

func TestOrderAmountsRejectsOverflow(t *testing.T) {
	_, _, _, err := orderAmounts(domain.OrderRequest{Price1000: 5, Size1000: 1 << 62, Side: domain.OrderSideBuy})
	assert.ErrorIs(t, err, domain.ErrInvalidAction)

	_, _, _, err = orderAmounts(domain.OrderRequest{Price1000: 1000, Size1000: 5_000, Side: domain.OrderSideBuy})
	assert.ErrorIs(t, err, domain.ErrInvalidAction)

	maker, taker, _, err := orderAmounts(domain.OrderRequest{Price1000: 999, Size1000: math.MaxInt64 / 1000, Side: domain.OrderSideBuy})
	require.NoError(t, err)
	assert.Positive(t, maker)
	assert.Positive(t, taker)
}

func TestPlaceOrder(t *testing.T) {
	c, reqs := newTestClob(t, func(w http.ResponseWriter, _ capturedRequest) {
		_, _ = io.WriteString(w, `{"success":true,"orderID":"0xabc","status":"live"}`)
	})

	id, err := c.PlaceOrder(context.Background(), domain.OrderRequest{
		TokenID: "1234", Price1000: 400, Size1000: 5_000,
		Side: domain.OrderSideBuy, Type: domain.OrderTypeGTC,
	})
	require.NoError(t, err)
	assert.Equal(t, "0xabc", id)

	all := reqs.all()
	require.Len(t, all, 1)
	r := all[0]
	assert.Equal(t, http.MethodPost, r.method)
	assert.Equal(t, "/order", r.path)
	assert.Equal(t, "api-key", r.header.Get("POLY_API_KEY"))
	assert.Equal(t, "1700000000", r.header.Get("POLY_TIMESTAMP"))
	assert.NotEmpty(t, r.header.Get("POLY_SIGNATURE"))

	var body postOrderRequest
	require.NoError(t, json.Unmarshal(r.body, &body))
	assert.Equal(t, "api-key", body.Owner)
	assert.Equal(t, "GTC", body.OrderType)
	assert.Equal(t, int64(42), body.Order.Salt)
	assert.Equal(t, "1234", body.Order.TokenID)
	assert.Equal(t, "2000000", body.Order.MakerAmount)
	assert.Equal(t, "5000000", body.Order.TakerAmount)
	assert.Equal(t, "BUY", body.Order.Side)
	assert.Equal(t, body.Order.Maker, body.Order.Signer)
	assert.Regexp(t, `^0x[0-9a-f]{130}$`, body.Order.Signature)
}

func TestPlaceOrderRejected(t *testing.T) {
	c, _ := newTestClob(t, func(w http.ResponseWriter, _ capturedRequest) {
		_, _ = io.WriteString(w, `{"success":false,"errorMsg":"not enough balance"}`)
	})
	_, err := c.PlaceOrder(context.Background(), domain.OrderRequest{
		TokenID: "1", Price1000: 500, Size1000: 2_000, Side: domain.OrderSideBuy, Type: domain.OrderTypeGTC,
	})
	assert.ErrorContains(t, err, "not enough balance")
}

func TestPlaceOrderValidatesBeforeSending(t *testing.T) {
	c, reqs := newTestClob(t, func(w http.ResponseWriter, _ capturedRequest) {})
	_, err := c.PlaceOrder(context.Background(), domain.OrderRequest{TokenID: "abc", Price1000: 500, Size1000: 1})
	assert.Error(t, err)
	_, err = c.PlaceOrder(context.Background(), domain.OrderRequest{TokenID: "1", Price1000: 1000, Size1000: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidAction)
	assert.Empty(t, reqs.all())
}

func TestCancelEndpoints(t *testing.T) {
	c, reqs := newTestClob(t, func(w http.ResponseWriter, _ capturedRequest) {
		_, _ = io.WriteString(w, `{"canceled":["a"],"not_canceled":{"b":"already filled"}}`)
	})
	ctx := context.Background()

	got, err := c.CancelOrders(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got)

	_, err = c.CancelMarketOrders(ctx, "0xcond", "")
	require.NoError(t, err)
	_, err = c.CancelMarketOrders(ctx, "0xcond", "tok")
	require.NoError(t, err)
	_, err = c.CancelAll(ctx)
	require.NoError(t, err)

	all := reqs.all()
	require.Len(t, all, 4)
	for _, r := range all {
		assert.Equal(t, http.MethodDelete, r.method)
	}
	assert.Equal(t, "/orders", all[0].path)
	assert.JSONEq(t, `["a","b"]`, string(all[0].body))
	assert.Equal(t, "/cancel-market-orders", all[1].path)
	assert.JSONEq(t, `{"market":"0xcond"}`, string(all[1].body))
	assert.JSONEq(t, `{"market":"0xcond","asset_id":"tok"}`, string(all[2].body))
	assert.Equal(t, "/cancel-all", all[3].path)
	assert.Empty(t, all[3].body)
}

func TestHTTPErrorsMapToDomain(t *testing.T) {
	for status, want := range map[int]error{
		http.StatusTooManyRequests: domain.ErrRateLimited,
		http.StatusUnauthorized:    domain.ErrUnauthorized,
		http.StatusNotFound:        domain.ErrNotFound,
	} {
		c, _ := newTestClob(t, func(w http.ResponseWriter, _ capturedRequest) {
			w.WriteHeader(status)
		})
		_, err := c.CancelAll(context.Background())
		assert.ErrorIs(t, err, want, "status %d", status)
	}
}

func TestRequestsNeedCredentials(t *testing.T) {
	c, reqs := newTestClob(t, func(w http.ResponseWriter, _ capturedRequest) {})
	c.hmacAuth = nil
	_, err := c.CancelAll(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Empty(t, reqs.all())
}

func TestDeriveAPIKey(t *testing.T) {
	c, reqs := newTestClob(t, func(w http.ResponseWriter, _ capturedRequest) {
		_, _ = io.WriteString(w, `{"apiKey":"k2","secret":"czI=","passphrase":"p2"}`)
	})
	c.hmacAuth = nil

	auth, err := c.DeriveAPIKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "k2", auth.Key)

	r := reqs.all()[0]
	assert.Equal(t, "/auth/derive-api-key", r.path)
	assert.Equal(t, c.signer.Address().Hex(), r.header.Get("POLY_ADDRESS"))
	assert.Equal(t, "1700000000", r.header.Get("POLY_TIMESTAMP"))

	_, err = c.CancelAll(context.Background())
	assert.NoError(t, err, "derived credentials are used for later calls")
}
