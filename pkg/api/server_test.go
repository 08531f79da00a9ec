package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	cosmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"solsolver/pkg/backend"
	"solsolver/pkg/domain"
	"solsolver/pkg/metrics"
	"solsolver/pkg/quotecache"
	"solsolver/pkg/solver"
)

var (
	wsol = "So11111111111111111111111111111111111111112"
	usdc = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

// fixedRateBackend quotes rate output units per input unit.
type fixedRateBackend struct {
	rate int64
}

func (f *fixedRateBackend) Name() string { return "fixed" }

func (f *fixedRateBackend) Swap(ctx context.Context, order *backend.SwapOrder, tokens domain.Tokens) (*backend.Swap, error) {
	return &backend.Swap{
		Calls:  []backend.Call{{Target: order.Buy, Calldata: []byte{0xab, 0xcd}}},
		Input:  domain.Asset{Token: order.Sell, Amount: order.Amount},
		Output: domain.Asset{Token: order.Buy, Amount: order.Amount.MulRaw(f.rate)},
		Gas:    100,
	}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	m := metrics.New()
	limiter := quotecache.NewLimiter(quotecache.LimiterConfig{RPS: 1000, Burst: 1000})
	cache := quotecache.New(quotecache.Config{TTL: time.Minute}, limiter, m, zap.NewNop())
	s := solver.New(&fixedRateBackend{rate: 2}, cache, solver.Config{}, m, zap.NewNop())
	return NewServer(":0", s, m, zap.NewNop())
}

func auctionBody(deadline time.Time) string {
	return fmt.Sprintf(`{
		"id": "auction-1",
		"deadline": %q,
		"tokens": {
			%q: {"decimals": 9, "referencePrice": "1"},
			%q: {"decimals": 6}
		},
		"orders": [{
			"uid": "order-1",
			"sellToken": %q,
			"buyToken": %q,
			"sellAmount": "1000",
			"buyAmount": "1500",
			"kind": "sell"
		}]
	}`, deadline.Format(time.RFC3339), wsol, usdc, wsol, usdc)
}

func postSolve(t *testing.T, server *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/solve", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	server.http.Handler.ServeHTTP(rec, req)
	return rec
}

func TestSolveEndpoint(t *testing.T) {
	server := newTestServer(t)
	rec := postSolve(t, server, auctionBody(time.Now().Add(time.Minute)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp solutionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Trades, 1)
	assert.Equal(t, "order-1", resp.Trades[0].OrderUID)
	assert.Equal(t, "1000", resp.Trades[0].Executed)
	assert.Equal(t, "500", resp.Score)
	require.Len(t, resp.Interactions, 1)
	assert.NotEmpty(t, resp.Interactions[0].Calldata)
}

func TestSolveEndpointRejectsMalformedJSON(t *testing.T) {
	server := newTestServer(t)
	rec := postSolve(t, server, "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSolveEndpointRejectsInvalidAuction(t *testing.T) {
	server := newTestServer(t)

	// Bad token address.
	body := strings.Replace(auctionBody(time.Now().Add(time.Minute)), wsol, "not-a-key", -1)
	rec := postSolve(t, server, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Expired deadline passes decoding but fails solving.
	rec = postSolve(t, server, auctionBody(time.Now().Add(-time.Minute)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSolveEndpointRejectsWrongMethod(t *testing.T) {
	server := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/solve", nil)
	rec := httptest.NewRecorder()
	server.http.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.http.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(t)
	postSolve(t, server, auctionBody(time.Now().Add(time.Minute)))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	server.http.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var snap metrics.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, int64(1), snap.Solves)
	assert.Equal(t, int64(1), snap.OrdersSolved)
}

func TestCORSPreflight(t *testing.T) {
	server := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/solve", nil)
	rec := httptest.NewRecorder()
	server.http.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestDecodeAuctionValidation(t *testing.T) {
	valid := func() *auctionRequest {
		return &auctionRequest{
			ID:       "a",
			Deadline: time.Now().Add(time.Minute).Format(time.RFC3339),
			Orders: []orderRequest{{
				UID:        "o",
				SellToken:  wsol,
				BuyToken:   usdc,
				SellAmount: "10",
				BuyAmount:  "20",
				Kind:       "sell",
			}},
		}
	}

	auction, err := decodeAuction(valid())
	require.NoError(t, err)
	assert.Equal(t, domain.SideSell, auction.Orders[0].Side)

	req := valid()
	req.Orders[0].Kind = "short"
	_, err = decodeAuction(req)
	assert.Error(t, err)

	req = valid()
	req.Orders[0].SellAmount = "-5"
	_, err = decodeAuction(req)
	assert.Error(t, err)

	req = valid()
	req.Orders = append(req.Orders, req.Orders[0])
	_, err = decodeAuction(req)
	assert.Error(t, err)

	req = valid()
	req.Deadline = "tomorrow"
	_, err = decodeAuction(req)
	assert.Error(t, err)
}

func TestEncodeSolution(t *testing.T) {
	target := solana.MustPublicKeyFromBase58(usdc)
	solution := &domain.Solution{
		ID: 7,
		Trades: []domain.Trade{
			{OrderUID: "o", Executed: cosmath.NewInt(42)},
		},
		Interactions: []domain.Interaction{
			{Target: target, Calldata: []byte{1, 2, 3}},
		},
		Score: cosmath.NewInt(99),
		Gas:   1234,
	}

	resp := encodeSolution(solution)
	assert.Equal(t, uint64(7), resp.ID)
	assert.Equal(t, "42", resp.Trades[0].Executed)
	assert.Equal(t, "99", resp.Score)
	assert.Equal(t, usdc, resp.Interactions[0].Target)
	// base58 of {1,2,3}
	assert.Equal(t, "Ldp", resp.Interactions[0].Calldata)
}
