// Package okx adapts the OKX DEX aggregator API to the backend contract.
package okx

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	cosmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"solsolver/pkg/backend"
	"solsolver/pkg/domain"
)

// Solana chain id in the OKX API.
const chainID = "501"

type Config struct {
	Endpoint   string
	APIKey     string
	Secret     string
	Passphrase string
	// Authority is the wallet the swap transaction is built for.
	Authority string
}

type Backend struct {
	client    *http.Client
	endpoint  *url.URL
	cfg       Config
	authority solana.PublicKey
	logger    *zap.Logger
	now       func() time.Time
}

func New(cfg Config, logger *zap.Logger) (*Backend, error) {
	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil || endpoint.Host == "" {
		return nil, fmt.Errorf("invalid okx endpoint %q", cfg.Endpoint)
	}
	authority, err := solana.PublicKeyFromBase58(cfg.Authority)
	if err != nil {
		return nil, fmt.Errorf("invalid okx authority: %w", err)
	}
	return &Backend{
		client:    &http.Client{Timeout: 30 * time.Second},
		endpoint:  endpoint,
		cfg:       cfg,
		authority: authority,
		logger:    logger,
		now:       time.Now,
	}, nil
}

func (b *Backend) Name() string {
	return "okx"
}

func (b *Backend) Swap(ctx context.Context, order *backend.SwapOrder, tokens domain.Tokens) (*backend.Swap, error) {
	if order.Side == domain.SideBuy {
		// The aggregator only quotes exact-in swaps.
		return nil, backend.ErrOrderNotSupported
	}

	query := url.Values{}
	query.Set("chainId", chainID)
	query.Set("fromTokenAddress", order.Sell.String())
	query.Set("toTokenAddress", order.Buy.String())
	query.Set("amount", order.Amount.String())
	query.Set("slippage", formatSlippage(order.ToleranceBps))
	query.Set("userWalletAddress", b.authority.String())

	data, err := b.roundtrip(ctx, "/api/v5/dex/aggregator/swap", query)
	if err != nil {
		return nil, err
	}

	inAmount, ok := cosmath.NewIntFromString(data.RouterResult.FromTokenAmount)
	if !ok {
		return nil, fmt.Errorf("okx swap has invalid fromTokenAmount %q", data.RouterResult.FromTokenAmount)
	}
	outAmount, ok := cosmath.NewIntFromString(data.RouterResult.ToTokenAmount)
	if !ok {
		return nil, fmt.Errorf("okx swap has invalid toTokenAmount %q", data.RouterResult.ToTokenAmount)
	}

	router, err := solana.PublicKeyFromBase58(data.Tx.To)
	if err != nil {
		return nil, fmt.Errorf("okx swap has invalid router address %q", data.Tx.To)
	}
	calldata, err := base58.Decode(data.Tx.Data)
	if err != nil {
		return nil, fmt.Errorf("okx swap has invalid calldata: %w", err)
	}

	gas := uint64(0)
	if data.RouterResult.EstimateGasFee != "" {
		gas, _ = strconv.ParseUint(data.RouterResult.EstimateGasFee, 10, 64)
	}

	input := domain.Asset{Token: order.Sell, Amount: inAmount}
	return &backend.Swap{
		Calls:  []backend.Call{{Target: router, Calldata: calldata}},
		Input:  input,
		Output: domain.Asset{Token: order.Buy, Amount: outAmount},
		// The router spends the input through a delegate, so the
		// settlement needs an approval sequenced before the swap.
		Allowance: &domain.Allowance{Spender: router, Asset: input},
		Gas:       gas,
	}, nil
}

func (b *Backend) roundtrip(ctx context.Context, path string, query url.Values) (*swapData, error) {
	requestPath := path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpoint.JoinPath(path).String()+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	b.sign(req, requestPath)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, backend.ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("okx api status %d", resp.StatusCode)
	}

	var decoded swapResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("decoding okx response: %w", err)
	}
	switch decoded.Code {
	case codeOK:
	case codeInsufficientLiquidity:
		return nil, backend.ErrNotFound
	case codeRateLimited:
		return nil, backend.ErrRateLimited
	default:
		return nil, fmt.Errorf("okx api error code %s: %s", decoded.Code, decoded.Msg)
	}
	if len(decoded.Data) == 0 {
		return nil, backend.ErrNotFound
	}
	return &decoded.Data[0], nil
}

// sign sets the OKX authentication headers: the signature is the base64
// HMAC-SHA256 of timestamp + method + request path under the API secret.
func (b *Backend) sign(req *http.Request, requestPath string) {
	timestamp := b.now().UTC().Format("2006-01-02T15:04:05.000Z")
	mac := hmac.New(sha256.New, []byte(b.cfg.Secret))
	mac.Write([]byte(timestamp + req.Method + requestPath))

	req.Header.Set("OK-ACCESS-KEY", b.cfg.APIKey)
	req.Header.Set("OK-ACCESS-SIGN", base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("OK-ACCESS-PASSPHRASE", b.cfg.Passphrase)
}

// formatSlippage renders bps as the decimal fraction the API expects.
func formatSlippage(bps int) string {
	return strconv.FormatFloat(float64(bps)/10000, 'f', -1, 64)
}
