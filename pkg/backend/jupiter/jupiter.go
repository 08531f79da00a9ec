// Package jupiter adapts the Jupiter v6 swap API to the backend contract.
package jupiter

import (
	"bytes"
	"context"
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
	"go.uber.org/zap"

	"solsolver/pkg/backend"
	"solsolver/pkg/domain"
)

type Config struct {
	// Endpoint is the base URL of the Jupiter swap API.
	Endpoint string
	// APIKey is sent as the x-api-key header when set.
	APIKey string
	// Authority is the account the swap instructions are built for.
	Authority string
}

type Backend struct {
	client    *http.Client
	endpoint  *url.URL
	apiKey    string
	authority solana.PublicKey
	logger    *zap.Logger
}

func New(cfg Config, logger *zap.Logger) (*Backend, error) {
	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil || endpoint.Host == "" {
		return nil, fmt.Errorf("invalid jupiter endpoint %q", cfg.Endpoint)
	}
	authority, err := solana.PublicKeyFromBase58(cfg.Authority)
	if err != nil {
		return nil, fmt.Errorf("invalid jupiter authority: %w", err)
	}
	return &Backend{
		client:    &http.Client{Timeout: 30 * time.Second},
		endpoint:  endpoint,
		apiKey:    cfg.APIKey,
		authority: authority,
		logger:    logger,
	}, nil
}

func (b *Backend) Name() string {
	return "jupiter"
}

func (b *Backend) Swap(ctx context.Context, order *backend.SwapOrder, tokens domain.Tokens) (*backend.Swap, error) {
	rawQuote, quote, err := b.quote(ctx, order)
	if err != nil {
		return nil, err
	}

	instructions, err := b.swapInstructions(ctx, rawQuote)
	if err != nil {
		return nil, err
	}

	inAmount, ok := cosmath.NewIntFromString(quote.InAmount)
	if !ok {
		return nil, fmt.Errorf("jupiter quote has invalid inAmount %q", quote.InAmount)
	}
	outAmount, ok := cosmath.NewIntFromString(quote.OutAmount)
	if !ok {
		return nil, fmt.Errorf("jupiter quote has invalid outAmount %q", quote.OutAmount)
	}

	calls, err := collectCalls(instructions)
	if err != nil {
		return nil, err
	}

	gas := instructions.ComputeUnitLimit
	if gas == 0 {
		gas = 1_400_000
	}

	return &backend.Swap{
		Calls:  calls,
		Input:  domain.Asset{Token: order.Sell, Amount: inAmount},
		Output: domain.Asset{Token: order.Buy, Amount: outAmount},
		Gas:    gas,
	}, nil
}

func (b *Backend) quote(ctx context.Context, order *backend.SwapOrder) (json.RawMessage, *quoteResponse, error) {
	query := url.Values{}
	query.Set("inputMint", order.Sell.String())
	query.Set("outputMint", order.Buy.String())
	query.Set("amount", order.Amount.String())
	query.Set("slippageBps", strconv.Itoa(order.ToleranceBps))
	if order.Side == domain.SideBuy {
		query.Set("swapMode", "ExactOut")
	} else {
		query.Set("swapMode", "ExactIn")
	}

	endpoint := b.endpoint.JoinPath("quote")
	endpoint.RawQuery = query.Encode()

	raw, err := b.roundtrip(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, nil, err
	}
	var quote quoteResponse
	if err := json.Unmarshal(raw, &quote); err != nil {
		return nil, nil, fmt.Errorf("decoding jupiter quote: %w", err)
	}
	if len(quote.RoutePlan) == 0 {
		return nil, nil, backend.ErrNotFound
	}
	return raw, &quote, nil
}

func (b *Backend) swapInstructions(ctx context.Context, rawQuote json.RawMessage) (*swapInstructionsResponse, error) {
	body, err := json.Marshal(swapInstructionsRequest{
		UserPublicKey: b.authority.String(),
		QuoteResponse: rawQuote,
	})
	if err != nil {
		return nil, err
	}

	raw, err := b.roundtrip(ctx, http.MethodPost, b.endpoint.JoinPath("swap-instructions").String(), body)
	if err != nil {
		return nil, err
	}
	var instructions swapInstructionsResponse
	if err := json.Unmarshal(raw, &instructions); err != nil {
		return nil, fmt.Errorf("decoding jupiter swap instructions: %w", err)
	}
	if instructions.SwapInstruction.ProgramID == "" {
		return nil, backend.ErrNotFound
	}
	return &instructions, nil
}

func (b *Backend) roundtrip(ctx context.Context, method, endpoint string, body []byte) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.apiKey != "" {
		req.Header.Set("x-api-key", b.apiKey)
	}

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
		var apiErr apiError
		if json.Unmarshal(payload, &apiErr) == nil {
			switch apiErr.ErrorCode {
			case "COULD_NOT_FIND_ANY_ROUTE", "NO_ROUTES_FOUND":
				return nil, backend.ErrNotFound
			case "TOKEN_NOT_TRADABLE":
				return nil, backend.ErrUnavailable
			}
			if apiErr.Error != "" {
				return nil, fmt.Errorf("jupiter api status %d: %s", resp.StatusCode, apiErr.Error)
			}
		}
		return nil, fmt.Errorf("jupiter api status %d", resp.StatusCode)
	}
	return payload, nil
}

// collectCalls flattens the instruction groups preserving execution order:
// setup instructions first, then the swap, then cleanup.
func collectCalls(instructions *swapInstructionsResponse) ([]backend.Call, error) {
	ordered := make([]instruction, 0, len(instructions.SetupInstructions)+2)
	ordered = append(ordered, instructions.SetupInstructions...)
	ordered = append(ordered, instructions.SwapInstruction)
	if instructions.CleanupInstruction != nil {
		ordered = append(ordered, *instructions.CleanupInstruction)
	}

	calls := make([]backend.Call, 0, len(ordered))
	for _, ix := range ordered {
		target, err := solana.PublicKeyFromBase58(ix.ProgramID)
		if err != nil {
			return nil, fmt.Errorf("invalid program id %q: %w", ix.ProgramID, err)
		}
		data, err := base64.StdEncoding.DecodeString(ix.Data)
		if err != nil {
			return nil, fmt.Errorf("invalid instruction data: %w", err)
		}
		calls = append(calls, backend.Call{Target: target, Calldata: data})
	}
	return calls, nil
}
