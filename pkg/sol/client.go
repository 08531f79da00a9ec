// Package sol wraps the Solana JSON-RPC client with per-endpoint rate
// limiting and round-robin endpoint pooling for the pool-math backend.
package sol

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/time/rate"
)

// Client is a rate-limited Solana RPC client for a single endpoint.
type Client struct {
	endpoint string
	rpc      *rpc.Client
	limiter  *rate.Limiter
}

// NewClient creates a client for the given endpoint, capped at
// reqLimitPerSecond outbound RPC requests.
func NewClient(endpoint string, reqLimitPerSecond int) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("empty RPC endpoint")
	}
	if reqLimitPerSecond <= 0 {
		reqLimitPerSecond = 10
	}
	return &Client{
		endpoint: endpoint,
		rpc:      rpc.New(endpoint),
		limiter:  rate.NewLimiter(rate.Limit(reqLimitPerSecond), reqLimitPerSecond),
	}, nil
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

// GetProgramAccountsWithOpts returns all accounts owned by program matching
// the given filters.
func (c *Client) GetProgramAccountsWithOpts(ctx context.Context, program solana.PublicKey, opts *rpc.GetProgramAccountsOpts) (rpc.GetProgramAccountsResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.rpc.GetProgramAccountsWithOpts(ctx, program, opts)
}

// GetMultipleAccounts fetches several accounts in one RPC round trip.
func (c *Client) GetMultipleAccounts(ctx context.Context, accounts ...solana.PublicKey) (*rpc.GetMultipleAccountsResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.rpc.GetMultipleAccounts(ctx, accounts...)
}
