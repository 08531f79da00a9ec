// Package amm is the pool-math backend: it computes quotes analytically from
// on-chain pool state instead of calling an external quote API.
package amm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	cosmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"solsolver/pkg/backend"
	"solsolver/pkg/domain"
	"solsolver/pkg/pool"
	"solsolver/pkg/pool/orca"
	"solsolver/pkg/pool/splswap"
	"solsolver/pkg/sol"
	"solsolver/pkg/subscription"
)

// Indicative compute-unit cost of a single pool swap.
const swapGas = 150_000

const bpsDenominator = 10_000

// FetchFunc discovers the pools of one protocol for a token pair.
type FetchFunc func(ctx context.Context, client *sol.Client, baseMint, quoteMint string) ([]pool.Pool, error)

var fetchers = map[string]FetchFunc{
	"spl_token_swap": splswap.FetchPools,
	"orca":           orca.FetchPools,
}

// Protocols lists the supported on-chain protocols.
func Protocols() []string {
	names := make([]string, 0, len(fetchers))
	for name := range fetchers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Backend quotes swaps against discovered on-chain pools.
type Backend struct {
	client *sol.Client
	subs   *subscription.Manager // nil when live updates are disabled
	logger *zap.Logger
	fetch  []FetchFunc

	mu         sync.RWMutex
	pools      map[string][]pool.Pool
	subscribed map[string]bool
}

// New builds the backend for the given protocol names. An empty list enables
// every supported protocol.
func New(client *sol.Client, subs *subscription.Manager, logger *zap.Logger, protocols []string) (*Backend, error) {
	if len(protocols) == 0 {
		protocols = Protocols()
	}
	fetch := make([]FetchFunc, 0, len(protocols))
	for _, name := range protocols {
		fn, ok := fetchers[name]
		if !ok {
			return nil, fmt.Errorf("unknown amm protocol %q (supported: %s)", name, strings.Join(Protocols(), ", "))
		}
		fetch = append(fetch, fn)
	}
	return &Backend{
		client:     client,
		subs:       subs,
		logger:     logger,
		fetch:      fetch,
		pools:      make(map[string][]pool.Pool),
		subscribed: make(map[string]bool),
	}, nil
}

func (b *Backend) Name() string {
	return "amm"
}

func (b *Backend) Swap(ctx context.Context, order *backend.SwapOrder, tokens domain.Tokens) (*backend.Swap, error) {
	if order.Side == domain.SideBuy {
		// Constant-product pools are quoted exact-in only.
		return nil, backend.ErrOrderNotSupported
	}

	pools, err := b.poolsFor(ctx, order.Sell.String(), order.Buy.String())
	if err != nil {
		return nil, err
	}
	if len(pools) == 0 {
		return nil, backend.ErrNotFound
	}

	best, out, err := b.bestQuote(ctx, pools, order.Sell.String(), order.Amount)
	if err != nil {
		return nil, err
	}

	minOut := out.MulRaw(int64(bpsDenominator - order.ToleranceBps)).QuoRaw(bpsDenominator)
	target, data, err := best.SwapInstruction(order.Sell.String(), order.Amount, minOut)
	if err != nil {
		return nil, err
	}

	return &backend.Swap{
		Calls:  []backend.Call{{Target: target, Calldata: data}},
		Input:  domain.Asset{Token: order.Sell, Amount: order.Amount},
		Output: domain.Asset{Token: order.Buy, Amount: out},
		Gas:    swapGas,
	}, nil
}

// bestQuote fans out the quote to every candidate pool and picks the highest
// output. Ties break on pool ID so results are deterministic.
func (b *Backend) bestQuote(ctx context.Context, pools []pool.Pool, inputMint string, amountIn cosmath.Int) (pool.Pool, cosmath.Int, error) {
	type result struct {
		pool pool.Pool
		out  cosmath.Int
		err  error
	}

	results := make(chan result, len(pools))
	var wg sync.WaitGroup
	for _, p := range pools {
		wg.Add(1)
		go func(p pool.Pool) {
			defer wg.Done()
			out, err := p.Quote(ctx, b.client, inputMint, amountIn)
			results <- result{pool: p, out: out, err: err}
		}(p)
	}
	wg.Wait()
	close(results)

	var (
		best    pool.Pool
		bestOut = cosmath.ZeroInt()
	)
	for r := range results {
		if r.err != nil {
			b.logger.Debug("pool quote failed",
				zap.String("pool", r.pool.ID()),
				zap.Error(r.err))
			continue
		}
		if !r.out.IsPositive() {
			continue
		}
		if r.out.GT(bestOut) || (r.out.Equal(bestOut) && best != nil && r.pool.ID() < best.ID()) {
			best, bestOut = r.pool, r.out
		}
	}
	if best == nil {
		return nil, cosmath.ZeroInt(), backend.ErrNotFound
	}
	return best, bestOut, nil
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "/" + b
}

// poolsFor returns the pools for a token pair, discovering and subscribing to
// them on first use.
func (b *Backend) poolsFor(ctx context.Context, sellMint, buyMint string) ([]pool.Pool, error) {
	key := pairKey(sellMint, buyMint)

	b.mu.RLock()
	cached, ok := b.pools[key]
	b.mu.RUnlock()
	if ok {
		return cached, nil
	}

	var discovered []pool.Pool
	fetched := false
	for _, fetch := range b.fetch {
		pools, err := fetch(ctx, b.client, sellMint, buyMint)
		if err != nil {
			b.logger.Warn("pool discovery failed", zap.Error(err))
			continue
		}
		fetched = true
		discovered = append(discovered, pools...)
	}
	if !fetched {
		// Transient failures must not be remembered as an empty pair, or
		// one RPC blip would disable the pair for the process lifetime.
		return nil, fmt.Errorf("pool discovery failed for %s", key)
	}
	sort.Slice(discovered, func(i, j int) bool { return discovered[i].ID() < discovered[j].ID() })

	b.mu.Lock()
	if cached, ok := b.pools[key]; ok {
		b.mu.Unlock()
		return cached, nil
	}
	b.pools[key] = discovered
	b.mu.Unlock()

	b.watch(discovered)
	b.logger.Info("discovered pools",
		zap.String("pair", key),
		zap.Int("pools", len(discovered)))
	return discovered, nil
}

// watch subscribes the pools' vault accounts for live reserve updates.
func (b *Backend) watch(pools []pool.Pool) {
	if b.subs == nil {
		return
	}
	for _, p := range pools {
		p := p
		for _, account := range p.ReserveAccounts() {
			b.mu.Lock()
			if b.subscribed[account.String()] {
				b.mu.Unlock()
				continue
			}
			b.subscribed[account.String()] = true
			b.mu.Unlock()

			err := b.subs.SubscribeAccount(account, func(account solana.PublicKey, data []byte, slot uint64) {
				if err := p.UpdateReserves(account, data); err != nil {
					b.logger.Debug("reserve update rejected", zap.Error(err))
				}
			})
			if err != nil {
				b.logger.Warn("vault subscription failed",
					zap.Stringer("account", account),
					zap.Error(err))
			}
		}
	}
}
