package splswap

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	cosmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"solsolver/pkg/pool"
	"solsolver/pkg/sol"
)

// SplSwapPool is an SPL Token Swap constant-product pool.
type SplSwapPool struct {
	Version             uint8
	IsInitialized       bool
	Nonce               uint8
	TokenProgramId      solana.PublicKey
	TokenAccountA       solana.PublicKey
	TokenAccountB       solana.PublicKey
	TokenPool           solana.PublicKey
	MintA               solana.PublicKey
	MintB               solana.PublicKey
	FeeAccount          solana.PublicKey
	TradeFeeNumerator   uint64
	TradeFeeDenominator uint64
	CurveType           uint8

	PoolId solana.PublicKey

	// Reserves are cached vault balances, kept fresh by the subscription
	// manager when one is attached.
	mu       sync.RWMutex
	reserveA uint64
	reserveB uint64
	live     bool
}

func (p *SplSwapPool) ProtocolName() pool.Protocol {
	return pool.Protocol("spl_token_swap")
}

func (p *SplSwapPool) ProgramID() solana.PublicKey {
	return SplTokenSwapProgramID
}

func (p *SplSwapPool) ID() string {
	return p.PoolId.String()
}

func (p *SplSwapPool) Tokens() (string, string) {
	return p.MintA.String(), p.MintB.String()
}

func (p *SplSwapPool) Decode(data []byte) error {
	if len(data) < 324 {
		return fmt.Errorf("data too short for SPL Token Swap pool: got %d bytes", len(data))
	}

	offset := 0
	p.Version = data[offset]
	offset++
	p.IsInitialized = data[offset] == 1
	offset++
	p.Nonce = data[offset]
	offset++

	copy(p.TokenProgramId[:], data[offset:offset+32])
	offset += 32
	copy(p.TokenAccountA[:], data[offset:offset+32])
	offset += 32
	copy(p.TokenAccountB[:], data[offset:offset+32])
	offset += 32
	copy(p.TokenPool[:], data[offset:offset+32])
	offset += 32
	copy(p.MintA[:], data[offset:offset+32])
	offset += 32
	copy(p.MintB[:], data[offset:offset+32])
	offset += 32
	copy(p.FeeAccount[:], data[offset:offset+32])
	offset += 32

	p.TradeFeeNumerator = binary.LittleEndian.Uint64(data[offset : offset+8])
	offset += 8
	p.TradeFeeDenominator = binary.LittleEndian.Uint64(data[offset : offset+8])
	offset += 8
	// Owner trade/withdraw and host fees are not charged on quotes.
	offset += 8 * 6

	p.CurveType = data[offset]
	return nil
}

func (p *SplSwapPool) ReserveAccounts() []solana.PublicKey {
	return []solana.PublicKey{p.TokenAccountA, p.TokenAccountB}
}

func (p *SplSwapPool) UpdateReserves(account solana.PublicKey, data []byte) error {
	balance, err := pool.TokenAccountBalance(data)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case account.Equals(p.TokenAccountA):
		p.reserveA = balance
	case account.Equals(p.TokenAccountB):
		p.reserveB = balance
	default:
		return fmt.Errorf("account %s is not a vault of pool %s", account, p.PoolId)
	}
	p.live = p.reserveA > 0 && p.reserveB > 0
	return nil
}

func (p *SplSwapPool) Quote(ctx context.Context, client *sol.Client, inputMint string, amountIn cosmath.Int) (cosmath.Int, error) {
	reserveA, reserveB, err := p.reserves(ctx, client)
	if err != nil {
		return cosmath.ZeroInt(), err
	}

	var reserveIn, reserveOut uint64
	switch inputMint {
	case p.MintA.String():
		reserveIn, reserveOut = reserveA, reserveB
	case p.MintB.String():
		reserveIn, reserveOut = reserveB, reserveA
	default:
		return cosmath.ZeroInt(), fmt.Errorf("mint %s is not traded by pool %s", inputMint, p.PoolId)
	}

	in, err := pool.Uint64Amount(amountIn)
	if err != nil {
		return cosmath.ZeroInt(), err
	}
	out, err := pool.ConstantProductOut(reserveIn, reserveOut, in, p.TradeFeeNumerator, p.TradeFeeDenominator)
	if err != nil {
		return cosmath.ZeroInt(), err
	}
	return cosmath.NewIntFromUint64(out), nil
}

func (p *SplSwapPool) reserves(ctx context.Context, client *sol.Client) (uint64, uint64, error) {
	p.mu.RLock()
	if p.live {
		a, b := p.reserveA, p.reserveB
		p.mu.RUnlock()
		return a, b, nil
	}
	p.mu.RUnlock()

	accounts := p.ReserveAccounts()
	results, err := client.GetMultipleAccounts(ctx, accounts...)
	if err != nil {
		return 0, 0, fmt.Errorf("fetching vault balances: %w", err)
	}
	for i, result := range results.Value {
		if result == nil {
			return 0, 0, fmt.Errorf("vault account %s not found", accounts[i])
		}
		if err := p.UpdateReserves(accounts[i], result.Data.GetBinary()); err != nil {
			return 0, 0, err
		}
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.reserveA, p.reserveB, nil
}

// SwapInstruction builds the token-swap Swap instruction data: a one byte
// tag followed by the input amount and the minimum acceptable output.
func (p *SplSwapPool) SwapInstruction(inputMint string, amountIn, minAmountOut cosmath.Int) (solana.PublicKey, []byte, error) {
	in, err := pool.Uint64Amount(amountIn)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}
	minOut, err := pool.Uint64Amount(minAmountOut)
	if err != nil {
		return solana.PublicKey{}, nil, err
	}

	data := make([]byte, 17)
	data[0] = swapInstructionTag
	binary.LittleEndian.PutUint64(data[1:9], in)
	binary.LittleEndian.PutUint64(data[9:17], minOut)
	return SplTokenSwapProgramID, data, nil
}

// FetchPools discovers pools for the given token pair, in both mint orders.
func FetchPools(ctx context.Context, client *sol.Client, baseMint, quoteMint string) ([]pool.Pool, error) {
	basePubkey, err := solana.PublicKeyFromBase58(baseMint)
	if err != nil {
		return nil, fmt.Errorf("invalid base mint address: %w", err)
	}
	quotePubkey, err := solana.PublicKeyFromBase58(quoteMint)
	if err != nil {
		return nil, fmt.Errorf("invalid quote mint address: %w", err)
	}

	var res []pool.Pool
	for _, pair := range [][2]solana.PublicKey{{basePubkey, quotePubkey}, {quotePubkey, basePubkey}} {
		filters := []rpc.RPCFilter{
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: mintAOffset, Bytes: pair[0].Bytes()}},
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: mintBOffset, Bytes: pair[1].Bytes()}},
		}
		accounts, err := client.GetProgramAccountsWithOpts(ctx, SplTokenSwapProgramID, &rpc.GetProgramAccountsOpts{Filters: filters})
		if err != nil {
			return nil, fmt.Errorf("fetching SPL Token Swap pools: %w", err)
		}
		for _, account := range accounts {
			p := &SplSwapPool{}
			if err := p.Decode(account.Account.Data.GetBinary()); err != nil {
				continue
			}
			if !p.IsInitialized {
				continue
			}
			p.PoolId = account.Pubkey
			res = append(res, p)
		}
	}
	return res, nil
}
