package orca

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

// OrcaPool is an Orca legacy constant-product pool.
type OrcaPool struct {
	TokenAccountA solana.PublicKey
	TokenAccountB solana.PublicKey
	TokenMintA    solana.PublicKey
	TokenMintB    solana.PublicKey

	PoolId solana.PublicKey

	mu       sync.RWMutex
	reserveA uint64
	reserveB uint64
	live     bool
}

func (p *OrcaPool) ProtocolName() pool.Protocol {
	return pool.Protocol("orca")
}

func (p *OrcaPool) ProgramID() solana.PublicKey {
	return OrcaAmmProgramID
}

func (p *OrcaPool) ID() string {
	return p.PoolId.String()
}

func (p *OrcaPool) Tokens() (string, string) {
	return p.TokenMintA.String(), p.TokenMintB.String()
}

func (p *OrcaPool) Decode(data []byte) error {
	if len(data) < 256 {
		return fmt.Errorf("data too short for Orca pool: got %d bytes", len(data))
	}

	offset := 8 // skip discriminator
	copy(p.TokenAccountA[:], data[offset:offset+32])
	offset += 32
	copy(p.TokenAccountB[:], data[offset:offset+32])
	offset += 32
	offset += 32 // pool token mint
	copy(p.TokenMintA[:], data[offset:offset+32])
	offset += 32
	copy(p.TokenMintB[:], data[offset:offset+32])
	return nil
}

func (p *OrcaPool) ReserveAccounts() []solana.PublicKey {
	return []solana.PublicKey{p.TokenAccountA, p.TokenAccountB}
}

func (p *OrcaPool) UpdateReserves(account solana.PublicKey, data []byte) error {
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

func (p *OrcaPool) Quote(ctx context.Context, client *sol.Client, inputMint string, amountIn cosmath.Int) (cosmath.Int, error) {
	reserveA, reserveB, err := p.reserves(ctx, client)
	if err != nil {
		return cosmath.ZeroInt(), err
	}

	var reserveIn, reserveOut uint64
	switch inputMint {
	case p.TokenMintA.String():
		reserveIn, reserveOut = reserveA, reserveB
	case p.TokenMintB.String():
		reserveIn, reserveOut = reserveB, reserveA
	default:
		return cosmath.ZeroInt(), fmt.Errorf("mint %s is not traded by pool %s", inputMint, p.PoolId)
	}

	in, err := pool.Uint64Amount(amountIn)
	if err != nil {
		return cosmath.ZeroInt(), err
	}
	out, err := pool.ConstantProductOut(reserveIn, reserveOut, in, feeNumerator, feeDenominator)
	if err != nil {
		return cosmath.ZeroInt(), err
	}
	return cosmath.NewIntFromUint64(out), nil
}

func (p *OrcaPool) reserves(ctx context.Context, client *sol.Client) (uint64, uint64, error) {
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

func (p *OrcaPool) SwapInstruction(inputMint string, amountIn, minAmountOut cosmath.Int) (solana.PublicKey, []byte, error) {
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
	return OrcaAmmProgramID, data, nil
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
		accounts, err := client.GetProgramAccountsWithOpts(ctx, OrcaAmmProgramID, &rpc.GetProgramAccountsOpts{Filters: filters})
		if err != nil {
			return nil, fmt.Errorf("fetching Orca pools: %w", err)
		}
		for _, account := range accounts {
			p := &OrcaPool{}
			if err := p.Decode(account.Account.Data.GetBinary()); err != nil {
				continue
			}
			p.PoolId = account.Pubkey
			res = append(res, p)
		}
	}
	return res, nil
}
