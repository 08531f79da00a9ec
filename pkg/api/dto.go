package api

import (
	"fmt"
	"time"

	"cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"solsolver/pkg/domain"
)

type auctionRequest struct {
	ID       string                  `json:"id"`
	Deadline string                  `json:"deadline"`
	Tokens   map[string]tokenRequest `json:"tokens"`
	Orders   []orderRequest          `json:"orders"`
}

type tokenRequest struct {
	Decimals         uint8  `json:"decimals"`
	ReferencePrice   string `json:"referencePrice,omitempty"`
	AvailableBalance string `json:"availableBalance,omitempty"`
}

type orderRequest struct {
	UID               string `json:"uid"`
	SellToken         string `json:"sellToken"`
	BuyToken          string `json:"buyToken"`
	SellAmount        string `json:"sellAmount"`
	BuyAmount         string `json:"buyAmount"`
	Kind              string `json:"kind"`
	Class             string `json:"class,omitempty"`
	PartiallyFillable bool   `json:"partiallyFillable"`
}

type solutionResponse struct {
	ID           uint64                `json:"id"`
	Trades       []tradeResponse       `json:"trades"`
	Interactions []interactionResponse `json:"interactions"`
	Score        string                `json:"score"`
	Gas          uint64                `json:"gas"`
}

type tradeResponse struct {
	OrderUID string `json:"orderUid"`
	Executed string `json:"executedAmount"`
}

type interactionResponse struct {
	Target   string          `json:"target"`
	Calldata string          `json:"calldata"`
	Inputs   []assetResponse `json:"inputs,omitempty"`
	Outputs  []assetResponse `json:"outputs,omitempty"`
}

type assetResponse struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// decodeAuction validates the wire auction and converts it into the domain
// form. A request that fails here is the caller's fault.
func decodeAuction(req *auctionRequest) (*domain.Auction, error) {
	if req.ID == "" {
		return nil, fmt.Errorf("missing auction id")
	}
	deadline, err := time.Parse(time.RFC3339, req.Deadline)
	if err != nil {
		return nil, fmt.Errorf("invalid deadline: %w", err)
	}
	if len(req.Orders) == 0 {
		return nil, fmt.Errorf("auction has no orders")
	}

	tokens := make(domain.Tokens, len(req.Tokens))
	for address, token := range req.Tokens {
		key, err := solana.PublicKeyFromBase58(address)
		if err != nil {
			return nil, fmt.Errorf("invalid token address %q: %w", address, err)
		}
		entry := domain.Token{Decimals: token.Decimals}
		if token.ReferencePrice != "" {
			entry.ReferencePrice, err = parseAmount(token.ReferencePrice)
			if err != nil {
				return nil, fmt.Errorf("token %s reference price: %w", address, err)
			}
		}
		if token.AvailableBalance != "" {
			entry.AvailableBalance, err = parseAmount(token.AvailableBalance)
			if err != nil {
				return nil, fmt.Errorf("token %s available balance: %w", address, err)
			}
		}
		tokens[key] = entry
	}

	orders := make([]domain.Order, 0, len(req.Orders))
	seen := make(map[string]struct{}, len(req.Orders))
	for i := range req.Orders {
		order, err := decodeOrder(&req.Orders[i])
		if err != nil {
			return nil, err
		}
		if _, dup := seen[order.UID]; dup {
			return nil, fmt.Errorf("duplicate order uid %q", order.UID)
		}
		seen[order.UID] = struct{}{}
		orders = append(orders, order)
	}

	return &domain.Auction{
		ID:       req.ID,
		Tokens:   tokens,
		Orders:   orders,
		Deadline: deadline,
	}, nil
}

func decodeOrder(req *orderRequest) (domain.Order, error) {
	var order domain.Order
	if req.UID == "" {
		return order, fmt.Errorf("order missing uid")
	}
	sellToken, err := solana.PublicKeyFromBase58(req.SellToken)
	if err != nil {
		return order, fmt.Errorf("order %s sell token: %w", req.UID, err)
	}
	buyToken, err := solana.PublicKeyFromBase58(req.BuyToken)
	if err != nil {
		return order, fmt.Errorf("order %s buy token: %w", req.UID, err)
	}
	sellAmount, err := parseAmount(req.SellAmount)
	if err != nil {
		return order, fmt.Errorf("order %s sell amount: %w", req.UID, err)
	}
	buyAmount, err := parseAmount(req.BuyAmount)
	if err != nil {
		return order, fmt.Errorf("order %s buy amount: %w", req.UID, err)
	}

	var side domain.Side
	switch req.Kind {
	case "sell":
		side = domain.SideSell
	case "buy":
		side = domain.SideBuy
	default:
		return order, fmt.Errorf("order %s: unknown kind %q", req.UID, req.Kind)
	}

	var class domain.Class
	switch req.Class {
	case "", "market":
		class = domain.ClassMarket
	case "limit":
		class = domain.ClassLimit
	default:
		return order, fmt.Errorf("order %s: unknown class %q", req.UID, req.Class)
	}

	return domain.Order{
		UID:               req.UID,
		Sell:              domain.Asset{Token: sellToken, Amount: sellAmount},
		Buy:               domain.Asset{Token: buyToken, Amount: buyAmount},
		Side:              side,
		Class:             class,
		PartiallyFillable: req.PartiallyFillable,
	}, nil
}

func parseAmount(value string) (math.Int, error) {
	amount, ok := math.NewIntFromString(value)
	if !ok {
		return math.Int{}, fmt.Errorf("invalid amount %q", value)
	}
	if amount.IsNegative() {
		return math.Int{}, fmt.Errorf("negative amount %q", value)
	}
	return amount, nil
}

func encodeSolution(solution *domain.Solution) solutionResponse {
	resp := solutionResponse{
		ID:           solution.ID,
		Trades:       make([]tradeResponse, 0, len(solution.Trades)),
		Interactions: make([]interactionResponse, 0, len(solution.Interactions)),
		Score:        solution.Score.String(),
		Gas:          solution.Gas,
	}
	for _, trade := range solution.Trades {
		resp.Trades = append(resp.Trades, tradeResponse{
			OrderUID: trade.OrderUID,
			Executed: trade.Executed.String(),
		})
	}
	for _, interaction := range solution.Interactions {
		resp.Interactions = append(resp.Interactions, interactionResponse{
			Target:   interaction.Target.String(),
			Calldata: base58.Encode(interaction.Calldata),
			Inputs:   encodeAssets(interaction.Inputs),
			Outputs:  encodeAssets(interaction.Outputs),
		})
	}
	return resp
}

func encodeAssets(assets []domain.Asset) []assetResponse {
	if len(assets) == 0 {
		return nil
	}
	out := make([]assetResponse, 0, len(assets))
	for _, asset := range assets {
		out = append(out, assetResponse{
			Token:  asset.Token.String(),
			Amount: asset.Amount.String(),
		})
	}
	return out
}
