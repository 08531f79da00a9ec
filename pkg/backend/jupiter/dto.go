package jupiter

import "encoding/json"

// Wire types for the Jupiter v6 swap API.

type quoteResponse struct {
	InputMint            string      `json:"inputMint"`
	InAmount             string      `json:"inAmount"`
	OutputMint           string      `json:"outputMint"`
	OutAmount            string      `json:"outAmount"`
	OtherAmountThreshold string      `json:"otherAmountThreshold"`
	SwapMode             string      `json:"swapMode"`
	PriceImpactPct       string      `json:"priceImpactPct"`
	RoutePlan            []routeStep `json:"routePlan"`
	ContextSlot          uint64      `json:"contextSlot"`
}

type routeStep struct {
	SwapInfo struct {
		AmmKey     string `json:"ammKey"`
		Label      string `json:"label"`
		InputMint  string `json:"inputMint"`
		OutputMint string `json:"outputMint"`
		InAmount   string `json:"inAmount"`
		OutAmount  string `json:"outAmount"`
		FeeAmount  string `json:"feeAmount"`
		FeeMint    string `json:"feeMint"`
	} `json:"swapInfo"`
	Percent int `json:"percent"`
}

type apiError struct {
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode"`
}

type swapInstructionsRequest struct {
	UserPublicKey string          `json:"userPublicKey"`
	QuoteResponse json.RawMessage `json:"quoteResponse"`
}

type instruction struct {
	ProgramID string `json:"programId"`
	Accounts  []struct {
		Pubkey     string `json:"pubkey"`
		IsSigner   bool   `json:"isSigner"`
		IsWritable bool   `json:"isWritable"`
	} `json:"accounts"`
	Data string `json:"data"` // base64
}

type swapInstructionsResponse struct {
	TokenLedgerInstruction *instruction  `json:"tokenLedgerInstruction"`
	SetupInstructions      []instruction `json:"setupInstructions"`
	SwapInstruction        instruction   `json:"swapInstruction"`
	CleanupInstruction     *instruction  `json:"cleanupInstruction"`
	ComputeUnitLimit       uint64        `json:"computeUnitLimit"`
}
