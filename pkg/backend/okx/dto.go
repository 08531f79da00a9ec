package okx

// Wire types for the OKX DEX aggregator API.

type swapResponse struct {
	Code string     `json:"code"`
	Msg  string     `json:"msg"`
	Data []swapData `json:"data"`
}

type swapData struct {
	RouterResult routerResult `json:"routerResult"`
	Tx           swapTx       `json:"tx"`
}

type routerResult struct {
	ChainID         string `json:"chainId"`
	FromTokenAmount string `json:"fromTokenAmount"`
	ToTokenAmount   string `json:"toTokenAmount"`
	EstimateGasFee  string `json:"estimateGasFee"`
}

type swapTx struct {
	From string `json:"from"`
	To   string `json:"to"`
	Data string `json:"data"` // base58 on Solana
}

// API error codes with dedicated handling.
const (
	codeOK                    = "0"
	codeInsufficientLiquidity = "82000"
	codeRateLimited           = "50011"
)
