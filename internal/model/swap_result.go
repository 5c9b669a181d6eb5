package model

// Payment kinds.
const (
	KindSwap    = "swap"
	KindDeposit = "deposit"
)

// SwapResult describes a confirmed payment to the platform address. It is
// only ever built from a successful receipt. For swaps, AmountIn and AmountOut
// are read from the receipt's Transfer logs when present, otherwise they are
// the quoted amounts.
type SwapResult struct {
	ID             string `json:"id"`
	Kind           string `json:"kind"`
	TxHash         string `json:"tx_hash"`
	BlockNumber    uint64 `json:"block_number"`
	GasUsed        uint64 `json:"gas_used"`
	InputToken     string `json:"input_token"`
	OutputToken    string `json:"output_token"`
	AmountIn       string `json:"amount_in"`
	AmountOut      string `json:"amount_out"`
	AmountInRaw    string `json:"amount_in_raw"`
	AmountOutRaw   string `json:"amount_out_raw"`
	AmountInMaxRaw string `json:"amount_in_max_raw,omitempty"`
	Sender         string `json:"sender"`
	Recipient      string `json:"recipient"`
	ApprovalTxHash string `json:"approval_tx_hash,omitempty"`
	CompletedAt    string `json:"completed_at"`
}

// Quote is the priced, slippage-bounded input for an exact output amount.
type Quote struct {
	InputToken     string `json:"input_token"`
	OutputToken    string `json:"output_token"`
	InputDecimals  uint8  `json:"input_decimals"`
	OutputDecimals uint8  `json:"output_decimals"`
	AmountOut      string `json:"amount_out"`
	AmountOutRaw   string `json:"amount_out_raw"`
	AmountIn       string `json:"amount_in"`
	AmountInRaw    string `json:"amount_in_raw"`
	AmountInMax    string `json:"amount_in_max"`
	AmountInMaxRaw string `json:"amount_in_max_raw"`
	SlippagePct    string `json:"slippage_pct"`
}

// AccountState is a snapshot of the owner's balances and router allowance.
type AccountState struct {
	Owner          string `json:"owner"`
	Router         string `json:"router"`
	InputToken     string `json:"input_token"`
	InputBalance   string `json:"input_balance"`
	InputAllowance string `json:"input_allowance"`
	OutputToken    string `json:"output_token"`
	OutputBalance  string `json:"output_balance"`
}
