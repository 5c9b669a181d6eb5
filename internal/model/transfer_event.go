package model

// TransferEvent is a decoded ERC20 Transfer log.
type TransferEvent struct {
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
	Token       string `json:"token"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	// Amount is Value scaled by the token's decimals; empty if unknown.
	Amount string `json:"amount,omitempty"`
	Symbol string `json:"symbol,omitempty"`
}
