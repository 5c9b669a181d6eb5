package swap

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInvalidAmount marks input rejected before anything touches the chain
	// state: non-positive amounts, excess precision, negative tolerance.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrQuery marks a failed read. Nothing was submitted.
	ErrQuery = errors.New("query failed")
	// ErrTransactionFailed marks a failed write.
	ErrTransactionFailed = errors.New("transaction failed")
	ErrApprovalFailed    = errors.New("approval failed")
	ErrSwapFailed        = errors.New("swap failed")
	ErrDepositFailed     = errors.New("deposit failed")
	// ErrPriceMoved marks a fresh quote above the maximum input the caller
	// approved. It is reported as a query failure.
	ErrPriceMoved = errors.New("price moved past approved quote")

	errReverted = errors.New("receipt status is not successful")
)

// Step names the part of an operation that failed.
type Step string

const (
	StepDecimals  Step = "decimals"
	StepQuote     Step = "quote"
	StepAllowance Step = "allowance"
	StepBalance   Step = "balance"
	StepApprove   Step = "approve"
	StepSwap      Step = "swap"
	StepDeposit   Step = "deposit"
)

// StepError is returned by every orchestrator operation that fails after
// input validation. Kind is ErrQuery for reads or one of the write sentinels.
type StepError struct {
	Step Step
	Kind error
	// TxHash is set only with Broadcast. A send failure returns no
	// transaction, so its hash is zero.
	TxHash common.Hash
	// Broadcast reports whether the node accepted the transaction.
	Broadcast bool
	// Reverted reports a mined transaction with failure status; gas was spent.
	Reverted bool
	Err      error
}

func (e *StepError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Step, e.Kind)
	if e.Broadcast {
		msg += fmt.Sprintf(" (tx %s)", e.TxHash.Hex())
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the kind, the ErrTransactionFailed umbrella for writes, and
// the cause to errors.Is and errors.As.
func (e *StepError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.IsWrite() {
		errs = append(errs, ErrTransactionFailed)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// IsWrite reports whether the failed step submitted or tried to submit a
// transaction.
func (e *StepError) IsWrite() bool {
	return e.Kind != nil && e.Kind != ErrQuery
}

func queryError(step Step, err error) error {
	return &StepError{Step: step, Kind: ErrQuery, Err: err}
}
