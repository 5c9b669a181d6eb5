package swap

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// AmountInMax bounds what the router may pull: amountIn * floor(100+tol) / 100,
// in integer arithmetic. Fractional tolerance below one percent is dropped.
func AmountInMax(amountIn *big.Int, tolerancePct decimal.Decimal) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() < 0 {
		return nil, fmt.Errorf("%w: amount in %v", ErrInvalidAmount, amountIn)
	}
	if err := validateTolerance(tolerancePct); err != nil {
		return nil, err
	}
	factor := hundred.Add(tolerancePct).Floor().BigInt()
	out := new(big.Int).Mul(amountIn, factor)
	return out.Quo(out, big.NewInt(100)), nil
}

func validateTolerance(tolerancePct decimal.Decimal) error {
	if tolerancePct.IsNegative() {
		return fmt.Errorf("%w: slippage %s%% is negative", ErrInvalidAmount, tolerancePct)
	}
	return nil
}
