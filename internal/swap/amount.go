package swap

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a human amount such as "12.5".
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, s, err)
	}
	return d, nil
}

// ToRaw scales a positive human amount to the token's raw integer units.
// Amounts with more fractional digits than decimals are rejected.
func ToRaw(amount decimal.Decimal, decimals uint8) (*big.Int, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: %s must be positive", ErrInvalidAmount, amount)
	}
	scaled := amount.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("%w: %s has more than %d fractional digits", ErrInvalidAmount, amount, decimals)
	}
	return scaled.BigInt(), nil
}

// FormatUnits renders a raw amount in human units without trailing zeros.
func FormatUnits(raw *big.Int, decimals uint8) string {
	if raw == nil {
		return "0"
	}
	return decimal.NewFromBigInt(raw, -int32(decimals)).String()
}
