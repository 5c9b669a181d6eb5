package swap

import (
	"errors"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func TestAmountInMaxScenario(t *testing.T) {
	amountIn, _ := new(big.Int).SetString("2000000000000000000", 10)
	got, err := AmountInMax(amountIn, decimal.NewFromInt(1))
	if err != nil {
		t.Fatalf("amount in max: %v", err)
	}
	if got.String() != "2020000000000000000" {
		t.Fatalf("got %s", got)
	}
}

func TestAmountInMaxZeroToleranceIsEqual(t *testing.T) {
	amountIn := big.NewInt(123456789)
	for _, tol := range []string{"0", "0.4", "0.99"} {
		got, err := AmountInMax(amountIn, decimal.RequireFromString(tol))
		if err != nil {
			t.Fatalf("tol %s: %v", tol, err)
		}
		if got.Cmp(amountIn) != 0 {
			t.Fatalf("tol %s: got %s want %s", tol, got, amountIn)
		}
	}
}

func TestAmountInMaxMonotone(t *testing.T) {
	amountIn := big.NewInt(987654321987)
	prev := new(big.Int).Set(amountIn)
	for tol := 0; tol <= 50; tol++ {
		got, err := AmountInMax(amountIn, decimal.NewFromInt(int64(tol)))
		if err != nil {
			t.Fatalf("tol %d: %v", tol, err)
		}
		if got.Cmp(amountIn) < 0 {
			t.Fatalf("tol %d: %s below amountIn", tol, got)
		}
		if got.Cmp(prev) < 0 {
			t.Fatalf("tol %d: %s below previous %s", tol, got, prev)
		}
		prev = got
	}
}

func TestAmountInMaxRejectsNegativeTolerance(t *testing.T) {
	if _, err := AmountInMax(big.NewInt(1), decimal.NewFromInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}
