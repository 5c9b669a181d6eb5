package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"swapPay/internal/chain"
)

// RouterV2 binds a Uniswap V2 style router.
type RouterV2 struct {
	address  common.Address
	parsed   abi.ABI
	caller   Caller
	contract *bind.BoundContract
	signer   *chain.Signer
}

// NewRouterV2 builds a router binding. Same read/write split as NewERC20.
func NewRouterV2(address common.Address, caller Caller, backend bind.ContractBackend, signer *chain.Signer) (*RouterV2, error) {
	parsed, err := RouterV2ABI()
	if err != nil {
		return nil, fmt.Errorf("parse router abi: %w", err)
	}

	router := &RouterV2{
		address: address,
		parsed:  parsed,
		caller:  caller,
		signer:  signer,
	}
	if backend != nil {
		router.contract = bind.NewBoundContract(address, parsed, backend, backend, backend)
	}
	return router, nil
}

// Address returns the router contract address.
func (r *RouterV2) Address() common.Address { return r.address }

// GetAmountsIn returns the input amounts required along path to receive
// exactly amountOut at the end of it.
func (r *RouterV2) GetAmountsIn(ctx context.Context, amountOut *big.Int, path []common.Address) ([]*big.Int, error) {
	if len(path) < 2 {
		return nil, fmt.Errorf("path needs at least two tokens, got %d", len(path))
	}
	values, err := callMethod(ctx, r.caller, r.address, r.parsed, "getAmountsIn", amountOut, path)
	if err != nil {
		return nil, err
	}
	amounts, err := asBigIntSlice(values[0])
	if err != nil {
		return nil, err
	}
	if len(amounts) != len(path) {
		return nil, fmt.Errorf("getAmountsIn returned %d amounts for path of %d", len(amounts), len(path))
	}
	return amounts, nil
}

// SwapTokensForExactTokens submits the exact-output swap.
func (r *RouterV2) SwapTokensForExactTokens(ctx context.Context, amountOut, amountInMax *big.Int, path []common.Address, to common.Address, deadline *big.Int) (*types.Transaction, error) {
	if r.contract == nil || r.signer == nil {
		return nil, fmt.Errorf("swapTokensForExactTokens: router %s is read-only", r.address.Hex())
	}
	opts, err := r.signer.TransactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := r.contract.Transact(opts, "swapTokensForExactTokens", amountOut, amountInMax, path, to, deadline)
	if err != nil {
		return nil, fmt.Errorf("send swapTokensForExactTokens: %w", err)
	}
	return tx, nil
}
