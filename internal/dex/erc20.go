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

// ERC20 binds a single ERC20 token contract.
type ERC20 struct {
	address  common.Address
	parsed   abi.ABI
	caller   Caller
	contract *bind.BoundContract
	signer   *chain.Signer
}

// NewERC20 builds a token binding. Reads go through caller; writes need both a
// backend and a signer and fail otherwise.
func NewERC20(address common.Address, caller Caller, backend bind.ContractBackend, signer *chain.Signer) (*ERC20, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}

	token := &ERC20{
		address: address,
		parsed:  parsed,
		caller:  caller,
		signer:  signer,
	}
	if backend != nil {
		token.contract = bind.NewBoundContract(address, parsed, backend, backend, backend)
	}
	return token, nil
}

// Address returns the token contract address.
func (t *ERC20) Address() common.Address { return t.address }

// Decimals returns the token's decimal precision.
func (t *ERC20) Decimals(ctx context.Context) (uint8, error) {
	values, err := callMethod(ctx, t.caller, t.address, t.parsed, "decimals")
	if err != nil {
		return 0, err
	}
	return asUint8(values[0])
}

// BalanceOf returns the raw token balance of owner.
func (t *ERC20) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	values, err := callMethod(ctx, t.caller, t.address, t.parsed, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// Allowance returns the raw amount spender may pull from owner.
func (t *ERC20) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	values, err := callMethod(ctx, t.caller, t.address, t.parsed, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// Approve submits approve(spender, amount). It returns once the transaction is
// broadcast; confirmation is the caller's job.
func (t *ERC20) Approve(ctx context.Context, spender common.Address, amount *big.Int) (*types.Transaction, error) {
	return t.transact(ctx, "approve", spender, amount)
}

// Transfer submits transfer(to, amount).
func (t *ERC20) Transfer(ctx context.Context, to common.Address, amount *big.Int) (*types.Transaction, error) {
	return t.transact(ctx, "transfer", to, amount)
}

func (t *ERC20) transact(ctx context.Context, method string, args ...interface{}) (*types.Transaction, error) {
	if t.contract == nil || t.signer == nil {
		return nil, fmt.Errorf("%s: token %s is read-only", method, t.address.Hex())
	}
	opts, err := t.signer.TransactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := t.contract.Transact(opts, method, args...)
	if err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}
	return tx, nil
}
