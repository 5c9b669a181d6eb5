package swap

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"swapPay/internal/model"
)

// fakeChain hands out transactions and settles them on WaitMined.
type fakeChain struct {
	nonce   uint64
	status  map[common.Hash]uint64
	onMined map[common.Hash]func()
	logs    map[common.Hash][]*types.Log
	mined   []common.Hash
	waitErr error
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		status:  map[common.Hash]uint64{},
		onMined: map[common.Hash]func(){},
		logs:    map[common.Hash][]*types.Log{},
	}
}

func (c *fakeChain) submit(status uint64, onMined func()) *types.Transaction {
	c.nonce++
	tx := types.NewTx(&types.LegacyTx{Nonce: c.nonce, Gas: 21000, GasPrice: big.NewInt(1)})
	c.status[tx.Hash()] = status
	if onMined != nil {
		c.onMined[tx.Hash()] = onMined
	}
	return tx
}

func (c *fakeChain) WaitMined(_ context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if c.waitErr != nil {
		return nil, c.waitErr
	}
	status := c.status[tx.Hash()]
	c.mined = append(c.mined, tx.Hash())
	if status == types.ReceiptStatusSuccessful {
		if fn := c.onMined[tx.Hash()]; fn != nil {
			fn()
		}
	}
	return &types.Receipt{
		Status:      status,
		Logs:        c.logs[tx.Hash()],
		TxHash:      tx.Hash(),
		GasUsed:     50000,
		BlockNumber: big.NewInt(int64(100 + c.nonce)),
	}, nil
}

type fakeToken struct {
	chain       *fakeChain
	address     common.Address
	decimals    uint8
	decimalsErr error
	balances    map[common.Address]*big.Int
	allowances  map[common.Address]*big.Int
	readErr     error
	// readFailures fails this many reads before succeeding.
	readFailures int

	approveStatus uint64
	approveErr    error
	approvals     []*big.Int

	transferStatus uint64
	transferErr    error
	transfers      []*big.Int
}

func newFakeToken(chain *fakeChain, address common.Address, decimals uint8) *fakeToken {
	return &fakeToken{
		chain:          chain,
		address:        address,
		decimals:       decimals,
		balances:       map[common.Address]*big.Int{},
		allowances:     map[common.Address]*big.Int{},
		approveStatus:  types.ReceiptStatusSuccessful,
		transferStatus: types.ReceiptStatusSuccessful,
	}
}

func (t *fakeToken) Address() common.Address { return t.address }

func (t *fakeToken) Decimals(context.Context) (uint8, error) {
	if t.decimalsErr != nil {
		return 0, t.decimalsErr
	}
	return t.decimals, nil
}

func (t *fakeToken) BalanceOf(_ context.Context, owner common.Address) (*big.Int, error) {
	if err := t.read(); err != nil {
		return nil, err
	}
	if b := t.balances[owner]; b != nil {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (t *fakeToken) Allowance(_ context.Context, _, spender common.Address) (*big.Int, error) {
	if err := t.read(); err != nil {
		return nil, err
	}
	if a := t.allowances[spender]; a != nil {
		return new(big.Int).Set(a), nil
	}
	return new(big.Int), nil
}

func (t *fakeToken) read() error {
	if t.readFailures > 0 {
		t.readFailures--
		return errors.New("temporary rpc failure")
	}
	return t.readErr
}

func (t *fakeToken) Approve(_ context.Context, spender common.Address, amount *big.Int) (*types.Transaction, error) {
	if t.approveErr != nil {
		return nil, t.approveErr
	}
	t.approvals = append(t.approvals, new(big.Int).Set(amount))
	granted := new(big.Int).Set(amount)
	return t.chain.submit(t.approveStatus, func() { t.allowances[spender] = granted }), nil
}

func (t *fakeToken) Transfer(_ context.Context, _ common.Address, amount *big.Int) (*types.Transaction, error) {
	if t.transferErr != nil {
		return nil, t.transferErr
	}
	t.transfers = append(t.transfers, new(big.Int).Set(amount))
	return t.chain.submit(t.transferStatus, nil), nil
}

type swapCall struct {
	amountOut   *big.Int
	amountInMax *big.Int
	path        []common.Address
	to          common.Address
	deadline    *big.Int
}

type fakeRouter struct {
	chain      *fakeChain
	address    common.Address
	amountIn   *big.Int
	quoteErr   error
	quotes     int
	swapStatus uint64
	swapErr    error
	swaps      []swapCall
	// swapLogs are attached to the receipt of every swap.
	swapLogs []*types.Log
}

func (r *fakeRouter) Address() common.Address { return r.address }

func (r *fakeRouter) GetAmountsIn(_ context.Context, amountOut *big.Int, path []common.Address) ([]*big.Int, error) {
	r.quotes++
	if r.quoteErr != nil {
		return nil, r.quoteErr
	}
	return []*big.Int{new(big.Int).Set(r.amountIn), new(big.Int).Set(amountOut)}, nil
}

func (r *fakeRouter) SwapTokensForExactTokens(_ context.Context, amountOut, amountInMax *big.Int, path []common.Address, to common.Address, deadline *big.Int) (*types.Transaction, error) {
	if r.swapErr != nil {
		return nil, r.swapErr
	}
	r.swaps = append(r.swaps, swapCall{amountOut: amountOut, amountInMax: amountInMax, path: path, to: to, deadline: deadline})
	tx := r.chain.submit(r.swapStatus, nil)
	if len(r.swapLogs) > 0 {
		r.chain.logs[tx.Hash()] = r.swapLogs
	}
	return tx, nil
}

var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

func transferLog(token, from, to common.Address, value *big.Int) *types.Log {
	return &types.Log{
		Address: token,
		Topics: []common.Hash{
			transferTopic,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data: common.LeftPadBytes(value.Bytes(), 32),
	}
}

type memoryJournal struct {
	results []model.SwapResult
	err     error
}

func (j *memoryJournal) PutResult(_ context.Context, result model.SwapResult) error {
	if j.err != nil {
		return j.err
	}
	j.results = append(j.results, result)
	return nil
}
