package swap

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"swapPay/internal/model"
)

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	platform = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	routerAt = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	daiAt    = common.HexToAddress("0x00000000000000000000000000000000000000dd")
	usdtAt   = common.HexToAddress("0x00000000000000000000000000000000000000ee")
)

type harness struct {
	chain   *fakeChain
	router  *fakeRouter
	input   *fakeToken
	output  *fakeToken
	journal *memoryJournal
	orch    *Orchestrator
	now     time.Time
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	chain := newFakeChain()
	h := &harness{
		chain:   chain,
		router:  &fakeRouter{chain: chain, address: routerAt, amountIn: mustBig(t, "2000000000000000000"), swapStatus: types.ReceiptStatusSuccessful},
		input:   newFakeToken(chain, daiAt, 18),
		output:  newFakeToken(chain, usdtAt, 6),
		journal: &memoryJournal{},
		now:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	cfg.Owner = owner
	cfg.Destination = platform
	cfg.RetryBackoff = time.Millisecond

	orch, err := New(cfg, Contracts{
		Router:    h.router,
		Input:     h.input,
		Output:    h.output,
		Confirmer: chain,
	}, zap.NewNop(), WithJournal(h.journal), WithClock(func() time.Time { return h.now }))
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	h.orch = orch
	return h
}

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("bad big int %q", s)
	}
	return n
}

func one() decimal.Decimal { return decimal.NewFromInt(1) }

func TestSwapApprovesThenSwaps(t *testing.T) {
	h := newHarness(t, Config{})

	result, err := h.orch.SwapForExactOutput(context.Background(), one(), one())
	if err != nil {
		t.Fatalf("swap: %v", err)
	}

	if len(h.input.approvals) != 1 || h.input.approvals[0].Cmp(mustBig(t, "2000000000000000000")) != 0 {
		t.Fatalf("expected one approval of amountIn, got %v", h.input.approvals)
	}
	if len(h.router.swaps) != 1 {
		t.Fatalf("expected one swap, got %d", len(h.router.swaps))
	}
	call := h.router.swaps[0]
	if call.amountOut.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("amountOut mismatch: %s", call.amountOut)
	}
	if call.amountInMax.Cmp(mustBig(t, "2020000000000000000")) != 0 {
		t.Fatalf("amountInMax mismatch: %s", call.amountInMax)
	}
	if call.to != platform {
		t.Fatalf("recipient mismatch: %s", call.to.Hex())
	}
	if len(call.path) != 2 || call.path[0] != daiAt || call.path[1] != usdtAt {
		t.Fatalf("path mismatch: %v", call.path)
	}
	if want := h.now.Add(20 * time.Minute).Unix(); call.deadline.Int64() != want {
		t.Fatalf("deadline mismatch: %d want %d", call.deadline.Int64(), want)
	}

	if result.TxHash != h.chain.mined[1].Hex() {
		t.Fatalf("result hash should be the swap tx")
	}
	if result.ApprovalTxHash != h.chain.mined[0].Hex() {
		t.Fatalf("approval hash mismatch")
	}
	if result.AmountIn != "2" || result.AmountOut != "1" || result.AmountInRaw != "2000000000000000000" || result.AmountOutRaw != "1000000" {
		t.Fatalf("amounts mismatch: %+v", result)
	}
	if result.Sender != owner.Hex() || result.Recipient != platform.Hex() {
		t.Fatalf("addresses mismatch: %+v", result)
	}
	if result.CompletedAt != "2024-05-01T12:00:00Z" {
		t.Fatalf("completed at mismatch: %s", result.CompletedAt)
	}
	if len(h.journal.results) != 1 || h.journal.results[0].TxHash != result.TxHash {
		t.Fatalf("journal mismatch: %+v", h.journal.results)
	}
}

func TestSwapRecordsRealizedAmounts(t *testing.T) {
	h := newHarness(t, Config{})
	pair := common.HexToAddress("0x00000000000000000000000000000000000000ff")
	stranger := common.HexToAddress("0x0000000000000000000000000000000000000011")
	h.router.swapLogs = []*types.Log{
		transferLog(daiAt, owner, pair, mustBig(t, "1950000000000000000")),
		transferLog(daiAt, stranger, pair, big.NewInt(5)),
		transferLog(usdtAt, pair, platform, big.NewInt(1_000_000)),
	}

	result, err := h.orch.SwapForExactOutput(context.Background(), one(), one())
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if result.AmountInRaw != "1950000000000000000" || result.AmountIn != "1.95" {
		t.Fatalf("realized input mismatch: %s (%s)", result.AmountInRaw, result.AmountIn)
	}
	if result.AmountOutRaw != "1000000" || result.AmountOut != "1" {
		t.Fatalf("realized output mismatch: %s (%s)", result.AmountOutRaw, result.AmountOut)
	}
	if result.AmountInMaxRaw != "2020000000000000000" {
		t.Fatalf("max input should stay the quoted bound: %s", result.AmountInMaxRaw)
	}
	if len(h.journal.results) != 1 || h.journal.results[0].AmountInRaw != "1950000000000000000" {
		t.Fatalf("journal should hold the realized input: %+v", h.journal.results)
	}
}

func TestSwapWithinQuoteRejectsPriceMove(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	q, err := h.orch.Quote(ctx, one(), one())
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	h.router.amountIn = mustBig(t, "3000000000000000000")

	_, err = h.orch.SwapWithinQuote(ctx, q)
	if !errors.Is(err, ErrPriceMoved) || !errors.Is(err, ErrQuery) {
		t.Fatalf("expected price moved query error, got %v", err)
	}
	if errors.Is(err, ErrTransactionFailed) {
		t.Fatalf("nothing was submitted: %v", err)
	}
	if len(h.input.approvals) != 0 || len(h.router.swaps) != 0 || len(h.journal.results) != 0 {
		t.Fatalf("no writes expected: approvals=%d swaps=%d journal=%d", len(h.input.approvals), len(h.router.swaps), len(h.journal.results))
	}
}

func TestSwapWithinQuoteTakesBetterPrice(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	q, err := h.orch.Quote(ctx, one(), one())
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	h.router.amountIn = mustBig(t, "1500000000000000000")

	if _, err := h.orch.SwapWithinQuote(ctx, q); err != nil {
		t.Fatalf("swap: %v", err)
	}
	if len(h.router.swaps) != 1 {
		t.Fatalf("expected one swap, got %d", len(h.router.swaps))
	}
	if got := h.router.swaps[0].amountInMax; got.Cmp(mustBig(t, "1515000000000000000")) != 0 {
		t.Fatalf("swap should use the fresh bound, got %s", got)
	}
}

func TestSwapWithinQuoteRejectsMalformedQuote(t *testing.T) {
	h := newHarness(t, Config{})
	_, err := h.orch.SwapWithinQuote(context.Background(), model.Quote{AmountOut: "1", SlippagePct: "1", AmountInMaxRaw: "x"})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestSwapSkipsApprovalWhenAllowanceCovers(t *testing.T) {
	h := newHarness(t, Config{})
	h.input.allowances[routerAt] = mustBig(t, "5000000000000000000")

	result, err := h.orch.SwapForExactOutput(context.Background(), one(), one())
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if len(h.input.approvals) != 0 {
		t.Fatalf("no approval expected, got %v", h.input.approvals)
	}
	if result.ApprovalTxHash != "" {
		t.Fatalf("unexpected approval hash %s", result.ApprovalTxHash)
	}
}

func TestSwapTwiceApprovesOnce(t *testing.T) {
	h := newHarness(t, Config{ApprovalPolicy: ApprovalMax})
	h.router.amountIn = mustBig(t, "1000000000000000000")

	for i := 0; i < 2; i++ {
		if _, err := h.orch.SwapForExactOutput(context.Background(), decimal.RequireFromString("0.5"), one()); err != nil {
			t.Fatalf("swap %d: %v", i, err)
		}
	}
	if len(h.input.approvals) != 1 {
		t.Fatalf("expected one approval across two swaps, got %d", len(h.input.approvals))
	}
	if h.input.approvals[0].Cmp(mustBig(t, "1010000000000000000")) != 0 {
		t.Fatalf("max policy should approve amountInMax, got %s", h.input.approvals[0])
	}
	if len(h.router.swaps) != 2 {
		t.Fatalf("expected two swaps, got %d", len(h.router.swaps))
	}
}

func TestSwapQuotedPolicyApprovesOnceAtSamePrice(t *testing.T) {
	h := newHarness(t, Config{})
	for i := 0; i < 2; i++ {
		if _, err := h.orch.SwapForExactOutput(context.Background(), one(), one()); err != nil {
			t.Fatalf("swap %d: %v", i, err)
		}
	}
	if len(h.input.approvals) != 1 {
		t.Fatalf("expected one approval, got %d", len(h.input.approvals))
	}
}

func TestSwapQuoteFailureSubmitsNothing(t *testing.T) {
	h := newHarness(t, Config{MaxRetries: 1})
	h.router.quoteErr = errors.New("execution reverted: INSUFFICIENT_LIQUIDITY")

	_, err := h.orch.SwapForExactOutput(context.Background(), one(), one())
	if !errors.Is(err, ErrQuery) {
		t.Fatalf("expected query error, got %v", err)
	}
	if errors.Is(err, ErrTransactionFailed) {
		t.Fatalf("quote failure must not be a transaction failure")
	}
	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != StepQuote {
		t.Fatalf("expected quote step, got %v", err)
	}
	if h.router.quotes != 2 {
		t.Fatalf("expected one retry, got %d quotes", h.router.quotes)
	}
	if len(h.input.approvals) != 0 || len(h.router.swaps) != 0 || len(h.chain.mined) != 0 {
		t.Fatalf("nothing should be submitted")
	}
}

func TestSwapDecimalsFailure(t *testing.T) {
	h := newHarness(t, Config{})
	h.output.decimalsErr = errors.New("no code at address")

	_, err := h.orch.SwapForExactOutput(context.Background(), one(), one())
	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != StepDecimals || !errors.Is(err, ErrQuery) {
		t.Fatalf("expected decimals query error, got %v", err)
	}
	if h.router.quotes != 0 {
		t.Fatalf("router must not be queried")
	}
}

func TestSwapApprovalRevertStopsSwap(t *testing.T) {
	h := newHarness(t, Config{})
	h.input.approveStatus = types.ReceiptStatusFailed

	_, err := h.orch.SwapForExactOutput(context.Background(), one(), one())
	if !errors.Is(err, ErrApprovalFailed) || !errors.Is(err, ErrTransactionFailed) {
		t.Fatalf("expected approval failure, got %v", err)
	}
	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected StepError, got %T", err)
	}
	if !stepErr.Broadcast || !stepErr.Reverted || stepErr.TxHash != h.chain.mined[0] {
		t.Fatalf("revert details mismatch: %+v", stepErr)
	}
	if len(h.router.swaps) != 0 {
		t.Fatalf("swap must not be submitted after failed approval")
	}
	if len(h.journal.results) != 0 {
		t.Fatalf("nothing should be journaled")
	}
}

func TestSwapApprovalBroadcastFailure(t *testing.T) {
	h := newHarness(t, Config{})
	h.input.approveErr = errors.New("insufficient funds for gas")

	_, err := h.orch.SwapForExactOutput(context.Background(), one(), one())
	var stepErr *StepError
	if !errors.As(err, &stepErr) || !errors.Is(err, ErrApprovalFailed) {
		t.Fatalf("expected approval failure, got %v", err)
	}
	if stepErr.Broadcast || stepErr.Reverted {
		t.Fatalf("broadcast failure must not report a mined tx: %+v", stepErr)
	}
	if stepErr.TxHash != (common.Hash{}) {
		t.Fatalf("unsent transaction has no hash, got %s", stepErr.TxHash.Hex())
	}
	if len(h.router.swaps) != 0 {
		t.Fatalf("swap must not be submitted")
	}
}

func TestSwapRevertReturnsNoResult(t *testing.T) {
	h := newHarness(t, Config{})
	h.input.allowances[routerAt] = mustBig(t, "5000000000000000000")
	h.router.swapStatus = types.ReceiptStatusFailed

	result, err := h.orch.SwapForExactOutput(context.Background(), one(), one())
	if !errors.Is(err, ErrSwapFailed) {
		t.Fatalf("expected swap failure, got %v", err)
	}
	if result.TxHash != "" {
		t.Fatalf("no result expected on failure, got %+v", result)
	}
	var stepErr *StepError
	if !errors.As(err, &stepErr) || !stepErr.Reverted || stepErr.Step != StepSwap {
		t.Fatalf("expected reverted swap step, got %v", err)
	}
	if len(h.journal.results) != 0 {
		t.Fatalf("failed swap must not be journaled")
	}
}

func TestSwapConfirmationError(t *testing.T) {
	h := newHarness(t, Config{})
	h.input.allowances[routerAt] = mustBig(t, "5000000000000000000")
	h.chain.waitErr = context.DeadlineExceeded

	_, err := h.orch.SwapForExactOutput(context.Background(), one(), one())
	var stepErr *StepError
	if !errors.As(err, &stepErr) || !stepErr.Broadcast || stepErr.Reverted {
		t.Fatalf("expected broadcast but unconfirmed swap, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("cause should be preserved: %v", err)
	}
}

func TestSwapJournalFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, Config{})
	h.journal.err = errors.New("disk full")

	if _, err := h.orch.SwapForExactOutput(context.Background(), one(), one()); err != nil {
		t.Fatalf("journal failure must not fail the swap: %v", err)
	}
}

func TestSwapRejectsInvalidInput(t *testing.T) {
	h := newHarness(t, Config{})
	cases := []struct {
		name      string
		amount    decimal.Decimal
		tolerance decimal.Decimal
	}{
		{name: "zero amount", amount: decimal.Zero, tolerance: one()},
		{name: "negative amount", amount: decimal.NewFromInt(-1), tolerance: one()},
		{name: "excess precision", amount: decimal.RequireFromString("0.0000001"), tolerance: one()},
		{name: "negative tolerance", amount: one(), tolerance: decimal.NewFromInt(-1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.orch.SwapForExactOutput(context.Background(), tc.amount, tc.tolerance)
			if !errors.Is(err, ErrInvalidAmount) {
				t.Fatalf("expected invalid amount, got %v", err)
			}
		})
	}
	if h.router.quotes != 0 || len(h.chain.mined) != 0 {
		t.Fatalf("invalid input must not reach the router")
	}
}

func TestQuote(t *testing.T) {
	h := newHarness(t, Config{})

	q, err := h.orch.Quote(context.Background(), one(), decimal.RequireFromString("1.5"))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.AmountOutRaw != "1000000" || q.AmountInRaw != "2000000000000000000" {
		t.Fatalf("raw amounts mismatch: %+v", q)
	}
	if q.AmountInMaxRaw != "2020000000000000000" || q.AmountInMax != "2.02" {
		t.Fatalf("fractional tolerance should floor to 1%%: %+v", q)
	}
	if q.InputDecimals != 18 || q.OutputDecimals != 6 {
		t.Fatalf("decimals mismatch: %+v", q)
	}
	if len(h.chain.mined) != 0 || len(h.input.approvals) != 0 {
		t.Fatalf("quote must not submit transactions")
	}
}

func TestSwapRetriesTransientReads(t *testing.T) {
	h := newHarness(t, Config{MaxRetries: 2})
	h.input.readFailures = 2
	h.input.allowances[routerAt] = mustBig(t, "5000000000000000000")

	if _, err := h.orch.SwapForExactOutput(context.Background(), one(), one()); err != nil {
		t.Fatalf("allowance read should recover after retries: %v", err)
	}
}

func TestDirectDeposit(t *testing.T) {
	h := newHarness(t, Config{})

	result, err := h.orch.DirectDeposit(context.Background(), decimal.RequireFromString("12.5"))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if len(h.output.transfers) != 1 || h.output.transfers[0].Cmp(big.NewInt(12_500_000)) != 0 {
		t.Fatalf("transfer mismatch: %v", h.output.transfers)
	}
	if result.AmountOut != "12.5" || result.AmountOutRaw != "12500000" || result.OutputToken != usdtAt.Hex() {
		t.Fatalf("result mismatch: %+v", result)
	}
	if h.router.quotes != 0 || len(h.input.approvals) != 0 {
		t.Fatalf("deposit must not quote or approve")
	}
	if len(h.journal.results) != 1 || h.journal.results[0].Kind != "deposit" {
		t.Fatalf("journal mismatch: %+v", h.journal.results)
	}
}

func TestDirectDepositRevert(t *testing.T) {
	h := newHarness(t, Config{})
	h.output.transferStatus = types.ReceiptStatusFailed

	_, err := h.orch.DirectDeposit(context.Background(), one())
	if !errors.Is(err, ErrDepositFailed) || !errors.Is(err, ErrTransactionFailed) {
		t.Fatalf("expected deposit failure, got %v", err)
	}
}

func TestAccount(t *testing.T) {
	h := newHarness(t, Config{})
	h.input.balances[owner] = mustBig(t, "3500000000000000000")
	h.input.allowances[routerAt] = mustBig(t, "1000000000000000000")
	h.output.balances[owner] = big.NewInt(42_000_000)

	state, err := h.orch.Account(context.Background())
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if state.InputBalance != "3.5" || state.InputAllowance != "1" || state.OutputBalance != "42" {
		t.Fatalf("state mismatch: %+v", state)
	}
	if state.Router != routerAt.Hex() || state.Owner != owner.Hex() {
		t.Fatalf("addresses mismatch: %+v", state)
	}
}

func TestAccountBalanceFailure(t *testing.T) {
	h := newHarness(t, Config{})
	h.output.readErr = errors.New("rpc down")

	_, err := h.orch.Account(context.Background())
	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != StepBalance || !errors.Is(err, ErrQuery) {
		t.Fatalf("expected balance query error, got %v", err)
	}
}

func TestParseApprovalPolicy(t *testing.T) {
	if p, err := ParseApprovalPolicy(""); err != nil || p != ApprovalQuoted {
		t.Fatalf("default policy: %v %v", p, err)
	}
	if p, err := ParseApprovalPolicy("max"); err != nil || p != ApprovalMax {
		t.Fatalf("max policy: %v %v", p, err)
	}
	if _, err := ParseApprovalPolicy("infinite"); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}
