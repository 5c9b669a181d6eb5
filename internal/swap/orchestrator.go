package swap

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/creasty/defaults"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"swapPay/internal/dex"
	"swapPay/internal/model"
	"swapPay/internal/storage"
)

// Token is the ERC20 surface the orchestrator needs. *dex.ERC20 satisfies it.
type Token interface {
	Address() common.Address
	Decimals(ctx context.Context) (uint8, error)
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, spender common.Address, amount *big.Int) (*types.Transaction, error)
	Transfer(ctx context.Context, to common.Address, amount *big.Int) (*types.Transaction, error)
}

// Router is the exchange router surface. *dex.RouterV2 satisfies it.
type Router interface {
	Address() common.Address
	GetAmountsIn(ctx context.Context, amountOut *big.Int, path []common.Address) ([]*big.Int, error)
	SwapTokensForExactTokens(ctx context.Context, amountOut, amountInMax *big.Int, path []common.Address, to common.Address, deadline *big.Int) (*types.Transaction, error)
}

// Confirmer blocks until a transaction is mined. *chain.Client satisfies it.
type Confirmer interface {
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// ApprovalPolicy selects the amount the allowance is checked against and
// approved for.
type ApprovalPolicy string

const (
	// ApprovalQuoted approves exactly the quoted input amount.
	ApprovalQuoted ApprovalPolicy = "quoted"
	// ApprovalMax approves the slippage-bounded maximum.
	ApprovalMax ApprovalPolicy = "max"
)

func ParseApprovalPolicy(s string) (ApprovalPolicy, error) {
	switch ApprovalPolicy(s) {
	case "", ApprovalQuoted:
		return ApprovalQuoted, nil
	case ApprovalMax:
		return ApprovalMax, nil
	default:
		return "", fmt.Errorf("unknown approval policy %q (want %s or %s)", s, ApprovalQuoted, ApprovalMax)
	}
}

// Config holds per-orchestrator settings. Zero fields take the tagged
// defaults.
type Config struct {
	Owner          common.Address
	Destination    common.Address
	Deadline       time.Duration  `default:"20m"`
	ApprovalPolicy ApprovalPolicy `default:"quoted"`
	// MaxRetries applies to reads only.
	MaxRetries     int
	RetryBackoff   time.Duration `default:"500ms"`
	ConfirmTimeout time.Duration
}

// Contracts groups the chain collaborators. Input is the token spent, Output
// the stable token delivered to the destination.
type Contracts struct {
	Router    Router
	Input     Token
	Output    Token
	Confirmer Confirmer
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithJournal records every confirmed payment to sink.
func WithJournal(sink storage.Storage) Option {
	return func(o *Orchestrator) { o.journal = sink }
}

// WithClock overrides the time source used for deadlines and timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator runs quote, approve-if-needed and swap against one token pair.
type Orchestrator struct {
	cfg       Config
	router    Router
	input     Token
	output    Token
	confirmer Confirmer
	journal   storage.Storage
	transfers *dex.TransferDecoder
	logger    *zap.Logger
	now       func() time.Time
}

func New(cfg Config, contracts Contracts, logger *zap.Logger, opts ...Option) (*Orchestrator, error) {
	if contracts.Router == nil || contracts.Input == nil || contracts.Output == nil {
		return nil, fmt.Errorf("router, input and output contracts are required")
	}
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if _, err := ParseApprovalPolicy(string(cfg.ApprovalPolicy)); err != nil {
		return nil, err
	}
	if cfg.Deadline < 0 {
		return nil, fmt.Errorf("deadline must not be negative")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	transfers, err := dex.NewTransferDecoder()
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:       cfg,
		router:    contracts.Router,
		input:     contracts.Input,
		output:    contracts.Output,
		confirmer: contracts.Confirmer,
		transfers: transfers,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// quoted is the raw outcome of the read-only phase.
type quoted struct {
	inDecimals  uint8
	outDecimals uint8
	amountOut   *big.Int
	amountIn    *big.Int
	amountInMax *big.Int
}

func (o *Orchestrator) path() []common.Address {
	return []common.Address{o.input.Address(), o.output.Address()}
}

// Quote prices an exact output amount without submitting anything.
func (o *Orchestrator) Quote(ctx context.Context, amountOut, tolerancePct decimal.Decimal) (model.Quote, error) {
	q, err := o.quote(ctx, amountOut, tolerancePct)
	if err != nil {
		return model.Quote{}, err
	}
	return model.Quote{
		InputToken:     o.input.Address().Hex(),
		OutputToken:    o.output.Address().Hex(),
		InputDecimals:  q.inDecimals,
		OutputDecimals: q.outDecimals,
		AmountOut:      FormatUnits(q.amountOut, q.outDecimals),
		AmountOutRaw:   q.amountOut.String(),
		AmountIn:       FormatUnits(q.amountIn, q.inDecimals),
		AmountInRaw:    q.amountIn.String(),
		AmountInMax:    FormatUnits(q.amountInMax, q.inDecimals),
		AmountInMaxRaw: q.amountInMax.String(),
		SlippagePct:    tolerancePct.String(),
	}, nil
}

func (o *Orchestrator) quote(ctx context.Context, amountOut, tolerancePct decimal.Decimal) (quoted, error) {
	if err := validateTolerance(tolerancePct); err != nil {
		return quoted{}, err
	}

	inDecimals, err := o.decimals(ctx, o.input)
	if err != nil {
		return quoted{}, err
	}
	outDecimals, err := o.decimals(ctx, o.output)
	if err != nil {
		return quoted{}, err
	}

	rawOut, err := ToRaw(amountOut, outDecimals)
	if err != nil {
		return quoted{}, err
	}

	var amounts []*big.Int
	err = o.read(ctx, func(ctx context.Context) error {
		var err error
		amounts, err = o.router.GetAmountsIn(ctx, rawOut, o.path())
		return err
	})
	if err != nil {
		return quoted{}, queryError(StepQuote, err)
	}
	if len(amounts) == 0 || amounts[0] == nil {
		return quoted{}, queryError(StepQuote, errors.New("router returned no amounts"))
	}
	amountIn := amounts[0]

	amountInMax, err := AmountInMax(amountIn, tolerancePct)
	if err != nil {
		return quoted{}, err
	}

	o.logger.Info("quoted swap",
		zap.String("input_token", o.input.Address().Hex()),
		zap.String("output_token", o.output.Address().Hex()),
		zap.String("amount_out", rawOut.String()),
		zap.String("amount_in", amountIn.String()),
		zap.String("amount_in_max", amountInMax.String()),
		zap.String("slippage_pct", tolerancePct.String()),
	)

	return quoted{
		inDecimals:  inDecimals,
		outDecimals: outDecimals,
		amountOut:   rawOut,
		amountIn:    amountIn,
		amountInMax: amountInMax,
	}, nil
}

// SwapForExactOutput delivers exactly amountOut of the output token to the
// destination, spending at most the quoted input plus tolerance.
func (o *Orchestrator) SwapForExactOutput(ctx context.Context, amountOut, tolerancePct decimal.Decimal) (model.SwapResult, error) {
	return o.swap(ctx, amountOut, tolerancePct, nil)
}

// SwapWithinQuote runs SwapForExactOutput for an approved quote. The price is
// fetched again and, if its maximum input exceeds approved.AmountInMaxRaw, the
// swap fails with ErrPriceMoved before anything is submitted.
func (o *Orchestrator) SwapWithinQuote(ctx context.Context, approved model.Quote) (model.SwapResult, error) {
	amountOut, err := decimal.NewFromString(approved.AmountOut)
	if err != nil {
		return model.SwapResult{}, fmt.Errorf("%w: approved amount out %q", ErrInvalidAmount, approved.AmountOut)
	}
	tolerancePct, err := decimal.NewFromString(approved.SlippagePct)
	if err != nil {
		return model.SwapResult{}, fmt.Errorf("%w: approved slippage %q", ErrInvalidAmount, approved.SlippagePct)
	}
	ceiling, ok := new(big.Int).SetString(approved.AmountInMaxRaw, 10)
	if !ok || ceiling.Sign() <= 0 {
		return model.SwapResult{}, fmt.Errorf("%w: approved max input %q", ErrInvalidAmount, approved.AmountInMaxRaw)
	}
	return o.swap(ctx, amountOut, tolerancePct, ceiling)
}

func (o *Orchestrator) swap(ctx context.Context, amountOut, tolerancePct decimal.Decimal, ceiling *big.Int) (model.SwapResult, error) {
	q, err := o.quote(ctx, amountOut, tolerancePct)
	if err != nil {
		return model.SwapResult{}, err
	}
	if ceiling != nil && q.amountInMax.Cmp(ceiling) > 0 {
		o.logger.Warn("price moved past approved quote",
			zap.String("amount_in_max", q.amountInMax.String()),
			zap.String("approved_max", ceiling.String()),
		)
		return model.SwapResult{}, queryError(StepQuote,
			fmt.Errorf("%w: max input %s exceeds approved %s", ErrPriceMoved, q.amountInMax, ceiling))
	}

	approvalHash, err := o.ensureAllowance(ctx, q)
	if err != nil {
		return model.SwapResult{}, err
	}

	deadline := big.NewInt(o.now().Add(o.cfg.Deadline).Unix())
	tx, err := o.router.SwapTokensForExactTokens(ctx, q.amountOut, q.amountInMax, o.path(), o.cfg.Destination, deadline)
	if err != nil {
		return model.SwapResult{}, &StepError{Step: StepSwap, Kind: ErrSwapFailed, Err: err}
	}
	o.logger.Info("swap submitted",
		zap.String("tx", tx.Hash().Hex()),
		zap.String("amount_out", q.amountOut.String()),
		zap.String("amount_in_max", q.amountInMax.String()),
		zap.Int64("deadline", deadline.Int64()),
	)

	receipt, err := o.confirm(ctx, StepSwap, ErrSwapFailed, tx)
	if err != nil {
		return model.SwapResult{}, err
	}

	result := o.result(model.KindSwap, receipt, tx)
	result.InputToken = o.input.Address().Hex()
	result.OutputToken = o.output.Address().Hex()
	result.AmountIn = FormatUnits(q.amountIn, q.inDecimals)
	result.AmountInRaw = q.amountIn.String()
	result.AmountInMaxRaw = q.amountInMax.String()
	result.AmountOut = FormatUnits(q.amountOut, q.outDecimals)
	result.AmountOutRaw = q.amountOut.String()
	result.ApprovalTxHash = approvalHash
	o.settle(receipt, &result, q)

	o.logger.Info("swap confirmed",
		zap.String("tx", result.TxHash),
		zap.Uint64("block", result.BlockNumber),
		zap.String("amount_in", result.AmountIn),
		zap.String("amount_out", result.AmountOut),
	)
	o.record(ctx, result)
	return result, nil
}

// ensureAllowance approves the router when the current allowance does not
// cover the policy amount. It returns the approval hash, or "" if none was
// needed.
func (o *Orchestrator) ensureAllowance(ctx context.Context, q quoted) (string, error) {
	required := q.amountIn
	if o.cfg.ApprovalPolicy == ApprovalMax {
		required = q.amountInMax
	}

	spender := o.router.Address()
	var allowance *big.Int
	err := o.read(ctx, func(ctx context.Context) error {
		var err error
		allowance, err = o.input.Allowance(ctx, o.cfg.Owner, spender)
		return err
	})
	if err != nil {
		return "", queryError(StepAllowance, err)
	}
	if allowance != nil && allowance.Cmp(required) >= 0 {
		o.logger.Debug("allowance sufficient",
			zap.String("allowance", allowance.String()),
			zap.String("required", required.String()),
		)
		return "", nil
	}

	tx, err := o.input.Approve(ctx, spender, required)
	if err != nil {
		return "", &StepError{Step: StepApprove, Kind: ErrApprovalFailed, Err: err}
	}
	o.logger.Info("approval submitted",
		zap.String("tx", tx.Hash().Hex()),
		zap.String("spender", spender.Hex()),
		zap.String("amount", required.String()),
	)
	if _, err := o.confirm(ctx, StepApprove, ErrApprovalFailed, tx); err != nil {
		return "", err
	}
	return tx.Hash().Hex(), nil
}

// DirectDeposit transfers amount of the output token straight to the
// destination.
func (o *Orchestrator) DirectDeposit(ctx context.Context, amount decimal.Decimal) (model.SwapResult, error) {
	decimals, err := o.decimals(ctx, o.output)
	if err != nil {
		return model.SwapResult{}, err
	}
	raw, err := ToRaw(amount, decimals)
	if err != nil {
		return model.SwapResult{}, err
	}

	tx, err := o.output.Transfer(ctx, o.cfg.Destination, raw)
	if err != nil {
		return model.SwapResult{}, &StepError{Step: StepDeposit, Kind: ErrDepositFailed, Err: err}
	}
	o.logger.Info("deposit submitted",
		zap.String("tx", tx.Hash().Hex()),
		zap.String("token", o.output.Address().Hex()),
		zap.String("amount", raw.String()),
	)

	receipt, err := o.confirm(ctx, StepDeposit, ErrDepositFailed, tx)
	if err != nil {
		return model.SwapResult{}, err
	}

	result := o.result(model.KindDeposit, receipt, tx)
	result.InputToken = o.output.Address().Hex()
	result.OutputToken = o.output.Address().Hex()
	result.AmountIn = FormatUnits(raw, decimals)
	result.AmountInRaw = raw.String()
	result.AmountOut = result.AmountIn
	result.AmountOutRaw = result.AmountInRaw

	o.logger.Info("deposit confirmed", zap.String("tx", result.TxHash), zap.Uint64("block", result.BlockNumber))
	o.record(ctx, result)
	return result, nil
}

// Account reads the owner's balances of both tokens and the router allowance.
func (o *Orchestrator) Account(ctx context.Context) (model.AccountState, error) {
	inDecimals, err := o.decimals(ctx, o.input)
	if err != nil {
		return model.AccountState{}, err
	}
	outDecimals, err := o.decimals(ctx, o.output)
	if err != nil {
		return model.AccountState{}, err
	}

	var inBalance, outBalance, allowance *big.Int
	err = o.read(ctx, func(ctx context.Context) error {
		var err error
		inBalance, err = o.input.BalanceOf(ctx, o.cfg.Owner)
		if err != nil {
			return err
		}
		outBalance, err = o.output.BalanceOf(ctx, o.cfg.Owner)
		return err
	})
	if err != nil {
		return model.AccountState{}, queryError(StepBalance, err)
	}
	err = o.read(ctx, func(ctx context.Context) error {
		var err error
		allowance, err = o.input.Allowance(ctx, o.cfg.Owner, o.router.Address())
		return err
	})
	if err != nil {
		return model.AccountState{}, queryError(StepAllowance, err)
	}

	return model.AccountState{
		Owner:          o.cfg.Owner.Hex(),
		Router:         o.router.Address().Hex(),
		InputToken:     o.input.Address().Hex(),
		InputBalance:   FormatUnits(inBalance, inDecimals),
		InputAllowance: FormatUnits(allowance, inDecimals),
		OutputToken:    o.output.Address().Hex(),
		OutputBalance:  FormatUnits(outBalance, outDecimals),
	}, nil
}

func (o *Orchestrator) decimals(ctx context.Context, token Token) (uint8, error) {
	var decimals uint8
	err := o.read(ctx, func(ctx context.Context) error {
		var err error
		decimals, err = token.Decimals(ctx)
		return err
	})
	if err != nil {
		return 0, queryError(StepDecimals, fmt.Errorf("token %s: %w", token.Address().Hex(), err))
	}
	return decimals, nil
}

func (o *Orchestrator) read(ctx context.Context, fn func(context.Context) error) error {
	return withRetry(ctx, o.cfg.MaxRetries, o.cfg.RetryBackoff, fn)
}

// confirm waits for tx and turns anything but a successful receipt into a
// StepError of the given kind.
func (o *Orchestrator) confirm(ctx context.Context, step Step, kind error, tx *types.Transaction) (*types.Receipt, error) {
	fail := func(reverted bool, err error) error {
		return &StepError{Step: step, Kind: kind, TxHash: tx.Hash(), Broadcast: true, Reverted: reverted, Err: err}
	}
	if o.confirmer == nil {
		return nil, fail(false, errors.New("no confirmer configured"))
	}

	if o.cfg.ConfirmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.ConfirmTimeout)
		defer cancel()
	}

	receipt, err := o.confirmer.WaitMined(ctx, tx)
	if err != nil {
		return nil, fail(false, fmt.Errorf("wait mined: %w", err))
	}
	if receipt == nil {
		return nil, fail(false, errors.New("no receipt"))
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		o.logger.Warn("transaction reverted",
			zap.String("step", string(step)),
			zap.String("tx", tx.Hash().Hex()),
			zap.Uint64("gas_used", receipt.GasUsed),
		)
		return nil, fail(true, errReverted)
	}
	return receipt, nil
}

func (o *Orchestrator) result(kind string, receipt *types.Receipt, tx *types.Transaction) model.SwapResult {
	result := model.SwapResult{
		ID:          uuid.NewString(),
		Kind:        kind,
		TxHash:      tx.Hash().Hex(),
		GasUsed:     receipt.GasUsed,
		Sender:      o.cfg.Owner.Hex(),
		Recipient:   o.cfg.Destination.Hex(),
		CompletedAt: o.now().UTC().Format(time.RFC3339),
	}
	if receipt.BlockNumber != nil {
		result.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return result
}

// settle replaces the quoted amounts with what the receipt's Transfer logs
// show. The pair is whoever sent the output token to the destination; the
// input is what the owner sent to that pair. Quoted amounts stay when the
// logs do not show the swap.
func (o *Orchestrator) settle(receipt *types.Receipt, result *model.SwapResult, q quoted) {
	events, failures := o.transfers.DecodeReceipt(0, receipt, 0)
	for _, failure := range failures {
		o.logger.Warn("undecodable transfer log",
			zap.String("tx", failure.TxHash),
			zap.Uint64("log_index", failure.LogIndex),
			zap.String("error", failure.Error),
		)
	}

	var pair common.Address
	found := false
	for _, event := range events {
		if common.HexToAddress(event.Token) == o.output.Address() && common.HexToAddress(event.To) == o.cfg.Destination {
			pair = common.HexToAddress(event.From)
			found = true
			break
		}
	}
	if !found {
		o.logger.Warn("swap receipt has no output transfer, keeping quoted amounts", zap.String("tx", result.TxHash))
		return
	}

	spent := dex.SumTransfers(events, o.input.Address(), o.cfg.Owner, pair)
	delivered := dex.SumTransfers(events, o.output.Address(), pair, o.cfg.Destination)
	if spent.Sign() == 0 {
		o.logger.Warn("swap receipt has no input transfer, keeping quoted amount in", zap.String("tx", result.TxHash))
	} else {
		result.AmountIn = FormatUnits(spent, q.inDecimals)
		result.AmountInRaw = spent.String()
	}
	result.AmountOut = FormatUnits(delivered, q.outDecimals)
	result.AmountOutRaw = delivered.String()
}

func (o *Orchestrator) record(ctx context.Context, result model.SwapResult) {
	if o.journal == nil {
		return
	}
	if err := o.journal.PutResult(ctx, result); err != nil {
		o.logger.Error("journal write failed", zap.String("tx", result.TxHash), zap.Error(err))
	}
}
