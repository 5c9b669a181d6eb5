package main

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swapPay/internal/config"
	"swapPay/internal/dex"
	"swapPay/internal/model"
	"swapPay/internal/storage"
	"swapPay/internal/swap"
)

// txStatus is the status command's report.
type txStatus struct {
	TxHash       string                `json:"tx_hash"`
	Success      bool                  `json:"success"`
	BlockNumber  uint64                `json:"block_number"`
	BlockTime    string                `json:"block_time,omitempty"`
	GasUsed      uint64                `json:"gas_used"`
	Transfers    []model.TransferEvent `json:"transfers"`
	DecodeErrors []model.DecodeError   `json:"decode_errors,omitempty"`
	Journal      *model.SwapResult     `json:"journal,omitempty"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <tx-hash>",
		Short: "Inspect a mined transaction and the token transfers it made",
		Args:  cobra.ExactArgs(1),
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	hash, err := parseTxHash(args[0])
	if err != nil {
		return err
	}

	s, err := openSession(cmd, config.ScopeReceipt)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	stop := startSpinner(s.json, "Fetching receipt...")
	receipt, err := s.client.TransactionReceipt(ctx, hash)
	stop()
	if err != nil {
		return fmt.Errorf("get receipt %s: %w", hash.Hex(), err)
	}

	report, err := s.inspect(cmd, receipt)
	if err != nil {
		return err
	}

	if s.json {
		return printJSON(cmd.OutOrStdout(), report)
	}
	printStatus(report)
	return nil
}

func (s *session) inspect(cmd *cobra.Command, receipt *types.Receipt) (txStatus, error) {
	ctx := cmd.Context()
	report := txStatus{
		TxHash:  receipt.TxHash.Hex(),
		Success: receipt.Status == types.ReceiptStatusSuccessful,
		GasUsed: receipt.GasUsed,
	}

	var timestamp uint64
	if receipt.BlockNumber != nil {
		report.BlockNumber = receipt.BlockNumber.Uint64()
		ts, err := s.client.BlockTimestamp(ctx, report.BlockNumber)
		if err != nil {
			s.logger.Warn("block timestamp unavailable", zap.Uint64("block", report.BlockNumber), zap.Error(err))
		} else {
			timestamp = ts
			report.BlockTime = time.Unix(int64(ts), 0).UTC().Format(time.RFC3339)
		}
	}

	chainID, err := s.client.GetChainID(ctx)
	if err != nil {
		return txStatus{}, fmt.Errorf("get chain id: %w", err)
	}

	decoder, err := dex.NewTransferDecoder()
	if err != nil {
		return txStatus{}, err
	}
	report.Transfers, report.DecodeErrors = decoder.DecodeReceipt(chainID.Uint64(), receipt, timestamp)
	for i := range report.Transfers {
		transfer := &report.Transfers[i]
		meta, err := s.meta.Lookup(ctx, s.client, common.HexToAddress(transfer.Token), s.logger)
		if err != nil {
			s.logger.Debug("token metadata unavailable", zap.String("token", transfer.Token), zap.Error(err))
			continue
		}
		value, ok := new(big.Int).SetString(transfer.Value, 10)
		if !ok {
			continue
		}
		transfer.Amount = swap.FormatUnits(value, meta.Decimals)
		transfer.Symbol = meta.Symbol
	}

	report.Journal = s.findJournalEntry(cmd, report.TxHash)
	return report, nil
}

// findJournalEntry looks the transaction up in the configured journals.
func (s *session) findJournalEntry(cmd *cobra.Command, txHash string) *model.SwapResult {
	if s.pg != nil {
		result, found, err := s.pg.LoadResult(cmd.Context(), txHash)
		if err != nil {
			s.logger.Warn("postgres journal lookup failed", zap.Error(err))
		} else if found {
			return &result
		}
	}
	if s.cfg.Out != "" {
		results, err := storage.ReadResults(s.cfg.Out)
		if err != nil {
			s.logger.Warn("jsonl journal lookup failed", zap.Error(err))
			return nil
		}
		for i := range results {
			if strings.EqualFold(results[i].TxHash, txHash) {
				return &results[i]
			}
		}
	}
	return nil
}

func parseTxHash(input string) (common.Hash, error) {
	data, err := hexutil.Decode(strings.TrimSpace(input))
	if err != nil || len(data) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid transaction hash: %s", input)
	}
	return common.BytesToHash(data), nil
}

func printStatus(report txStatus) {
	header("TRANSACTION STATUS")
	row("Transaction", color.CyanString(report.TxHash))
	if report.Success {
		row("Status", color.GreenString("success"))
	} else {
		row("Status", color.RedString("reverted"))
	}
	row("Block", fmt.Sprintf("%d", report.BlockNumber))
	if report.BlockTime != "" {
		row("Time", report.BlockTime)
	}
	row("Gas used", fmt.Sprintf("%d", report.GasUsed))

	if len(report.Transfers) > 0 {
		fmt.Println()
		color.Cyan("  Transfers")
		for _, t := range report.Transfers {
			amount := t.Value
			label := t.Token
			if t.Amount != "" {
				amount = t.Amount
			}
			if t.Symbol != "" {
				label = t.Symbol
			}
			fmt.Printf("    %s %s  %s -> %s\n", amount, color.YellowString(label), t.From, t.To)
		}
	}
	for _, e := range report.DecodeErrors {
		color.Yellow("  log %d could not be decoded: %s", e.LogIndex, e.Error)
	}
	if report.Journal != nil {
		row("Journal", fmt.Sprintf("%s payment recorded at %s", report.Journal.Kind, report.Journal.CompletedAt))
	}
	fmt.Println(rule)
}
