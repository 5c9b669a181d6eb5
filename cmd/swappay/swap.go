package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swapPay/internal/config"
	"swapPay/internal/model"
	"swapPay/internal/swap"
)

func newSwapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "swap <amount>",
		Short: "Swap the input token for an exact stable token amount paid to the platform",
		Args:  cobra.ExactArgs(1),
		RunE:  runSwap,
	}
	cmd.Flags().String("slippage", "1", "slippage tolerance in percent")
	cmd.Flags().Duration("deadline", 0, "swap deadline from now (default 20m)")
	cmd.Flags().String("approval-policy", "quoted", "allowance to grant: quoted or max")
	cmd.Flags().Bool("yes", false, "skip the confirmation prompt (required with --json)")
	return cmd
}

func runSwap(cmd *cobra.Command, args []string) error {
	amount, err := swap.ParseAmount(args[0])
	if err != nil {
		return err
	}
	skip, err := skipPrompt(cmd)
	if err != nil {
		return err
	}

	s, err := openSession(cmd, config.ScopeWrite)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	var result model.SwapResult
	if skip {
		stop := startSpinner(s.json, "Swapping...")
		result, err = s.orch.SwapForExactOutput(ctx, amount, s.cfg.Slippage)
		stop()
	} else {
		stop := startSpinner(s.json, "Fetching quote...")
		q, qerr := s.orch.Quote(ctx, amount, s.cfg.Slippage)
		stop()
		if qerr != nil {
			s.logger.Error("quote failed", zap.Error(qerr))
			return qerr
		}
		printQuote(s, cmd, q)
		row("Pay to", color.CyanString(s.cfg.Platform))
		if !confirm(cmd.InOrStdin(), "Proceed with swap?") {
			fmt.Println("\nSwap cancelled.")
			return nil
		}
		stop = startSpinner(s.json, "Swapping...")
		result, err = s.orch.SwapWithinQuote(ctx, q)
		stop()
	}
	if err != nil {
		s.logger.Error("swap failed", zap.Error(err))
		return err
	}

	if s.json {
		return printJSON(cmd.OutOrStdout(), result)
	}
	printResult(s, cmd, "SWAP COMPLETE", result)
	return nil
}

func printResult(s *session, cmd *cobra.Command, title string, r model.SwapResult) {
	ctx := cmd.Context()
	header(title)
	row("Transaction", color.CyanString(r.TxHash))
	row("Block", fmt.Sprintf("%d", r.BlockNumber))
	if r.Kind == model.KindSwap {
		row("Spent", fmt.Sprintf("%s %s", r.AmountIn, color.YellowString(s.tokenLabel(ctx, s.input.Address()))))
	}
	row("Paid", fmt.Sprintf("%s %s", r.AmountOut, color.YellowString(s.tokenLabel(ctx, s.output.Address()))))
	row("From", r.Sender)
	row("To", r.Recipient)
	if r.ApprovalTxHash != "" {
		row("Approval", color.HiBlackString(r.ApprovalTxHash))
	}
	row("Gas used", fmt.Sprintf("%d", r.GasUsed))
	fmt.Println(rule)
}
