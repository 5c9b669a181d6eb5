package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swapPay/internal/config"
	"swapPay/internal/swap"
)

func newDepositCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deposit <amount>",
		Short: "Transfer stable token straight to the platform",
		Args:  cobra.ExactArgs(1),
		RunE:  runDeposit,
	}
	cmd.Flags().Bool("yes", false, "skip the confirmation prompt (required with --json)")
	return cmd
}

func runDeposit(cmd *cobra.Command, args []string) error {
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
	if !skip {
		header("DEPOSIT")
		row("Amount", fmt.Sprintf("%s %s", amount, color.YellowString(s.tokenLabel(ctx, s.output.Address()))))
		row("Pay to", color.CyanString(s.cfg.Platform))
		fmt.Println(rule)
		if !confirm(cmd.InOrStdin(), "Proceed with deposit?") {
			fmt.Println("\nDeposit cancelled.")
			return nil
		}
	}

	stop := startSpinner(s.json, "Depositing...")
	result, err := s.orch.DirectDeposit(ctx, amount)
	stop()
	if err != nil {
		s.logger.Error("deposit failed", zap.Error(err))
		return err
	}

	if s.json {
		return printJSON(cmd.OutOrStdout(), result)
	}
	printResult(s, cmd, "DEPOSIT COMPLETE", result)
	return nil
}
