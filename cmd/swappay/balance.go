package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swapPay/internal/config"
)

func newBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show token balances and the router allowance",
		Args:  cobra.NoArgs,
		RunE:  runBalance,
	}
}

func runBalance(cmd *cobra.Command, _ []string) error {
	s, err := openSession(cmd, config.ScopeAccount)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	stop := startSpinner(s.json, "Reading balances...")
	state, err := s.orch.Account(ctx)
	stop()
	if err != nil {
		s.logger.Error("balance failed", zap.Error(err))
		return err
	}

	if s.json {
		return printJSON(cmd.OutOrStdout(), state)
	}

	input := s.tokenLabel(ctx, s.input.Address())
	output := s.tokenLabel(ctx, s.output.Address())
	header("ACCOUNT")
	row("Owner", color.CyanString(state.Owner))
	row(input+" balance", state.InputBalance)
	row(output+" balance", state.OutputBalance)
	row("Router allowance", state.InputAllowance+" "+input)
	row("Router", color.HiBlackString(state.Router))
	fmt.Println(rule)
	return nil
}
