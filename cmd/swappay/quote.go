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

func newQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote <amount>",
		Short: "Price an exact stable token amount without sending anything",
		Args:  cobra.ExactArgs(1),
		RunE:  runQuote,
	}
	cmd.Flags().String("slippage", "1", "slippage tolerance in percent")
	return cmd
}

func runQuote(cmd *cobra.Command, args []string) error {
	amount, err := swap.ParseAmount(args[0])
	if err != nil {
		return err
	}

	s, err := openSession(cmd, config.ScopeQuote)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	stop := startSpinner(s.json, "Fetching quote...")
	q, err := s.orch.Quote(ctx, amount, s.cfg.Slippage)
	stop()
	if err != nil {
		s.logger.Error("quote failed", zap.Error(err))
		return err
	}

	if s.json {
		return printJSON(cmd.OutOrStdout(), q)
	}
	printQuote(s, cmd, q)
	return nil
}

func printQuote(s *session, cmd *cobra.Command, q model.Quote) {
	ctx := cmd.Context()
	input := s.tokenLabel(ctx, s.input.Address())
	output := s.tokenLabel(ctx, s.output.Address())

	header("SWAP QUOTE")
	row("Receive", fmt.Sprintf("%s %s", q.AmountOut, color.YellowString(output)))
	row("Cost", fmt.Sprintf("%s %s", q.AmountIn, color.YellowString(input)))
	row("Max cost", fmt.Sprintf("%s %s (slippage %s%%)", q.AmountInMax, color.YellowString(input), q.SlippagePct))
	row("Router", color.CyanString(s.router.Address().Hex()))
	fmt.Println(rule)
}
