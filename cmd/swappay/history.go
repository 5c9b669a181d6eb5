package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"swapPay/internal/config"
	"swapPay/internal/model"
	"swapPay/internal/storage"
	"swapPay/internal/storage/postgres"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded payments from the journal",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}
	cmd.Flags().String("kind", "", "only show swap or deposit payments")
	cmd.Flags().Uint64("limit", 20, "maximum number of payments, 0 means all")
	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.Out == "" && cfg.PGDSN == "" {
		return fmt.Errorf("%w: out or pg-dsn is required", config.ErrConfigurationMissing)
	}

	kind, _ := cmd.Flags().GetString("kind")
	limit, _ := cmd.Flags().GetUint64("limit")
	jsonOut, _ := cmd.Flags().GetBool("json")

	var results []model.SwapResult
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(cmd.Context(), cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		results, err = store.ListResults(cmd.Context(), postgres.Filter{Kind: kind, Limit: limit})
		if err != nil {
			return fmt.Errorf("list payments: %w", err)
		}
	} else {
		all, err := storage.ReadResults(cfg.Out)
		if err != nil {
			return err
		}
		results = filterResults(all, kind, limit)
	}

	if jsonOut {
		if results == nil {
			results = []model.SwapResult{}
		}
		return printJSON(cmd.OutOrStdout(), results)
	}

	header("PAYMENTS")
	if len(results) == 0 {
		fmt.Println("  No payments recorded.")
	}
	for _, r := range results {
		fmt.Printf("  %s  %-7s %s -> %s  %s\n",
			color.HiBlackString(r.CompletedAt),
			r.Kind,
			r.AmountIn,
			r.AmountOut,
			color.CyanString(r.TxHash),
		)
	}
	fmt.Println(rule)
	return nil
}

// filterResults keeps results of kind, newest first, up to limit.
func filterResults(results []model.SwapResult, kind string, limit uint64) []model.SwapResult {
	var out []model.SwapResult
	for i := len(results) - 1; i >= 0; i-- {
		if kind != "" && !strings.EqualFold(results[i].Kind, kind) {
			continue
		}
		out = append(out, results[i])
		if limit > 0 && uint64(len(out)) >= limit {
			break
		}
	}
	return out
}
