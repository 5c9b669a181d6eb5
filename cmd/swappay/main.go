package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:           "swappay",
		Short:         "Pay a platform address in an exact amount of stable token",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("env-file", ".env", "dotenv file loaded before the environment")
	flags.String("rpc", "", "RPC URL")
	flags.String("router", "", "Uniswap V2 style router address")
	flags.String("stable-token", "", "stable token delivered to the platform")
	flags.String("input-token", "", "token spent by swaps")
	flags.String("platform", "", "destination address")
	flags.String("owner", "", "account to inspect when no signing key is configured")
	flags.Int("max-retries", 2, "maximum retry attempts for reads")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	flags.Duration("confirm-timeout", 10*time.Minute, "how long to wait for a transaction to be mined")
	flags.Uint64("gas-limit", 0, "gas limit for transactions, 0 means estimate")
	flags.String("out", "", "JSONL payment journal path")
	flags.String("pg-dsn", "", "Postgres DSN for the payment journal")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Bool("json", false, "print machine readable JSON")

	root.AddCommand(newSwapCmd(), newQuoteCmd(), newDepositCmd(), newBalanceCmd(), newStatusCmd(), newHistoryCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
