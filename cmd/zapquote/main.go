package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"zapquote/internal/model"
)

func main() {
	root := &cobra.Command{
		Use:          "zapquote",
		Short:        "Quote deposits, withdrawals, swaps and zaps against AMM pools",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote one operation against a pool",
	}

	pf := quoteCmd.PersistentFlags()
	pf.String("rpc", "", "RPC URL")
	pf.Uint64("chain-id", 1, "chain id the configured AMMs belong to")
	pf.Uint64("block", 0, "block to read state at, 0 means latest")
	pf.String("amm", "", "AMM id from the config file")
	pf.String("pool", "", "pool name from the config file, or a pool address")
	pf.String("recipient", "", "recipient of the router steps")
	pf.String("slippage", "0.005", "slippage tolerance as a fraction")
	pf.String("swap-via", "", "pool that performs the zap swap when the target pool cannot")
	pf.String("swap-via-amm", "", "AMM id of --swap-via")
	pf.String("out", "", "append quote records to this JSONL file")
	pf.Bool("out-daily", false, "split the JSONL journal into one file per UTC day")
	pf.String("pg-dsn", "", "append quote records to Postgres")
	pf.Int("max-batch-size", 50, "maximum calls per RPC batch")
	pf.Int("max-retries", 3, "maximum retry attempts")
	pf.Duration("retry-backoff", 200*time.Millisecond, "initial retry backoff")
	pf.Duration("cache-ttl", 5*time.Minute, "factory getter cache TTL")
	pf.Int("concurrency", 8, "maximum concurrent quotes")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")

	depositCmd := quoteCommand(model.QuoteDeposit, "Quote adding liquidity")
	depositCmd.Flags().StringSlice("amounts", nil, "deposit amounts aligned with the pool tokens (comma-separated)")

	withdrawCmd := quoteCommand(model.QuoteWithdraw, "Quote burning liquidity")
	withdrawCmd.Flags().String("liquidity", "", "LP amount to burn")

	swapCmd := quoteCommand(model.QuoteSwap, "Quote a swap within the pool")
	swapCmd.Flags().String("token-in", "", "input token address")
	swapCmd.Flags().String("token-out", "", "output token address, required for pools with more than two tokens")
	swapCmd.Flags().String("amount-in", "", "input amount")

	zapInCmd := quoteCommand(model.QuoteZapIn, "Quote a single token deposit")
	zapInCmd.Flags().String("token-in", "", "input token address")
	zapInCmd.Flags().String("amount-in", "", "input amount")

	zapOutCmd := quoteCommand(model.QuoteZapOut, "Quote a withdrawal into a single token")
	zapOutCmd.Flags().String("token-out", "", "output token address")
	zapOutCmd.Flags().String("liquidity", "", "LP amount to burn")

	quoteCmd.AddCommand(depositCmd, withdrawCmd, swapCmd, zapInCmd, zapOutCmd)
	root.AddCommand(quoteCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func quoteCommand(kind model.QuoteKind, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(kind),
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runQuote(cmd, kind)
		},
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

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
