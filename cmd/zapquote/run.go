package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"zapquote/internal/amm"
	"zapquote/internal/amm/engines"
	"zapquote/internal/chain"
	"zapquote/internal/config"
	"zapquote/internal/metrics"
	"zapquote/internal/model"
	"zapquote/internal/quote"
	"zapquote/internal/state"
	"zapquote/internal/storage"
	"zapquote/internal/storage/postgres"
)

func runQuote(cmd *cobra.Command, kind model.QuoteKind) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if len(cfg.AMMs) == 0 {
		return fmt.Errorf("no amms configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, err := metrics.New(prometheus.NewRegistry())
	if err != nil {
		return err
	}

	opts := []chain.Option{
		chain.WithMaxBatchSize(cfg.MaxBatchSize),
		chain.WithRetry(cfg.MaxRetries, cfg.RetryBackoff),
		chain.WithLogger(logger),
		chain.WithMetrics(m),
	}
	if cfg.Block > 0 {
		opts = append(opts, chain.WithBlock(cfg.Block))
	}
	chainClient, err := chain.NewClient(ctx, cfg.RPCURL, opts...)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	chainID, err := chainClient.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("chain id: %w", err)
	}
	if !chainID.IsUint64() || chainID.Uint64() != cfg.ChainID {
		return fmt.Errorf("rpc serves chain %s, config expects %d", chainID, cfg.ChainID)
	}

	tokens := state.NewTokenCache()
	set, err := engines.NewSet(cfg.AMMs, amm.Deps{
		Logger:  logger,
		Factory: state.NewFactoryCache(cfg.FactoryCacheTTL, m),
		Tokens:  tokens,
	})
	if err != nil {
		return err
	}
	svc := quote.NewService(set, chainClient,
		quote.WithLogger(logger),
		quote.WithMetrics(m),
		quote.WithTokenCache(tokens),
		quote.WithSlippage(cfg.Slippage),
		quote.WithConcurrency(cfg.Concurrency),
	)

	req, err := buildRequest(ctx, svc, cfg, kind)
	if err != nil {
		return err
	}

	logger.Info("quote start",
		zap.String("kind", string(kind)),
		zap.String("amm", req.AmmID),
		zap.String("pool", req.Pool.Hex()),
		zap.Uint64("chain_id", cfg.ChainID),
		zap.Uint64("block", cfg.Block),
		zap.String("slippage", cfg.Slippage.String()),
	)

	result, err := svc.Quote(ctx, kind, req)
	if err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(encoded))

	return record(ctx, cfg, logger, model.NewQuoteRecord(cfg.ChainID, result, time.Now()))
}

// record appends the quote to the configured journals.
func record(ctx context.Context, cfg config.Config, logger *zap.Logger, rec model.QuoteRecord) error {
	if cfg.Out != "" {
		var opts []storage.JsonlOption
		if cfg.OutDaily {
			opts = append(opts, storage.WithDailyFiles())
		}
		journal := storage.NewJsonlStorage(cfg.Out, opts...)
		var sink storage.Storage = journal
		if err := sink.PutQuotes([]model.QuoteRecord{rec}); err != nil {
			return err
		}
		logger.Debug("quote recorded", zap.String("out", journal.PathFor(rec)))
	}
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		if err := store.InsertQuotes(ctx, []model.QuoteRecord{rec}); err != nil {
			return fmt.Errorf("insert quote: %w", err)
		}
		logger.Debug("quote recorded", zap.String("pg_dsn", redactDSN(cfg.PGDSN)))
	}
	return nil
}
