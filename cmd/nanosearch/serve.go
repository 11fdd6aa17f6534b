package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/coffersTech/nanosearch/internal/auth"
	"github.com/coffersTech/nanosearch/internal/engine"
	"github.com/coffersTech/nanosearch/internal/server"
	"github.com/coffersTech/nanosearch/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the search server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), flags)
		},
	}
}

func runServe(ctx context.Context, flags *globalFlags) error {
	cfg, err := flags.loadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	tokens, err := auth.NewStore(cfg.Tokens)
	if err != nil {
		return err
	}
	if tokens.Empty() {
		logger.Warn("no API tokens configured, authentication is disabled")
	}

	// 1. Segment codec
	reader, err := storage.NewSegmentReader()
	if err != nil {
		return err
	}
	defer reader.Close()
	writer, err := storage.NewSegmentWriter()
	if err != nil {
		return err
	}
	defer writer.Close()

	// 2. Engine, including WAL recovery
	qe, err := engine.NewQueryEngine(engine.Options{
		DataDir:      cfg.DataDir,
		Retention:    cfg.Retention,
		MaxTableSize: cfg.MaxTableSize,
	}, reader.ReadSnapshot, writer.WriteSnapshot, logger.Named("engine"))
	if err != nil {
		return err
	}
	logger.Info("query engine initialized",
		zap.String("data_dir", cfg.DataDir),
		zap.Duration("retention", cfg.Retention))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Background workers
	if cfg.Retention > 0 {
		go qe.RunCleaner(ctx, cfg.CleanerInterval)
	}
	go qe.RunStatsTicker(ctx, time.Second)

	// 4. HTTP server
	srv := server.New(qe, tokens, logger.Named("http"), server.Options{
		DefaultLimit: cfg.DefaultLimit,
		MaxLimit:     cfg.MaxLimit,
	})
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Listen)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
		if err != nil {
			logger.Error("server stopped", zap.Error(err))
		}
	}

	// 5. Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error("server shutdown error", zap.Error(shutdownErr))
	}

	logger.Info("flushing memory to disk")
	if closeErr := qe.Close(); closeErr != nil {
		logger.Error("final flush failed", zap.Error(closeErr))
		if err == nil {
			err = closeErr
		}
	}

	logger.Info("nanosearch exited")
	return err
}
