package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/answerbot-ai/answerbot/internal/app"
	"github.com/answerbot-ai/answerbot/internal/config"
	"github.com/answerbot-ai/answerbot/internal/log"
	"github.com/answerbot-ai/answerbot/internal/worker"
)

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Run the answer workers",
	Long: `Consumes queued questions, generates answers with the configured
model, posts them to the originating Slack thread, and records every
request in the audit log.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runWork(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(workCmd)
}

func runWork(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateWork(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	logger := log.New(log.Config{Level: slog.LevelInfo, JSON: true})

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.SetupWork(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	pool := worker.New(a.Queue, a.Answerer, a.Ledger, a.Slack, worker.Config{
		Workers:       cfg.WorkerCount,
		AnswerTimeout: time.Duration(cfg.AnswerTimeoutSeconds) * time.Second,
	}, logger)

	logger.Info("workers started",
		"workers", cfg.WorkerCount,
		"model", cfg.ModelName,
		"rag", cfg.RAGEnabled,
	)

	if err := pool.Run(ctx); err != nil {
		return fmt.Errorf("worker pool: %w", err)
	}
	logger.Info("workers stopped")
	return nil
}
