package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/answerbot-ai/answerbot/db"
	"github.com/answerbot-ai/answerbot/internal/admission"
	"github.com/answerbot-ai/answerbot/internal/answer"
	"github.com/answerbot-ai/answerbot/internal/config"
	"github.com/answerbot-ai/answerbot/internal/knowledge"
	"github.com/answerbot-ai/answerbot/internal/ledger"
	"github.com/answerbot-ai/answerbot/internal/observability"
	"github.com/answerbot-ai/answerbot/internal/queue"
	"github.com/answerbot-ai/answerbot/internal/rag"
	"github.com/answerbot-ai/answerbot/internal/settings"
	"github.com/answerbot-ai/answerbot/internal/slack"
)

// SetupServe wires everything the event server needs: storage, queue
// producer, settings cache, admission, and the Slack client. No model
// access happens on this path.
func SetupServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	if err := setupCore(ctx, a); err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Admission = admission.New(a.SettingsCache, a.Ledger, cfg.AdmissionFailOpen, logger)
	a.Slack = slack.NewClient(cfg.SlackBotToken, logger)

	return a, nil
}

// SetupWork wires the answer worker: everything the server has plus the
// Genkit model pipeline and, when enabled, the knowledge retriever.
func SetupWork(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	if err := setupCore(ctx, a); err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Slack = slack.NewClient(cfg.SlackBotToken, logger)

	shutdownTracing, err := setupTracing(ctx, cfg, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.onClose(shutdownTracing)

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		_ = a.Close()
		return nil, errors.New("initializing genkit")
	}

	var retriever answer.Retriever
	if cfg.RAGEnabled {
		embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
		store := knowledge.New(a.Pool, embedder, logger)
		retriever = rag.New(store, cfg.RAGTopK, logger)
		logger.Info("retrieval-augmented answering enabled", "top_k", cfg.RAGTopK)
	}

	a.Answerer = answer.NewGenerator(g, answer.Config{
		ModelName:         cfg.ModelName,
		Temperature:       float64(cfg.Temperature),
		MaxTokens:         cfg.MaxTokens,
		RequestsPerMinute: cfg.ModelRequestsPerMinute,
	}, retriever, logger)

	return a, nil
}

// setupCore builds the pieces both modes share: migrated database pool,
// ledger, settings cache (refreshed once so limits apply from the first
// request), and the connected queue.
func setupCore(ctx context.Context, a *App) error {
	cfg := a.Config

	pool, err := providePool(ctx, cfg)
	if err != nil {
		return err
	}
	a.Pool = pool
	a.onClose(func(context.Context) error {
		pool.Close()
		return nil
	})

	a.Ledger = ledger.New(pool, a.Logger)

	a.SettingsCache = settings.NewCache(settings.NewPostgresStore(pool), a.Logger)
	if err := a.SettingsCache.Refresh(ctx); err != nil {
		return fmt.Errorf("initial settings refresh: %w", err)
	}

	q := queue.New(queue.Config{
		Stream: cfg.QueueName,
		Group:  cfg.ConsumerGroup,
	}, a.Logger)
	if err := q.Connect(ctx, cfg.RedisURL); err != nil {
		return fmt.Errorf("connecting work queue: %w", err)
	}
	a.Queue = q
	a.onClose(func(context.Context) error { return q.Close() })

	return nil
}

func providePool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

func setupTracing(ctx context.Context, cfg *config.Config, logger *slog.Logger) (func(context.Context) error, error) {
	if cfg.OTLPAgentHost == "" {
		return func(context.Context) error { return nil }, nil
	}
	return observability.Setup(ctx, observability.Config{
		AgentHost:   cfg.OTLPAgentHost,
		Environment: cfg.Environment,
		ServiceName: cfg.ServiceName,
	}, logger)
}
