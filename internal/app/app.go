// Package app assembles the bot's components from configuration: database
// pool and migrations, work queue, settings cache, admission, the Slack
// client, and (for workers) the Genkit answer pipeline.
package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/answerbot-ai/answerbot/internal/admission"
	"github.com/answerbot-ai/answerbot/internal/answer"
	"github.com/answerbot-ai/answerbot/internal/config"
	"github.com/answerbot-ai/answerbot/internal/ledger"
	"github.com/answerbot-ai/answerbot/internal/queue"
	"github.com/answerbot-ai/answerbot/internal/settings"
	"github.com/answerbot-ai/answerbot/internal/slack"
)

// App holds the wired components shared by the serve and work entry
// points. Fields not needed by a given mode are nil.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Pool          *pgxpool.Pool
	Queue         *queue.Queue
	SettingsCache *settings.Cache
	Ledger        *ledger.Store
	Admission     *admission.Controller
	Slack         *slack.Client

	// Answerer is set in work mode only.
	Answerer answer.Answerer

	cleanups []func(context.Context) error
}

// Close releases resources in reverse construction order.
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		if err := a.cleanups[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) onClose(fn func(context.Context) error) {
	a.cleanups = append(a.cleanups, fn)
}

// RunSettingsRefresher refreshes the settings cache on the configured
// interval until ctx is canceled. A failed refresh keeps the previous
// snapshot and is retried on the next tick.
func (a *App) RunSettingsRefresher(ctx context.Context) {
	interval := time.Duration(a.Config.SettingsRefreshSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.SettingsCache.Refresh(ctx); err != nil {
				a.Logger.Warn("settings refresh failed, keeping previous snapshot", "error", err)
			}
		}
	}
}
