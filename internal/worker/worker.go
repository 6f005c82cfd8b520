// Package worker runs the answer pipeline: claim a job from the queue,
// generate an answer, deliver it to the thread, write the audit entry,
// acknowledge the job.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/answerbot-ai/answerbot/internal/answer"
	"github.com/answerbot-ai/answerbot/internal/ledger"
	"github.com/answerbot-ai/answerbot/internal/queue"
	"github.com/answerbot-ai/answerbot/internal/slack"
)

// Source is the consuming side of the work queue. queue.Queue satisfies it.
type Source interface {
	Next(ctx context.Context) (*queue.Message, error)
	Ack(ctx context.Context, messageID string) error
}

// Recorder appends audit entries. ledger.Store satisfies it.
type Recorder interface {
	Append(ctx context.Context, entry ledger.Entry) (ledger.Entry, error)
}

// Poster delivers chat messages. slack.Client satisfies it.
type Poster interface {
	PostMessage(ctx context.Context, channel, threadTS, text string) error
}

// sourceErrorBackoff paces retries when the queue itself is failing, so a
// Redis outage does not turn into a hot loop.
const (
	sourceErrorBackoffInitial = time.Second
	sourceErrorBackoffMax     = 30 * time.Second
)

// Config tunes the pool.
type Config struct {
	// Workers is the number of concurrent consumers. Minimum 1.
	Workers int

	// AnswerTimeout bounds one generation attempt chain per job.
	AnswerTimeout time.Duration
}

// Pool consumes jobs with a fixed set of worker goroutines.
type Pool struct {
	source   Source
	answerer answer.Answerer
	recorder Recorder
	poster   Poster
	cfg      Config
	logger   *slog.Logger
}

// New creates a Pool.
func New(source Source, answerer answer.Answerer, recorder Recorder, poster Poster, cfg Config, logger *slog.Logger) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.AnswerTimeout <= 0 {
		cfg.AnswerTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		source:   source,
		answerer: answerer,
		recorder: recorder,
		poster:   poster,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run blocks until ctx is canceled, consuming jobs with cfg.Workers
// goroutines. In-flight jobs finish before Run returns.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := range p.cfg.Workers {
		logger := p.logger.With("worker", i)
		g.Go(func() error {
			return p.consume(ctx, logger)
		})
	}
	return g.Wait()
}

func (p *Pool) consume(ctx context.Context, logger *slog.Logger) error {
	backoff := sourceErrorBackoffInitial
	for {
		if ctx.Err() != nil {
			return nil
		}

		msg, err := p.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			logger.Error("queue read failed", "error", err, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
				backoff = min(backoff*2, sourceErrorBackoffMax)
			}
			continue
		}
		backoff = sourceErrorBackoffInitial

		if msg == nil {
			continue // block timeout, nothing to do
		}

		p.process(ctx, logger, msg.Job)

		// Ack after processing: a crash mid-job leaves the message
		// pending for redelivery (at-least-once).
		if err := p.source.Ack(ctx, msg.ID); err != nil {
			logger.Error("ack failed", "message", msg.ID, "job", msg.Job.ID, "error", err)
		}
	}
}

// process runs one job end to end. Every job writes exactly one ledger
// entry, success or failure, and delivery is attempted before the entry
// is persisted.
func (p *Pool) process(ctx context.Context, logger *slog.Logger, job queue.Job) {
	logger = logger.With("job", job.ID, "user", job.UserID)
	started := time.Now()

	entry := ledger.Entry{
		UserID:   job.UserID,
		Question: job.Question,
	}

	answerCtx, cancel := context.WithTimeout(ctx, p.cfg.AnswerTimeout)
	result, genErr := p.answerer.Answer(answerCtx, job.Question)
	cancel()

	if genErr != nil {
		logger.Error("answer generation failed", "error", genErr, "elapsed", time.Since(started))
		entry.Succeeded = false
		entry.ErrorMessage = genErr.Error()
		p.deliver(ctx, logger, job, slack.MsgApology)
	} else {
		entry.Succeeded = true
		entry.Answer = result.Text
		entry.InputTokens = result.InputTokens
		entry.OutputTokens = result.OutputTokens
		p.deliver(ctx, logger, job, result.Text)
		logger.Info("answered",
			"input_tokens", result.InputTokens,
			"output_tokens", result.OutputTokens,
			"elapsed", time.Since(started),
		)
	}

	// The entry counts toward the user's quota whether or not the answer
	// succeeded. A persistence failure is logged, not retried: re-running
	// the job would bill the model twice for one question.
	if _, err := p.recorder.Append(ctx, entry); err != nil {
		logger.Error("ledger append failed", "error", err)
	}
}

func (p *Pool) deliver(ctx context.Context, logger *slog.Logger, job queue.Job, text string) {
	if err := p.poster.PostMessage(ctx, job.ChannelID, job.ThreadID, text); err != nil {
		logger.Error("delivery failed", "channel", job.ChannelID, "error", err)
	}
}
