// Package answer produces answers to user questions with a generative
// model, optionally grounded on retrieved knowledge-base passages.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"
)

// Result is a completed answer plus the token accounting the ledger records.
type Result struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Answerer turns a question into an answer. Implementations must respect
// ctx cancellation; the worker bounds each call with a deadline.
type Answerer interface {
	Answer(ctx context.Context, question string) (Result, error)
}

// Retriever supplies grounding context for a question. An empty string
// means nothing relevant was found and the model answers unaided.
type Retriever interface {
	GroundingContext(ctx context.Context, question string) (string, error)
}

const defaultSystemPrompt = `You are a friendly and patient teaching assistant for a beginner programming course.
Answer the student's question clearly and concisely, with a short code example when it helps.
Keep answers suitable for a chat message: no long essays. Format code with triple backticks.
If the question is not about programming, politely steer the student back to course topics.`

// Config tunes the generator.
type Config struct {
	// ModelName is the fully-qualified Genkit model name,
	// e.g. "googleai/gemini-2.5-flash".
	ModelName string

	// SystemPrompt overrides the built-in assistant persona when non-empty.
	SystemPrompt string

	Temperature float64
	MaxTokens   int

	// RequestsPerMinute throttles calls to the model API across all
	// workers in this process. 0 disables throttling.
	RequestsPerMinute int

	Retry RetryConfig
}

// Generator is the production Answerer backed by a Genkit model.
type Generator struct {
	g         *genkit.Genkit
	cfg       Config
	retriever Retriever
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewGenerator creates a Generator. retriever may be nil to answer
// without knowledge-base grounding.
func NewGenerator(g *genkit.Genkit, cfg Config, retriever Retriever, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.RequestsPerMinute)
	}

	return &Generator{
		g:         g,
		cfg:       cfg,
		retriever: retriever,
		limiter:   limiter,
		logger:    logger,
	}
}

// Answer generates an answer for the question. Transient model errors are
// retried with exponential backoff; each attempt waits on the rate limiter
// first so retries cannot amplify an overload.
func (gen *Generator) Answer(ctx context.Context, question string) (Result, error) {
	prompt := question
	if gen.retriever != nil {
		grounding, err := gen.retriever.GroundingContext(ctx, question)
		if err != nil {
			// Retrieval is best-effort: a broken knowledge base must not
			// block answering.
			gen.logger.Warn("knowledge retrieval failed, answering ungrounded", "error", err)
		} else if grounding != "" {
			prompt = buildGroundedPrompt(question, grounding)
		}
	}

	return withRetry(ctx, gen.cfg.Retry, gen.logger, func(ctx context.Context) (Result, error) {
		if gen.limiter != nil {
			if err := gen.limiter.Wait(ctx); err != nil {
				return Result{}, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		resp, err := genkit.Generate(ctx, gen.g,
			ai.WithModelName(gen.cfg.ModelName),
			ai.WithSystem(gen.cfg.SystemPrompt),
			ai.WithPrompt(prompt),
			ai.WithConfig(&ai.GenerationCommonConfig{
				Temperature:     gen.cfg.Temperature,
				MaxOutputTokens: gen.cfg.MaxTokens,
			}),
		)
		if err != nil {
			return Result{}, fmt.Errorf("generate: %w", err)
		}

		result := Result{Text: strings.TrimSpace(resp.Text())}
		if resp.Usage != nil {
			result.InputTokens = resp.Usage.InputTokens
			result.OutputTokens = resp.Usage.OutputTokens
		}
		return result, nil
	})
}

func buildGroundedPrompt(question, grounding string) string {
	var b strings.Builder
	b.WriteString("Use the following course material excerpts when they are relevant. ")
	b.WriteString("If they do not cover the question, answer from general knowledge.\n\n")
	b.WriteString("--- Course material ---\n")
	b.WriteString(grounding)
	b.WriteString("\n--- End of course material ---\n\n")
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}
