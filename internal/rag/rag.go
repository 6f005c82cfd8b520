// Package rag assembles grounding context for the answer generator from
// knowledge-base search results.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/answerbot-ai/answerbot/internal/knowledge"
)

// DefaultTopK is how many passages a grounding query retrieves.
const DefaultTopK = 4

// minSimilarity filters out passages too far from the question to help.
// Cosine similarity; tuned against the course corpus.
const minSimilarity = 0.5

// Searcher is the vector-search view of the knowledge store.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]knowledge.SearchResult, error)
}

// Retriever turns a question into a grounding-context block for the
// model prompt.
type Retriever struct {
	searcher Searcher
	topK     int
	logger   *slog.Logger
}

// New creates a Retriever. topK <= 0 selects DefaultTopK.
func New(searcher Searcher, topK int, logger *slog.Logger) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{searcher: searcher, topK: topK, logger: logger}
}

// GroundingContext returns the relevant passages formatted as one text
// block, or "" when nothing passes the similarity cutoff.
func (r *Retriever) GroundingContext(ctx context.Context, question string) (string, error) {
	results, err := r.searcher.Search(ctx, question, r.topK)
	if err != nil {
		return "", fmt.Errorf("knowledge search: %w", err)
	}

	var b strings.Builder
	kept := 0
	for _, res := range results {
		if res.Similarity < minSimilarity {
			continue
		}
		kept++
		if kept > 1 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s", kept, strings.TrimSpace(res.Document.Content))
	}

	r.logger.Debug("grounding context assembled",
		"retrieved", len(results),
		"kept", kept,
	)
	return b.String(), nil
}
