package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/answerbot-ai/answerbot/db"
	"github.com/answerbot-ai/answerbot/internal/config"
	"github.com/answerbot-ai/answerbot/internal/knowledge"
	"github.com/answerbot-ai/answerbot/internal/log"
)

var indexCmd = &cobra.Command{
	Use:   "index <dir>",
	Short: "Index course material for retrieval-augmented answers",
	Long: `Reads .md and .txt files from the given directory, embeds them,
and stores them in the knowledge base. Files are indexed by relative
path, so re-running after edits updates existing entries in place.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndex(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(ctx context.Context, dir string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{Level: slog.LevelInfo})

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	pool, err := pgxpool.New(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return errors.New("initializing genkit")
	}
	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	store := knowledge.New(pool, embedder, logger)

	indexed := 0
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".md" && ext != ".txt" {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		text := strings.TrimSpace(string(content))
		if text == "" {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		if err := store.Add(ctx, knowledge.Document{
			ID:       rel,
			Content:  text,
			Metadata: map[string]string{"source": rel},
		}); err != nil {
			return fmt.Errorf("indexing %s: %w", rel, err)
		}

		logger.Info("indexed", "file", rel, "bytes", len(text))
		indexed++
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Printf("Indexed %d documents from %s\n", indexed, dir)
	return nil
}
