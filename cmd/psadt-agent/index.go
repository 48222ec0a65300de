package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"psadtagent/internal/app"
	"psadtagent/internal/knowledge"
)

var indexExts []string

var indexCmd = &cobra.Command{
	Use:   "index [dir]",
	Short: "Load PSADT documentation into the knowledge store",
	Long: `Indexes documentation files (markdown, text, and HTML converted to
markdown) into the configured KB_BACKEND. dir defaults to KB_DOCS_DIR.
Re-indexing a file that is already stored fails with a duplicate id.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringSliceVar(&indexExts, "ext", nil, "File extensions to index (default .md,.txt)")
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	dir := cfg.Knowledge.DocsDir
	if len(args) == 1 {
		dir = args[0]
	}
	if cfg.Knowledge.Backend == "" || cfg.Knowledge.Backend == "memory" {
		logger.Warn("indexing into the in-memory backend; documents are discarded on exit")
	}

	emb, err := app.InitEmbedder(ctx, cfg.Knowledge)
	if err != nil {
		return err
	}
	store, err := app.InitKnowledge(ctx, cfg.Knowledge, emb, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := knowledge.NewIndexer(store, logger).IndexDirectory(ctx, dir, indexExts)
	if err != nil {
		return err
	}
	total, err := store.Count(ctx)
	if err != nil {
		return err
	}
	logger.Info("indexed documents", zap.String("dir", dir), zap.Int("added", n), zap.Int("total", total))
	fmt.Fprintf(cmd.OutOrStdout(), "indexed %d documents from %s (%d in store)\n", n, dir, total)
	return nil
}
