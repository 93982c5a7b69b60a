package handlers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rcliao/commentlens/internal/ingest"
	"github.com/rcliao/commentlens/internal/pipeline"
)

// NewAnalyzeCmd creates the analyze command
func NewAnalyzeCmd() *cobra.Command {
	var sourceName string

	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Ingest a feedback file and run the full analysis",
		Long: `Read comments from a CSV, HTML or plain text file, add them to the
comment store and run every stage: classify, cluster, score and aggregate.
A new analysis session is stored at the end of the run.

Supported formats:
  • .csv          first column of every row (a "comment" header is skipped)
  • .html, .htm   first cell of every row in the first table
  • .txt          one comment per non-blank line

Examples:
  commentlens analyze week1.csv
  commentlens analyze export.html --source-name "Week 2 survey"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), args[0], sourceName)
		},
	}

	cmd.Flags().StringVar(&sourceName, "source-name", "", "Name recorded on the session (default: file name)")

	return cmd
}

// NewReanalyzeCmd creates the reanalyze command
func NewReanalyzeCmd() *cobra.Command {
	var sourceName string

	cmd := &cobra.Command{
		Use:   "reanalyze",
		Short: "Re-run the analysis over the current comment store",
		Long: `Run every stage over the comments already in the store without ingesting
anything new. Comments that failed classification earlier are retried.
A new analysis session is stored at the end of the run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReanalyze(cmd.Context(), sourceName)
		},
	}

	cmd.Flags().StringVar(&sourceName, "source-name", "reanalysis", "Name recorded on the session")

	return cmd
}

func runAnalyze(ctx context.Context, path, sourceName string) error {
	texts, err := ingest.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if sourceName == "" {
		sourceName = filepath.Base(path)
	}

	fmt.Printf("📥 Read %d comments from %s\n", len(texts), path)

	return withPipeline(ctx, func(p *pipeline.Pipeline) (*pipeline.RunResult, error) {
		return p.Run(ctx, pipeline.RunRequest{SourceName: sourceName, Texts: texts})
	})
}

func runReanalyze(ctx context.Context, sourceName string) error {
	return withPipeline(ctx, func(p *pipeline.Pipeline) (*pipeline.RunResult, error) {
		return p.Analyze(ctx, sourceName)
	})
}

func withPipeline(ctx context.Context, run func(p *pipeline.Pipeline) (*pipeline.RunResult, error)) error {
	db, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	p, err := buildPipeline(ctx, db)
	if err != nil {
		return err
	}
	defer p.Close()

	fmt.Println("🔍 Analyzing comments (this can take a while, classification is rate limited)...")

	res, err := run(p)
	if err != nil {
		return describeRunError(err)
	}

	printRunStats(os.Stdout, res)
	printSession(os.Stdout, res.Session)
	return nil
}
