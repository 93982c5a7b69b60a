package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/rcliao/commentlens/internal/config"
	"github.com/rcliao/commentlens/internal/logger"
	"github.com/rcliao/commentlens/internal/persistence"
	"github.com/rcliao/commentlens/internal/pipeline"
)

// openDatabase opens the configured comment store, applying migrations.
func openDatabase(ctx context.Context) (*persistence.SQLiteDB, error) {
	cfg := config.Get()
	db, err := persistence.NewSQLiteDB(ctx, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Database.Path, err)
	}
	return db, nil
}

// buildPipeline wires the pipeline with clients created from configuration.
func buildPipeline(ctx context.Context, db persistence.Database) (*pipeline.Pipeline, error) {
	p, err := pipeline.NewBuilder(config.Get(), db).
		WithLogger(*logger.Get()).
		Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}
	return p, nil
}

// describeRunError adds a hint for the errors users can act on.
func describeRunError(err error) error {
	var serr *pipeline.StageError
	switch {
	case errors.Is(err, pipeline.ErrNoComments):
		return fmt.Errorf("%w\n💡 Provide a file with at least one non-blank comment", err)
	case errors.Is(err, pipeline.ErrRunInProgress):
		return fmt.Errorf("%w\n💡 Wait for the current run to finish", err)
	case errors.As(err, &serr):
		return fmt.Errorf("analysis halted in the %s stage: %w", serr.Stage, serr.Err)
	default:
		return err
	}
}
