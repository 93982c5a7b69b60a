// Package clustering is the embedding and clustering stage: it embeds every
// classified comment and groups the vectors by density.
package clustering

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rcliao/commentlens/internal/core"
	"github.com/rcliao/commentlens/internal/persistence"
)

// Embedder turns texts into fixed-dimension vectors, one per text in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Clusterer labels each vector with a cluster id or core.NoiseCluster.
type Clusterer interface {
	Cluster(vectors [][]float32, minClusterSize int) ([]int, error)
}

// Config holds the stage settings.
type Config struct {
	MinClusterSize int
	CallTimeout    time.Duration // bound on the embedding call
}

// Result summarizes one clustering run.
type Result struct {
	Total    int
	Clusters int
	Noise    int
}

// Stage is the embedding and clustering stage.
type Stage struct {
	db        persistence.Database
	embedder  Embedder
	clusterer Clusterer
	config    Config
	log       zerolog.Logger
}

// NewStage creates the clustering stage.
func NewStage(db persistence.Database, embedder Embedder, clusterer Clusterer, config Config, log zerolog.Logger) *Stage {
	return &Stage{
		db:        db,
		embedder:  embedder,
		clusterer: clusterer,
		config:    config,
		log:       log.With().Str("stage", "cluster").Logger(),
	}
}

// Run re-embeds and re-clusters every classified comment, then stores the
// labels and vectors in one transaction.
func (s *Stage) Run(ctx context.Context) (Result, error) {
	comments, err := s.db.Comments().ListClassified(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list classified comments: %w", err)
	}
	if len(comments) == 0 {
		s.log.Info().Msg("No classified comments, skipping")
		return Result{}, nil
	}

	texts := make([]string, len(comments))
	for i, c := range comments {
		texts[i] = c.Text
	}

	vectors, err := s.embed(ctx, texts)
	if err != nil {
		return Result{}, fmt.Errorf("embedding failed: %w", err)
	}
	if len(vectors) != len(comments) {
		return Result{}, fmt.Errorf("embedding returned %d vectors for %d comments", len(vectors), len(comments))
	}

	labels, err := s.clusterer.Cluster(vectors, s.config.MinClusterSize)
	if err != nil {
		return Result{}, fmt.Errorf("clustering failed: %w", err)
	}
	if len(labels) != len(comments) {
		return Result{}, fmt.Errorf("clustering returned %d labels for %d comments", len(labels), len(comments))
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	for i, c := range comments {
		if err := tx.Comments().UpdateClusterAssignment(ctx, c.ID, labels[i], vectors[i]); err != nil {
			_ = tx.Rollback()
			return Result{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return Result{}, fmt.Errorf("failed to commit cluster assignments: %w", err)
	}

	res := summarize(labels)
	s.log.Info().
		Int("total", res.Total).
		Int("clusters", res.Clusters).
		Int("noise", res.Noise).
		Msg("Clustering complete")
	return res, nil
}

func (s *Stage) embed(ctx context.Context, texts []string) ([][]float32, error) {
	if s.config.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.CallTimeout)
		defer cancel()
	}
	return s.embedder.Embed(ctx, texts)
}

func summarize(labels []int) Result {
	res := Result{Total: len(labels)}
	seen := map[int]bool{}
	for _, l := range labels {
		if l == core.NoiseCluster {
			res.Noise++
			continue
		}
		if !seen[l] {
			seen[l] = true
			res.Clusters++
		}
	}
	return res
}
