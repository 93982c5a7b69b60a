// Package analysis is the aggregation stage: it snapshots the comment store
// into one immutable analysis session.
package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rcliao/commentlens/internal/core"
	"github.com/rcliao/commentlens/internal/narrative"
	"github.com/rcliao/commentlens/internal/persistence"
	"github.com/rcliao/commentlens/internal/sentiment"
)

// ChartRenderer turns label counts into an image blob. An empty blob means
// there was nothing to chart.
type ChartRenderer interface {
	Render(title string, counts map[string]int) ([]byte, error)
}

// NarrativeWriter produces the session narrative. It absorbs its own
// failures.
type NarrativeWriter interface {
	Generate(ctx context.Context, in narrative.Input) string
}

// Config holds the ranking sizes.
type Config struct {
	TopClusters        int // N
	ExamplesPerCluster int // K
}

// DefaultConfig returns N=5, K=3.
func DefaultConfig() Config {
	return Config{TopClusters: 5, ExamplesPerCluster: 3}
}

// Aggregator is the aggregation stage.
type Aggregator struct {
	db       persistence.Database
	charts   ChartRenderer
	narrator NarrativeWriter
	config   Config
	log      zerolog.Logger
	now      func() time.Time
}

// NewAggregator creates the aggregation stage.
func NewAggregator(db persistence.Database, charts ChartRenderer, narrator NarrativeWriter, config Config, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		db:       db,
		charts:   charts,
		narrator: narrator,
		config:   config,
		log:      log.With().Str("stage", "aggregate").Logger(),
		now:      time.Now,
	}
}

// Run computes the session from the current store and inserts it. Chart
// and narrative failures degrade to empty blobs and the placeholder; only
// reads and the final insert can fail the run.
func (a *Aggregator) Run(ctx context.Context, sourceName string) (*core.AnalysisSession, error) {
	comments := a.db.Comments()

	total, err := comments.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count comments: %w", err)
	}
	dangerous, err := comments.CountDangerous(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count dangerous comments: %w", err)
	}

	overall, err := comments.SentimentCounts(ctx)
	if err != nil {
		return nil, err
	}
	byCategory, err := comments.CategorySentimentCounts(ctx)
	if err != nil {
		return nil, err
	}

	positive, negative := sentiment.Percents(overall)
	categoryPercents := sentiment.CategoryPercents(byCategory)

	top, err := a.TopClusters(ctx)
	if err != nil {
		return nil, err
	}

	session := &core.AnalysisSession{
		CreatedAt:                 a.now(),
		SourceName:                sourceName,
		TotalComments:             total,
		OverallPositivePercent:    positive,
		OverallNegativePercent:    negative,
		CategorySentimentPercents: categoryPercents,
		TotalChart:                a.render("Overall sentiment", sentiment.ChartCounts(overall)),
		CategoryCharts:            make(map[string][]byte, len(byCategory)),
		TopClusters:               top,
		DangerousCommentCount:     dangerous,
	}
	for category, counts := range byCategory {
		session.CategoryCharts[category] = a.render(category, sentiment.ChartCounts(counts))
	}

	session.Narrative = a.narrator.Generate(ctx, narrative.Input{
		PositivePercent:   positive,
		NegativePercent:   negative,
		CategoryPercents:  categoryPercents,
		TotalComments:     total,
		DangerousComments: dangerous,
		Clusters:          top,
	})

	tx, err := a.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := tx.Sessions().Create(ctx, session); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to commit session: %w", err)
	}

	a.log.Info().
		Int64("session_id", session.ID).
		Int("total_comments", total).
		Int("top_clusters", len(top)).
		Msg("Session persisted")
	return session, nil
}

// TopClusters ranks non-noise clusters by average score and summarizes the
// first N.
func (a *Aggregator) TopClusters(ctx context.Context) ([]core.ClusterSummary, error) {
	scores, err := a.db.Comments().TopClusterScores(ctx, a.config.TopClusters)
	if err != nil {
		return nil, err
	}

	out := make([]core.ClusterSummary, 0, len(scores))
	for _, score := range scores {
		members, err := a.db.Comments().ListByCluster(ctx, score.ClusterID)
		if err != nil {
			return nil, fmt.Errorf("failed to load cluster %d: %w", score.ClusterID, err)
		}
		out = append(out, core.ClusterSummary{
			ClusterID:              score.ClusterID,
			AverageImportanceScore: sentiment.Round(score.AverageScore, 2),
			CommentCount:           score.CommentCount,
			RepresentativeText:     RepresentativeText(members),
			MergedTags:             MergeTags(members),
			Examples:               Examples(members, a.config.ExamplesPerCluster),
		})
	}
	return out, nil
}

func (a *Aggregator) render(title string, counts map[string]int) []byte {
	blob, err := a.charts.Render(title, counts)
	if err != nil {
		a.log.Warn().Err(err).Str("chart", title).Msg("Chart rendering failed, storing empty chart")
		return nil
	}
	return blob
}
