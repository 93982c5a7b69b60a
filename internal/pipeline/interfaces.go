package pipeline

import (
	"context"

	"github.com/rcliao/commentlens/internal/categorization"
	"github.com/rcliao/commentlens/internal/clustering"
	"github.com/rcliao/commentlens/internal/core"
	"github.com/rcliao/commentlens/internal/scoring"
)

// CommentClassifier labels every comment whose category is unset
type CommentClassifier interface {
	Run(ctx context.Context) (categorization.Result, error)
}

// CommentClusterer embeds and clusters every classified comment
type CommentClusterer interface {
	Run(ctx context.Context) (clustering.Result, error)
}

// CommentScorer derives importance scores from tags
type CommentScorer interface {
	Run(ctx context.Context) (scoring.Result, error)
}

// SessionAggregator snapshots the store into a new analysis session
type SessionAggregator interface {
	Run(ctx context.Context, sourceName string) (*core.AnalysisSession, error)
}
