package persistence

import (
	"context"
	"errors"

	"github.com/rcliao/commentlens/internal/core"
)

// ErrNotFound is returned when a requested session or cluster does not exist.
var ErrNotFound = errors.New("not found")

// CommentRepository defines operations on the Comment Store
type CommentRepository interface {
	// CreateBatch inserts raw comment texts in order and returns their ids
	CreateBatch(ctx context.Context, texts []string) ([]int64, error)

	// Get retrieves a comment by ID
	Get(ctx context.Context, id int64) (*core.Comment, error)

	// ListUnclassified returns comments whose category is unset, by id
	ListUnclassified(ctx context.Context) ([]core.Comment, error)

	// ListClassified returns comments whose sentiment is set, by id
	ListClassified(ctx context.Context) ([]core.Comment, error)

	// ListByCluster returns a cluster's members by descending importance
	// score (unscored last), then ascending id
	ListByCluster(ctx context.Context, clusterID int) ([]core.Comment, error)

	// UpdateClassification stores the classifier's fields for one comment
	UpdateClassification(ctx context.Context, id int64, c core.Classification) error

	// UpdateClusterAssignment stores the cluster label and raw embedding
	UpdateClusterAssignment(ctx context.Context, id int64, clusterID int, embedding []float32) error

	// UpdateImportanceScore stores the derived score
	UpdateImportanceScore(ctx context.Context, id int64, score float64) error

	// Count returns the number of comments in the store
	Count(ctx context.Context) (int, error)

	// CountDangerous returns the number of comments flagged as dangerous
	CountDangerous(ctx context.Context) (int, error)

	// SentimentCounts tallies all classified comments by polarity
	SentimentCounts(ctx context.Context) (core.SentimentCounts, error)

	// CategorySentimentCounts tallies classified comments per category
	CategorySentimentCounts(ctx context.Context) (map[string]core.SentimentCounts, error)

	// TopClusterScores ranks non-noise clusters by average importance score,
	// ties broken by ascending cluster id
	TopClusterScores(ctx context.Context, limit int) ([]core.ClusterScore, error)
}

// SessionRepository defines operations on the append-only AnalysisSession table
type SessionRepository interface {
	// Create inserts a session and assigns its ID. CreatedAt is moved forward
	// when needed so that it is strictly later than every existing session.
	Create(ctx context.Context, session *core.AnalysisSession) error

	// Get retrieves a full session by ID
	Get(ctx context.Context, id int64) (*core.AnalysisSession, error)

	// Latest retrieves the most recently created session
	Latest(ctx context.Context) (*core.AnalysisSession, error)

	// List returns session summaries ordered by created_at
	List(ctx context.Context, opts ListOptions) ([]core.SessionSummary, error)
}

// ListOptions provides common ordering and pagination options
type ListOptions struct {
	Limit  int    // Maximum number of results (0 for no limit)
	Offset int    // Number of results to skip
	Order  string // "asc" or "desc" (default)
}

// Database represents the main database interface that aggregates all repositories
type Database interface {
	// Comments returns the comment repository
	Comments() CommentRepository

	// Sessions returns the analysis session repository
	Sessions() SessionRepository

	// Close closes the database connection
	Close() error

	// Ping verifies the database connection
	Ping(ctx context.Context) error

	// BeginTx starts a new transaction
	BeginTx(ctx context.Context) (Transaction, error)
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Comments returns the comment repository within this transaction
	Comments() CommentRepository

	// Sessions returns the session repository within this transaction
	Sessions() SessionRepository
}
