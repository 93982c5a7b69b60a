package core

import "time"

// NoiseCluster is the cluster label for comments that did not join any cluster.
const NoiseCluster = -1

// Category is the classification bucket assigned to a comment.
// Values outside the known set are stored as returned by the classifier.
type Category string

const (
	CategoryLectureContent Category = "lecture-content"
	CategoryMaterials      Category = "materials"
	CategoryOperations     Category = "operations"
	CategoryInfrastructure Category = "infrastructure"
	CategoryOther          Category = "other"
)

// Categories lists the known categories in prompt order.
func Categories() []Category {
	return []Category{
		CategoryLectureContent,
		CategoryMaterials,
		CategoryOperations,
		CategoryInfrastructure,
		CategoryOther,
	}
}

// Sentiment is the binary polarity of a comment.
type Sentiment int

const (
	SentimentNegative Sentiment = 0
	SentimentPositive Sentiment = 1
)

// String returns the chart label for the sentiment.
func (s Sentiment) String() string {
	if s == SentimentPositive {
		return "Positive"
	}
	return "Negative"
}

// Tags holds the named signals produced by classification.
// Values are kept loosely typed because stored tag maps may carry
// whatever the classifier returned.
type Tags map[string]any

// Comment is one piece of feedback plus the fields derived by each stage.
// A nil pointer field means the stage that owns it has not run yet.
type Comment struct {
	ID              int64      `json:"id"`
	Text            string     `json:"text"`
	Category        *Category  `json:"category,omitempty"`
	Danger          *bool      `json:"danger,omitempty"`
	Sentiment       *Sentiment `json:"sentiment,omitempty"`
	Tags            Tags       `json:"tags,omitempty"`
	Embedding       []float32  `json:"-"`
	ClusterID       *int       `json:"cluster_id,omitempty"`
	ImportanceScore *float64   `json:"importance_score,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Classified reports whether the classifier stage has set the sentiment.
func (c Comment) Classified() bool {
	return c.Sentiment != nil
}

// Classification is the parsed result of one classifier call.
type Classification struct {
	Category  Category  `json:"category"`
	Danger    bool      `json:"danger"`
	Sentiment Sentiment `json:"sentiment"`
	Tags      Tags      `json:"tags"`
}

// CommentExample is a comment quoted inside a cluster summary.
type CommentExample struct {
	ID              int64    `json:"id"`
	Text            string   `json:"text"`
	ImportanceScore *float64 `json:"importance_score"`
}

// ClusterSummary describes one ranked cluster inside a session snapshot.
type ClusterSummary struct {
	ClusterID              int              `json:"cluster_id"`
	AverageImportanceScore float64          `json:"average_importance_score"`
	CommentCount           int              `json:"comment_count"`
	RepresentativeText     string           `json:"representative_text"`
	MergedTags             Tags             `json:"merged_tags"`
	Examples               []CommentExample `json:"examples"`
}

// AnalysisSession is an immutable snapshot produced at the end of a batch run.
type AnalysisSession struct {
	ID                        int64              `json:"id"`
	CreatedAt                 time.Time          `json:"created_at"`
	SourceName                string             `json:"source_name"`
	TotalComments             int                `json:"total_comments"`
	OverallPositivePercent    float64            `json:"overall_positive_percent"`
	OverallNegativePercent    float64            `json:"overall_negative_percent"`
	CategorySentimentPercents map[string]float64 `json:"category_sentiment_percents"`
	TotalChart                []byte             `json:"-"`
	CategoryCharts            map[string][]byte  `json:"-"`
	TopClusters               []ClusterSummary   `json:"top_clusters"`
	Narrative                 string             `json:"narrative"`
	DangerousCommentCount     int                `json:"dangerous_comment_count"`
}

// Summary strips the session down to list-display fields.
func (s AnalysisSession) Summary() SessionSummary {
	return SessionSummary{
		ID:                        s.ID,
		CreatedAt:                 s.CreatedAt,
		SourceName:                s.SourceName,
		TotalComments:             s.TotalComments,
		OverallPositivePercent:    s.OverallPositivePercent,
		OverallNegativePercent:    s.OverallNegativePercent,
		CategorySentimentPercents: s.CategorySentimentPercents,
		DangerousCommentCount:     s.DangerousCommentCount,
	}
}

// SessionSummary is the list view of a session: no chart blobs, no clusters.
type SessionSummary struct {
	ID                        int64              `json:"id"`
	CreatedAt                 time.Time          `json:"created_at"`
	SourceName                string             `json:"source_name"`
	TotalComments             int                `json:"total_comments"`
	OverallPositivePercent    float64            `json:"overall_positive_percent"`
	OverallNegativePercent    float64            `json:"overall_negative_percent"`
	CategorySentimentPercents map[string]float64 `json:"category_sentiment_percents"`
	DangerousCommentCount     int                `json:"dangerous_comment_count"`
}

// SentimentCounts tallies classified comments by polarity.
type SentimentCounts struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
}

// Total returns the number of comments counted.
func (c SentimentCounts) Total() int {
	return c.Positive + c.Negative
}

// ClusterScore is the per-cluster aggregate used to rank clusters.
type ClusterScore struct {
	ClusterID    int
	AverageScore float64
	CommentCount int
}

// ClusterDetail is the live view of a cluster's current members.
type ClusterDetail struct {
	ClusterID          int       `json:"cluster_id"`
	RepresentativeText string    `json:"representative_text"`
	Comments           []Comment `json:"comments"`
}

// TimePoint is one sample of a time series.
type TimePoint struct {
	At      time.Time `json:"at"`
	Percent float64   `json:"percent"`
}

// TimeSeries is the historical view reconstructed from all sessions.
type TimeSeries struct {
	Overall    []TimePoint            `json:"overall"`
	Categories map[string][]TimePoint `json:"categories"`
}
