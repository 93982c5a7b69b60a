// Package pipeline runs the batch analysis: classify, cluster, score and
// aggregate, strictly in that order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rcliao/commentlens/internal/core"
	"github.com/rcliao/commentlens/internal/persistence"
)

var (
	// ErrRunInProgress is returned when another batch run holds the store.
	ErrRunInProgress = errors.New("an analysis run is already in progress")
	// ErrNoComments is returned when there is nothing to analyze.
	ErrNoComments = errors.New("no comments to analyze")
)

// Stage names used in StageError and logs.
const (
	StageIngest    = "ingest"
	StageClassify  = "classify"
	StageCluster   = "cluster"
	StageScore     = "score"
	StageAggregate = "aggregate"
)

// StageError reports which stage halted a run.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Pipeline orchestrates one batch run at a time against a comment store
type Pipeline struct {
	db         persistence.Database
	classifier CommentClassifier
	clusterer  CommentClusterer
	scorer     CommentScorer
	aggregator SessionAggregator
	log        zerolog.Logger

	mu      sync.Mutex
	closers []func() error
}

// NewPipeline creates a new pipeline with all dependencies
func NewPipeline(
	db persistence.Database,
	classifier CommentClassifier,
	clusterer CommentClusterer,
	scorer CommentScorer,
	aggregator SessionAggregator,
	log zerolog.Logger,
) *Pipeline {
	return &Pipeline{
		db:         db,
		classifier: classifier,
		clusterer:  clusterer,
		scorer:     scorer,
		aggregator: aggregator,
		log:        log,
	}
}

// RunRequest is one uploaded batch.
type RunRequest struct {
	SourceName string
	Texts      []string
}

// RunResult contains the output of one batch run
type RunResult struct {
	RunID   string
	Session *core.AnalysisSession
	Stats   ProcessingStats
}

// ProcessingStats tracks pipeline execution metrics
type ProcessingStats struct {
	Ingested       int
	Classified     int
	ClassifyFailed int
	Clustered      int
	Clusters       int
	Noise          int
	Scored         int
	ProcessingTime time.Duration
	StartTime      time.Time
	EndTime        time.Time
}

// Run stores the batch's texts as new comments and then analyzes the
// whole store. Blank texts are dropped.
func (p *Pipeline) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if !p.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer p.mu.Unlock()

	res, log := p.start("run", req.SourceName)

	texts := make([]string, 0, len(req.Texts))
	for _, t := range req.Texts {
		if t = strings.TrimSpace(t); t != "" {
			texts = append(texts, t)
		}
	}
	if len(texts) == 0 {
		return nil, &StageError{Stage: StageIngest, Err: ErrNoComments}
	}

	if err := p.ingest(ctx, texts); err != nil {
		log.Error().Err(err).Msg("Ingest failed")
		return nil, &StageError{Stage: StageIngest, Err: err}
	}
	res.Stats.Ingested = len(texts)
	log.Info().Int("comments", len(texts)).Msg("Comments ingested")

	return p.analyze(ctx, req.SourceName, res, log)
}

// Analyze re-runs every stage over the current store without ingesting.
func (p *Pipeline) Analyze(ctx context.Context, sourceName string) (*RunResult, error) {
	if !p.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer p.mu.Unlock()

	res, log := p.start("analyze", sourceName)

	n, err := p.db.Comments().Count(ctx)
	if err != nil {
		return nil, &StageError{Stage: StageIngest, Err: err}
	}
	if n == 0 {
		return nil, &StageError{Stage: StageIngest, Err: ErrNoComments}
	}

	return p.analyze(ctx, sourceName, res, log)
}

// Close releases clients created by the builder.
func (p *Pipeline) Close() error {
	var errs []error
	for _, c := range p.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Pipeline) start(kind, sourceName string) (*RunResult, zerolog.Logger) {
	res := &RunResult{RunID: uuid.NewString()}
	res.Stats.StartTime = time.Now()

	log := p.log.With().Str("run_id", res.RunID).Str("source", sourceName).Logger()
	log.Info().Str("kind", kind).Msg("Analysis run started")
	return res, log
}

func (p *Pipeline) ingest(ctx context.Context, texts []string) error {
	tx, err := p.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if _, err := tx.Comments().CreateBatch(ctx, texts); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to commit comments: %w", err)
	}
	return nil
}

func (p *Pipeline) analyze(ctx context.Context, sourceName string, res *RunResult, log zerolog.Logger) (*RunResult, error) {
	fail := func(stage string, err error) (*RunResult, error) {
		log.Error().Err(err).Str("stage", stage).Msg("Analysis run halted")
		return nil, &StageError{Stage: stage, Err: err}
	}

	classified, err := p.classifier.Run(ctx)
	if err != nil {
		return fail(StageClassify, err)
	}
	res.Stats.Classified = classified.Classified
	res.Stats.ClassifyFailed = classified.Failed

	clustered, err := p.clusterer.Run(ctx)
	if err != nil {
		return fail(StageCluster, err)
	}
	res.Stats.Clustered = clustered.Total
	res.Stats.Clusters = clustered.Clusters
	res.Stats.Noise = clustered.Noise

	scored, err := p.scorer.Run(ctx)
	if err != nil {
		return fail(StageScore, err)
	}
	res.Stats.Scored = scored.Scored

	session, err := p.aggregator.Run(ctx, sourceName)
	if err != nil {
		return fail(StageAggregate, err)
	}
	res.Session = session

	res.Stats.EndTime = time.Now()
	res.Stats.ProcessingTime = res.Stats.EndTime.Sub(res.Stats.StartTime)
	log.Info().
		Int64("session_id", session.ID).
		Int("classified", res.Stats.Classified).
		Int("classify_failed", res.Stats.ClassifyFailed).
		Int("clusters", res.Stats.Clusters).
		Dur("elapsed", res.Stats.ProcessingTime).
		Msg("Analysis run complete")
	return res, nil
}
