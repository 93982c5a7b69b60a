// Package categorization is the classifier stage: it asks an external
// service to label every unclassified comment and stores the results.
package categorization

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rcliao/commentlens/internal/core"
	"github.com/rcliao/commentlens/internal/llm"
	"github.com/rcliao/commentlens/internal/persistence"
	"github.com/rcliao/commentlens/internal/retry"
)

// Service is the external structured-classification service.
type Service interface {
	GenerateJSON(ctx context.Context, prompt string, schema llm.Schema) (string, error)
}

// Config holds the per-comment call protocol.
type Config struct {
	Delay        time.Duration // pause before each comment, measured from the end of the previous one
	MaxAttempts  int
	ParseBackoff time.Duration
	ErrorBackoff time.Duration
	CallTimeout  time.Duration

	// Sleep overrides the delay and backoff waits. Tests use it to avoid real sleeps.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultConfig returns the standard rate-limit and retry settings.
func DefaultConfig() Config {
	return Config{
		Delay:        3 * time.Second,
		MaxAttempts:  3,
		ParseBackoff: 2 * time.Second,
		ErrorBackoff: 10 * time.Second,
		CallTimeout:  60 * time.Second,
	}
}

// Result summarizes one classifier run.
type Result struct {
	Pending    int
	Classified int
	Failed     int
}

// Classifier is the classifier stage.
type Classifier struct {
	db      persistence.Database
	service Service
	schema  llm.Schema
	config  Config
	log     zerolog.Logger
}

// NewClassifier creates the classifier stage.
func NewClassifier(db persistence.Database, service Service, config Config, log zerolog.Logger) (*Classifier, error) {
	schema, err := ResponseSchema()
	if err != nil {
		return nil, err
	}
	return &Classifier{
		db:      db,
		service: service,
		schema:  schema,
		config:  config,
		log:     log.With().Str("stage", "classify").Logger(),
	}, nil
}

type update struct {
	id             int64
	classification core.Classification
}

// Run classifies every comment whose category is unset. Comments that
// still fail after the last attempt stay unset; the batch continues.
// All updates are committed together.
func (c *Classifier) Run(ctx context.Context) (Result, error) {
	pending, err := c.db.Comments().ListUnclassified(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list unclassified comments: %w", err)
	}

	res := Result{Pending: len(pending)}
	if len(pending) == 0 {
		c.log.Info().Msg("No unclassified comments, skipping")
		return res, nil
	}

	c.log.Info().Int("pending", len(pending)).Dur("delay", c.config.Delay).Msg("Classifying comments")

	updates := make([]update, 0, len(pending))
	for i, comment := range pending {
		if err := c.pause(ctx); err != nil {
			return res, fmt.Errorf("classification interrupted: %w", err)
		}

		cls, err := c.Classify(ctx, comment.ID, comment.Text)
		if err != nil {
			res.Failed++
			c.log.Warn().Err(err).Int64("comment_id", comment.ID).Msg("Giving up on comment, leaving it unclassified")
			continue
		}

		updates = append(updates, update{id: comment.ID, classification: cls})
		c.log.Debug().
			Int64("comment_id", comment.ID).
			Str("category", string(cls.Category)).
			Int("progress", i+1).
			Int("total", len(pending)).
			Msg("Classified comment")
	}

	if err := c.commit(ctx, updates); err != nil {
		return res, err
	}

	res.Classified = len(updates)
	c.log.Info().Int("classified", res.Classified).Int("failed", res.Failed).Msg("Classification committed")
	return res, nil
}

// Classify calls the service for one comment under the retry policy.
func (c *Classifier) Classify(ctx context.Context, id int64, text string) (core.Classification, error) {
	prompt := BuildPrompt(text)

	policy := retry.Policy{
		MaxAttempts: c.config.MaxAttempts,
		Backoff: map[retry.Kind]time.Duration{
			retry.KindParse:     c.config.ParseBackoff,
			retry.KindTransport: c.config.ErrorBackoff,
		},
		AttemptTimeout: c.config.CallTimeout,
		Classify:       failureKind,
		Sleep:          c.config.Sleep,
		OnFailure: func(attempt int, kind retry.Kind, err error) {
			c.log.Warn().
				Err(err).
				Int64("comment_id", id).
				Int("attempt", attempt).
				Stringer("kind", kind).
				Msg("Classification attempt failed")
		},
	}

	return retry.Do(ctx, policy, func(ctx context.Context) (core.Classification, error) {
		raw, err := c.service.GenerateJSON(ctx, prompt, c.schema)
		if err != nil {
			return core.Classification{}, err
		}
		return Parse(raw)
	}, nil)
}

// pause waits the full delay, however long the previous comment took.
func (c *Classifier) pause(ctx context.Context) error {
	if c.config.Delay <= 0 {
		return ctx.Err()
	}
	if c.config.Sleep != nil {
		return c.config.Sleep(ctx, c.config.Delay)
	}
	return retry.Sleep(ctx, c.config.Delay)
}

func (c *Classifier) commit(ctx context.Context, updates []update) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, u := range updates {
		if err := tx.Comments().UpdateClassification(ctx, u.id, u.classification); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to commit classifications: %w", err)
	}
	return nil
}

func failureKind(err error) retry.Kind {
	var perr *ParseError
	if errors.As(err, &perr) {
		return retry.KindParse
	}
	return retry.KindTransport
}
