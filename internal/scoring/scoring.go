// Package scoring is the scoring stage: it derives each classified
// comment's importance score from its tags.
package scoring

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rcliao/commentlens/internal/core"
	"github.com/rcliao/commentlens/internal/persistence"
	"github.com/rcliao/commentlens/internal/tags"
)

// Score returns urgency * (question + infrastructure-issue + concrete).
// Missing tags count as 0.
func Score(t core.Tags) (float64, error) {
	var values [4]int
	for i, key := range []string{tags.Urgency, tags.Question, tags.InfrastructureIssue, tags.Concrete} {
		n, err := tags.Int(t, key)
		if err != nil {
			return 0, err
		}
		values[i] = n
	}
	return float64(values[0] * (values[1] + values[2] + values[3])), nil
}

// Result summarizes one scoring run.
type Result struct {
	Scored       int
	CoercionErrs int
}

// Stage is the scoring stage.
type Stage struct {
	db  persistence.Database
	log zerolog.Logger
}

// NewStage creates the scoring stage.
func NewStage(db persistence.Database, log zerolog.Logger) *Stage {
	return &Stage{db: db, log: log.With().Str("stage", "score").Logger()}
}

// Run scores every classified comment in one transaction. A comment whose
// tags cannot be coerced scores 0.
func (s *Stage) Run(ctx context.Context) (Result, error) {
	comments, err := s.db.Comments().ListClassified(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list classified comments: %w", err)
	}
	if len(comments) == 0 {
		s.log.Info().Msg("No classified comments, skipping")
		return Result{}, nil
	}

	var res Result
	scores := make([]float64, len(comments))
	for i, c := range comments {
		score, err := Score(c.Tags)
		if err != nil {
			res.CoercionErrs++
			s.log.Warn().Err(err).Int64("comment_id", c.ID).Msg("Tag coercion failed, scoring 0")
			score = 0
		}
		scores[i] = score
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	for i, c := range comments {
		if err := tx.Comments().UpdateImportanceScore(ctx, c.ID, scores[i]); err != nil {
			_ = tx.Rollback()
			return Result{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return Result{}, fmt.Errorf("failed to commit scores: %w", err)
	}

	res.Scored = len(comments)
	s.log.Info().Int("scored", res.Scored).Int("coercion_errors", res.CoercionErrs).Msg("Scoring complete")
	return res, nil
}
