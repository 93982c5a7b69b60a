package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rcliao/commentlens/internal/core"
)

const commentColumns = `id, text, category, danger, sentiment, tags, embedding, cluster_id, importance_score, created_at`

// sqliteCommentRepo implements CommentRepository for SQLite
type sqliteCommentRepo struct {
	db *sql.DB
	tx *sql.Tx
}

func (r *sqliteCommentRepo) query() querier {
	return pick(r.db, r.tx)
}

func (r *sqliteCommentRepo) CreateBatch(ctx context.Context, texts []string) ([]int64, error) {
	now := formatTime(time.Now())
	ids := make([]int64, 0, len(texts))

	for _, text := range texts {
		res, err := r.query().ExecContext(ctx,
			`INSERT INTO comments (text, created_at) VALUES (?, ?)`, text, now)
		if err != nil {
			return nil, fmt.Errorf("failed to insert comment: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to read comment id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}

func (r *sqliteCommentRepo) Get(ctx context.Context, id int64) (*core.Comment, error) {
	row := r.query().QueryRowContext(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE id = ?`, id)

	c, err := scanComment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("comment %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *sqliteCommentRepo) ListUnclassified(ctx context.Context) ([]core.Comment, error) {
	return r.list(ctx, `SELECT `+commentColumns+` FROM comments WHERE category IS NULL ORDER BY id`)
}

func (r *sqliteCommentRepo) ListClassified(ctx context.Context) ([]core.Comment, error) {
	return r.list(ctx, `SELECT `+commentColumns+` FROM comments WHERE sentiment IS NOT NULL ORDER BY id`)
}

func (r *sqliteCommentRepo) ListByCluster(ctx context.Context, clusterID int) ([]core.Comment, error) {
	// SQLite sorts NULL last under DESC.
	return r.list(ctx, `SELECT `+commentColumns+` FROM comments
		WHERE cluster_id = ?
		ORDER BY importance_score DESC, id ASC`, clusterID)
}

func (r *sqliteCommentRepo) UpdateClassification(ctx context.Context, id int64, c core.Classification) error {
	tags, err := json.Marshal(c.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	_, err = r.query().ExecContext(ctx,
		`UPDATE comments SET category = ?, danger = ?, sentiment = ?, tags = ? WHERE id = ?`,
		string(c.Category), c.Danger, int(c.Sentiment), string(tags), id)
	if err != nil {
		return fmt.Errorf("failed to update classification for comment %d: %w", id, err)
	}
	return nil
}

func (r *sqliteCommentRepo) UpdateClusterAssignment(ctx context.Context, id int64, clusterID int, embedding []float32) error {
	_, err := r.query().ExecContext(ctx,
		`UPDATE comments SET cluster_id = ?, embedding = ? WHERE id = ?`,
		clusterID, EncodeVector(embedding), id)
	if err != nil {
		return fmt.Errorf("failed to update cluster for comment %d: %w", id, err)
	}
	return nil
}

func (r *sqliteCommentRepo) UpdateImportanceScore(ctx context.Context, id int64, score float64) error {
	_, err := r.query().ExecContext(ctx,
		`UPDATE comments SET importance_score = ? WHERE id = ?`, score, id)
	if err != nil {
		return fmt.Errorf("failed to update score for comment %d: %w", id, err)
	}
	return nil
}

func (r *sqliteCommentRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.query().QueryRowContext(ctx, `SELECT COUNT(*) FROM comments`).Scan(&n)
	return n, err
}

func (r *sqliteCommentRepo) CountDangerous(ctx context.Context) (int, error) {
	var n int
	err := r.query().QueryRowContext(ctx, `SELECT COUNT(*) FROM comments WHERE danger = 1`).Scan(&n)
	return n, err
}

func (r *sqliteCommentRepo) SentimentCounts(ctx context.Context) (core.SentimentCounts, error) {
	var counts core.SentimentCounts
	err := r.query().QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN sentiment = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN sentiment = 0 THEN 1 ELSE 0 END), 0)
		FROM comments
		WHERE sentiment IS NOT NULL
	`).Scan(&counts.Positive, &counts.Negative)
	if err != nil {
		return counts, fmt.Errorf("failed to count sentiment: %w", err)
	}
	return counts, nil
}

func (r *sqliteCommentRepo) CategorySentimentCounts(ctx context.Context) (map[string]core.SentimentCounts, error) {
	rows, err := r.query().QueryContext(ctx, `
		SELECT
			category,
			SUM(CASE WHEN sentiment = 1 THEN 1 ELSE 0 END),
			SUM(CASE WHEN sentiment = 0 THEN 1 ELSE 0 END)
		FROM comments
		WHERE category IS NOT NULL AND sentiment IS NOT NULL
		GROUP BY category
		ORDER BY category
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count category sentiment: %w", err)
	}
	defer rows.Close()

	out := make(map[string]core.SentimentCounts)
	for rows.Next() {
		var category string
		var counts core.SentimentCounts
		if err := rows.Scan(&category, &counts.Positive, &counts.Negative); err != nil {
			return nil, err
		}
		out[category] = counts
	}
	return out, rows.Err()
}

func (r *sqliteCommentRepo) TopClusterScores(ctx context.Context, limit int) ([]core.ClusterScore, error) {
	q := `
		SELECT cluster_id, AVG(importance_score) AS avg_score, COUNT(id)
		FROM comments
		WHERE importance_score IS NOT NULL AND cluster_id IS NOT NULL AND cluster_id != ?
		GROUP BY cluster_id
		ORDER BY avg_score DESC, cluster_id ASC`
	args := []interface{}{core.NoiseCluster}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.query().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to rank clusters: %w", err)
	}
	defer rows.Close()

	var scores []core.ClusterScore
	for rows.Next() {
		var s core.ClusterScore
		if err := rows.Scan(&s.ClusterID, &s.AverageScore, &s.CommentCount); err != nil {
			return nil, err
		}
		scores = append(scores, s)
	}
	return scores, rows.Err()
}

func (r *sqliteCommentRepo) list(ctx context.Context, q string, args ...interface{}) ([]core.Comment, error) {
	rows, err := r.query().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	var comments []core.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, *c)
	}
	return comments, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanComment(s scanner) (*core.Comment, error) {
	var (
		c         core.Comment
		category  sql.NullString
		danger    sql.NullBool
		sentiment sql.NullInt64
		tags      sql.NullString
		embedding []byte
		clusterID sql.NullInt64
		score     sql.NullFloat64
		createdAt string
	)

	if err := s.Scan(&c.ID, &c.Text, &category, &danger, &sentiment, &tags, &embedding, &clusterID, &score, &createdAt); err != nil {
		return nil, err
	}

	if category.Valid {
		v := core.Category(category.String)
		c.Category = &v
	}
	if danger.Valid {
		v := danger.Bool
		c.Danger = &v
	}
	if sentiment.Valid {
		v := core.Sentiment(sentiment.Int64)
		c.Sentiment = &v
	}
	if tags.Valid && tags.String != "" {
		// Undecodable tag maps stay nil; scoring treats them as absent.
		var t core.Tags
		if err := json.Unmarshal([]byte(tags.String), &t); err == nil {
			c.Tags = t
		}
	}
	if len(embedding) > 0 {
		v, err := DecodeVector(embedding)
		if err != nil {
			return nil, fmt.Errorf("comment %d: %w", c.ID, err)
		}
		c.Embedding = v
	}
	if clusterID.Valid {
		v := int(clusterID.Int64)
		c.ClusterID = &v
	}
	if score.Valid {
		v := score.Float64
		c.ImportanceScore = &v
	}
	if t, err := parseTime(createdAt); err == nil {
		c.CreatedAt = t
	}

	return &c, nil
}
