package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rcliao/commentlens/internal/core"
)

const sessionColumns = `id, created_at, source_name, total_comments, overall_positive_percent,
	overall_negative_percent, category_sentiment_percents, total_chart, category_charts,
	top_clusters, narrative, dangerous_comment_count`

const summaryColumns = `id, created_at, source_name, total_comments, overall_positive_percent,
	overall_negative_percent, category_sentiment_percents, dangerous_comment_count`

// sqliteSessionRepo implements SessionRepository for SQLite
type sqliteSessionRepo struct {
	db *sql.DB
	tx *sql.Tx
}

func (r *sqliteSessionRepo) query() querier {
	return pick(r.db, r.tx)
}

func (r *sqliteSessionRepo) Create(ctx context.Context, s *core.AnalysisSession) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	s.CreatedAt = s.CreatedAt.UTC()

	var last sql.NullString
	if err := r.query().QueryRowContext(ctx, `SELECT MAX(created_at) FROM analysis_sessions`).Scan(&last); err != nil {
		return fmt.Errorf("failed to read latest session time: %w", err)
	}
	if last.Valid {
		lastAt, err := parseTime(last.String)
		if err != nil {
			return fmt.Errorf("failed to parse latest session time: %w", err)
		}
		if !s.CreatedAt.After(lastAt) {
			s.CreatedAt = lastAt.Add(time.Microsecond)
		}
	}

	percents, err := json.Marshal(nonNilPercents(s.CategorySentimentPercents))
	if err != nil {
		return fmt.Errorf("failed to encode category percents: %w", err)
	}
	charts, err := json.Marshal(nonNilCharts(s.CategoryCharts))
	if err != nil {
		return fmt.Errorf("failed to encode category charts: %w", err)
	}
	clusters := s.TopClusters
	if clusters == nil {
		clusters = []core.ClusterSummary{}
	}
	topClusters, err := json.Marshal(clusters)
	if err != nil {
		return fmt.Errorf("failed to encode top clusters: %w", err)
	}

	res, err := r.query().ExecContext(ctx, `
		INSERT INTO analysis_sessions (
			created_at, source_name, total_comments, overall_positive_percent,
			overall_negative_percent, category_sentiment_percents, total_chart,
			category_charts, top_clusters, narrative, dangerous_comment_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		formatTime(s.CreatedAt), s.SourceName, s.TotalComments, s.OverallPositivePercent,
		s.OverallNegativePercent, string(percents), s.TotalChart,
		string(charts), string(topClusters), s.Narrative, s.DangerousCommentCount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read session id: %w", err)
	}
	s.ID = id
	return nil
}

func (r *sqliteSessionRepo) Get(ctx context.Context, id int64) (*core.AnalysisSession, error) {
	row := r.query().QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM analysis_sessions WHERE id = ?`, id)

	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %d: %w", id, ErrNotFound)
	}
	return s, err
}

func (r *sqliteSessionRepo) Latest(ctx context.Context) (*core.AnalysisSession, error) {
	row := r.query().QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM analysis_sessions ORDER BY created_at DESC, id DESC LIMIT 1`)

	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no analysis sessions yet: %w", ErrNotFound)
	}
	return s, err
}

func (r *sqliteSessionRepo) List(ctx context.Context, opts ListOptions) ([]core.SessionSummary, error) {
	order := "DESC"
	if strings.EqualFold(opts.Order, "asc") {
		order = "ASC"
	}

	q := fmt.Sprintf(`SELECT %s FROM analysis_sessions ORDER BY created_at %s, id %s`, summaryColumns, order, order)
	var args []interface{}
	if opts.Limit > 0 {
		q += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := r.query().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var summaries []core.SessionSummary
	for rows.Next() {
		var (
			s         core.SessionSummary
			createdAt string
			percents  string
		)
		if err := rows.Scan(&s.ID, &createdAt, &s.SourceName, &s.TotalComments,
			&s.OverallPositivePercent, &s.OverallNegativePercent, &percents, &s.DangerousCommentCount); err != nil {
			return nil, err
		}
		if s.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("session %d: bad created_at: %w", s.ID, err)
		}
		if err := json.Unmarshal([]byte(percents), &s.CategorySentimentPercents); err != nil {
			return nil, fmt.Errorf("session %d: bad category percents: %w", s.ID, err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

func scanSession(row scanner) (*core.AnalysisSession, error) {
	var (
		s           core.AnalysisSession
		createdAt   string
		percents    string
		charts      string
		topClusters string
	)

	err := row.Scan(&s.ID, &createdAt, &s.SourceName, &s.TotalComments, &s.OverallPositivePercent,
		&s.OverallNegativePercent, &percents, &s.TotalChart, &charts, &topClusters,
		&s.Narrative, &s.DangerousCommentCount)
	if err != nil {
		return nil, err
	}

	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("session %d: bad created_at: %w", s.ID, err)
	}
	if err := json.Unmarshal([]byte(percents), &s.CategorySentimentPercents); err != nil {
		return nil, fmt.Errorf("session %d: bad category percents: %w", s.ID, err)
	}
	if err := json.Unmarshal([]byte(charts), &s.CategoryCharts); err != nil {
		return nil, fmt.Errorf("session %d: bad category charts: %w", s.ID, err)
	}
	if err := json.Unmarshal([]byte(topClusters), &s.TopClusters); err != nil {
		return nil, fmt.Errorf("session %d: bad top clusters: %w", s.ID, err)
	}

	return &s, nil
}

func nonNilPercents(m map[string]float64) map[string]float64 {
	if m == nil {
		return map[string]float64{}
	}
	return m
}

func nonNilCharts(m map[string][]byte) map[string][]byte {
	if m == nil {
		return map[string][]byte{}
	}
	return m
}
