package server

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rcliao/commentlens/internal/core"
	"github.com/rcliao/commentlens/internal/ingest"
	"github.com/rcliao/commentlens/internal/persistence"
	"github.com/rcliao/commentlens/internal/pipeline"
	"github.com/rcliao/commentlens/internal/sentiment"
)

// UploadResponse is returned after a batch has been analyzed.
type UploadResponse struct {
	SessionID     int64  `json:"session_id"`
	RunID         string `json:"run_id"`
	SourceName    string `json:"source_name"`
	TotalComments int    `json:"total_comments"`
	Ingested      int    `json:"ingested"`
}

// ClusterResponse is a top cluster with presentation rounding applied.
type ClusterResponse struct {
	ClusterID              int                   `json:"cluster_id"`
	AverageImportanceScore float64               `json:"average_importance_score"`
	CommentCount           int                   `json:"comment_count"`
	RepresentativeText     string                `json:"representative_text"`
	MergedTags             core.Tags             `json:"merged_tags"`
	Examples               []core.CommentExample `json:"examples"`
}

// AnalysisResponse is the full view of one session.
type AnalysisResponse struct {
	SessionID                 int64              `json:"session_id"`
	CreatedAt                 string             `json:"created_at"`
	SourceName                string             `json:"source_name"`
	TotalComments             int                `json:"total_comments"`
	DangerousCommentCount     int                `json:"dangerous_comment_count"`
	OverallPositivePercent    float64            `json:"overall_positive_percent"`
	OverallNegativePercent    float64            `json:"overall_negative_percent"`
	CategorySentimentPercents map[string]float64 `json:"category_sentiment_percents"`
	TotalChart                []byte             `json:"total_chart"`
	CategoryCharts            map[string][]byte  `json:"category_charts"`
	TopClusters               []ClusterResponse  `json:"top_clusters"`
}

// SessionResponse is one row of the session list.
type SessionResponse struct {
	ID                     int64   `json:"id"`
	CreatedAt              string  `json:"created_at"`
	SourceName             string  `json:"source_name"`
	TotalComments          int     `json:"total_comments"`
	OverallPositivePercent float64 `json:"overall_positive_percent"`
	OverallNegativePercent float64 `json:"overall_negative_percent"`
}

// Point is one time-series sample.
type Point struct {
	X string  `json:"x"`
	Y float64 `json:"y"`
}

// TimeSeriesResponse is shaped for charting libraries.
type TimeSeriesResponse struct {
	Labels          []string           `json:"labels"`
	OverallPositive []float64          `json:"overall_positive"`
	Categories      map[string][]Point `json:"categories"`
}

// handleHealth handles GET /healthcheck
func (s *Server) handleHealth(c *gin.Context) {
	if err := s.db.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleUpload handles POST /upload
func (s *Server) handleUpload(c *gin.Context) {
	if s.config.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxUploadBytes)
	}

	header, err := c.FormFile("file")
	if err != nil {
		s.respondError(c, "invalid_upload", fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}

	name := filepath.Base(header.Filename)
	format, err := ingest.FormatFromName(name)
	if err != nil {
		s.respondError(c, "unsupported_format", err)
		return
	}

	f, err := header.Open()
	if err != nil {
		s.respondError(c, "invalid_upload", fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	defer f.Close()

	texts, err := ingest.Read(f, format)
	if err != nil {
		s.respondError(c, "invalid_file", err)
		return
	}

	res, err := s.runner.Run(c.Request.Context(), pipeline.RunRequest{SourceName: name, Texts: texts})
	if err != nil {
		s.respondError(c, "analysis_failed", err)
		return
	}

	c.JSON(http.StatusOK, UploadResponse{
		SessionID:     res.Session.ID,
		RunID:         res.RunID,
		SourceName:    res.Session.SourceName,
		TotalComments: res.Session.TotalComments,
		Ingested:      res.Stats.Ingested,
	})
}

// handleAnalysisResults handles GET /api/analysis_results
func (s *Server) handleAnalysisResults(c *gin.Context) {
	session, ok := s.sessionFromQuery(c)
	if !ok {
		return
	}

	categories := make(map[string]float64, len(session.CategorySentimentPercents))
	for name, pct := range session.CategorySentimentPercents {
		categories[name] = sentiment.Round(pct, 1)
	}
	charts := session.CategoryCharts
	if charts == nil {
		charts = map[string][]byte{}
	}

	clusters := make([]ClusterResponse, 0, len(session.TopClusters))
	for _, cl := range session.TopClusters {
		clusters = append(clusters, ClusterResponse{
			ClusterID:              cl.ClusterID,
			AverageImportanceScore: sentiment.Round(cl.AverageImportanceScore, 2),
			CommentCount:           cl.CommentCount,
			RepresentativeText:     cl.RepresentativeText,
			MergedTags:             cl.MergedTags,
			Examples:               cl.Examples,
		})
	}

	c.JSON(http.StatusOK, AnalysisResponse{
		SessionID:                 session.ID,
		CreatedAt:                 formatTime(session.CreatedAt),
		SourceName:                session.SourceName,
		TotalComments:             session.TotalComments,
		DangerousCommentCount:     session.DangerousCommentCount,
		OverallPositivePercent:    sentiment.Round(session.OverallPositivePercent, 1),
		OverallNegativePercent:    sentiment.Round(session.OverallNegativePercent, 1),
		CategorySentimentPercents: categories,
		TotalChart:                session.TotalChart,
		CategoryCharts:            charts,
		TopClusters:               clusters,
	})
}

// handleNarrative handles GET /api/ai_analysis_comment
func (s *Server) handleNarrative(c *gin.Context) {
	session, ok := s.sessionFromQuery(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": session.ID, "comment": session.Narrative})
}

// handleListSessions handles GET /api/analysis_sessions
func (s *Server) handleListSessions(c *gin.Context) {
	sessions, err := s.queries.ListSessions(c.Request.Context())
	if err != nil {
		s.respondError(c, "list_sessions_failed", err)
		return
	}

	out := make([]SessionResponse, 0, len(sessions))
	for _, sum := range sessions {
		out = append(out, SessionResponse{
			ID:                     sum.ID,
			CreatedAt:              formatTime(sum.CreatedAt),
			SourceName:             sum.SourceName,
			TotalComments:          sum.TotalComments,
			OverallPositivePercent: sentiment.Round(sum.OverallPositivePercent, 1),
			OverallNegativePercent: sentiment.Round(sum.OverallNegativePercent, 1),
		})
	}
	c.JSON(http.StatusOK, out)
}

// handleTimeSeries handles GET /api/time_series_data
func (s *Server) handleTimeSeries(c *gin.Context) {
	series, err := s.queries.TimeSeries(c.Request.Context())
	if err != nil {
		s.respondError(c, "time_series_failed", err)
		return
	}

	out := TimeSeriesResponse{
		Labels:          make([]string, 0, len(series.Overall)),
		OverallPositive: make([]float64, 0, len(series.Overall)),
		Categories:      make(map[string][]Point, len(series.Categories)),
	}
	for _, p := range series.Overall {
		out.Labels = append(out.Labels, formatTime(p.At))
		out.OverallPositive = append(out.OverallPositive, sentiment.Round(p.Percent, 1))
	}
	for name, points := range series.Categories {
		pts := make([]Point, 0, len(points))
		for _, p := range points {
			pts = append(pts, Point{X: formatTime(p.At), Y: sentiment.Round(p.Percent, 1)})
		}
		out.Categories[name] = pts
	}
	c.JSON(http.StatusOK, out)
}

// handleClusterDetails handles GET /api/cluster_details/:cluster_id
func (s *Server) handleClusterDetails(c *gin.Context) {
	clusterID, err := strconv.Atoi(c.Param("cluster_id"))
	if err != nil {
		s.respondError(c, "invalid_cluster_id", fmt.Errorf("%w: cluster id %q", errBadRequest, c.Param("cluster_id")))
		return
	}

	detail, err := s.queries.ClusterDetail(c.Request.Context(), clusterID)
	if err != nil {
		s.respondError(c, "cluster_not_found", err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// handleTotalChart handles GET /api/charts/:session_id/total.png
func (s *Server) handleTotalChart(c *gin.Context) {
	session, ok := s.sessionFromParam(c)
	if !ok {
		return
	}
	s.writePNG(c, session.TotalChart)
}

// handleCategoryChart handles GET /api/charts/:session_id/category/:name
func (s *Server) handleCategoryChart(c *gin.Context) {
	session, ok := s.sessionFromParam(c)
	if !ok {
		return
	}
	name := strings.TrimSuffix(c.Param("name"), ".png")
	s.writePNG(c, session.CategoryCharts[name])
}

func (s *Server) writePNG(c *gin.Context, blob []byte) {
	if len(blob) == 0 {
		s.respondError(c, "chart_not_found", fmt.Errorf("chart: %w", persistence.ErrNotFound))
		return
	}
	c.Data(http.StatusOK, "image/png", blob)
}

// sessionFromQuery loads the session named by ?session_id=, or the latest.
func (s *Server) sessionFromQuery(c *gin.Context) (*core.AnalysisSession, bool) {
	var id int64
	if raw := c.Query("session_id"); raw != "" {
		var err error
		if id, err = parseID(raw); err != nil {
			s.respondError(c, "invalid_session_id", err)
			return nil, false
		}
	}
	return s.loadSession(c, id)
}

func (s *Server) sessionFromParam(c *gin.Context) (*core.AnalysisSession, bool) {
	id, err := parseID(c.Param("session_id"))
	if err != nil {
		s.respondError(c, "invalid_session_id", err)
		return nil, false
	}
	return s.loadSession(c, id)
}

func (s *Server) loadSession(c *gin.Context, id int64) (*core.AnalysisSession, bool) {
	session, err := s.queries.GetSession(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, "session_not_found", err)
		return nil, false
	}
	return session, true
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: session id %q", errBadRequest, raw)
	}
	return id, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
