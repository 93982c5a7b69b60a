// Package query is the read-only view over stored sessions and the live
// comment store.
package query

import (
	"context"
	"fmt"

	"github.com/rcliao/commentlens/internal/analysis"
	"github.com/rcliao/commentlens/internal/core"
	"github.com/rcliao/commentlens/internal/persistence"
	"github.com/rcliao/commentlens/internal/trends"
)

// Service answers session, history and cluster queries.
type Service struct {
	db persistence.Database
}

// New creates a query service.
func New(db persistence.Database) *Service {
	return &Service{db: db}
}

// GetSession returns the session with the given id, or the most recent
// one when id is 0. Missing sessions are persistence.ErrNotFound.
func (s *Service) GetSession(ctx context.Context, id int64) (*core.AnalysisSession, error) {
	if id == 0 {
		return s.db.Sessions().Latest(ctx)
	}
	return s.db.Sessions().Get(ctx, id)
}

// ListSessions returns every session summary, newest first.
func (s *Service) ListSessions(ctx context.Context) ([]core.SessionSummary, error) {
	sessions, err := s.db.Sessions().List(ctx, persistence.ListOptions{Order: "desc"})
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []core.SessionSummary{}
	}
	return sessions, nil
}

// TimeSeries rebuilds the sentiment history across all sessions.
func (s *Service) TimeSeries(ctx context.Context) (core.TimeSeries, error) {
	sessions, err := s.db.Sessions().List(ctx, persistence.ListOptions{Order: "asc"})
	if err != nil {
		return core.TimeSeries{}, err
	}
	return trends.Build(sessions), nil
}

// ClusterDetail returns a cluster's current members by descending score.
// It reads live comment state, not any session snapshot.
func (s *Service) ClusterDetail(ctx context.Context, clusterID int) (*core.ClusterDetail, error) {
	comments, err := s.db.Comments().ListByCluster(ctx, clusterID)
	if err != nil {
		return nil, err
	}
	if len(comments) == 0 {
		return nil, fmt.Errorf("cluster %d: %w", clusterID, persistence.ErrNotFound)
	}

	return &core.ClusterDetail{
		ClusterID:          clusterID,
		RepresentativeText: analysis.RepresentativeText(comments),
		Comments:           comments,
	}, nil
}
