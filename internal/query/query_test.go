package query

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rcliao/commentlens/internal/core"
	"github.com/rcliao/commentlens/internal/persistence"
)

func openTestDB(t *testing.T) persistence.Database {
	t.Helper()
	db, err := persistence.NewSQLiteDB(context.Background(), filepath.Join(t.TempDir(), "comments.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func createSession(t *testing.T, db persistence.Database, at time.Time, overall float64, categories map[string]float64) int64 {
	t.Helper()
	s := &core.AnalysisSession{
		CreatedAt:                 at,
		SourceName:                "batch",
		TotalComments:             10,
		OverallPositivePercent:    overall,
		OverallNegativePercent:    100 - overall,
		CategorySentimentPercents: categories,
		Narrative:                 "n",
	}
	if err := db.Sessions().Create(context.Background(), s); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return s.ID
}

func TestGetSession(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	q := New(db)

	if _, err := q.GetSession(ctx, 0); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound with no sessions, got %v", err)
	}

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	first := createSession(t, db, base, 40, nil)
	second := createSession(t, db, base.Add(time.Hour), 60, nil)

	latest, err := q.GetSession(ctx, 0)
	if err != nil {
		t.Fatalf("GetSession(latest) error = %v", err)
	}
	if latest.ID != second {
		t.Errorf("Expected latest session %d, got %d", second, latest.ID)
	}

	got, err := q.GetSession(ctx, first)
	if err != nil {
		t.Fatalf("GetSession(%d) error = %v", first, err)
	}
	if got.OverallPositivePercent != 40 {
		t.Errorf("Unexpected session %+v", got.Summary())
	}

	if _, err := q.GetSession(ctx, 999); !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestListSessionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	q := New(db)

	empty, err := q.ListSessions(ctx)
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("Expected empty non-nil list, got %v, %v", empty, err)
	}

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	a := createSession(t, db, base, 10, nil)
	b := createSession(t, db, base.Add(time.Minute), 20, nil)
	c := createSession(t, db, base.Add(2*time.Minute), 30, nil)

	list, err := q.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(list) != 3 || list[0].ID != c || list[1].ID != b || list[2].ID != a {
		t.Errorf("Expected [%d %d %d], got %+v", c, b, a, list)
	}
}

func TestTimeSeries(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	q := New(db)

	t1 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	t2 := t1.Add(24 * time.Hour)
	t3 := t2.Add(24 * time.Hour)
	createSession(t, db, t1, 10, map[string]float64{"A": 1, "B": 2})
	createSession(t, db, t2, 20, map[string]float64{"A": 3})
	createSession(t, db, t3, 30, map[string]float64{"B": 4})

	series, err := q.TimeSeries(ctx)
	if err != nil {
		t.Fatalf("TimeSeries() error = %v", err)
	}
	if len(series.Overall) != 3 || series.Overall[0].Percent != 10 || series.Overall[2].Percent != 30 {
		t.Errorf("Unexpected overall series %+v", series.Overall)
	}

	a := series.Categories["A"]
	if len(a) != 2 || !a[0].At.Equal(t1) || !a[1].At.Equal(t2) {
		t.Errorf("Expected A at t1 and t2, got %+v", a)
	}
	b := series.Categories["B"]
	if len(b) != 2 || !b[0].At.Equal(t1) || !b[1].At.Equal(t3) {
		t.Errorf("Expected B at t1 and t3, got %+v", b)
	}
}

func TestClusterDetail(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	q := New(db)

	ids, err := db.Comments().CreateBatch(ctx, []string{"low", "high", "other cluster"})
	if err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}
	for i, id := range ids {
		_ = db.Comments().UpdateClassification(ctx, id, core.Classification{Category: core.CategoryOther})
		cluster := 4
		if i == 2 {
			cluster = 5
		}
		_ = db.Comments().UpdateClusterAssignment(ctx, id, cluster, []float32{0})
	}
	_ = db.Comments().UpdateImportanceScore(ctx, ids[0], 1)
	_ = db.Comments().UpdateImportanceScore(ctx, ids[1], 9)

	detail, err := q.ClusterDetail(ctx, 4)
	if err != nil {
		t.Fatalf("ClusterDetail() error = %v", err)
	}
	if detail.RepresentativeText != "high" {
		t.Errorf("Expected representative text 'high', got %q", detail.RepresentativeText)
	}
	if len(detail.Comments) != 2 || detail.Comments[0].ID != ids[1] {
		t.Errorf("Expected members by descending score, got %+v", detail.Comments)
	}

	if _, err := q.ClusterDetail(ctx, 42); !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for empty cluster, got %v", err)
	}
}
