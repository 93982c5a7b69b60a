package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rcliao/commentlens/internal/core"
)

func openTestDB(t *testing.T) *SQLiteDB {
	t.Helper()
	db, err := NewSQLiteDB(context.Background(), filepath.Join(t.TempDir(), "comments.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func classify(t *testing.T, db *SQLiteDB, id int64, category core.Category, sentiment core.Sentiment, tags core.Tags) {
	t.Helper()
	err := db.Comments().UpdateClassification(context.Background(), id, core.Classification{
		Category:  category,
		Sentiment: sentiment,
		Tags:      tags,
	})
	if err != nil {
		t.Fatalf("UpdateClassification(%d) error = %v", id, err)
	}
}

func TestCreateBatchAndStageListings(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	ids, err := db.Comments().CreateBatch(ctx, []string{"first", "second", "third"})
	if err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}
	if len(ids) != 3 || ids[0] >= ids[1] || ids[1] >= ids[2] {
		t.Fatalf("Expected three increasing ids, got %v", ids)
	}

	pending, err := db.Comments().ListUnclassified(ctx)
	if err != nil {
		t.Fatalf("ListUnclassified() error = %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("Expected 3 unclassified comments, got %d", len(pending))
	}

	classify(t, db, ids[1], core.CategoryMaterials, core.SentimentPositive, core.Tags{"urgency": 2})

	pending, _ = db.Comments().ListUnclassified(ctx)
	if len(pending) != 2 {
		t.Errorf("Expected 2 unclassified comments, got %d", len(pending))
	}

	classified, err := db.Comments().ListClassified(ctx)
	if err != nil {
		t.Fatalf("ListClassified() error = %v", err)
	}
	if len(classified) != 1 || classified[0].ID != ids[1] {
		t.Fatalf("Expected only comment %d classified, got %+v", ids[1], classified)
	}

	c := classified[0]
	if c.Category == nil || *c.Category != core.CategoryMaterials {
		t.Errorf("Expected category materials, got %v", c.Category)
	}
	if c.Danger == nil || *c.Danger {
		t.Errorf("Expected danger=false to be stored, got %v", c.Danger)
	}
	if c.Tags["urgency"] != float64(2) {
		t.Errorf("Expected urgency tag 2, got %v", c.Tags["urgency"])
	}
	if c.ClusterID != nil || c.ImportanceScore != nil {
		t.Error("Expected cluster and score to remain unset")
	}
}

func TestClusterAssignmentRoundTripsEmbedding(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	ids, _ := db.Comments().CreateBatch(ctx, []string{"wifi drops"})
	vec := []float32{0.25, -1.5, 3}
	if err := db.Comments().UpdateClusterAssignment(ctx, ids[0], core.NoiseCluster, vec); err != nil {
		t.Fatalf("UpdateClusterAssignment() error = %v", err)
	}

	c, err := db.Comments().Get(ctx, ids[0])
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if c.ClusterID == nil || *c.ClusterID != core.NoiseCluster {
		t.Errorf("Expected noise cluster, got %v", c.ClusterID)
	}
	if len(c.Embedding) != 3 || c.Embedding[1] != -1.5 {
		t.Errorf("Expected embedding to round-trip, got %v", c.Embedding)
	}
}

func TestGetMissingCommentIsNotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Comments().Get(context.Background(), 42)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestAggregateQueries(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := db.Comments()

	ids, _ := repo.CreateBatch(ctx, []string{"a", "b", "c", "d", "e", "f"})
	classify(t, db, ids[0], core.CategoryMaterials, core.SentimentPositive, nil)
	classify(t, db, ids[1], core.CategoryMaterials, core.SentimentNegative, nil)
	classify(t, db, ids[2], core.CategoryOperations, core.SentimentNegative, nil)
	classify(t, db, ids[3], core.CategoryOperations, core.SentimentNegative, nil)
	classify(t, db, ids[4], core.CategoryOther, core.SentimentPositive, nil)
	// ids[5] stays unclassified

	if err := repo.UpdateClassification(ctx, ids[4], core.Classification{
		Category: core.CategoryOther, Danger: true, Sentiment: core.SentimentPositive,
	}); err != nil {
		t.Fatalf("UpdateClassification() error = %v", err)
	}

	counts, err := repo.SentimentCounts(ctx)
	if err != nil {
		t.Fatalf("SentimentCounts() error = %v", err)
	}
	if counts.Positive != 2 || counts.Negative != 3 {
		t.Errorf("Expected 2 positive / 3 negative, got %+v", counts)
	}

	perCategory, err := repo.CategorySentimentCounts(ctx)
	if err != nil {
		t.Fatalf("CategorySentimentCounts() error = %v", err)
	}
	if perCategory["operations"].Negative != 2 || perCategory["operations"].Positive != 0 {
		t.Errorf("Unexpected operations counts: %+v", perCategory["operations"])
	}
	if len(perCategory) != 3 {
		t.Errorf("Expected 3 categories, got %v", perCategory)
	}

	total, _ := repo.Count(ctx)
	if total != 6 {
		t.Errorf("Expected 6 comments, got %d", total)
	}
	dangerous, _ := repo.CountDangerous(ctx)
	if dangerous != 1 {
		t.Errorf("Expected 1 dangerous comment, got %d", dangerous)
	}
}

func TestTopClusterScoresOrderingAndTieBreak(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := db.Comments()

	ids, _ := repo.CreateBatch(ctx, []string{"a", "b", "c", "d", "e", "f", "g"})
	assign := []struct {
		cluster int
		score   *float64
	}{
		{2, ptr(4.0)},
		{2, ptr(2.0)}, // cluster 2 avg 3
		{1, ptr(3.0)}, // cluster 1 avg 3, wins the tie
		{0, ptr(6.0)}, // cluster 0 avg 6
		{core.NoiseCluster, ptr(9.0)},
		{3, nil}, // unscored cluster is not ranked
		{0, nil}, // unscored member is ignored in the average
	}
	for i, a := range assign {
		if err := repo.UpdateClusterAssignment(ctx, ids[i], a.cluster, nil); err != nil {
			t.Fatalf("UpdateClusterAssignment() error = %v", err)
		}
		if a.score != nil {
			if err := repo.UpdateImportanceScore(ctx, ids[i], *a.score); err != nil {
				t.Fatalf("UpdateImportanceScore() error = %v", err)
			}
		}
	}

	scores, err := repo.TopClusterScores(ctx, 5)
	if err != nil {
		t.Fatalf("TopClusterScores() error = %v", err)
	}

	want := []int{0, 1, 2}
	if len(scores) != len(want) {
		t.Fatalf("Expected %d clusters, got %+v", len(want), scores)
	}
	for i, id := range want {
		if scores[i].ClusterID != id {
			t.Errorf("position %d: expected cluster %d, got %d", i, id, scores[i].ClusterID)
		}
	}
	if scores[0].CommentCount != 1 {
		t.Errorf("Expected cluster 0 to count only scored members, got %d", scores[0].CommentCount)
	}

	limited, _ := repo.TopClusterScores(ctx, 1)
	if len(limited) != 1 || limited[0].ClusterID != 0 {
		t.Errorf("Expected limit to keep only cluster 0, got %+v", limited)
	}
}

func TestListByClusterOrdersByScoreThenID(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := db.Comments()

	ids, _ := repo.CreateBatch(ctx, []string{"low", "none", "high", "high-too"})
	scores := []*float64{ptr(1), nil, ptr(5), ptr(5)}
	for i, s := range scores {
		_ = repo.UpdateClusterAssignment(ctx, ids[i], 4, nil)
		if s != nil {
			_ = repo.UpdateImportanceScore(ctx, ids[i], *s)
		}
	}

	members, err := repo.ListByCluster(ctx, 4)
	if err != nil {
		t.Fatalf("ListByCluster() error = %v", err)
	}

	got := make([]string, len(members))
	for i, m := range members {
		got[i] = m.Text
	}
	want := []string{"high", "high-too", "low", "none"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected order %v, got %v", want, got)
		}
	}
}

func TestTransactionRollbackDiscardsUpdates(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	ids, _ := db.Comments().CreateBatch(ctx, []string{"one"})

	tx, err := db.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx() error = %v", err)
	}
	if err := tx.Comments().UpdateImportanceScore(ctx, ids[0], 3); err != nil {
		t.Fatalf("UpdateImportanceScore() error = %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}

	c, _ := db.Comments().Get(ctx, ids[0])
	if c.ImportanceScore != nil {
		t.Errorf("Expected rolled back score to be unset, got %v", *c.ImportanceScore)
	}
}

func TestSessionCreateIsMonotonicAndListable(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := db.Sessions()

	instant := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	first := &core.AnalysisSession{
		CreatedAt:                 instant,
		SourceName:                "a.csv",
		TotalComments:             4,
		OverallPositivePercent:    50,
		OverallNegativePercent:    50,
		CategorySentimentPercents: map[string]float64{"materials": 100},
		TotalChart:                []byte{1, 2, 3},
		CategoryCharts:            map[string][]byte{"materials": {4, 5}},
		TopClusters: []core.ClusterSummary{{
			ClusterID:          1,
			RepresentativeText: "slides",
			MergedTags:         core.Tags{"urgency": 3},
		}},
		Narrative: "ok",
	}
	second := &core.AnalysisSession{CreatedAt: instant, SourceName: "b.csv"}

	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create(first) error = %v", err)
	}
	if err := repo.Create(ctx, second); err != nil {
		t.Fatalf("Create(second) error = %v", err)
	}
	if !second.CreatedAt.After(first.CreatedAt) {
		t.Errorf("Expected second session to be strictly later: %v vs %v", second.CreatedAt, first.CreatedAt)
	}

	latest, err := repo.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest.ID != second.ID {
		t.Errorf("Expected latest session %d, got %d", second.ID, latest.ID)
	}

	got, err := repo.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got.TotalChart) != string([]byte{1, 2, 3}) {
		t.Errorf("Expected total chart to round-trip, got %v", got.TotalChart)
	}
	if len(got.CategoryCharts["materials"]) != 2 {
		t.Errorf("Expected category chart to round-trip, got %v", got.CategoryCharts)
	}
	if len(got.TopClusters) != 1 || got.TopClusters[0].RepresentativeText != "slides" {
		t.Errorf("Expected top clusters to round-trip, got %+v", got.TopClusters)
	}
	if !got.CreatedAt.Equal(instant) {
		t.Errorf("Expected created_at %v, got %v", instant, got.CreatedAt)
	}

	desc, _ := repo.List(ctx, ListOptions{})
	if len(desc) != 2 || desc[0].ID != second.ID {
		t.Errorf("Expected newest first, got %+v", desc)
	}
	asc, _ := repo.List(ctx, ListOptions{Order: "asc"})
	if len(asc) != 2 || asc[0].ID != first.ID {
		t.Errorf("Expected oldest first, got %+v", asc)
	}
}

func TestSessionNotFound(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if _, err := db.Sessions().Latest(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound from empty Latest, got %v", err)
	}
	if _, err := db.Sessions().Get(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing id, got %v", err)
	}
}

func TestVectorCodecRejectsRaggedBlob(t *testing.T) {
	if _, err := DecodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("Expected error for blob that is not a multiple of 4 bytes")
	}
	if EncodeVector(nil) != nil {
		t.Error("Expected nil blob for empty vector")
	}
}

func TestMigrationStatus(t *testing.T) {
	db := openTestDB(t)
	status, err := NewMigrationManager(db).Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if len(status) == 0 || !status[0].Applied {
		t.Errorf("Expected initial migration applied, got %+v", status)
	}
}

func TestMigrationRollbackAndReapply(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	m := NewMigrationManager(db)

	if err := m.Rollback(ctx); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	status, err := m.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status[0].Applied {
		t.Error("Expected the migration to be pending after rollback")
	}

	if err := m.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	status, err = m.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !status[0].Applied {
		t.Error("Expected the migration to be applied again")
	}
}

func ptr(f float64) *float64 { return &f }
