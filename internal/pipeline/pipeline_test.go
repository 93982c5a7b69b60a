package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rcliao/commentlens/internal/categorization"
	"github.com/rcliao/commentlens/internal/clustering"
	"github.com/rcliao/commentlens/internal/config"
	"github.com/rcliao/commentlens/internal/core"
	"github.com/rcliao/commentlens/internal/llm"
	"github.com/rcliao/commentlens/internal/persistence"
	"github.com/rcliao/commentlens/internal/scoring"
	"github.com/rcliao/commentlens/test/mocks"
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

func testConfig() *config.Config {
	return &config.Config{
		Pipeline: config.Pipeline{
			ClassifyDelay:      "0s",
			MaxAttempts:        3,
			ParseBackoff:       "2s",
			ErrorBackoff:       "10s",
			CallTimeout:        "5s",
			MinClusterSize:     2,
			ClusterMetric:      "euclidean",
			TopClusters:        5,
			ExamplesPerCluster: 3,
			NarrativeClusters:  3,
		},
	}
}

var scenario = map[string]string{
	"Great lecture":           mocks.ClassificationJSON("lecture-content", false, 1, 0, 0, 0, 0),
	"Slides were helpful":     mocks.ClassificationJSON("materials", false, 1, 0, 0, 0, 0),
	"Is the wifi down again?": mocks.ClassificationJSON("infrastructure", false, 0, 1, 0, 1, 3),
	"Too fast":                mocks.ClassificationJSON("lecture-content", false, 0, 0, 0, 0, 0),
}

func scenarioService() *mocks.MockClassifierService {
	return &mocks.MockClassifierService{
		GenerateJSONFunc: func(ctx context.Context, prompt string, schema llm.Schema) (string, error) {
			p := strings.TrimSpace(prompt)
			for text, resp := range scenario {
				if strings.HasSuffix(p, text) {
					return resp, nil
				}
			}
			return "", errors.New("unexpected prompt")
		},
	}
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func buildScenario(t *testing.T, db persistence.Database) *Pipeline {
	t.Helper()
	p, err := NewBuilder(testConfig(), db).
		WithClassifierService(scenarioService()).
		WithEmbedder(&mocks.MockEmbedder{}).
		WithClusterer(&mocks.MockClusterer{
			ClusterFunc: func(vectors [][]float32, minClusterSize int) ([]int, error) {
				return []int{0, 0, 1, core.NoiseCluster}, nil
			},
		}).
		WithNarrativeClient(&mocks.MockNarrativeClient{}).
		WithChartRenderer(&mocks.MockChartRenderer{}).
		WithSleep(noSleep).
		Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestPipelineRunEndToEnd(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	p := buildScenario(t, db)

	res, err := p.Run(ctx, RunRequest{
		SourceName: "week1.csv",
		Texts:      []string{"Great lecture", "  ", "Slides were helpful", "Is the wifi down again?", "Too fast"},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.RunID == "" {
		t.Error("Expected a run id")
	}
	if res.Stats.Ingested != 4 || res.Stats.Classified != 4 || res.Stats.ClassifyFailed != 0 {
		t.Errorf("Unexpected stats %+v", res.Stats)
	}
	if res.Stats.Clusters != 2 || res.Stats.Noise != 1 || res.Stats.Scored != 4 {
		t.Errorf("Unexpected cluster stats %+v", res.Stats)
	}

	s := res.Session
	if s == nil || s.ID == 0 {
		t.Fatalf("Expected a stored session, got %+v", s)
	}
	if s.TotalComments != 4 || s.OverallPositivePercent != 50 || s.OverallNegativePercent != 50 {
		t.Errorf("Unexpected session totals %+v", s.Summary())
	}
	if s.CategorySentimentPercents["lecture-content"] != 50 || s.CategorySentimentPercents["infrastructure"] != 0 {
		t.Errorf("Unexpected category percents %v", s.CategorySentimentPercents)
	}
	if s.Narrative != "Mock narrative" {
		t.Errorf("Unexpected narrative %q", s.Narrative)
	}
	if len(s.TopClusters) != 2 || s.TopClusters[0].ClusterID != 1 || s.TopClusters[0].AverageImportanceScore != 6 {
		t.Errorf("Unexpected top clusters %+v", s.TopClusters)
	}

	comments, err := db.Comments().ListClassified(ctx)
	if err != nil {
		t.Fatalf("ListClassified() error = %v", err)
	}
	want := []float64{0, 0, 6, 0}
	for i, c := range comments {
		if c.ImportanceScore == nil || *c.ImportanceScore != want[i] {
			t.Errorf("comment %d score = %v, want %v", c.ID, c.ImportanceScore, want[i])
		}
	}
}

func TestPipelineAnalyzeAppendsSession(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	p := buildScenario(t, db)

	first, err := p.Run(ctx, RunRequest{SourceName: "week1.csv", Texts: []string{"Great lecture", "Slides were helpful", "Is the wifi down again?", "Too fast"}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	second, err := p.Analyze(ctx, "reanalysis")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if second.Session.ID == first.Session.ID {
		t.Error("Expected a new session")
	}
	if second.Stats.Classified != 0 {
		t.Errorf("Expected no comments left to classify, got %d", second.Stats.Classified)
	}
	if second.Session.OverallPositivePercent != first.Session.OverallPositivePercent {
		t.Errorf("Expected identical aggregates, got %v and %v", first.Session.OverallPositivePercent, second.Session.OverallPositivePercent)
	}
	if !second.Session.CreatedAt.After(first.Session.CreatedAt) {
		t.Error("Expected sessions in creation order")
	}
}

func TestPipelineNoComments(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	p := buildScenario(t, db)

	_, err := p.Run(ctx, RunRequest{SourceName: "empty.txt", Texts: []string{"", "   "}})
	var serr *StageError
	if !errors.As(err, &serr) || serr.Stage != StageIngest || !errors.Is(err, ErrNoComments) {
		t.Errorf("Run() error = %v, want ingest stage ErrNoComments", err)
	}

	if _, err := p.Analyze(ctx, "empty"); !errors.Is(err, ErrNoComments) {
		t.Errorf("Analyze() error = %v, want ErrNoComments", err)
	}
}

func TestPipelineStageFailureHaltsRun(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	p, err := NewBuilder(testConfig(), db).
		WithClassifierService(scenarioService()).
		WithEmbedder(&mocks.MockEmbedder{
			EmbedFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
				return nil, errors.New("embedding service down")
			},
		}).
		WithClusterer(&mocks.MockClusterer{}).
		WithNarrativeClient(&mocks.MockNarrativeClient{}).
		WithChartRenderer(&mocks.MockChartRenderer{}).
		WithSleep(noSleep).
		Build(ctx)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	_, err = p.Run(ctx, RunRequest{SourceName: "week1.csv", Texts: []string{"Great lecture", "Too fast"}})
	var serr *StageError
	if !errors.As(err, &serr) || serr.Stage != StageCluster {
		t.Fatalf("Run() error = %v, want cluster stage error", err)
	}

	sessions, err := db.Sessions().List(ctx, persistence.ListOptions{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("Expected no session after a halted run, got %d", len(sessions))
	}

	// Classification from the halted run is kept.
	n, err := db.Comments().ListUnclassified(ctx)
	if err != nil {
		t.Fatalf("ListUnclassified() error = %v", err)
	}
	if len(n) != 0 {
		t.Errorf("Expected classifications to persist, got %d unclassified", len(n))
	}
}

type blockingClassifier struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingClassifier) Run(ctx context.Context) (categorization.Result, error) {
	close(b.started)
	<-b.release
	return categorization.Result{}, nil
}

type noopClusterer struct{}

func (noopClusterer) Run(ctx context.Context) (clustering.Result, error) {
	return clustering.Result{}, nil
}

type noopScorer struct{}

func (noopScorer) Run(ctx context.Context) (scoring.Result, error) {
	return scoring.Result{}, nil
}

type stubAggregator struct{}

func (stubAggregator) Run(ctx context.Context, sourceName string) (*core.AnalysisSession, error) {
	return &core.AnalysisSession{ID: 1, SourceName: sourceName}, nil
}

func TestPipelineRejectsConcurrentRuns(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	if _, err := db.Comments().CreateBatch(ctx, []string{"hello"}); err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}

	cls := &blockingClassifier{started: make(chan struct{}), release: make(chan struct{})}
	p := NewPipeline(db, cls, noopClusterer{}, noopScorer{}, stubAggregator{}, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		_, err := p.Analyze(ctx, "first")
		done <- err
	}()
	<-cls.started

	if _, err := p.Run(ctx, RunRequest{SourceName: "second", Texts: []string{"x"}}); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("Run() error = %v, want ErrRunInProgress", err)
	}
	if _, err := p.Analyze(ctx, "third"); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("Analyze() error = %v, want ErrRunInProgress", err)
	}

	close(cls.release)
	if err := <-done; err != nil {
		t.Errorf("first run error = %v", err)
	}

	n, err := db.Comments().Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Expected the rejected run to ingest nothing, got %d comments", n)
	}
}

func TestBuilderRequiresAIWhenClientsMissing(t *testing.T) {
	db := openTestDB(t)
	cfg := testConfig()
	cfg.AI.Classifier = config.Model{Provider: config.ProviderOpenAI, Model: "llama-3.1-8b-instant"}

	_, err := NewBuilder(cfg, db).
		WithChartRenderer(&mocks.MockChartRenderer{}).
		Build(context.Background())
	if err == nil {
		t.Fatal("Expected an error without AI credentials")
	}
}

func TestBuilderRejectsUnknownMetric(t *testing.T) {
	db := openTestDB(t)
	cfg := testConfig()
	cfg.Pipeline.ClusterMetric = "manhattan"

	_, err := NewBuilder(cfg, db).
		WithClassifierService(&mocks.MockClassifierService{}).
		WithEmbedder(&mocks.MockEmbedder{}).
		WithNarrativeClient(&mocks.MockNarrativeClient{}).
		Build(context.Background())
	if err == nil {
		t.Fatal("Expected an error for an unknown metric")
	}
}
