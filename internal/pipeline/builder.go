package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rcliao/commentlens/internal/analysis"
	"github.com/rcliao/commentlens/internal/categorization"
	"github.com/rcliao/commentlens/internal/clustering"
	"github.com/rcliao/commentlens/internal/config"
	"github.com/rcliao/commentlens/internal/llm"
	"github.com/rcliao/commentlens/internal/narrative"
	"github.com/rcliao/commentlens/internal/persistence"
	"github.com/rcliao/commentlens/internal/render"
	"github.com/rcliao/commentlens/internal/scoring"
)

// aiClient is what both provider clients offer.
type aiClient interface {
	GenerateJSON(ctx context.Context, prompt string, schema llm.Schema) (string, error)
	GenerateText(ctx context.Context, prompt string) (string, error)
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Builder helps construct a fully configured Pipeline. Collaborators not
// set explicitly are created from the configuration.
type Builder struct {
	cfg *config.Config
	db  persistence.Database
	log zerolog.Logger

	classifierService categorization.Service
	embedder          clustering.Embedder
	clusterer         clustering.Clusterer
	narrativeClient   narrative.LLMClient
	charts            analysis.ChartRenderer
	sleep             func(ctx context.Context, d time.Duration) error
	classifyDelay     *time.Duration
}

// NewBuilder creates a new pipeline builder
func NewBuilder(cfg *config.Config, db persistence.Database) *Builder {
	return &Builder{cfg: cfg, db: db, log: zerolog.Nop()}
}

// WithLogger sets the logger shared by every stage
func (b *Builder) WithLogger(log zerolog.Logger) *Builder {
	b.log = log
	return b
}

// WithClassifierService sets the classification service
func (b *Builder) WithClassifierService(svc categorization.Service) *Builder {
	b.classifierService = svc
	return b
}

// WithEmbedder sets the embedding function
func (b *Builder) WithEmbedder(e clustering.Embedder) *Builder {
	b.embedder = e
	return b
}

// WithClusterer sets the clustering function
func (b *Builder) WithClusterer(c clustering.Clusterer) *Builder {
	b.clusterer = c
	return b
}

// WithNarrativeClient sets the narrative text generator
func (b *Builder) WithNarrativeClient(c narrative.LLMClient) *Builder {
	b.narrativeClient = c
	return b
}

// WithChartRenderer sets the chart renderer
func (b *Builder) WithChartRenderer(r analysis.ChartRenderer) *Builder {
	b.charts = r
	return b
}

// WithSleep replaces the classifier's delay and backoff waits
func (b *Builder) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Builder {
	b.sleep = sleep
	return b
}

// WithClassifyDelay overrides the configured inter-call delay
func (b *Builder) WithClassifyDelay(d time.Duration) *Builder {
	b.classifyDelay = &d
	return b
}

// Build constructs a fully configured Pipeline. Call Close on it when done.
func (b *Builder) Build(ctx context.Context) (*Pipeline, error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if b.db == nil {
		return nil, fmt.Errorf("database is required")
	}

	var closers []func() error
	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	if b.classifierService == nil || b.embedder == nil || b.narrativeClient == nil {
		if err := b.cfg.RequireAI(); err != nil {
			return nil, err
		}
	}

	if b.classifierService == nil {
		c, closer, err := b.client(ctx, b.cfg.AI.Classifier, false)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to create classifier client: %w", err)
		}
		closers = appendCloser(closers, closer)
		b.classifierService = c
	}
	if b.embedder == nil {
		c, closer, err := b.client(ctx, b.cfg.AI.Embedding, true)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to create embedding client: %w", err)
		}
		closers = appendCloser(closers, closer)
		b.embedder = c
	}
	if b.narrativeClient == nil {
		c, closer, err := b.client(ctx, b.cfg.AI.Narrative, false)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to create narrative client: %w", err)
		}
		closers = appendCloser(closers, closer)
		b.narrativeClient = c
	}

	pc := b.cfg.Pipeline
	if b.clusterer == nil {
		metric, err := clustering.ParseMetric(pc.ClusterMetric)
		if err != nil {
			closeAll()
			return nil, err
		}
		b.clusterer = clustering.NewHDBSCAN(metric)
	}
	if b.charts == nil {
		b.charts = render.NewPieChart()
	}

	defaults := categorization.DefaultConfig()
	callTimeout := config.Duration(pc.CallTimeout, defaults.CallTimeout)
	classifyCfg := categorization.Config{
		Delay:        config.Duration(pc.ClassifyDelay, defaults.Delay),
		MaxAttempts:  pc.MaxAttempts,
		ParseBackoff: config.Duration(pc.ParseBackoff, defaults.ParseBackoff),
		ErrorBackoff: config.Duration(pc.ErrorBackoff, defaults.ErrorBackoff),
		CallTimeout:  callTimeout,
		Sleep:        b.sleep,
	}
	if b.classifyDelay != nil {
		classifyCfg.Delay = *b.classifyDelay
	}

	classifier, err := categorization.NewClassifier(b.db, b.classifierService, classifyCfg, b.log)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to create classifier: %w", err)
	}

	narrator := narrative.NewGenerator(b.narrativeClient, pc.NarrativeClusters, callTimeout, b.log.With().Str("stage", StageAggregate).Logger())

	p := NewPipeline(
		b.db,
		classifier,
		clustering.NewStage(b.db, b.embedder, b.clusterer, clustering.Config{MinClusterSize: pc.MinClusterSize, CallTimeout: callTimeout}, b.log),
		scoring.NewStage(b.db, b.log),
		analysis.NewAggregator(b.db, b.charts, narrator, analysis.Config{TopClusters: pc.TopClusters, ExamplesPerCluster: pc.ExamplesPerCluster}, b.log),
		b.log,
	)
	p.closers = closers
	return p, nil
}

func (b *Builder) client(ctx context.Context, role config.Model, embedding bool) (aiClient, func() error, error) {
	opts := llm.Options{
		Temperature: role.Temperature,
		MaxTokens:   role.MaxTokens,
		StrictJSON:  role.StrictJSON,

		RequestsPerMinute: role.RequestsPerMinute,
	}
	if embedding {
		opts.Embedding = role.Model
	} else {
		opts.Model = role.Model
	}

	switch role.Provider {
	case config.ProviderGemini:
		opts.APIKey = b.cfg.AI.Gemini.APIKey
		c, err := llm.NewGeminiClient(ctx, opts)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	default:
		opts.APIKey = b.cfg.AI.OpenAI.APIKey
		opts.BaseURL = b.cfg.AI.OpenAI.BaseURL
		c, err := llm.NewOpenAIClient(opts)
		if err != nil {
			return nil, nil, err
		}
		return c, nil, nil
	}
}

func appendCloser(closers []func() error, c func() error) []func() error {
	if c == nil {
		return closers
	}
	return append(closers, c)
}
