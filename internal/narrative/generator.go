// Package narrative asks a text-generation service for a short written
// summary of an analysis session.
package narrative

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rcliao/commentlens/internal/core"
	"github.com/rcliao/commentlens/internal/tags"
)

// FailurePlaceholder replaces the narrative when generation fails.
const FailurePlaceholder = "Narrative generation failed. Please review the charts and top clusters directly."

// LLMClient defines the interface for LLM operations needed by the narrative generator
type LLMClient interface {
	// GenerateText generates text from a prompt
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Input is the aggregate context the narrative is written from.
type Input struct {
	PositivePercent   float64
	NegativePercent   float64
	CategoryPercents  map[string]float64
	TotalComments     int
	DangerousComments int
	Clusters          []core.ClusterSummary
}

// Generator writes session narratives
type Generator struct {
	llmClient   LLMClient
	maxClusters int
	timeout     time.Duration
	log         zerolog.Logger
}

// NewGenerator creates a new narrative generator. At most maxClusters top
// clusters are quoted in the prompt.
func NewGenerator(llmClient LLMClient, maxClusters int, timeout time.Duration, log zerolog.Logger) *Generator {
	if maxClusters <= 0 {
		maxClusters = 3
	}
	return &Generator{
		llmClient:   llmClient,
		maxClusters: maxClusters,
		timeout:     timeout,
		log:         log,
	}
}

// Generate returns the narrative, or FailurePlaceholder if the service
// fails or returns nothing. It never returns an error.
func (g *Generator) Generate(ctx context.Context, in Input) string {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	text, err := g.llmClient.GenerateText(ctx, g.BuildPrompt(in))
	if err != nil {
		g.log.Warn().Err(err).Msg("Narrative generation failed, using placeholder")
		return FailurePlaceholder
	}

	text = strings.TrimSpace(text)
	if text == "" {
		g.log.Warn().Msg("Narrative generation returned no text, using placeholder")
		return FailurePlaceholder
	}
	return text
}

// BuildPrompt renders the aggregate context into the generation prompt.
func (g *Generator) BuildPrompt(in Input) string {
	var prompt strings.Builder

	prompt.WriteString("You are helping a course team understand student feedback. ")
	prompt.WriteString("Write a concise analysis (one or two short paragraphs) of the results below: ")
	prompt.WriteString("the overall mood, which areas need attention, and the most important issues raised.\n\n")

	prompt.WriteString("## Overall\n")
	prompt.WriteString(fmt.Sprintf("- Comments analysed: %d\n", in.TotalComments))
	prompt.WriteString(fmt.Sprintf("- Positive: %.1f%%, Negative: %.1f%%\n", in.PositivePercent, in.NegativePercent))
	prompt.WriteString(fmt.Sprintf("- Comments flagged as inappropriate: %d\n\n", in.DangerousComments))

	if len(in.CategoryPercents) > 0 {
		prompt.WriteString("## Positive share by category\n")
		categories := make([]string, 0, len(in.CategoryPercents))
		for c := range in.CategoryPercents {
			categories = append(categories, c)
		}
		sort.Strings(categories)
		for _, c := range categories {
			prompt.WriteString(fmt.Sprintf("- %s: %.1f%%\n", c, in.CategoryPercents[c]))
		}
		prompt.WriteString("\n")
	}

	clusters := in.Clusters
	if len(clusters) > g.maxClusters {
		clusters = clusters[:g.maxClusters]
	}
	if len(clusters) > 0 {
		prompt.WriteString("## Highest-priority comment groups\n")
		for i, c := range clusters {
			prompt.WriteString(fmt.Sprintf("%d. Score %.2f, %d comments: %q\n", i+1, c.AverageImportanceScore, c.CommentCount, c.RepresentativeText))
			prompt.WriteString(fmt.Sprintf("   Tags: %s\n", tags.Format(c.MergedTags)))
		}
	}

	return prompt.String()
}
