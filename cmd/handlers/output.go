package handlers

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/rcliao/commentlens/internal/core"
	"github.com/rcliao/commentlens/internal/pipeline"
	"github.com/rcliao/commentlens/internal/sentiment"
	"github.com/rcliao/commentlens/internal/tags"
	"github.com/rcliao/commentlens/internal/trends"
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

func moodOf(pct float64) string {
	return sentiment.MoodEmoji[sentiment.Classify(pct)]
}

func printRunStats(w io.Writer, res *pipeline.RunResult) {
	s := res.Stats
	fmt.Fprintf(w, "✅ Run %s finished in %s\n", res.RunID, s.ProcessingTime.Round(time.Millisecond))
	if s.Ingested > 0 {
		fmt.Fprintf(w, "   Ingested:   %d\n", s.Ingested)
	}
	fmt.Fprintf(w, "   Classified: %d", s.Classified)
	if s.ClassifyFailed > 0 {
		fmt.Fprintf(w, " (%d left unclassified)", s.ClassifyFailed)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "   Clusters:   %d (%d noise of %d)\n", s.Clusters, s.Noise, s.Clustered)
	fmt.Fprintln(w)
}

func printSession(w io.Writer, s *core.AnalysisSession) {
	fmt.Fprintf(w, "📊 Session #%d: %s\n", s.ID, s.SourceName)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Created:    %s\n", s.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Comments:   %d (%d dangerous)\n", s.TotalComments, s.DangerousCommentCount)
	fmt.Fprintf(w, "Sentiment:  %s %.1f%% positive / %.1f%% negative\n",
		moodOf(s.OverallPositivePercent),
		sentiment.Round(s.OverallPositivePercent, 1),
		sentiment.Round(s.OverallNegativePercent, 1))

	if len(s.CategorySentimentPercents) > 0 {
		fmt.Fprintln(w, "\nCategories:")
		names := make([]string, 0, len(s.CategorySentimentPercents))
		for name := range s.CategorySentimentPercents {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			pct := s.CategorySentimentPercents[name]
			fmt.Fprintf(w, "  %s %-16s %5.1f%% positive\n", moodOf(pct), name, sentiment.Round(pct, 1))
		}
	}

	if len(s.TopClusters) > 0 {
		fmt.Fprintln(w, "\nTop clusters:")
		for i, c := range s.TopClusters {
			fmt.Fprintf(w, "  %d. [cluster %d, score %.2f, %d comments] %s\n",
				i+1, c.ClusterID, sentiment.Round(c.AverageImportanceScore, 2), c.CommentCount, c.RepresentativeText)
			if t := tags.Format(c.MergedTags); t != "" {
				fmt.Fprintf(w, "     tags: %s\n", t)
			}
		}
	}

	if s.Narrative != "" {
		fmt.Fprintln(w, "\nNarrative:")
		fmt.Fprintln(w, s.Narrative)
	}
}

func printSessionList(w io.Writer, sessions []core.SessionSummary) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No analysis sessions found")
		fmt.Fprintln(w, "💡 Run 'commentlens analyze <file>' to create one")
		return
	}

	fmt.Fprintf(w, "📚 Analysis sessions (%d)\n", len(sessions))
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%-6s %-17s %-9s %-9s %s\n", "ID", "Created", "Comments", "Positive", "Source")
	for _, s := range sessions {
		fmt.Fprintf(w, "%-6d %-17s %-9d %s %5.1f%% %s\n",
			s.ID,
			s.CreatedAt.Local().Format("2006-01-02 15:04"),
			s.TotalComments,
			moodOf(s.OverallPositivePercent),
			sentiment.Round(s.OverallPositivePercent, 1),
			s.SourceName)
	}
}

func printTimeSeries(w io.Writer, series core.TimeSeries) {
	if len(series.Overall) == 0 {
		fmt.Fprintln(w, "No analysis sessions found")
		return
	}

	fmt.Fprintln(w, "📈 Positive sentiment over time")
	fmt.Fprintln(w, rule)
	for _, p := range series.Overall {
		fmt.Fprintf(w, "%s  %s %5.1f%%  %s\n",
			p.At.Local().Format("2006-01-02 15:04"),
			moodOf(p.Percent),
			sentiment.Round(p.Percent, 1),
			strings.Repeat("█", int(p.Percent/5)))
	}

	changes := trends.Changes(series)
	if len(changes) == 0 {
		return
	}
	fmt.Fprintln(w, "\nLatest change:")
	for _, c := range changes {
		arrow := "→"
		switch {
		case c.Change > 0:
			arrow = "↑"
		case c.Change < 0:
			arrow = "↓"
		}
		fmt.Fprintf(w, "  %-16s %5.1f%% %s %+.1f\n", c.Name, sentiment.Round(c.Value, 1), arrow, sentiment.Round(c.Change, 1))
	}
}

func printClusterDetail(w io.Writer, d *core.ClusterDetail) {
	fmt.Fprintf(w, "🧩 Cluster %d (%d comments)\n", d.ClusterID, len(d.Comments))
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Representative: %s\n\n", d.RepresentativeText)
	for _, c := range d.Comments {
		score := "  -  "
		if c.ImportanceScore != nil {
			score = fmt.Sprintf("%5.2f", *c.ImportanceScore)
		}
		category := "unclassified"
		if c.Category != nil {
			category = string(*c.Category)
		}
		fmt.Fprintf(w, "  [%s] #%-5d %-16s %s\n", score, c.ID, category, c.Text)
	}
}
