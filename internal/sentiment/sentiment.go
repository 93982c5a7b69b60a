// Package sentiment computes the positive/negative ratios reported in
// analysis sessions.
package sentiment

import (
	"math"

	"github.com/rcliao/commentlens/internal/core"
)

// Mood buckets a positive percentage for display.
type Mood string

const (
	MoodPositive Mood = "positive"
	MoodMixed    Mood = "mixed"
	MoodNegative Mood = "negative"
)

// MoodEmoji maps moods to the emoji shown in CLI and TUI listings.
var MoodEmoji = map[Mood]string{
	MoodPositive: "😊",
	MoodMixed:    "😐",
	MoodNegative: "😞",
}

// Percents returns the positive and negative shares of counts, in percent.
// Both are 0 when nothing was counted.
func Percents(counts core.SentimentCounts) (positive, negative float64) {
	total := counts.Total()
	if total == 0 {
		return 0, 0
	}
	return 100 * float64(counts.Positive) / float64(total),
		100 * float64(counts.Negative) / float64(total)
}

// CategoryPercents returns the positive percentage of each category.
func CategoryPercents(counts map[string]core.SentimentCounts) map[string]float64 {
	out := make(map[string]float64, len(counts))
	for category, c := range counts {
		positive, _ := Percents(c)
		out[category] = positive
	}
	return out
}

// ChartCounts labels counts for the chart renderer.
func ChartCounts(counts core.SentimentCounts) map[string]int {
	return map[string]int{
		core.SentimentPositive.String(): counts.Positive,
		core.SentimentNegative.String(): counts.Negative,
	}
}

// Classify buckets a positive percentage.
func Classify(positivePercent float64) Mood {
	switch {
	case positivePercent >= 60:
		return MoodPositive
	case positivePercent >= 40:
		return MoodMixed
	default:
		return MoodNegative
	}
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
