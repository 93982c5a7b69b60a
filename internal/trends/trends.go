// Package trends rebuilds sentiment history from stored session summaries.
package trends

import (
	"sort"
	"time"

	"github.com/rcliao/commentlens/internal/core"
)

// OverallMetric names the overall positive percentage in Change results.
const OverallMetric = "overall"

// Build turns summaries in ascending created_at order into a time series.
// A category gets a point only for sessions that recorded it.
func Build(sessions []core.SessionSummary) core.TimeSeries {
	series := core.TimeSeries{
		Overall:    make([]core.TimePoint, 0, len(sessions)),
		Categories: make(map[string][]core.TimePoint),
	}

	for _, s := range sessions {
		series.Overall = append(series.Overall, core.TimePoint{At: s.CreatedAt, Percent: s.OverallPositivePercent})
		for category, pct := range s.CategorySentimentPercents {
			series.Categories[category] = append(series.Categories[category], core.TimePoint{At: s.CreatedAt, Percent: pct})
		}
	}
	return series
}

// Change compares the last two points of one series.
type Change struct {
	Name          string    `json:"name"`
	Value         float64   `json:"value"`
	PreviousValue float64   `json:"previous_value"`
	Change        float64   `json:"change"`
	LastUpdated   time.Time `json:"last_updated"`
}

// Changes reports the latest movement of the overall series and every
// category series with at least two points, overall first then by name.
func Changes(series core.TimeSeries) []Change {
	var out []Change
	if c, ok := lastChange(OverallMetric, series.Overall); ok {
		out = append(out, c)
	}

	names := make([]string, 0, len(series.Categories))
	for name := range series.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if c, ok := lastChange(name, series.Categories[name]); ok {
			out = append(out, c)
		}
	}
	return out
}

func lastChange(name string, points []core.TimePoint) (Change, bool) {
	if len(points) < 2 {
		return Change{}, false
	}
	last, prev := points[len(points)-1], points[len(points)-2]
	return Change{
		Name:          name,
		Value:         last.Percent,
		PreviousValue: prev.Percent,
		Change:        last.Percent - prev.Percent,
		LastUpdated:   last.At,
	}, true
}
