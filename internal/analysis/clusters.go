package analysis

import (
	"sort"

	"github.com/rcliao/commentlens/internal/core"
	"github.com/rcliao/commentlens/internal/tags"
)

// EmptyClusterText stands in for the representative text of a cluster
// with no members.
const EmptyClusterText = "(no comments in this cluster)"

// RepresentativeText picks the text that stands for a cluster: the
// highest-scored member, lowest id on ties. When no member is scored it
// falls back to the member with the lowest id.
func RepresentativeText(comments []core.Comment) string {
	if len(comments) == 0 {
		return EmptyClusterText
	}

	var best, first *core.Comment
	for i := range comments {
		c := &comments[i]
		if first == nil || c.ID < first.ID {
			first = c
		}
		if c.ImportanceScore == nil {
			continue
		}
		if best == nil ||
			*c.ImportanceScore > *best.ImportanceScore ||
			(*c.ImportanceScore == *best.ImportanceScore && c.ID < best.ID) {
			best = c
		}
	}

	if best != nil {
		return best.Text
	}
	return first.Text
}

// MergeTags folds every member's tags in ascending id order. Later
// members win on key collision.
func MergeTags(comments []core.Comment) core.Tags {
	ordered := make([]core.Comment, len(comments))
	copy(ordered, comments)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	maps := make([]core.Tags, 0, len(ordered))
	for _, c := range ordered {
		maps = append(maps, c.Tags)
	}
	return tags.Merge(maps...)
}

// Examples takes up to k scored members. comments must already be in
// ranking order.
func Examples(comments []core.Comment, k int) []core.CommentExample {
	out := make([]core.CommentExample, 0, k)
	for _, c := range comments {
		if len(out) == k {
			break
		}
		if c.ImportanceScore == nil {
			continue
		}
		score := *c.ImportanceScore
		out = append(out, core.CommentExample{ID: c.ID, Text: c.Text, ImportanceScore: &score})
	}
	return out
}
