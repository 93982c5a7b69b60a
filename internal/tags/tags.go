// Package tags handles the classifier's named signals: their keys, numeric
// coercion, and how a cluster's tag maps are merged and displayed.
package tags

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rcliao/commentlens/internal/core"
)

// Tag keys as they appear in classifier output and stored tag maps.
const (
	Question            = "question"
	Concrete            = "concrete"
	InfrastructureIssue = "infrastructure-issue"
	Urgency             = "urgency"
)

// Keys lists the tag keys in display order.
func Keys() []string {
	return []string{Question, Concrete, InfrastructureIssue, Urgency}
}

// New builds a tag map from the four signals.
func New(question, concrete, infrastructureIssue, urgency int) core.Tags {
	return core.Tags{
		Question:            question,
		Concrete:            concrete,
		InfrastructureIssue: infrastructureIssue,
		Urgency:             urgency,
	}
}

// ToInt coerces a loosely typed tag value to an integer. Fractional numbers
// truncate toward zero. Strings must hold an integer. nil and other types
// are errors.
func ToInt(v interface{}) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, fmt.Errorf("tag value %v is not finite", x)
		}
		return int(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, fmt.Errorf("tag value %q is not an integer", x)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("tag value of type %T is not numeric", v)
	}
}

// Int returns the integer value of key, 0 when the key is absent.
func Int(t core.Tags, key string) (int, error) {
	v, ok := t[key]
	if !ok {
		return 0, nil
	}
	n, err := ToInt(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// Merge folds tag maps in order into one. Later maps win on key collision.
func Merge(maps ...core.Tags) core.Tags {
	merged := core.Tags{}
	for _, m := range maps {
		for k, v := range m {
			merged[k] = v
		}
	}
	return merged
}

// Format renders a tag map as "key=value" pairs sorted by key.
func Format(t core.Tags) string {
	if len(t) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, t[k])
	}
	return strings.Join(parts, ", ")
}
