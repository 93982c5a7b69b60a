package categorization

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rcliao/commentlens/internal/core"
	"github.com/rcliao/commentlens/internal/tags"
)

// ParseError marks a response that arrived but could not be interpreted.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed classification response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse interprets a classifier response. Missing fields take their
// defaults; present fields that cannot be converted are a ParseError.
// Category strings are accepted as returned.
func Parse(raw string) (core.Classification, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(stripFences(raw)), &fields); err != nil {
		return core.Classification{}, &ParseError{Raw: raw, Err: err}
	}
	if fields == nil {
		return core.Classification{}, &ParseError{Raw: raw, Err: errors.New("response is not a JSON object")}
	}

	out := core.Classification{
		Category:  core.CategoryOther,
		Sentiment: core.SentimentNegative,
	}

	switch v := fields["category"].(type) {
	case nil:
	case string:
		if s := strings.TrimSpace(v); s != "" {
			out.Category = core.Category(s)
		}
	default:
		return core.Classification{}, &ParseError{Raw: raw, Err: fmt.Errorf("category has type %T", v)}
	}

	danger, err := parseBool(fields["danger"])
	if err != nil {
		return core.Classification{}, &ParseError{Raw: raw, Err: fmt.Errorf("danger: %w", err)}
	}
	out.Danger = danger

	// Sentiment that is not an integer falls back to negative instead of failing.
	if v, ok := fields["sentiment"]; ok && v != nil {
		if n, err := tags.ToInt(v); err == nil && n == int(core.SentimentPositive) {
			out.Sentiment = core.SentimentPositive
		}
	}

	values := make(map[string]int, 4)
	for _, key := range tags.Keys() {
		v, ok := fields[key]
		if !ok || v == nil {
			values[key] = 0
			continue
		}
		n, err := tags.ToInt(v)
		if err != nil {
			return core.Classification{}, &ParseError{Raw: raw, Err: fmt.Errorf("%s: %w", key, err)}
		}
		values[key] = n
	}
	out.Tags = tags.New(values[tags.Question], values[tags.Concrete], values[tags.InfrastructureIssue], values[tags.Urgency])

	return out, nil
}

func parseBool(v interface{}) (bool, error) {
	switch x := v.(type) {
	case nil:
		return false, nil
	case bool:
		return x, nil
	case float64:
		return x != 0, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(x))
	default:
		return false, fmt.Errorf("unexpected type %T", v)
	}
}

// stripFences removes a Markdown code fence some models wrap JSON in.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
