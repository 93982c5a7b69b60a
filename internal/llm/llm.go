// Package llm wraps the external language-model services used by the
// pipeline: structured classification, narrative generation and embeddings.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Schema names a JSON schema that a structured response must satisfy.
type Schema struct {
	Name        string
	Description string
	Definition  map[string]interface{}
}

// Options configures one client role.
type Options struct {
	APIKey      string
	BaseURL     string  // OpenAI-compatible endpoints only
	Model       string  // chat/generation model
	Embedding   string  // embedding model
	Temperature float64 // 0 keeps the provider default
	MaxTokens   int     // 0 keeps the provider default
	StrictJSON  bool    // send the schema as a strict json_schema response format

	// RequestsPerMinute caps calls made through one client. 0 means no cap.
	RequestsPerMinute int
}

func newLimiter(rpm int) *rate.Limiter {
	if rpm <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
}

// waitTurn blocks until the limiter admits one more request.
func waitTurn(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("request quota wait: %w", err)
	}
	return nil
}

// Fragments is a pull-based sequence of text pieces. Next returns io.EOF
// once the sequence is exhausted.
type Fragments interface {
	Next() (string, error)
}

// FragmentFunc adapts a function to Fragments.
type FragmentFunc func() (string, error)

// Next calls f.
func (f FragmentFunc) Next() (string, error) { return f() }

// Collect drains src into a single string. Streamed and one-shot responses
// look the same to callers.
func Collect(ctx context.Context, src Fragments) (string, error) {
	var b strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return b.String(), err
		}
		piece, err := src.Next()
		b.WriteString(piece)
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return b.String(), err
		}
	}
}

// Single returns Fragments that yields s once.
func Single(s string) Fragments {
	done := false
	return FragmentFunc(func() (string, error) {
		if done {
			return "", io.EOF
		}
		done = true
		return s, nil
	})
}
