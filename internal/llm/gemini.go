package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// maxEmbedBatch is the largest batch BatchEmbedContents accepts.
const maxEmbedBatch = 100

// GeminiClient talks to Google Gemini for generation and embeddings.
type GeminiClient struct {
	client  *genai.Client
	opts    Options
	limiter *rate.Limiter
}

// NewGeminiClient creates a client for one role. Call Close when done.
func NewGeminiClient(ctx context.Context, opts Options) (*GeminiClient, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	if opts.Model == "" && opts.Embedding == "" {
		return nil, errors.New("gemini: a generation or embedding model is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(opts.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}
	return &GeminiClient{client: client, opts: opts, limiter: newLimiter(opts.RequestsPerMinute)}, nil
}

// Close releases the underlying connection.
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

// GenerateJSON streams a JSON-typed response constrained by schema.
func (c *GeminiClient) GenerateJSON(ctx context.Context, prompt string, schema Schema) (string, error) {
	model, err := c.model()
	if err != nil {
		return "", err
	}
	model.ResponseMIMEType = "application/json"
	if schema.Definition != nil {
		model.ResponseSchema = toGenaiSchema(schema.Definition)
	}
	return c.stream(ctx, model, prompt)
}

// GenerateText streams a plain text response.
func (c *GeminiClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	model, err := c.model()
	if err != nil {
		return "", err
	}
	return c.stream(ctx, model, prompt)
}

// Embed returns one vector per input text, in input order.
func (c *GeminiClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if c.opts.Embedding == "" {
		return nil, errors.New("gemini: embedding model is not configured")
	}

	em := c.client.EmbeddingModel(c.opts.Embedding)
	out := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += maxEmbedBatch {
		end := start + maxEmbedBatch
		if end > len(texts) {
			end = len(texts)
		}

		batch := em.NewBatch()
		for _, t := range texts[start:end] {
			batch.AddContent(genai.Text(t))
		}

		if err := waitTurn(ctx, c.limiter); err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		res, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("gemini: batch embedding failed: %w", err)
		}
		if len(res.Embeddings) != end-start {
			return nil, fmt.Errorf("gemini: expected %d embeddings, got %d", end-start, len(res.Embeddings))
		}
		for _, e := range res.Embeddings {
			out = append(out, e.Values)
		}
	}

	return out, nil
}

func (c *GeminiClient) model() (*genai.GenerativeModel, error) {
	if c.opts.Model == "" {
		return nil, errors.New("gemini: generation model is not configured")
	}
	model := c.client.GenerativeModel(c.opts.Model)
	if c.opts.Temperature > 0 {
		model.SetTemperature(float32(c.opts.Temperature))
	}
	if c.opts.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(c.opts.MaxTokens))
	}
	return model, nil
}

func (c *GeminiClient) stream(ctx context.Context, model *genai.GenerativeModel, prompt string) (string, error) {
	if err := waitTurn(ctx, c.limiter); err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	iter := model.GenerateContentStream(ctx, genai.Text(prompt))

	text, err := Collect(ctx, FragmentFunc(func() (string, error) {
		resp, err := iter.Next()
		if err == iterator.Done {
			return "", io.EOF
		}
		if err != nil {
			return "", err
		}
		return responseText(resp), nil
	}))
	if err != nil {
		return "", fmt.Errorf("gemini: content stream failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

// toGenaiSchema converts a JSON schema map into Gemini's schema type.
// Only the subset produced by GenerateSchema is handled.
func toGenaiSchema(def map[string]interface{}) *genai.Schema {
	s := &genai.Schema{}

	switch def[typeKey] {
	case "object":
		s.Type = genai.TypeObject
	case "array":
		s.Type = genai.TypeArray
	case "integer":
		s.Type = genai.TypeInteger
	case "number":
		s.Type = genai.TypeNumber
	case "boolean":
		s.Type = genai.TypeBoolean
	default:
		s.Type = genai.TypeString
	}

	if desc, ok := def["description"].(string); ok {
		s.Description = desc
	}
	if enum, ok := def["enum"].([]interface{}); ok && s.Type == genai.TypeString {
		for _, e := range enum {
			if v, ok := e.(string); ok {
				s.Enum = append(s.Enum, v)
			}
		}
	}
	if props, ok := def[propertiesKey].(map[string]interface{}); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, p := range props {
			if pm, ok := p.(map[string]interface{}); ok {
				s.Properties[name] = toGenaiSchema(pm)
			}
		}
	}
	if req, ok := def[requiredKey].([]interface{}); ok {
		for _, r := range req {
			if v, ok := r.(string); ok {
				s.Required = append(s.Required, v)
			}
		}
	}
	if items, ok := def[itemsKey].(map[string]interface{}); ok {
		s.Items = toGenaiSchema(items)
	}

	return s
}
