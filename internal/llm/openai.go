package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"
)

// OpenAIClient talks to any OpenAI-compatible chat/embedding endpoint.
// The default base URL points at Groq.
type OpenAIClient struct {
	client  openai.Client
	opts    Options
	limiter *rate.Limiter
}

// NewOpenAIClient creates a client for one role.
func NewOpenAIClient(opts Options) (*OpenAIClient, error) {
	if opts.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if opts.Model == "" && opts.Embedding == "" {
		return nil, errors.New("openai: a chat or embedding model is required")
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	// Retries are owned by the caller's retry policy.
	reqOpts = append(reqOpts, option.WithMaxRetries(0))

	return &OpenAIClient{
		client:  openai.NewClient(reqOpts...),
		opts:    opts,
		limiter: newLimiter(opts.RequestsPerMinute),
	}, nil
}

// GenerateJSON streams a chat completion constrained to JSON output and
// returns the assembled text. The caller parses it.
func (c *OpenAIClient) GenerateJSON(ctx context.Context, prompt string, schema Schema) (string, error) {
	params := c.chatParams(prompt)
	if c.opts.StrictJSON && schema.Definition != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        schema.Name,
					Description: openai.String(schema.Description),
					Schema:      schema.Definition,
					Strict:      openai.Bool(true),
				},
			},
		}
	} else {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}
	return c.stream(ctx, params)
}

// GenerateText streams a plain chat completion and returns the assembled text.
func (c *OpenAIClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	return c.stream(ctx, c.chatParams(prompt))
}

// Embed returns one vector per input text, in input order.
func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if c.opts.Embedding == "" {
		return nil, errors.New("openai: embedding model is not configured")
	}
	if err := waitTurn(ctx, c.limiter); err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.opts.Embedding),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: embeddings request failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai: expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("openai: embedding index %d out of range", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		out[d.Index] = vec
	}
	return out, nil
}

func (c *OpenAIClient) chatParams(prompt string) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.opts.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}
	if c.opts.Temperature > 0 {
		params.Temperature = openai.Float(c.opts.Temperature)
	}
	if c.opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.opts.MaxTokens))
	}
	return params
}

func (c *OpenAIClient) stream(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	if c.opts.Model == "" {
		return "", errors.New("openai: chat model is not configured")
	}
	if err := waitTurn(ctx, c.limiter); err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	text, err := Collect(ctx, FragmentFunc(func() (string, error) {
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				return chunk.Choices[0].Delta.Content, nil
			}
		}
		if err := stream.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}))
	if err != nil {
		return "", fmt.Errorf("openai: completion stream failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}
