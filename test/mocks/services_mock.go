package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rcliao/commentlens/internal/llm"
)

// MockClassifierService provides a mock implementation of the classification service
type MockClassifierService struct {
	GenerateJSONFunc func(ctx context.Context, prompt string, schema llm.Schema) (string, error)

	mu    sync.Mutex
	calls int
}

func (m *MockClassifierService) GenerateJSON(ctx context.Context, prompt string, schema llm.Schema) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.GenerateJSONFunc != nil {
		return m.GenerateJSONFunc(ctx, prompt, schema)
	}
	return ClassificationJSON("other", false, 1, 0, 0, 0, 0), nil
}

// Calls returns how many times GenerateJSON was called.
func (m *MockClassifierService) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// ClassificationJSON renders a classifier response.
func ClassificationJSON(category string, danger bool, sentiment, question, concrete, infrastructure, urgency int) string {
	b, _ := json.Marshal(map[string]interface{}{
		"category":             category,
		"danger":               danger,
		"sentiment":            sentiment,
		"question":             question,
		"concrete":             concrete,
		"infrastructure-issue": infrastructure,
		"urgency":              urgency,
	})
	return string(b)
}

// MockEmbedder provides a mock implementation of the embedding function
type MockEmbedder struct {
	EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)
}

// Embed returns a two-dimensional vector per text by default: its length
// and 1.
func (m *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

// MockClusterer provides a mock implementation of the clustering function
type MockClusterer struct {
	ClusterFunc func(vectors [][]float32, minClusterSize int) ([]int, error)
}

// Cluster puts every vector in cluster 0 by default.
func (m *MockClusterer) Cluster(vectors [][]float32, minClusterSize int) ([]int, error) {
	if m.ClusterFunc != nil {
		return m.ClusterFunc(vectors, minClusterSize)
	}
	return make([]int, len(vectors)), nil
}

// MockNarrativeClient provides a mock implementation of the text generation service
type MockNarrativeClient struct {
	GenerateTextFunc func(ctx context.Context, prompt string) (string, error)
}

func (m *MockNarrativeClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	if m.GenerateTextFunc != nil {
		return m.GenerateTextFunc(ctx, prompt)
	}
	return "Mock narrative", nil
}

// MockChartRenderer provides a mock implementation of the chart renderer
type MockChartRenderer struct {
	RenderFunc func(title string, counts map[string]int) ([]byte, error)
}

func (m *MockChartRenderer) Render(title string, counts map[string]int) ([]byte, error) {
	if m.RenderFunc != nil {
		return m.RenderFunc(title, counts)
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return nil, nil
	}
	return []byte("mock-png:" + title), nil
}
