package render

import (
	"bytes"
	"image/png"
	"testing"
)

func TestRenderProducesPNG(t *testing.T) {
	chart := NewPieChart()

	blob, err := chart.Render("Overall sentiment", map[string]int{"Positive": 3, "Negative": 1})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if len(blob) == 0 {
		t.Fatal("Expected a non-empty blob")
	}

	img, err := png.Decode(bytes.NewReader(blob))
	if err != nil {
		t.Fatalf("Expected a valid PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 400 || b.Dy() != 300 {
		t.Errorf("Expected 400x300 image, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestRenderEmptyCounts(t *testing.T) {
	chart := NewPieChart()

	for name, counts := range map[string]map[string]int{
		"nil":      nil,
		"zeros":    {"Positive": 0, "Negative": 0},
		"negative": {"Positive": -2},
	} {
		blob, err := chart.Render("Empty", counts)
		if err != nil {
			t.Errorf("%s: Render() error = %v", name, err)
		}
		if len(blob) != 0 {
			t.Errorf("%s: expected empty blob, got %d bytes", name, len(blob))
		}
	}
}

func TestRenderSingleSlice(t *testing.T) {
	blob, err := NewPieChart().Render("All positive", map[string]int{"Positive": 5, "Negative": 0})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(blob)); err != nil {
		t.Errorf("Expected a valid PNG: %v", err)
	}
}

func TestCollectOrdersByLabel(t *testing.T) {
	slices, total := collect(map[string]int{"b": 2, "a": 1, "c": 0})
	if total != 3 {
		t.Errorf("Expected total 3, got %d", total)
	}
	if len(slices) != 2 || slices[0].label != "a" || slices[1].label != "b" {
		t.Errorf("Unexpected slices %+v", slices)
	}
}
