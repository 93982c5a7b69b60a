// Package render turns label counts into PNG pie charts.
package render

import (
	"bytes"
	"fmt"
	"math"
	"sort"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
)

var defaultPalette = []string{
	"#4e79a7", "#e15759", "#f28e2b", "#76b7b2", "#59a14f",
	"#edc948", "#b07aa1", "#ff9da7", "#9c755f", "#bab0ac",
}

// PieChart renders counts as a titled pie chart with a legend.
type PieChart struct {
	Width   int
	Height  int
	Palette []string
}

// NewPieChart returns a 400x300 renderer.
func NewPieChart() *PieChart {
	return &PieChart{Width: 400, Height: 300, Palette: defaultPalette}
}

type slice struct {
	label string
	count int
}

// Render draws one slice per label with a positive count, in label order.
// Counts that sum to zero produce an empty blob and no error.
func (p *PieChart) Render(title string, counts map[string]int) ([]byte, error) {
	slices, total := collect(counts)
	if total == 0 {
		return nil, nil
	}

	w, h := float64(p.Width), float64(p.Height)
	dc := gg.NewContext(p.Width, p.Height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	dc.SetFontFace(basicfont.Face7x13)
	dc.SetRGB(0.1, 0.1, 0.1)
	dc.DrawStringAnchored(title, w/2, 16, 0.5, 0.5)

	cx, cy := w*0.35, h/2+10
	radius := math.Min(w*0.3, h/2-30)
	angle := -math.Pi / 2

	for i, s := range slices {
		sweep := 2 * math.Pi * float64(s.count) / float64(total)
		dc.SetHexColor(p.color(i))
		dc.MoveTo(cx, cy)
		dc.DrawArc(cx, cy, radius, angle, angle+sweep)
		dc.ClosePath()
		dc.Fill()
		angle += sweep

		// Legend
		ly := 50 + float64(i)*20
		dc.DrawRectangle(w*0.7, ly-6, 12, 12)
		dc.Fill()
		dc.SetRGB(0.1, 0.1, 0.1)
		pct := 100 * float64(s.count) / float64(total)
		dc.DrawStringAnchored(fmt.Sprintf("%s %.1f%%", s.label, pct), w*0.7+18, ly, 0, 0.5)
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode chart: %w", err)
	}
	return buf.Bytes(), nil
}

func (p *PieChart) color(i int) string {
	palette := p.Palette
	if len(palette) == 0 {
		palette = defaultPalette
	}
	return palette[i%len(palette)]
}

func collect(counts map[string]int) ([]slice, int) {
	var slices []slice
	total := 0
	for label, n := range counts {
		if n <= 0 {
			continue
		}
		slices = append(slices, slice{label: label, count: n})
		total += n
	}
	sort.Slice(slices, func(i, j int) bool { return slices[i].label < slices[j].label })
	return slices, total
}
