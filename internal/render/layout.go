// Package render rasterizes the exported chart region (title plus grid) to PNG.
// Two renderers exist: Compositor draws the region in pure Go, Browser screenshots the
// chart HTML in headless Chrome. Both use the same layout.
package render

import (
	"image"

	"github.com/straye-as/chart-api/internal/domain"
)

// Layout sizes at a pixel ratio of 1
const (
	padding     = 24
	gap         = 8
	titleHeight = 40
	cellWidth   = 150
	coverHeight = 210
	labelHeight = 24
	cellHeight  = coverHeight + labelHeight
)

// Layout is the geometry of the exported region at a given pixel ratio
type Layout struct {
	Ratio int
}

// NewLayout returns the layout for ratio, treating values below 1 as 1
func NewLayout(ratio int) Layout {
	if ratio < 1 {
		ratio = 1
	}
	return Layout{Ratio: ratio}
}

// CSSWidth is the region width in CSS pixels
func (l Layout) CSSWidth() int {
	return 2*padding + domain.GridColumns*cellWidth + (domain.GridColumns-1)*gap
}

// CSSHeight is the region height in CSS pixels
func (l Layout) CSSHeight() int {
	return 2*padding + titleHeight + gap + domain.GridRows*cellHeight + (domain.GridRows-1)*gap
}

// Bounds is the full canvas in device pixels
func (l Layout) Bounds() image.Rectangle {
	return image.Rect(0, 0, l.CSSWidth()*l.Ratio, l.CSSHeight()*l.Ratio)
}

// Title is the title bar in device pixels
func (l Layout) Title() image.Rectangle {
	return l.scale(image.Rect(padding, padding, l.CSSWidth()-padding, padding+titleHeight))
}

// Cover is the image area of cell i in device pixels
func (l Layout) Cover(i int) image.Rectangle {
	x, y := l.cellOrigin(i)
	return l.scale(image.Rect(x, y, x+cellWidth, y+coverHeight))
}

// Label is the caption area of cell i in device pixels
func (l Layout) Label(i int) image.Rectangle {
	x, y := l.cellOrigin(i)
	return l.scale(image.Rect(x, y+coverHeight, x+cellWidth, y+cellHeight))
}

func (l Layout) cellOrigin(i int) (int, int) {
	row, col := i/domain.GridColumns, i%domain.GridColumns
	x := padding + col*(cellWidth+gap)
	y := padding + titleHeight + gap + row*(cellHeight+gap)
	return x, y
}

func (l Layout) scale(r image.Rectangle) image.Rectangle {
	return image.Rect(r.Min.X*l.Ratio, r.Min.Y*l.Ratio, r.Max.X*l.Ratio, r.Max.Y*l.Ratio)
}
