package render

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/straye-as/chart-api/internal/chart"
	"github.com/straye-as/chart-api/internal/domain"
)

//go:embed templates/chart.html
var chartHTML string

var chartTemplate = template.Must(template.New("chart").Parse(chartHTML))

type templateCell struct {
	Label string
	Image template.URL
}

type templateData struct {
	Title       string
	Cells       []templateCell
	Width       int
	Height      int
	Padding     int
	Gap         int
	TitleHeight int
	Columns     int
	CellWidth   int
	CoverHeight int
	LabelHeight int
}

// HTML renders the region as a standalone page whose #chart-export element is the
// exported area, sized in CSS pixels
func HTML(region chart.Region) ([]byte, error) {
	layout := NewLayout(region.PixelRatio)

	data := templateData{
		Title:       region.Title,
		Cells:       make([]templateCell, 0, len(region.Cells)),
		Width:       layout.CSSWidth(),
		Height:      layout.CSSHeight(),
		Padding:     padding,
		Gap:         gap,
		TitleHeight: titleHeight,
		Columns:     domain.GridColumns,
		CellWidth:   cellWidth,
		CoverHeight: coverHeight,
		LabelHeight: labelHeight,
	}
	for _, c := range region.Cells {
		data.Cells = append(data.Cells, templateCell{Label: c.Label, Image: safeImageURL(c.ImageURL)})
	}

	var buf bytes.Buffer
	if err := chartTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("executing chart template: %w", err)
	}
	return buf.Bytes(), nil
}

// safeImageURL lets http(s) and image data URLs through the template's URL filter.
// Anything else renders as an empty cover.
func safeImageURL(src string) template.URL {
	lower := strings.ToLower(src)
	switch {
	case strings.HasPrefix(lower, "https://"), strings.HasPrefix(lower, "http://"):
		return template.URL(src)
	case strings.HasPrefix(lower, "data:image/"):
		return template.URL(src)
	}
	return ""
}
