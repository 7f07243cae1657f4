package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"net/http"
	"time"

	"github.com/straye-as/chart-api/internal/chart"
	"github.com/straye-as/chart-api/internal/config"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
	"golang.org/x/sync/errgroup"
	"go.uber.org/zap"
)

var (
	backgroundColor  = color.RGBA{R: 0x12, G: 0x14, B: 0x1c, A: 0xff}
	placeholderColor = color.RGBA{R: 0x2a, G: 0x2e, B: 0x3b, A: 0xff}
	labelBackground  = color.RGBA{R: 0x1c, G: 0x1f, B: 0x2a, A: 0xff}
	titleColor       = color.RGBA{R: 0xf5, G: 0xf5, B: 0xf5, A: 0xff}
	labelColor       = color.RGBA{R: 0xd0, G: 0xd4, B: 0xe0, A: 0xff}
)

// Compositor draws the chart region with image/draw. Remote covers are downloaded
// concurrently; any cover that cannot be loaded fails the whole render.
type Compositor struct {
	client      *http.Client
	concurrency int
	maxPixels   int
	fonts       *FontSet
	logger      *zap.Logger
}

// NewCompositor creates a pure-Go renderer. Titles and labels are drawn with
// cfg.FontFiles first and the embedded Go font after them.
func NewCompositor(cfg *config.ExportConfig, logger *zap.Logger) *Compositor {
	concurrency := cfg.FetchConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Compositor{
		client:      NewImageClient(cfg),
		concurrency: concurrency,
		maxPixels:   cfg.MaxImagePixels,
		fonts:       LoadFonts(cfg.FontFiles, logger),
		logger:      logger,
	}
}

// Render implements chart.Renderer
func (c *Compositor) Render(ctx context.Context, region chart.Region) ([]byte, error) {
	start := time.Now()
	layout := NewLayout(region.PixelRatio)

	covers, err := c.loadCovers(ctx, region)
	if err != nil {
		return nil, err
	}

	titleFace, err := c.fonts.NewFace(float64(titleFontSize * layout.Ratio))
	if err != nil {
		return nil, err
	}
	defer func() { _ = titleFace.Close() }()
	labelFace, err := c.fonts.NewFace(float64(labelFontSize * layout.Ratio))
	if err != nil {
		return nil, err
	}
	defer func() { _ = labelFace.Close() }()

	canvas := image.NewRGBA(layout.Bounds())
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(backgroundColor), image.Point{}, draw.Src)

	drawText(canvas, layout.Title(), region.Title, titleColor, titleFace, 4*layout.Ratio, false)

	for i, cell := range region.Cells {
		if i >= len(covers) {
			break
		}
		coverRect := layout.Cover(i)
		if covers[i] != nil {
			drawCover(canvas, coverRect, covers[i])
		} else {
			draw.Draw(canvas, coverRect, image.NewUniform(placeholderColor), image.Point{}, draw.Src)
		}

		labelRect := layout.Label(i)
		draw.Draw(canvas, labelRect, image.NewUniform(labelBackground), image.Point{}, draw.Src)
		drawText(canvas, labelRect, cell.Label, labelColor, labelFace, 4*layout.Ratio, true)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}

	c.logger.Debug("Chart composited",
		zap.Int("width", canvas.Bounds().Dx()),
		zap.Int("height", canvas.Bounds().Dy()),
		zap.Int("bytes", buf.Len()),
		zap.Duration("duration", time.Since(start)),
	)

	return buf.Bytes(), nil
}

// loadCovers returns one decoded image per cell, nil where the cell has none
func (c *Compositor) loadCovers(ctx context.Context, region chart.Region) ([]image.Image, error) {
	covers := make([]image.Image, len(region.Cells))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i, cell := range region.Cells {
		if !cell.HasImage() {
			continue
		}
		i, src := i, cell.ImageURL
		g.Go(func() error {
			img, err := loadImage(gctx, c.client, src, c.maxPixels)
			if err != nil {
				c.logger.Warn("Failed to load cover image",
					zap.Int("cell", i),
					zap.String("source", shortSource(src)),
					zap.Error(err),
				)
				return fmt.Errorf("cell %d: %w", i, err)
			}
			covers[i] = img
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return covers, nil
}

// drawCover scales img to fill dst, cropping the overflow around the center
func drawCover(dst draw.Image, rect image.Rectangle, img image.Image) {
	src := img.Bounds()
	if src.Empty() {
		return
	}

	var crop image.Rectangle
	// compare aspect ratios without floats: src.W/src.H vs rect.W/rect.H
	if src.Dx()*rect.Dy() > rect.Dx()*src.Dy() {
		w := src.Dy() * rect.Dx() / rect.Dy()
		x := src.Min.X + (src.Dx()-w)/2
		crop = image.Rect(x, src.Min.Y, x+w, src.Max.Y)
	} else {
		h := src.Dx() * rect.Dy() / rect.Dx()
		y := src.Min.Y + (src.Dy()-h)/2
		crop = image.Rect(src.Min.X, y, src.Max.X, y+h)
	}

	xdraw.CatmullRom.Scale(dst, rect, img, crop, draw.Over, nil)
}

// drawText renders text inside rect, left-aligned after inset or centered, and
// vertically centered. Text wider than rect is truncated with "...".
func drawText(dst *image.RGBA, rect image.Rectangle, text string, col color.Color, face font.Face, inset int, center bool) {
	if text == "" || rect.Empty() {
		return
	}

	text = fitText(face, text, rect.Dx()-2*inset)
	d := &font.Drawer{
		Dst:  dst.SubImage(rect).(*image.RGBA),
		Src:  image.NewUniform(col),
		Face: face,
	}
	width := d.MeasureString(text)
	if width <= 0 {
		return
	}

	m := face.Metrics()
	x := fixed.I(rect.Min.X + inset)
	if center {
		x = fixed.I(rect.Min.X) + (fixed.I(rect.Dx())-width)/2
	}
	y := fixed.I(rect.Min.Y) + (fixed.I(rect.Dy())-(m.Ascent+m.Descent))/2 + m.Ascent

	d.Dot = fixed.Point26_6{X: x, Y: y}
	d.DrawString(text)
}

func fitText(face font.Face, text string, maxWidth int) string {
	d := &font.Drawer{Face: face}
	if maxWidth <= 0 || d.MeasureString(text).Ceil() <= maxWidth {
		return text
	}
	runes := []rune(text)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := string(runes) + "..."
		if d.MeasureString(candidate).Ceil() <= maxWidth {
			return candidate
		}
	}
	return ""
}
