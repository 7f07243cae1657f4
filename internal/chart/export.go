package chart

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/straye-as/chart-api/internal/domain"
)

// DefaultPixelRatio is the device pixel density exports are rendered at
const DefaultPixelRatio = 2

// ExportFailedMessage is shown to the user when rendering fails
const ExportFailedMessage = "Export failed. Some cover images may block cross-origin access (CORS); try uploading them instead."

// defaultFilename is used when the title has no usable characters
const defaultFilename = "chart"

// ErrExportInProgress is returned when an export is requested while one is running
var ErrExportInProgress = errors.New("an export is already in progress")

// Region is the part of the chart that is rasterized: the title and the grid
type Region struct {
	Title      string
	Cells      []domain.Cell
	PixelRatio int
}

// Renderer rasterizes a region to PNG bytes
type Renderer interface {
	Render(ctx context.Context, region Region) ([]byte, error)
}

// RendererFunc adapts a function to the Renderer interface
type RendererFunc func(ctx context.Context, region Region) ([]byte, error)

func (f RendererFunc) Render(ctx context.Context, region Region) ([]byte, error) {
	return f(ctx, region)
}

// ExportError wraps a rendering failure with the message shown to the user
type ExportError struct {
	Err error
}

func (e *ExportError) Error() string {
	return ExportFailedMessage
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// Export is a finished PNG download
type Export struct {
	Filename string
	PNG      []byte
}

// Exporter guards a renderer so only one export per chart runs at a time
type Exporter struct {
	renderer   Renderer
	pixelRatio int
	inProgress atomic.Bool
}

// NewExporter creates an exporter backed by renderer. A pixelRatio below 1 means DefaultPixelRatio.
func NewExporter(renderer Renderer, pixelRatio int) *Exporter {
	if pixelRatio < 1 {
		pixelRatio = DefaultPixelRatio
	}
	return &Exporter{renderer: renderer, pixelRatio: pixelRatio}
}

// InProgress reports whether an export is running
func (x *Exporter) InProgress() bool {
	return x.inProgress.Load()
}

// Export renders the snapshot's title and grid. A second call while one is running
// fails with ErrExportInProgress; a rendering failure returns an *ExportError.
func (x *Exporter) Export(ctx context.Context, snap Snapshot) (*Export, error) {
	if !x.inProgress.CompareAndSwap(false, true) {
		return nil, ErrExportInProgress
	}
	defer x.inProgress.Store(false)

	png, err := x.renderer.Render(ctx, RegionFromSnapshot(snap, x.pixelRatio))
	if err != nil {
		return nil, &ExportError{Err: err}
	}

	return &Export{
		Filename: SanitizeFilename(snap.Title),
		PNG:      png,
	}, nil
}

// RegionFromSnapshot selects the exported part of a snapshot
func RegionFromSnapshot(snap Snapshot, pixelRatio int) Region {
	cells := make([]domain.Cell, len(snap.Cells))
	copy(cells, snap.Cells)
	return Region{
		Title:      snap.Title,
		Cells:      cells,
		PixelRatio: pixelRatio,
	}
}

// SanitizeFilename turns a chart title into a download filename: filesystem-unsafe
// and control characters are removed, and ".png" is appended
func SanitizeFilename(title string) string {
	name := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || strings.ContainsRune(`\/:*?"<>|`, r) {
			return -1
		}
		return r
	}, title)

	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultFilename
	}
	return name + ".png"
}
