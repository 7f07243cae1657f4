// Package chart holds the editable state of one chart: the cell grid, the selected cell,
// the search modal, and export bookkeeping. Types here are not safe for concurrent use;
// the service layer serializes access per session.
package chart

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/straye-as/chart-api/internal/domain"
)

var (
	// ErrIndexOutOfRange is returned for a cell or result index outside its collection
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrNoSelection is returned when an operation needs a selected cell and none is set
	ErrNoSelection = errors.New("no cell selected")

	// ErrNotAnImage is returned when an uploaded file is not an image
	ErrNotAnImage = errors.New("please choose an image file")

	// ErrUploadRead is returned when an uploaded file could not be read
	ErrUploadRead = errors.New("could not read the image file")

	// ErrUploadTooLarge is returned when an uploaded file exceeds the configured cap
	ErrUploadTooLarge = errors.New("image file is too large")
)

// CellPatch updates a cell; nil fields are left alone
type CellPatch struct {
	Label    *string
	ImageURL *string
}

// Editor is the grid of cells plus the selected-cell pointer
type Editor struct {
	title    string
	cells    [domain.GridSize]domain.Cell
	selected *int
}

// Snapshot is an immutable copy of the editor state
type Snapshot struct {
	Title    string
	Cells    []domain.Cell
	Selected *int
}

// NewEditor returns a chart with the default title and labels and no images
func NewEditor() *Editor {
	e := &Editor{title: domain.DefaultTitle}
	for i, label := range domain.DefaultLabels {
		e.cells[i] = domain.Cell{Label: label}
	}
	return e
}

// Title returns the chart title
func (e *Editor) Title() string {
	return e.title
}

// SetTitle replaces the chart title
func (e *Editor) SetTitle(title string) {
	e.title = title
}

// Cell returns a copy of the cell at i
func (e *Editor) Cell(i int) (domain.Cell, error) {
	if !validIndex(i) {
		return domain.Cell{}, fmt.Errorf("cell %d: %w", i, ErrIndexOutOfRange)
	}
	return e.cells[i], nil
}

// Selected returns the selected index, if any
func (e *Editor) Selected() (int, bool) {
	if e.selected == nil {
		return 0, false
	}
	return *e.selected, true
}

// Select points the editor at cell i
func (e *Editor) Select(i int) error {
	if !validIndex(i) {
		return fmt.Errorf("cell %d: %w", i, ErrIndexOutOfRange)
	}
	e.selected = &i
	return nil
}

// Deselect clears the selection
func (e *Editor) Deselect() {
	e.selected = nil
}

// PatchSelected applies the non-nil fields of p to the selected cell only
func (e *Editor) PatchSelected(p CellPatch) error {
	i, ok := e.Selected()
	if !ok {
		return ErrNoSelection
	}
	return e.patch(i, p)
}

// ClearSelectedImage removes the selected cell's image
func (e *Editor) ClearSelectedImage() error {
	empty := ""
	return e.PatchSelected(CellPatch{ImageURL: &empty})
}

func (e *Editor) patch(i int, p CellPatch) error {
	if !validIndex(i) {
		return fmt.Errorf("cell %d: %w", i, ErrIndexOutOfRange)
	}
	if p.Label != nil {
		e.cells[i].Label = *p.Label
	}
	if p.ImageURL != nil {
		e.cells[i].ImageURL = *p.ImageURL
	}
	return nil
}

// Upload is a pending image assignment: the target cell is fixed when it is created,
// and Apply writes the data URL to that cell regardless of later selection changes.
type Upload struct {
	target  int
	dataURL string
}

// Target is the cell index the upload will be written to
func (u *Upload) Target() int {
	return u.target
}

// DataURL is the encoded image
func (u *Upload) DataURL() string {
	return u.dataURL
}

// BeginUpload captures the currently selected cell as the upload target
func (e *Editor) BeginUpload() (int, error) {
	i, ok := e.Selected()
	if !ok {
		return 0, ErrNoSelection
	}
	return i, nil
}

// ApplyUpload writes a finished upload to its captured target
func (e *Editor) ApplyUpload(u *Upload) error {
	url := u.dataURL
	return e.patch(u.target, CellPatch{ImageURL: &url})
}

// UploadSelected reads an image into the cell selected when the call starts.
// On any error the cell is left unchanged.
func (e *Editor) UploadSelected(ctx context.Context, contentType string, r io.Reader, limits UploadLimits) error {
	target, err := e.BeginUpload()
	if err != nil {
		return err
	}
	u, err := ReadUpload(ctx, target, contentType, r, limits)
	if err != nil {
		return err
	}
	return e.ApplyUpload(u)
}

// ReadUpload validates and encodes an uploaded image for cell target.
// The declared content type must be image/*; an empty or generic declared type is sniffed.
// Reads are bounded by limits.MaxBytes, and decodable images whose header declares more
// than limits.MaxPixels are refused before any pixel data is allocated. It does not touch
// editor state, so callers can run it without holding the session lock.
func ReadUpload(ctx context.Context, target int, contentType string, r io.Reader, limits UploadLimits) (*Upload, error) {
	if !validIndex(target) {
		return nil, fmt.Errorf("cell %d: %w", target, ErrIndexOutOfRange)
	}

	declared := normalizeMIME(contentType)
	if declared != "" && declared != "application/octet-stream" && !isImageMIME(declared) {
		return nil, fmt.Errorf("%w: got %s", ErrNotAnImage, declared)
	}

	data, err := io.ReadAll(io.LimitReader(&ctxReader{ctx: ctx, r: r}, limits.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUploadRead, err)
	}
	if int64(len(data)) > limits.MaxBytes {
		return nil, ErrUploadTooLarge
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrUploadRead)
	}

	mediaType := declared
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = normalizeMIME(mimetype.Detect(data).String())
		if !isImageMIME(mediaType) {
			return nil, fmt.Errorf("%w: got %s", ErrNotAnImage, mediaType)
		}
	}

	// svg and other formats without a Go decoder pass through
	if _, err := CheckImageDimensions(data, limits.MaxPixels); err != nil && !errors.Is(err, image.ErrFormat) {
		return nil, fmt.Errorf("%w: %w", ErrNotAnImage, err)
	}

	return &Upload{
		target:  target,
		dataURL: "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data),
	}, nil
}

// Snapshot returns a deep copy of the editor state
func (e *Editor) Snapshot() Snapshot {
	cells := make([]domain.Cell, len(e.cells))
	copy(cells, e.cells[:])

	var selected *int
	if e.selected != nil {
		i := *e.selected
		selected = &i
	}

	return Snapshot{
		Title:    e.title,
		Cells:    cells,
		Selected: selected,
	}
}

func validIndex(i int) bool {
	return i >= 0 && i < domain.GridSize
}

func normalizeMIME(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType
}

func isImageMIME(mediaType string) bool {
	return strings.HasPrefix(mediaType, "image/")
}

// ctxReader stops reading once ctx is done
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
