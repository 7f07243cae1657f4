package chart_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"strings"
	"testing"

	"github.com/straye-as/chart-api/internal/chart"
	"github.com/straye-as/chart-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var limits = chart.UploadLimits{MaxBytes: 1 << 20, MaxPixels: chart.DefaultMaxImagePixels}

// 1x1 transparent PNG
var pngBytes, _ = base64.StdEncoding.DecodeString(
	"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg==")

func strPtr(s string) *string { return &s }

func TestNewEditor_Defaults(t *testing.T) {
	e := chart.NewEditor()
	snap := e.Snapshot()

	assert.Equal(t, domain.DefaultTitle, snap.Title)
	require.Len(t, snap.Cells, 18)
	for i, c := range snap.Cells {
		assert.Equal(t, domain.DefaultLabels[i], c.Label)
		assert.False(t, c.HasImage())
	}
	assert.Nil(t, snap.Selected)
}

func TestEditor_PatchOnlyTouchesSelectedCell(t *testing.T) {
	e := chart.NewEditor()
	before := e.Snapshot()

	require.NoError(t, e.Select(3))
	require.NoError(t, e.PatchSelected(chart.CellPatch{Label: strPtr("X")}))

	after := e.Snapshot()
	assert.Equal(t, "X", after.Cells[3].Label)
	for i := range after.Cells {
		if i == 3 {
			continue
		}
		assert.Equal(t, before.Cells[i], after.Cells[i], "cell %d changed", i)
	}
}

func TestEditor_PatchKeepsNilFields(t *testing.T) {
	e := chart.NewEditor()
	require.NoError(t, e.Select(0))
	require.NoError(t, e.PatchSelected(chart.CellPatch{ImageURL: strPtr("http://x/y.jpg")}))

	c, err := e.Cell(0)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultLabels[0], c.Label)
	assert.Equal(t, "http://x/y.jpg", c.ImageURL)

	require.NoError(t, e.ClearSelectedImage())
	c, _ = e.Cell(0)
	assert.False(t, c.HasImage())
}

func TestEditor_SelectBounds(t *testing.T) {
	e := chart.NewEditor()

	assert.ErrorIs(t, e.Select(-1), chart.ErrIndexOutOfRange)
	assert.ErrorIs(t, e.Select(18), chart.ErrIndexOutOfRange)
	require.NoError(t, e.Select(17))

	i, ok := e.Selected()
	assert.True(t, ok)
	assert.Equal(t, 17, i)

	e.Deselect()
	_, ok = e.Selected()
	assert.False(t, ok)
}

func TestEditor_PatchWithoutSelection(t *testing.T) {
	e := chart.NewEditor()
	assert.ErrorIs(t, e.PatchSelected(chart.CellPatch{Label: strPtr("X")}), chart.ErrNoSelection)
	assert.ErrorIs(t, e.ClearSelectedImage(), chart.ErrNoSelection)
}

func TestEditor_SnapshotIsACopy(t *testing.T) {
	e := chart.NewEditor()
	require.NoError(t, e.Select(1))
	snap := e.Snapshot()

	snap.Cells[1].Label = "mutated"
	*snap.Selected = 5

	c, _ := e.Cell(1)
	assert.Equal(t, domain.DefaultLabels[1], c.Label)
	i, _ := e.Selected()
	assert.Equal(t, 1, i)
}

func TestEditor_UploadRejectsNonImage(t *testing.T) {
	e := chart.NewEditor()
	require.NoError(t, e.Select(2))

	err := e.UploadSelected(context.Background(), "text/plain", strings.NewReader("hello"), limits)
	assert.ErrorIs(t, err, chart.ErrNotAnImage)

	c, _ := e.Cell(2)
	assert.False(t, c.HasImage())
}

func TestEditor_UploadEncodesDataURL(t *testing.T) {
	e := chart.NewEditor()
	require.NoError(t, e.Select(4))

	require.NoError(t, e.UploadSelected(context.Background(), "image/png", bytes.NewReader(pngBytes), limits))

	c, _ := e.Cell(4)
	assert.Equal(t, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(pngBytes), c.ImageURL)
}

func TestEditor_UploadSniffsGenericType(t *testing.T) {
	e := chart.NewEditor()
	require.NoError(t, e.Select(0))

	require.NoError(t, e.UploadSelected(context.Background(), "application/octet-stream", bytes.NewReader(pngBytes), limits))
	c, _ := e.Cell(0)
	assert.True(t, strings.HasPrefix(c.ImageURL, "data:image/png;base64,"))

	require.NoError(t, e.Select(1))
	err := e.UploadSelected(context.Background(), "", strings.NewReader("plain text, not an image"), limits)
	assert.ErrorIs(t, err, chart.ErrNotAnImage)
	c, _ = e.Cell(1)
	assert.False(t, c.HasImage())
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestEditor_UploadReadFailure(t *testing.T) {
	e := chart.NewEditor()
	require.NoError(t, e.Select(0))

	err := e.UploadSelected(context.Background(), "image/png", failingReader{}, limits)
	assert.ErrorIs(t, err, chart.ErrUploadRead)
	c, _ := e.Cell(0)
	assert.False(t, c.HasImage())
}

func TestEditor_UploadTooLarge(t *testing.T) {
	e := chart.NewEditor()
	require.NoError(t, e.Select(0))

	err := e.UploadSelected(context.Background(), "image/png", bytes.NewReader(pngBytes), chart.UploadLimits{MaxBytes: int64(len(pngBytes) - 1)})
	assert.ErrorIs(t, err, chart.ErrUploadTooLarge)
}

func TestEditor_UploadWithoutSelection(t *testing.T) {
	e := chart.NewEditor()
	err := e.UploadSelected(context.Background(), "image/png", bytes.NewReader(pngBytes), limits)
	assert.ErrorIs(t, err, chart.ErrNoSelection)
}

func TestEditor_UploadTargetsCellSelectedAtStart(t *testing.T) {
	e := chart.NewEditor()
	require.NoError(t, e.Select(6))

	target, err := e.BeginUpload()
	require.NoError(t, err)

	// selection moves while the file is being read
	require.NoError(t, e.Select(9))

	u, err := chart.ReadUpload(context.Background(), target, "image/png", bytes.NewReader(pngBytes), limits)
	require.NoError(t, err)
	require.NoError(t, e.ApplyUpload(u))

	c6, _ := e.Cell(6)
	c9, _ := e.Cell(9)
	assert.True(t, c6.HasImage())
	assert.False(t, c9.HasImage())
}

// oversizedPNG is a signature plus an IHDR chunk declaring width x height.
// The decoder never gets past the header, so no pixel data is needed.
func oversizedPNG(width, height uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")

	chunk := make([]byte, 4+13)
	copy(chunk, "IHDR")
	binary.BigEndian.PutUint32(chunk[4:], width)
	binary.BigEndian.PutUint32(chunk[8:], height)
	chunk[12] = 8 // bit depth
	chunk[13] = 0 // grayscale

	_ = binary.Write(&buf, binary.BigEndian, uint32(13))
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestCheckImageDimensions(t *testing.T) {
	cfg, err := chart.CheckImageDimensions(pngBytes, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Width)

	bomb := oversizedPNG(16000, 16000)
	require.Len(t, bomb, 33)
	_, err = chart.CheckImageDimensions(bomb, chart.DefaultMaxImagePixels)
	assert.ErrorIs(t, err, chart.ErrImageDimensions)

	_, err = chart.CheckImageDimensions(oversizedPNG(4000, 3000), chart.DefaultMaxImagePixels)
	assert.NoError(t, err)

	_, err = chart.CheckImageDimensions([]byte("<svg xmlns=\"http://www.w3.org/2000/svg\"/>"), 0)
	assert.ErrorIs(t, err, image.ErrFormat)
}

func TestEditor_UploadRejectsOversizedDimensions(t *testing.T) {
	e := chart.NewEditor()
	require.NoError(t, e.Select(3))

	bomb := oversizedPNG(16000, 16000)
	for _, contentType := range []string{"image/png", ""} {
		err := e.UploadSelected(context.Background(), contentType, bytes.NewReader(bomb), limits)
		require.Error(t, err, contentType)
		assert.ErrorIs(t, err, chart.ErrNotAnImage)
		assert.ErrorIs(t, err, chart.ErrImageDimensions)
	}

	c, _ := e.Cell(3)
	assert.False(t, c.HasImage())
}

func TestEditor_UploadRejectsCorruptHeader(t *testing.T) {
	e := chart.NewEditor()
	require.NoError(t, e.Select(3))

	corrupt := oversizedPNG(10, 10)
	corrupt[len(corrupt)-1] ^= 0xff // break the IHDR checksum

	err := e.UploadSelected(context.Background(), "image/png", bytes.NewReader(corrupt), limits)
	assert.ErrorIs(t, err, chart.ErrNotAnImage)
}

func TestEditor_UploadAllowsFormatsWithoutDecoder(t *testing.T) {
	e := chart.NewEditor()
	require.NoError(t, e.Select(3))

	svg := `<svg xmlns="http://www.w3.org/2000/svg" width="10" height="10"/>`
	require.NoError(t, e.UploadSelected(context.Background(), "image/svg+xml", strings.NewReader(svg), limits))

	c, _ := e.Cell(3)
	assert.True(t, strings.HasPrefix(c.ImageURL, "data:image/svg+xml;base64,"))
}
