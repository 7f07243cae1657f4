package chart

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	// Decoders whose headers CheckImageDimensions can read
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// DefaultMaxImagePixels is used when no pixel cap is configured (40 megapixels)
const DefaultMaxImagePixels = 40_000_000

// ErrImageDimensions is returned when an image header declares more pixels than allowed
var ErrImageDimensions = errors.New("image dimensions are too large")

// UploadLimits bounds a single upload
type UploadLimits struct {
	// MaxBytes caps the encoded file size
	MaxBytes int64
	// MaxPixels caps the declared width*height; zero means DefaultMaxImagePixels
	MaxPixels int
}

// CheckImageDimensions reads only the image header and rejects images whose
// declared width*height exceeds maxPixels. Formats without a registered decoder
// return an error wrapping image.ErrFormat.
func CheckImageDimensions(data []byte, maxPixels int) (image.Config, error) {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxImagePixels
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return cfg, err
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return cfg, fmt.Errorf("%w: %s is %dx%d, limit is %d pixels",
			ErrImageDimensions, format, cfg.Width, cfg.Height, maxPixels)
	}
	return cfg, nil
}
