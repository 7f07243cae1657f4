package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/straye-as/chart-api/internal/chart"

	// decoders for cover images
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// maxImageBytes caps a single downloaded or embedded cover
const maxImageBytes = 20 << 20

// ErrImageTooLarge is returned for a cover exceeding maxImageBytes
var ErrImageTooLarge = errors.New("cover image is too large")

// ImageFetchError is returned when a remote cover cannot be loaded
type ImageFetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *ImageFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *ImageFetchError) Unwrap() error {
	return e.Err
}

// loadImage decodes a cell image from a data: URL or an http(s) URL.
// The header is checked against maxPixels before any pixel data is decoded.
func loadImage(ctx context.Context, client *http.Client, src string, maxPixels int) (image.Image, error) {
	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(src, "data:") {
		data, err = decodeDataURL(src)
	} else {
		data, err = fetch(ctx, client, src)
	}
	if err != nil {
		return nil, err
	}

	if _, err := chart.CheckImageDimensions(data, maxPixels); err != nil {
		return nil, fmt.Errorf("decode %s: %w", shortSource(src), err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", shortSource(src), err)
	}
	return img, nil
}

func fetch(ctx context.Context, client *http.Client, src string) ([]byte, error) {
	u, err := url.Parse(src)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, &ImageFetchError{URL: src, Err: fmt.Errorf("unsupported image URL")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, &ImageFetchError{URL: src, Err: err}
	}
	req.Header.Set("Accept", "image/*")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &ImageFetchError{URL: src, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ImageFetchError{URL: src, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, &ImageFetchError{URL: src, Err: err}
	}
	if len(data) > maxImageBytes {
		return nil, ErrImageTooLarge
	}
	return data, nil
}

// decodeDataURL extracts the payload of a data: URL, base64 or percent-encoded
func decodeDataURL(src string) ([]byte, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(src, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("malformed data URL")
	}

	if strings.HasSuffix(strings.ToLower(header), ";base64") {
		if base64.StdEncoding.DecodedLen(len(payload)) > maxImageBytes {
			return nil, ErrImageTooLarge
		}
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("data URL: %w", err)
		}
		return data, nil
	}

	s, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("data URL: %w", err)
	}
	return []byte(s), nil
}

func shortSource(src string) string {
	if strings.HasPrefix(src, "data:") {
		if i := strings.IndexByte(src, ','); i > 0 {
			return src[:i]
		}
		return "data URL"
	}
	return src
}
