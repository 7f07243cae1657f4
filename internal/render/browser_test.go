package render_test

import (
	"bytes"
	"context"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/straye-as/chart-api/internal/config"
	"github.com/straye-as/chart-api/internal/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBrowser_ScreenshotsExportElement(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping headless browser test in short mode")
	}
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("no Chrome/Chromium found")
	}

	b := render.NewBrowser(&config.ExportConfig{BrowserBin: bin, RenderTimeout: 30}, zap.NewNop())
	defer func() { assert.NoError(t, b.Close()) }()

	out, err := b.Render(context.Background(), region(2))
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)

	layout := render.NewLayout(2)
	assert.InDelta(t, layout.CSSWidth()*2, img.Bounds().Dx(), 2)
	assert.InDelta(t, layout.CSSHeight()*2, img.Bounds().Dy(), 2)
}

func TestBrowser_RefusesNonPublicCover(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping headless browser test in short mode")
	}
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("no Chrome/Chromium found")
	}

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(solidPNG(t, 2, 2, color.White))
	}))
	defer srv.Close()

	b := render.NewBrowser(&config.ExportConfig{BrowserBin: bin, RenderTimeout: 30, FetchTimeout: 5}, zap.NewNop())
	defer func() { assert.NoError(t, b.Close()) }()

	r := region(1)
	r.Cells[0].ImageURL = srv.URL + "/cover.png"

	_, err := b.Render(context.Background(), r)
	assert.ErrorContains(t, err, "failed to load")
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestNew_SelectsRenderer(t *testing.T) {
	r, closeFn := render.New(&config.ExportConfig{Renderer: render.ModeCompose}, zap.NewNop())
	assert.IsType(t, &render.Compositor{}, r)
	assert.NoError(t, closeFn())

	r, closeFn = render.New(&config.ExportConfig{Renderer: render.ModeBrowser}, zap.NewNop())
	assert.IsType(t, &render.Browser{}, r)
	assert.NoError(t, closeFn())
}
