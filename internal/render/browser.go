package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/straye-as/chart-api/internal/chart"
	"github.com/straye-as/chart-api/internal/config"
	"go.uber.org/zap"
)

// exportSelector is the element that is screenshotted
const exportSelector = "#chart-export"

// Browser renders the chart HTML in headless Chrome and screenshots the export element.
// Chrome is launched lazily on the first render and reused; each render gets its own
// incognito context. Every request the page makes is intercepted and replayed through
// the same guarded client the compositor uses.
type Browser struct {
	bin       string
	timeout   time.Duration
	client    *http.Client
	maxPixels int
	logger    *zap.Logger

	mu      sync.Mutex
	browser *rod.Browser
}

// NewBrowser creates a headless-Chrome renderer. An empty cfg.BrowserBin lets the
// launcher find or download a browser.
func NewBrowser(cfg *config.ExportConfig, logger *zap.Logger) *Browser {
	return &Browser{
		bin:       cfg.BrowserBin,
		timeout:   cfg.RenderTimeoutDuration(),
		client:    NewImageClient(cfg),
		maxPixels: cfg.MaxImagePixels,
		logger:    logger,
	}
}

// Render implements chart.Renderer
func (b *Browser) Render(ctx context.Context, region chart.Region) ([]byte, error) {
	start := time.Now()

	html, err := HTML(region)
	if err != nil {
		return nil, err
	}

	browser, err := b.connect()
	if err != nil {
		return nil, err
	}

	incognito, err := browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}
	defer func() { _ = incognito.Close() }()

	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	defer func() { _ = page.Close() }()

	router := page.HijackRequests()
	if err := router.Add("*", "", b.proxyRequest); err != nil {
		return nil, fmt.Errorf("intercept requests: %w", err)
	}
	go router.Run()
	defer func() { _ = router.Stop() }()

	page = page.Context(ctx)
	if b.timeout > 0 {
		page = page.Timeout(b.timeout)
		defer page.CancelTimeout()
	}

	layout := NewLayout(region.PixelRatio)
	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             layout.CSSWidth(),
		Height:            layout.CSSHeight(),
		DeviceScaleFactor: float64(layout.Ratio),
		Mobile:            false,
	}).Call(page); err != nil {
		return nil, fmt.Errorf("set viewport: %w", err)
	}

	if err := page.SetDocumentContent(string(html)); err != nil {
		return nil, fmt.Errorf("set content: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait for images: %w", err)
	}

	broken, err := page.Eval(`() => Array.from(document.images).filter(i => !i.complete || i.naturalWidth === 0).length`)
	if err != nil {
		return nil, fmt.Errorf("check images: %w", err)
	}
	if n := broken.Value.Int(); n > 0 {
		return nil, fmt.Errorf("%d cover image(s) failed to load", n)
	}

	el, err := page.Element(exportSelector)
	if err != nil {
		return nil, fmt.Errorf("element not found: %w", err)
	}

	png, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}

	b.logger.Debug("Chart rendered in browser",
		zap.Int("bytes", len(png)),
		zap.Duration("duration", time.Since(start)),
	)
	return png, nil
}

// proxyRequest fetches an intercepted request with the guarded client. Requests to
// non-public hosts, failed fetches and oversized images fail in the page, which in
// turn fails the render.
func (b *Browser) proxyRequest(h *rod.Hijack) {
	target := h.Request.URL().String()
	if err := h.LoadResponse(b.client, true); err != nil {
		b.logger.Warn("Browser request blocked",
			zap.String("url", shortSource(target)),
			zap.Error(err),
		)
		h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		return
	}

	if h.Request.Type() == proto.NetworkResourceTypeImage {
		if _, err := chart.CheckImageDimensions(h.Response.Payload().Body, b.maxPixels); err != nil &&
			!errors.Is(err, image.ErrFormat) {
			b.logger.Warn("Browser image rejected",
				zap.String("url", shortSource(target)),
				zap.Error(err),
			)
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		}
	}
}

func (b *Browser) connect() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		return b.browser, nil
	}

	l := launcher.New().Headless(true)
	if b.bin != "" {
		l = l.Bin(b.bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	b.logger.Info("Headless browser started", zap.String("control_url", controlURL))
	b.browser = browser
	return browser, nil
}

// Close shuts the browser down if it was started
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.browser = nil
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
