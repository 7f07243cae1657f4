package router_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/straye-as/chart-api/internal/chart"
	"github.com/straye-as/chart-api/internal/config"
	"github.com/straye-as/chart-api/internal/domain"
	"github.com/straye-as/chart-api/internal/http/handler"
	"github.com/straye-as/chart-api/internal/http/middleware"
	"github.com/straye-as/chart-api/internal/http/router"
	"github.com/straye-as/chart-api/internal/repository"
	"github.com/straye-as/chart-api/internal/search"
	"github.com/straye-as/chart-api/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T, searchPerMinute int) http.Handler {
	t.Helper()

	cfg := &config.Config{
		App:      config.AppConfig{Name: "chart-api", Environment: "development", Port: 8080},
		Sessions: config.SessionsConfig{IdleTTL: 3600, Max: 5, MaxPerClient: 2, MaxUploadSizeMB: 1},
		Export:   config.ExportConfig{Renderer: "compose", PixelRatio: 2},
		Security: config.SecurityConfig{ContentTypeNosniff: true, FrameOptions: "DENY"},
		CORS:     config.CORSConfig{AllowedMethods: []string{"GET", "POST"}},
		RateLimit: config.RateLimitConfig{
			Enabled:                 true,
			RequestsPerMinute:       100,
			SearchRequestsPerMinute: searchPerMinute,
			WhitelistPaths:          []string{"/health"},
		},
	}

	logger := zap.NewNop()
	searchers := chart.Searchers{
		domain.SearchDomainAnime: search.SearcherFunc(func(ctx context.Context, q string) ([]domain.SearchResult, error) {
			return []domain.SearchResult{{ID: "1", Title: q, ImageURL: "https://img.example/1.jpg"}}, nil
		}),
	}
	renderer := chart.RendererFunc(func(ctx context.Context, r chart.Region) ([]byte, error) {
		return []byte("png"), nil
	})

	chartService := service.NewChartService(repository.NewSessionRepository(cfg.Sessions.Max, cfg.Sessions.MaxPerClient), searchers, renderer,
		&cfg.Sessions, &cfg.Export, logger)
	searchService := service.NewSearchService(searchers, logger)

	rt := router.NewRouter(cfg, logger,
		middleware.NewRateLimiter(&cfg.RateLimit, logger),
		chartService,
		searchService,
		handler.NewChartHandler(chartService, cfg.Sessions.MaxUploadBytes(), logger),
		handler.NewSearchHandler(searchService, logger),
	)
	return rt.Setup()
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	return serveFrom(h, "192.0.2.10:4000", method, path)
}

func serveFrom(h http.Handler, remoteAddr, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func readySessions(t *testing.T, h http.Handler) int {
	t.Helper()
	w := serve(h, http.MethodGet, "/health/ready")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Sessions int `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Sessions
}

func TestRouter_Health(t *testing.T) {
	h := newTestRouter(t, 10)

	w := serve(h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	require.Equal(t, http.StatusCreated, serve(h, http.MethodPost, "/api/charts").Code)

	w = serve(h, http.MethodGet, "/health/ready")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Sessions       int      `json:"sessions"`
		MaxSessions    int      `json:"maxSessions"`
		SearchBackends []string `json:"searchBackends"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Sessions)
	assert.Equal(t, 5, body.MaxSessions)
	assert.Equal(t, []string{"anime"}, body.SearchBackends)
}

func TestRouter_ChartRoutes(t *testing.T) {
	h := newTestRouter(t, 10)

	w := serve(h, http.MethodPost, "/api/charts")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	var dto domain.ChartDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dto))

	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/api/charts/"+dto.ID).Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/api/charts/"+dto.ID+"/modal/open").Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/api/charts/"+dto.ID+"/modal/close").Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/api/charts/"+dto.ID+"/export").Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/api/charts/"+dto.ID+"/preview").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(h, http.MethodPut, "/api/charts/"+dto.ID+"/export").Code)
}

func TestRouter_GameSearchWithoutBackend(t *testing.T) {
	h := newTestRouter(t, 10)

	w := serve(h, http.MethodGet, "/api/search/game?q=zelda")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRouter_SearchRateLimit(t *testing.T) {
	h := newTestRouter(t, 2)

	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/api/search/anime?q=a").Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/api/search/anime?q=b").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, http.MethodGet, "/api/search/anime?q=c").Code)

	// chart routes draw from the general budget
	assert.Equal(t, http.StatusCreated, serve(h, http.MethodPost, "/api/charts").Code)
}

func TestRouter_SessionQuotaPerClient(t *testing.T) {
	h := newTestRouter(t, 10)

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusCreated, serveFrom(h, "192.0.2.10:4000", http.MethodPost, "/api/charts").Code)
	}
	assert.Equal(t, 2, readySessions(t, h))

	// another client still gets a chart
	assert.Equal(t, http.StatusCreated, serveFrom(h, "198.51.100.20:5000", http.MethodPost, "/api/charts").Code)
	assert.Equal(t, 3, readySessions(t, h))
}
