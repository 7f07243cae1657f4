package router

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/straye-as/chart-api/internal/config"
	"github.com/straye-as/chart-api/internal/http/handler"
	"github.com/straye-as/chart-api/internal/http/middleware"
	"github.com/straye-as/chart-api/internal/service"
	"go.uber.org/zap"
)

type Router struct {
	cfg           *config.Config
	logger        *zap.Logger
	rateLimiter   *middleware.RateLimiter
	chartService  *service.ChartService
	searchService *service.SearchService
	chartHandler  *handler.ChartHandler
	searchHandler *handler.SearchHandler
}

func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	rateLimiter *middleware.RateLimiter,
	chartService *service.ChartService,
	searchService *service.SearchService,
	chartHandler *handler.ChartHandler,
	searchHandler *handler.SearchHandler,
) *Router {
	return &Router{
		cfg:           cfg,
		logger:        logger,
		rateLimiter:   rateLimiter,
		chartService:  chartService,
		searchService: searchService,
		chartHandler:  chartHandler,
		searchHandler: searchHandler,
	}
}

func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(rt.logger))
	r.Use(middleware.Logging(rt.logger))
	r.Use(middleware.SecurityHeaders(&rt.cfg.Security))
	r.Use(middleware.CORS(&rt.cfg.CORS, rt.cfg.App.Environment, rt.logger))

	// Health check (basic liveness probe)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Readiness probe with session and search backend details
	r.Get("/health/ready", rt.ready)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NoStore)
		r.Use(rt.rateLimiter.Limit)

		r.Route("/search", func(r chi.Router) {
			r.Use(rt.rateLimiter.LimitSearch)
			r.Get("/anime", rt.searchHandler.Anime)
			r.Get("/game", rt.searchHandler.Game)
		})

		r.Route("/charts", func(r chi.Router) {
			r.Post("/", rt.chartHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", rt.chartHandler.GetByID)
				r.Put("/title", rt.chartHandler.UpdateTitle)

				r.Post("/select", rt.chartHandler.Select)
				r.Delete("/select", rt.chartHandler.Deselect)

				r.Patch("/selected", rt.chartHandler.PatchSelected)
				r.Delete("/selected/image", rt.chartHandler.ClearSelectedImage)
				r.Post("/selected/upload", rt.chartHandler.Upload)

				r.Route("/modal", func(r chi.Router) {
					r.Post("/open", rt.chartHandler.OpenModal)
					r.Post("/close", rt.chartHandler.CloseModal)
					r.Post("/key", rt.chartHandler.ModalKey)
					r.With(rt.rateLimiter.LimitSearch).Post("/search", rt.chartHandler.ModalSearch)
					r.Post("/choose", rt.chartHandler.ModalChoose)
				})

				r.Get("/export", rt.chartHandler.Export)
				r.Get("/preview", rt.chartHandler.Preview)
			})
		})
	})

	return r
}

func (rt *Router) ready(w http.ResponseWriter, r *http.Request) {
	backends := make([]string, 0, len(rt.searchService.Searchers()))
	for d := range rt.searchService.Searchers() {
		backends = append(backends, string(d))
	}
	sort.Strings(backends)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":         "ready",
		"sessions":       rt.chartService.Count(r.Context()),
		"maxSessions":    rt.cfg.Sessions.Max,
		"searchBackends": backends,
		"renderer":       rt.cfg.Export.Renderer,
	})
}
