package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/straye-as/chart-api/internal/chart"
	"github.com/straye-as/chart-api/internal/config"
	"github.com/straye-as/chart-api/internal/domain"
	"github.com/straye-as/chart-api/internal/http/handler"
	"github.com/straye-as/chart-api/internal/http/middleware"
	"github.com/straye-as/chart-api/internal/http/router"
	"github.com/straye-as/chart-api/internal/jobs"
	"github.com/straye-as/chart-api/internal/logger"
	"github.com/straye-as/chart-api/internal/render"
	"github.com/straye-as/chart-api/internal/repository"
	"github.com/straye-as/chart-api/internal/search"
	"github.com/straye-as/chart-api/internal/service"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Load basic configuration first (for logging setup)
	basicCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(&basicCfg.Logging, &basicCfg.App)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting application",
		zap.String("app", basicCfg.App.Name),
		zap.String("env", basicCfg.App.Environment),
		zap.Int("port", basicCfg.App.Port),
	)

	// IGDB credentials may come from Key Vault in staging/production
	cfg, err := config.LoadWithSecrets(ctx, log)
	if err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	// Upstream search clients
	anilist := search.NewAniListClient(cfg.AniList.Endpoint, cfg.AniList.TimeoutDuration(), log)
	igdb, err := search.NewIGDBClient(&cfg.IGDB, search.SystemClock{}, log)
	if err != nil {
		return fmt.Errorf("failed to create IGDB client: %w", err)
	}
	searchers := chart.Searchers{
		domain.SearchDomainAnime: anilist,
		domain.SearchDomainGame:  igdb,
	}

	renderer, closeRenderer := render.New(&cfg.Export, log)
	defer func() {
		if err := closeRenderer(); err != nil {
			log.Warn("Error closing renderer", zap.Error(err))
		}
	}()

	log.Info("Export renderer initialized",
		zap.String("renderer", cfg.Export.Renderer),
		zap.Int("pixel_ratio", cfg.Export.PixelRatio),
	)

	sessionRepo := repository.NewSessionRepository(cfg.Sessions.Max, cfg.Sessions.MaxPerClient)

	chartService := service.NewChartService(sessionRepo, searchers, renderer, &cfg.Sessions, &cfg.Export, log)
	searchService := service.NewSearchService(searchers, log)

	chartHandler := handler.NewChartHandler(chartService, cfg.Sessions.MaxUploadBytes(), log)
	searchHandler := handler.NewSearchHandler(searchService, log)

	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit, log)

	rt := router.NewRouter(cfg, log, rateLimiter, chartService, searchService, chartHandler, searchHandler)

	scheduler := jobs.NewScheduler(log)
	if err := jobs.RegisterSessionSweepJob(scheduler, chartService, log, cfg.Sessions.SweepCron); err != nil {
		return fmt.Errorf("failed to register session sweep job: %w", err)
	}
	scheduler.Start()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           rt.Setup(),
		ReadTimeout:       cfg.Server.ReadTimeoutDuration(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeoutDuration(),
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	// Wait for interrupt signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		<-scheduler.Stop().Done()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		<-scheduler.Stop().Done()
		log.Info("Scheduler stopped")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("Failed to shutdown gracefully", zap.Error(err))
			return err
		}

		log.Info("Server stopped gracefully", zap.Int("sessions", chartService.Count(ctx)))
	}

	return nil
}
