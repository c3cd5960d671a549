package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"smallarea/internal/config"
	"smallarea/internal/core/direct"
	"smallarea/internal/handler"
	"smallarea/internal/hub"
	"smallarea/internal/metrics"
	"smallarea/internal/repository/sqlite"
	"smallarea/internal/service"
	"smallarea/internal/watcher"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "smallarea: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Command line flags override the config file and environment
	configPath := flag.String("config", "", "config file path (default: search path)")
	addr := flag.String("addr", "", "HTTP listen address")
	dbPath := flag.String("db", "", "SQLite database path")
	flag.Parse()

	cfg, path, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)
	if path != "" {
		logger.Info("config loaded", "path", path)
	}
	logger.Info("starting smallarea server", "config", cfg.Summary())

	// Initialize SQLite repository
	repo, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer repo.Close()
	logger.Info("database opened", "path", cfg.Database.Path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize event bus and SSE hub
	eventBus := service.NewEventBus()
	sseHub := hub.New(logger)
	go sseHub.Run(ctx)

	// Connect event bus to SSE hub
	eventChan := make(chan service.Event, 100)
	eventBus.Subscribe(eventChan)
	go func() {
		for {
			select {
			case event := <-eventChan:
				sseHub.Broadcast(event)
			case <-ctx.Done():
				return
			}
		}
	}()

	m := metrics.New(prometheus.DefaultRegisterer)

	// Initialize services
	estimator := direct.New(
		direct.WithParallelism(cfg.Estimation.Parallelism),
		direct.WithRejectZeroWeights(cfg.Estimation.RejectZeroWeights),
	)
	surveySvc := service.NewSurveyService(repo, eventBus,
		service.WithLogger(logger), service.WithMetrics(m))
	estimationSvc := service.NewEstimationService(repo, repo, estimator, eventBus,
		service.WithLogger(logger), service.WithMetrics(m))

	// Watched survey files
	reloader := watcher.NewReloader(surveySvc, estimationSvc, cfg.Watch, logger)
	go func() {
		if err := reloader.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("watcher stopped", "error", err)
		}
	}()

	// Initialize handlers
	surveyHandler := handler.NewSurveyHandler(surveySvc, logger)
	surveyHandler.SetMaxUploadBytes(cfg.Server.MaxUploadBytes)
	runHandler := handler.NewRunHandler(estimationSvc, cfg.Estimation.DefaultScenario, logger)

	// Setup routes
	mux := http.NewServeMux()
	handler.Register(mux, surveyHandler, runHandler)

	// SSE events endpoint
	mux.Handle("GET /events", sseHub)

	// Prometheus metrics
	mux.Handle("GET /metrics", promhttp.Handler())

	// Apply middleware
	finalHandler := handler.Chain(mux,
		handler.Recover(logger),
		handler.CORS(cfg.Server.CORSOrigin),
		handler.Logger(logger, m),
	)

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      finalHandler,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration(),
		WriteTimeout: cfg.Server.WriteTimeout.Duration(),
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("shutting down server")

	// Stop the watcher and close SSE streams before draining connections
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
	return nil
}

// loadConfig reads an explicit config file, or searches the default
// locations when path is empty
func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		return config.Load()
	}
	cfg, _, err := config.LoadFromPath(path)
	if err != nil {
		return nil, path, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}
