package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"repair-tracker-backend/config"
	"repair-tracker-backend/internal/api"
	"repair-tracker-backend/internal/db"
	"repair-tracker-backend/internal/metrics"
	"repair-tracker-backend/internal/notification"
	"repair-tracker-backend/internal/photo"
	"repair-tracker-backend/internal/store"
	"repair-tracker-backend/internal/timer"
	"repair-tracker-backend/internal/tracking"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*configPath)
		},
	}
}

func runServe(configPath string) error {
	// Setup logger
	logger := log.New(os.Stdout, "repair-tracker ", log.LstdFlags)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	defer sqlDB.Close()
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)

	photos, err := photo.New(ctx, cfg.Photos)
	if err != nil {
		return fmt.Errorf("failed to initialize photo storage: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(registry)

	observers := []timer.Observer{appMetrics}
	var webpushOptions *webpush.Options
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		workerPool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions)
		workerPool.Start(ctx)
		observers = append(observers, workerPool)
	} else {
		logger.Println("VAPID keys are not configured; finish notifications are disabled")
	}

	tracker := timer.NewTracker(appStore, time.Now, observers...)

	trackingSvc := tracking.NewService(cfg.Tracking, appStore)
	go func() {
		if err := trackingSvc.Run(ctx); err != nil {
			logger.Printf("shipment tracking stopped: %v", err)
		}
	}()

	handler := api.NewHandler(appStore, tracker, api.Options{
		Photos:        photos,
		MaxPhotoBytes: cfg.Photos.MaxSizeBytes,
		IssuesFile:    cfg.Server.IssuesFile,
		WebPush:       webpushOptions,
	})
	routerCfg := api.RouterConfig{
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
		CacheTTL:        time.Duration(cfg.Server.CacheTTLSeconds) * time.Second,
		CORSOrigins:     cfg.Server.CORSOrigins,
		Requests:        appMetrics,
		Gatherer:        registry,
	}
	if local, ok := photos.(*photo.LocalStore); ok {
		routerCfg.ImagesDir = local.Dir()
		routerCfg.ImagesURLPrefix = local.URLPrefix()
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewRouter(handler, routerCfg),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Println("Shutdown signal received, stopping services...")
	case err := <-errCh:
		return fmt.Errorf("HTTP server ListenAndServe: %w", err)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server Shutdown: %w", err)
	}

	logger.Println("Server gracefully stopped")
	return nil
}
