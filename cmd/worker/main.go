// Package main provides the entrypoint for the SmogWatch refresh worker.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/smogwatch/smogwatch/internal/airquality"
	"github.com/smogwatch/smogwatch/internal/airquality/gios"
	"github.com/smogwatch/smogwatch/internal/store"
	"github.com/smogwatch/smogwatch/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "smogwatch-worker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting SmogWatch worker")

	// Worker also exposes a health endpoint for Cloud Run
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	cacheDir := os.Getenv("CACHE_DIR")
	if cacheDir == "" {
		cacheDir = "data"
	}

	refreshInterval := 15 * time.Minute
	if raw := os.Getenv("REFRESH_INTERVAL"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			log.Fatal().Err(err).Str("value", raw).Msg("invalid REFRESH_INTERVAL")
		}
		refreshInterval = parsed
	}

	concurrency := 3
	if raw := os.Getenv("REFRESH_CONCURRENCY"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			log.Fatal().Str("value", raw).Msg("invalid REFRESH_CONCURRENCY")
		}
		concurrency = parsed
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fileStore, err := store.New(cacheDir, log)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cacheDir).Msg("failed to open cache directory")
	}

	giosClient := gios.NewClient(gios.ClientConfig{
		BaseURL: os.Getenv("GIOS_BASE_URL"),
	})

	service, err := airquality.NewService(airquality.ServiceConfig{
		Provider: giosClient,
		Cache:    fileStore,
		Logger:   log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize air quality service")
	}

	refreshJob := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config: worker.RefreshConfig{
			Concurrency:   concurrency,
			RefreshSeries: true,
		},
		Logger:  log,
		Service: service,
	})

	// Health check server
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "healthy",
			"version": Version,
			"metrics": refreshJob.MetricsSnapshot(),
		})
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	// Scheduled refresh
	scheduler := worker.NewScheduler(worker.SchedulerConfig{
		Interval: refreshInterval,
		Job:      refreshJob,
		Logger:   log,
	})
	go func() {
		if err := scheduler.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("scheduler stopped unexpectedly")
		}
	}()

	// Optional Pub/Sub triggered refresh
	if projectID := os.Getenv("PUBSUB_PROJECT_ID"); projectID != "" {
		subscription := os.Getenv("PUBSUB_SUBSCRIPTION")
		if subscription == "" {
			subscription = "smogwatch-refresh"
		}

		pubsubHandler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        projectID,
			SubscriptionName: subscription,
			RefreshJob:       refreshJob,
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer pubsubHandler.Close()

		go func() {
			if err := pubsubHandler.Start(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("pubsub handler stopped unexpectedly")
			}
		}()
	} else {
		log.Info().Msg("PUBSUB_PROJECT_ID not set, pubsub triggers disabled")
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
