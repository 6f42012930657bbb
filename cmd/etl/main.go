package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/air-quality-etl/internal/adapter/httpadapter"
	"github.com/couchcryptid/air-quality-etl/internal/adapter/influx"
	kafkaadapter "github.com/couchcryptid/air-quality-etl/internal/adapter/kafka"
	"github.com/couchcryptid/air-quality-etl/internal/adapter/mapbox"
	"github.com/couchcryptid/air-quality-etl/internal/adapter/mqtt"
	"github.com/couchcryptid/air-quality-etl/internal/adapter/store"
	"github.com/couchcryptid/air-quality-etl/internal/config"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/observability"
	"github.com/couchcryptid/air-quality-etl/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	transformer := pipeline.NewTransformer(geocoder, logger)

	reports := store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge, clockwork.NewRealClock(), metrics, logger)
	sweeper := store.NewSweeper(reports, cfg.StoreSweepInterval, metrics, logger)
	if err := sweeper.Start(); err != nil {
		logger.Error("failed to start store sweeper", "error", err)
		os.Exit(1)
	}
	defer sweeper.Stop()

	sinks := []pipeline.Sink{
		{Name: "kafka", Loader: writer, Required: true},
		{Name: "store", Loader: reports, Required: true},
	}

	// Optional sinks from SINKS_CONFIG. A sink that cannot be reached at
	// startup is skipped rather than blocking the pipeline.
	var publisher *mqtt.Sink
	if cfg.Sinks.MQTT.Enabled() {
		publisher, err = mqtt.Connect(cfg.Sinks.MQTT, logger)
		if err != nil {
			logger.Error("mqtt sink disabled", "error", err)
		} else {
			sinks = append(sinks, pipeline.Sink{Name: "mqtt", Loader: publisher})
		}
	}
	var points *influx.Writer
	if cfg.Sinks.Influx.Enabled() {
		points, err = influx.New(cfg.Sinks.Influx, logger)
		if err != nil {
			logger.Error("influx sink disabled", "error", err)
		} else {
			sinks = append(sinks, pipeline.Sink{Name: "influx", Loader: points})
		}
	}

	loader := pipeline.NewFanOutLoader(logger, metrics, sinks...)
	logger.Info("sinks configured", "sinks", loader.Sinks())

	p := pipeline.New(reader, transformer, loader, logger, metrics, cfg.BatchSize)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, reports, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start ETL pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("mqtt close error", "error", err)
		}
	}
	if points != nil {
		if err := points.Close(); err != nil {
			logger.Error("influx close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
