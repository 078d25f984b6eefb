package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/outbreak-lookup-service/internal/adapter/feed"
	httpadapter "github.com/couchcryptid/outbreak-lookup-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/outbreak-lookup-service/internal/adapter/kafka"
	"github.com/couchcryptid/outbreak-lookup-service/internal/adapter/sqlindex"
	"github.com/couchcryptid/outbreak-lookup-service/internal/config"
	"github.com/couchcryptid/outbreak-lookup-service/internal/lookup"
	"github.com/couchcryptid/outbreak-lookup-service/internal/observability"
	"github.com/couchcryptid/outbreak-lookup-service/internal/pipeline"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
)

const feedBurst = 2

func main() {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	client := feed.NewClient(cfg.FeedTimeout, cfg.FeedRateLimit, feedBurst, logger)
	feeds := feed.NewFetchers(feed.URLs{
		Primary:      cfg.PrimaryFeedURL,
		NHSRegions:   cfg.NHSRegionsURL,
		UKRegions:    cfg.UKRegionsURL,
		Constituents: cfg.ConstituentFeedURL,
		Subnational:  cfg.SubnationalFeedURL,
		Districts:    cfg.DistrictFeedURL,
	}, feed.Options{
		SubnationalRegion: cfg.SubnationalRegion,
		DistrictCountry:   cfg.DistrictCountry,
	}, client, clock, logger)

	fetchers := make([]pipeline.Fetcher, len(feeds))
	for i, f := range feeds {
		fetchers[i] = f
	}

	opts := pipeline.Options{
		Interval: cfg.RefreshInterval,
		Timeout:  cfg.RefreshTimeout,
	}
	var publisher *kafkaadapter.Publisher
	if cfg.KafkaEnabled {
		publisher = kafkaadapter.NewPublisher(cfg, logger, metrics)
		opts.Publisher = publisher
		logger.Info("snapshot publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaSnapshotTopic)
	} else {
		logger.Info("snapshot publishing disabled")
	}

	scheduler := pipeline.NewScheduler(fetchers, pipeline.SQLIndexBuilder(sqlindex.NewBuilder(logger)), clock, logger, metrics, opts)
	service := lookup.NewService(scheduler, feed.SourceURLs(feeds), cfg.MaxMatches, cfg.CacheSize, logger, metrics)

	api := httpadapter.NewAPI(service, scheduler, cfg, logger)
	srv := httpadapter.NewServer(cfg.HTTPAddr, scheduler, api, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start refresh scheduler.
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("scheduler error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	// Run returns once background rebuilds have finished.
	select {
	case <-schedulerDone:
	case <-shutdownCtx.Done():
		logger.Warn("scheduler did not stop before shutdown timeout")
	}
	scheduler.Close()
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
