// Command capture downloads every configured feed, checks that it parses,
// and stores the payloads plus a manifest for offline replay.
//
// Usage:
//
//	go run ./cmd/capture -out testdata/fixtures
//
// Feed URLs come from the same environment variables the service reads.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/couchcryptid/outbreak-lookup-service/internal/adapter/feed"
	"github.com/couchcryptid/outbreak-lookup-service/internal/config"
	"github.com/couchcryptid/outbreak-lookup-service/internal/fixture"
	"github.com/couchcryptid/outbreak-lookup-service/internal/observability"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "fixture directory to write")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.RefreshTimeout)
	defer cancel()

	logger := observability.NewLogger(cfg.LogLevel, "text")
	clock := clockwork.NewRealClock()
	recorder := fixture.NewRecorder(feed.NewClient(cfg.FeedTimeout, cfg.FeedRateLimit, 1, logger))

	fetchers := feed.NewFetchers(feed.URLs{
		Primary:      cfg.PrimaryFeedURL,
		NHSRegions:   cfg.NHSRegionsURL,
		UKRegions:    cfg.UKRegionsURL,
		Constituents: cfg.ConstituentFeedURL,
		Subnational:  cfg.SubnationalFeedURL,
		Districts:    cfg.DistrictFeedURL,
	}, feed.Options{
		SubnationalRegion: cfg.SubnationalRegion,
		DistrictCountry:   cfg.DistrictCountry,
	}, recorder, clock, logger)

	manifest := &fixture.Manifest{CapturedAt: clock.Now().UTC().Truncate(time.Second)}
	for _, f := range fetchers {
		batch, err := f.Fetch(ctx)
		if err != nil {
			return err
		}
		entry, err := recorder.Save(*out, f.Source(), f.URL())
		if err != nil {
			return err
		}
		manifest.Feeds = append(manifest.Feeds, entry)
		log.Printf("%s: %d rows, %d bytes", f.Source(), len(batch.Rows), entry.Bytes)
	}

	if err := fixture.Write(*out, manifest); err != nil {
		return err
	}
	log.Printf("wrote %d feeds to %s", len(manifest.Feeds), *out)
	return nil
}
