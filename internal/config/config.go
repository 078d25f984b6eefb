package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Default upstream feeds.
const (
	DefaultPrimaryFeedURL     = "http://offloop.net/covid19h/unconfirmed.csv"
	DefaultNHSRegionsURL      = "https://www.arcgis.com/sharing/rest/content/items/ca796627a2294c51926865748c4a56e8/data"
	DefaultUKRegionsURL       = "https://www.arcgis.com/sharing/rest/content/items/b684319181f94875a6879bbc833ca3a6/data"
	DefaultConstituentFeedURL = "https://raw.githubusercontent.com/tomwhite/covid-19-uk-data/master/data/covid-19-indicators-uk.csv"
	DefaultSubnationalFeedURL = "https://raw.githubusercontent.com/tomwhite/covid-19-uk-data/master/data/covid-19-cases-uk.csv"
	DefaultDistrictFeedURL    = "https://api.covid19india.org/raw_data.json"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	RefreshInterval time.Duration
	RefreshTimeout  time.Duration
	FeedTimeout     time.Duration
	FeedRateLimit   float64

	PrimaryFeedURL     string
	NHSRegionsURL      string
	UKRegionsURL       string
	ConstituentFeedURL string
	SubnationalFeedURL string
	DistrictFeedURL    string
	SubnationalRegion  string
	DistrictCountry    string

	MaxMatches int
	CacheSize  int

	KafkaBrokers       []string
	KafkaSnapshotTopic string
	KafkaEnabled       bool

	Admins []string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	refreshInterval, err := parseDuration("REFRESH_INTERVAL", "15m")
	if err != nil {
		return nil, err
	}
	refreshTimeout, err := parseDuration("REFRESH_TIMEOUT", "2m")
	if err != nil {
		return nil, err
	}
	feedTimeout, err := parseDuration("FEED_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}

	rateLimit, err := strconv.ParseFloat(envOrDefault("FEED_RATE_LIMIT", "5"), 64)
	if err != nil || rateLimit <= 0 {
		return nil, errors.New("invalid FEED_RATE_LIMIT: must be a positive number")
	}

	maxMatches, err := parsePositiveInt("MAX_MATCHES", "5")
	if err != nil {
		return nil, err
	}
	cacheSize := parseCacheSize()

	brokers := parseList(os.Getenv("KAFKA_BROKERS"))
	kafkaEnabled := len(brokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		RefreshInterval: refreshInterval,
		RefreshTimeout:  refreshTimeout,
		FeedTimeout:     feedTimeout,
		FeedRateLimit:   rateLimit,

		PrimaryFeedURL:     feedURL("PRIMARY_FEED_URL", DefaultPrimaryFeedURL),
		NHSRegionsURL:      feedURL("NHS_REGIONS_URL", DefaultNHSRegionsURL),
		UKRegionsURL:       feedURL("UK_REGIONS_URL", DefaultUKRegionsURL),
		ConstituentFeedURL: feedURL("CONSTITUENT_FEED_URL", DefaultConstituentFeedURL),
		SubnationalFeedURL: feedURL("SUBNATIONAL_FEED_URL", DefaultSubnationalFeedURL),
		DistrictFeedURL:    feedURL("DISTRICT_FEED_URL", DefaultDistrictFeedURL),
		SubnationalRegion:  envOrDefault("SUBNATIONAL_REGION", "Scotland"),
		DistrictCountry:    envOrDefault("DISTRICT_COUNTRY", "India"),

		MaxMatches: maxMatches,
		CacheSize:  cacheSize,

		KafkaBrokers:       brokers,
		KafkaSnapshotTopic: envOrDefault("KAFKA_SNAPSHOT_TOPIC", "outbreak-snapshots"),
		KafkaEnabled:       kafkaEnabled,

		Admins: parseList(os.Getenv("ADMINS")),
	}

	if cfg.PrimaryFeedURL == "" {
		return nil, errors.New("PRIMARY_FEED_URL is required")
	}
	if cfg.RefreshTimeout < cfg.FeedTimeout {
		return nil, errors.New("REFRESH_TIMEOUT must not be shorter than FEED_TIMEOUT")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.KafkaEnabled && cfg.KafkaSnapshotTopic == "" {
		return nil, errors.New("KAFKA_SNAPSHOT_TOPIC is required")
	}

	return cfg, nil
}

// IsAdmin reports whether name is on the static admin allow-list.
func (c *Config) IsAdmin(name string) bool {
	if name == "" {
		return false
	}
	for _, a := range c.Admins {
		if a == name {
			return true
		}
	}
	return false
}

// envOrDefault returns the environment variable value, or fallback when unset or empty.
func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// feedURL is like envOrDefault but keeps an explicitly empty value, which
// disables the feed.
func feedURL(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return fallback
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parsePositiveInt(key, fallback string) (int, error) {
	n, err := strconv.Atoi(envOrDefault(key, fallback))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

func parseCacheSize() int {
	if s := os.Getenv("CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			return n
		}
	}
	return 1000
}

// parseList splits a comma-separated value, dropping blanks.
func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
