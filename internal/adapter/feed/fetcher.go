package feed

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/outbreak-lookup-service/internal/domain"
	"github.com/jonboulle/clockwork"
)

// Getter retrieves a URL's full body.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// parseFunc turns a payload into a batch. now is the fetch time.
type parseFunc func(body []byte, now time.Time) (domain.Batch, error)

// Fetcher downloads one upstream feed and parses it into a domain.Batch.
// It does not retry; the scheduler decides what a failure means.
type Fetcher struct {
	source domain.Source
	url    string
	getter Getter
	clock  clockwork.Clock
	parse  parseFunc
}

// Source identifies the feed.
func (f *Fetcher) Source() domain.Source { return f.source }

// URL is the upstream location of the feed.
func (f *Fetcher) URL() string { return f.url }

// Fetch retrieves and parses the feed. Any failure is a *domain.FetchError.
func (f *Fetcher) Fetch(ctx context.Context) (domain.Batch, error) {
	body, err := f.getter.Get(ctx, f.url)
	if err != nil {
		return domain.Batch{}, &domain.FetchError{Source: f.source, URL: f.url, Err: err}
	}
	batch, err := f.parse(body, f.clock.Now().UTC())
	if err != nil {
		return domain.Batch{}, &domain.FetchError{Source: f.source, URL: f.url, Err: err}
	}
	batch.Source = f.source
	return batch, nil
}

// NewPrimaryFetcher fetches the semicolon-delimited country/province feed.
func NewPrimaryFetcher(url string, getter Getter, clock clockwork.Clock) *Fetcher {
	return &Fetcher{
		source: domain.SourcePrimary,
		url:    url,
		getter: getter,
		clock:  clock,
		parse: func(body []byte, now time.Time) (domain.Batch, error) {
			rows, err := domain.ParsePrimaryFeed(bytes.NewReader(body), now)
			if err != nil {
				return domain.Batch{}, err
			}
			return domain.Batch{Kind: domain.KindCountryRows, Rows: rows}, nil
		},
	}
}

// NewRegionalFetcher fetches a regional breakdown whose location column is
// nameColumn. Every row becomes an area of country.
func NewRegionalFetcher(source domain.Source, url, nameColumn, country string, getter Getter, clock clockwork.Clock) *Fetcher {
	return &Fetcher{
		source: source,
		url:    url,
		getter: getter,
		clock:  clock,
		parse: func(body []byte, now time.Time) (domain.Batch, error) {
			rows, err := domain.ParseRegionalFeed(bytes.NewReader(body), nameColumn, now)
			if err != nil {
				return domain.Batch{}, err
			}
			return domain.Batch{Kind: domain.KindAreaInjection, Country: country, Rows: rows}, nil
		},
	}
}

// NewConstituentFetcher fetches the constituent-region indicator series.
func NewConstituentFetcher(url, country string, regions []domain.ConstituentRegion, getter Getter, clock clockwork.Clock) *Fetcher {
	return &Fetcher{
		source: domain.SourceConstituents,
		url:    url,
		getter: getter,
		clock:  clock,
		parse: func(body []byte, _ time.Time) (domain.Batch, error) {
			rows, err := domain.ParseConstituentFeed(bytes.NewReader(body), regions)
			if err != nil {
				return domain.Batch{}, err
			}
			return domain.Batch{Kind: domain.KindAreaInjection, Country: country, Rows: rows}, nil
		},
	}
}

// NewSubnationalFetcher fetches the area series filtered to one constituent region.
func NewSubnationalFetcher(url, country, region string, gaps []domain.KnownGap, getter Getter, clock clockwork.Clock, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		source: domain.SourceSubnational,
		url:    url,
		getter: getter,
		clock:  clock,
		parse: func(body []byte, _ time.Time) (domain.Batch, error) {
			res, err := domain.ParseSubnationalFeed(bytes.NewReader(body), region, gaps)
			if err != nil {
				return domain.Batch{}, err
			}
			for _, area := range res.UnexpectedBlanks {
				logger.Warn("blank area count treated as zero", "region", region, "area", area, "date", res.Date)
			}
			return domain.Batch{Kind: domain.KindAreaInjection, Country: country, Rows: res.Rows}, nil
		},
	}
}

// NewDistrictFetcher fetches the per-case JSON feed and counts cases per district.
func NewDistrictFetcher(url, country string, getter Getter, clock clockwork.Clock) *Fetcher {
	return &Fetcher{
		source: domain.SourceDistricts,
		url:    url,
		getter: getter,
		clock:  clock,
		parse: func(body []byte, now time.Time) (domain.Batch, error) {
			rows, err := domain.ParseDistrictFeed(bytes.NewReader(body), now)
			if err != nil {
				return domain.Batch{}, err
			}
			return domain.Batch{Kind: domain.KindAreaInjection, Country: country, Rows: rows}, nil
		},
	}
}
