package feed

import (
	"log/slog"

	"github.com/couchcryptid/outbreak-lookup-service/internal/domain"
	"github.com/jonboulle/clockwork"
)

// UnitedKingdom owns the regional, constituent and sub-national areas.
const UnitedKingdom = "United Kingdom"

// URLs holds the upstream location of every feed. Empty optional URLs
// disable the corresponding feed.
type URLs struct {
	Primary      string
	NHSRegions   string
	UKRegions    string
	Constituents string
	Subnational  string
	Districts    string
}

// Options tunes the feeds that need more than a URL.
type Options struct {
	SubnationalRegion string
	DistrictCountry   string
	KnownGaps         []domain.KnownGap
	Constituents      []domain.ConstituentRegion
}

// NewFetchers builds one Fetcher per configured URL, primary first.
func NewFetchers(urls URLs, opts Options, getter Getter, clock clockwork.Clock, logger *slog.Logger) []*Fetcher {
	if opts.Constituents == nil {
		opts.Constituents = domain.DefaultConstituentRegions
	}
	if opts.KnownGaps == nil {
		opts.KnownGaps = domain.DefaultKnownGaps
	}

	var fetchers []*Fetcher
	if urls.Primary != "" {
		fetchers = append(fetchers, NewPrimaryFetcher(urls.Primary, getter, clock))
	}
	if urls.NHSRegions != "" {
		fetchers = append(fetchers, NewRegionalFetcher(domain.SourceNHSRegions, urls.NHSRegions, domain.NHSRegionColumn, UnitedKingdom, getter, clock))
	}
	if urls.UKRegions != "" {
		fetchers = append(fetchers, NewRegionalFetcher(domain.SourceUKRegions, urls.UKRegions, domain.UKRegionColumn, UnitedKingdom, getter, clock))
	}
	if urls.Districts != "" {
		fetchers = append(fetchers, NewDistrictFetcher(urls.Districts, opts.DistrictCountry, getter, clock))
	}
	if urls.Constituents != "" {
		fetchers = append(fetchers, NewConstituentFetcher(urls.Constituents, UnitedKingdom, opts.Constituents, getter, clock))
	}
	if urls.Subnational != "" {
		fetchers = append(fetchers, NewSubnationalFetcher(urls.Subnational, UnitedKingdom, opts.SubnationalRegion, opts.KnownGaps, getter, clock, logger))
	}
	return fetchers
}

// SourceURLs returns the URLs of the given fetchers in order.
func SourceURLs(fetchers []*Fetcher) []string {
	out := make([]string, 0, len(fetchers))
	for _, f := range fetchers {
		out = append(out, f.URL())
	}
	return out
}
