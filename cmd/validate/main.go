// Command validate replays a captured fixture directory through the full
// refresh path (parse, normalize, index) and checks that every location in
// the resulting snapshot can be looked up again.
//
// Usage:
//
//	go run ./cmd/validate -fixtures testdata/fixtures
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/couchcryptid/outbreak-lookup-service/internal/adapter/feed"
	"github.com/couchcryptid/outbreak-lookup-service/internal/adapter/sqlindex"
	"github.com/couchcryptid/outbreak-lookup-service/internal/domain"
	"github.com/couchcryptid/outbreak-lookup-service/internal/fixture"
	"github.com/couchcryptid/outbreak-lookup-service/internal/lookup"
	"github.com/jonboulle/clockwork"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	dir := flag.String("fixtures", "", "fixture directory written by cmd/capture")
	region := flag.String("subnational-region", "Scotland", "constituent region of the sub-national feed")
	district := flag.String("district-country", "India", "country owning the district feed")
	flag.Parse()

	if *dir == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*dir, feed.Options{SubnationalRegion: *region, DistrictCountry: *district}); code != 0 {
		os.Exit(code)
	}
}

func run(dir string, opts feed.Options) int {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	fmt.Println("=== Outbreak Snapshot Validation ===")
	fmt.Println()

	manifest, err := fixture.Load(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	// Rows are stamped with the capture time so replays are reproducible.
	clock := clockwork.NewFakeClockAt(manifest.CapturedAt)
	fetchers := feed.NewFetchers(manifest.URLs(), opts, fixture.NewGetter(dir, manifest), clock, logger)

	parsing, batches := validateFeeds(ctx, fetchers)
	tree := domain.Normalize(batches, logger)

	index, err := sqlindex.NewBuilder(logger).Build(ctx, tree)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: build index: %v\n", err)
		return 1
	}
	defer index.Close()

	phases := []*phase{
		parsing,
		validateTree(tree, index),
		validateCountries(ctx, tree, index),
		validateAreas(ctx, tree, index),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Snapshot: %d feeds, %d countries, %d areas, %d documents\n",
		len(fetchers), tree.Len(), tree.AreaCount(), index.Len())

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// validateFeeds fetches every fixture and keeps the batches that parsed.
func validateFeeds(ctx context.Context, fetchers []*feed.Fetcher) (*phase, []domain.Batch) {
	p := &phase{name: "Feed parsing"}
	batches := make([]domain.Batch, 0, len(fetchers))
	for _, f := range fetchers {
		batch, err := f.Fetch(ctx)
		if err != nil {
			p.errorf("%v", err)
			continue
		}
		if len(batch.Rows) == 0 {
			p.errorf("%s: no rows", f.Source())
		}
		batches = append(batches, batch)
	}
	return p, batches
}

func validateTree(tree *domain.Tree, index *sqlindex.Index) *phase {
	p := &phase{name: "Tree consistency"}
	if tree.Len() == 0 {
		p.errorf("snapshot has no countries")
	}
	if want := tree.Len() + tree.AreaCount(); index.Len() != want {
		p.errorf("index has %d documents, tree has %d entries", index.Len(), want)
	}
	for _, c := range tree.Countries() {
		if c.Totals == nil && c.AreaCount() == 0 {
			p.errorf("%s: no totals and no areas", c.Name)
		}
		if c.Totals != nil {
			checkMetrics(p, c.Name, *c.Totals)
		}
		for _, area := range c.AreaNames() {
			m, _ := c.Area(area)
			checkMetrics(p, domain.AreaLabel(area, c.Name), m)
		}
	}
	return p
}

func checkMetrics(p *phase, label string, m domain.Metrics) {
	if m.Cases < 0 {
		p.errorf("%s: negative cases %d", label, m.Cases)
	}
	if m.Deaths != nil && *m.Deaths < 0 {
		p.errorf("%s: negative deaths %d", label, *m.Deaths)
	}
	if m.Recoveries != nil && *m.Recoveries < 0 {
		p.errorf("%s: negative recoveries %d", label, *m.Recoveries)
	}
	if m.LastUpdate.IsZero() {
		p.errorf("%s: missing last update", label)
	}
}

// validateCountries resolves every country with totals by name.
func validateCountries(ctx context.Context, tree *domain.Tree, index *sqlindex.Index) *phase {
	p := &phase{name: "Country lookups"}
	resolver := lookup.NewResolver()
	for _, c := range tree.Countries() {
		if c.Totals == nil {
			continue
		}
		res, err := resolver.Resolve(ctx, tree, index, c.Name)
		if err != nil {
			p.errorf("%s: %v", c.Name, err)
			continue
		}
		if len(res.Matches) != 1 || res.Matches[0].Label != c.Name {
			p.errorf("%s: resolved at %s stage to %v", c.Name, res.Stage, labels(res.Matches))
		}
	}
	return p
}

// validateAreas resolves every area by name. An area sharing its name with a
// country or an ISO code is shadowed by the earlier stage and is skipped.
func validateAreas(ctx context.Context, tree *domain.Tree, index *sqlindex.Index) *phase {
	p := &phase{name: "Area lookups"}
	resolver := lookup.NewResolver()
	for _, c := range tree.Countries() {
		for _, area := range c.AreaNames() {
			res, err := resolver.Resolve(ctx, tree, index, area)
			if err != nil {
				p.errorf("%s: %v", area, err)
				continue
			}
			if res.Stage == lookup.StageCode || res.Stage == lookup.StageCountry {
				continue
			}
			want := domain.AreaLabel(area, c.Name)
			if !slices.Contains(labels(res.Matches), want) {
				p.errorf("%s: resolved at %s stage to %v", want, res.Stage, labels(res.Matches))
			}
		}
	}
	return p
}

func labels(matches []domain.Match) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Label
	}
	return out
}
