package domain

import (
	"log/slog"
	"sort"
)

// countryRenames maps raw feed labels to the canonical country names shared
// by every feed.
var countryRenames = map[string]string{
	"US":                  "United States",
	"DRC":                 "Democratic Republic of the Congo",
	"UAE":                 "United Arab Emirates",
	"U.S. Virgin Islands": "United States Virgin Islands",
}

// CanonicalCountry applies the rename table to a raw country label.
func CanonicalCountry(raw string) string {
	if name, ok := countryRenames[raw]; ok {
		return name
	}
	return raw
}

// Normalize merges feed batches into a single Tree.
//
// Batches are applied in Source order regardless of the order they were
// fetched in, and within a source in row order; every write overwrites the
// previous value at the same key. Country labels are renamed before lookup so
// differently-labelled rows for one country merge into one entry.
func Normalize(batches []Batch, logger *slog.Logger) *Tree {
	ordered := make([]Batch, len(batches))
	copy(ordered, batches)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Source < ordered[j].Source
	})

	tree := NewTree()
	for _, b := range ordered {
		switch b.Kind {
		case KindCountryRows:
			mergeCountryRows(tree, b, logger)
		case KindAreaInjection:
			injectAreas(tree, b)
		default:
			logger.Warn("unknown batch kind, skipping", "source", b.Source, "kind", int(b.Kind))
		}
	}
	return tree
}

func mergeCountryRows(tree *Tree, b Batch, logger *slog.Logger) {
	for _, row := range b.Rows {
		country := CanonicalCountry(row.Country)
		if country == "" {
			continue
		}
		if row.IsTotal(country) {
			// Later rows win. Upstream occasionally repeats a total under the
			// province column; whether the first one should win is unverified.
			if tree.SetTotals(country, row.Metrics) {
				logger.Warn("duplicate totals", "country", country, "source", b.Source)
			}
			continue
		}
		tree.SetArea(country, row.Area, row.Metrics)
	}
}

func injectAreas(tree *Tree, b Batch) {
	if len(b.Rows) == 0 {
		return
	}
	country := CanonicalCountry(b.Country)
	for _, row := range b.Rows {
		if row.Area == "" {
			continue
		}
		tree.SetArea(country, row.Area, row.Metrics)
	}
}
