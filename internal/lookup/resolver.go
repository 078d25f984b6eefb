package lookup

import (
	"context"
	"fmt"
	"strings"

	"github.com/couchcryptid/outbreak-lookup-service/internal/adapter/sqlindex"
	"github.com/couchcryptid/outbreak-lookup-service/internal/domain"
)

// Searcher is the substring index the wildcard stage reads.
type Searcher interface {
	Search(ctx context.Context, query string) ([]sqlindex.Document, error)
}

// Stage identifies which matching tier produced a resolution.
type Stage int

const (
	StageNone Stage = iota
	StageCode
	StageCountry
	StageArea
	StageWildcard
)

func (s Stage) String() string {
	switch s {
	case StageCode:
		return "code"
	case StageCountry:
		return "country"
	case StageArea:
		return "area"
	case StageWildcard:
		return "wildcard"
	default:
		return "none"
	}
}

// ResultKind tags a StageResult.
type ResultKind int

const (
	NoMatch ResultKind = iota
	Unique
	Multiple
)

// StageResult is the outcome of one matching stage.
type StageResult struct {
	Kind    ResultKind
	Matches []domain.Match
}

func stageResult(matches []domain.Match) StageResult {
	switch len(matches) {
	case 0:
		return StageResult{Kind: NoMatch}
	case 1:
		return StageResult{Kind: Unique, Matches: matches}
	default:
		return StageResult{Kind: Multiple, Matches: matches}
	}
}

// Resolution is the answer of the first stage that matched anything.
type Resolution struct {
	Stage   Stage
	Matches []domain.Match
}

// Resolver maps free text to tree entries. It holds no state and is safe for
// concurrent use.
type Resolver struct{}

// NewResolver creates a Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve tries the code, country, area and wildcard stages in that order
// and returns the first non-empty result. Only the wildcard stage can fail,
// and only when the index cannot be read.
func (r *Resolver) Resolve(ctx context.Context, tree *domain.Tree, index Searcher, query string) (Resolution, error) {
	query = strings.TrimSpace(query)

	if res := matchCode(tree, query); res.Kind != NoMatch {
		return Resolution{Stage: StageCode, Matches: res.Matches}, nil
	}
	if res := matchCountry(tree, query); res.Kind != NoMatch {
		return Resolution{Stage: StageCountry, Matches: res.Matches}, nil
	}
	if res := matchArea(tree, query); res.Kind != NoMatch {
		return Resolution{Stage: StageArea, Matches: res.Matches}, nil
	}

	res, err := matchWildcard(ctx, tree, index, query)
	if err != nil {
		return Resolution{}, fmt.Errorf("wildcard stage: %w", err)
	}
	if res.Kind != NoMatch {
		return Resolution{Stage: StageWildcard, Matches: res.Matches}, nil
	}
	return Resolution{Stage: StageNone}, nil
}

// matchCode yields the totals of the country named by an ISO code. A code
// whose country is missing or has no totals falls through.
func matchCode(tree *domain.Tree, query string) StageResult {
	name, ok := CountryForCode(query)
	if !ok {
		return StageResult{Kind: NoMatch}
	}
	c, ok := tree.Country(name)
	if !ok || c.Totals == nil {
		return StageResult{Kind: NoMatch}
	}
	return stageResult([]domain.Match{{Label: c.Name, Metrics: *c.Totals}})
}

func matchCountry(tree *domain.Tree, query string) StageResult {
	for _, c := range tree.Countries() {
		if c.Totals != nil && strings.EqualFold(c.Name, query) {
			return stageResult([]domain.Match{{Label: c.Name, Metrics: *c.Totals}})
		}
	}
	return StageResult{Kind: NoMatch}
}

// matchArea returns every area, in any country, whose name equals query.
func matchArea(tree *domain.Tree, query string) StageResult {
	var matches []domain.Match
	for _, c := range tree.Countries() {
		for _, area := range c.AreaNames() {
			if !strings.EqualFold(area, query) {
				continue
			}
			m, _ := c.Area(area)
			matches = append(matches, domain.Match{Label: domain.AreaLabel(area, c.Name), Metrics: m})
		}
	}
	return stageResult(matches)
}

// matchWildcard runs a substring search. Country documents without totals
// carry no metrics and are skipped.
func matchWildcard(ctx context.Context, tree *domain.Tree, index Searcher, query string) (StageResult, error) {
	docs, err := index.Search(ctx, query)
	if err != nil {
		return StageResult{}, err
	}

	matches := make([]domain.Match, 0, len(docs))
	for _, d := range docs {
		c, ok := tree.Country(d.Country)
		if !ok {
			continue
		}
		if d.IsArea() {
			if m, ok := c.Area(d.Area); ok {
				matches = append(matches, domain.Match{Label: d.Location, Metrics: m})
			}
			continue
		}
		if c.Totals != nil {
			matches = append(matches, domain.Match{Label: d.Location, Metrics: *c.Totals})
		}
	}
	return stageResult(matches), nil
}
