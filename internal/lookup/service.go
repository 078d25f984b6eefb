package lookup

import (
	"context"
	"log/slog"
	"strings"

	"github.com/couchcryptid/outbreak-lookup-service/internal/domain"
	"github.com/couchcryptid/outbreak-lookup-service/internal/observability"
	"github.com/couchcryptid/outbreak-lookup-service/internal/pipeline"
)

// DefaultQuery is answered when the caller gives no location.
const DefaultQuery = "World"

// DefaultMaxMatches is the largest result set still reported as a list of
// candidates rather than too_many.
const DefaultMaxMatches = 5

// Outcome classifies a lookup answer.
type Outcome string

const (
	OutcomeUnique    Outcome = "unique"
	OutcomeAmbiguous Outcome = "ambiguous"
	OutcomeTooMany   Outcome = "too_many"
	OutcomeNotFound  Outcome = "not_found"
)

// Snapshots is the scheduler as seen by the query path.
type Snapshots interface {
	EnsureFresh()
	Acquire() (*pipeline.Snapshot, func(), error)
	Warning() error
}

// Answer is the result of a single-location lookup. Matches is empty for
// not_found and too_many; Count always holds the number of matches.
type Answer struct {
	Outcome    Outcome        `json:"outcome"`
	Query      string         `json:"query"`
	Stage      string         `json:"stage"`
	Matches    []domain.Match `json:"matches,omitempty"`
	Count      int            `json:"count"`
	SnapshotID string         `json:"snapshot_id"`
	Warning    string         `json:"warning,omitempty"`
}

// Comparison is the result of LookupMany: one match per requested location,
// duplicates collapsed, in request order.
type Comparison struct {
	Matches    []domain.Match `json:"matches"`
	SnapshotID string         `json:"snapshot_id"`
	Warning    string         `json:"warning,omitempty"`
}

// Service answers location queries against the current snapshot.
type Service struct {
	snapshots  Snapshots
	resolver   *Resolver
	cache      *resultCache
	sources    []string
	maxMatches int
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewService creates a Service. sources lists the feed URLs in use;
// cacheSize 0 disables resolution caching.
func NewService(snapshots Snapshots, sources []string, maxMatches, cacheSize int, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if maxMatches <= 0 {
		maxMatches = DefaultMaxMatches
	}
	return &Service{
		snapshots:  snapshots,
		resolver:   NewResolver(),
		cache:      newResultCache(cacheSize),
		sources:    sources,
		maxMatches: maxMatches,
		logger:     logger,
		metrics:    metrics,
	}
}

// Lookup resolves text against the current snapshot, triggering a
// background refresh if the snapshot is due. The answer never waits for
// that refresh.
func (s *Service) Lookup(ctx context.Context, text string) (Answer, error) {
	query := strings.TrimSpace(text)
	if query == "" {
		query = DefaultQuery
	}

	s.snapshots.EnsureFresh()
	snap, release, err := s.snapshots.Acquire()
	if err != nil {
		return Answer{}, err
	}
	defer release()

	res, err := s.resolve(ctx, snap, query)
	if err != nil {
		return Answer{}, err
	}

	a := Answer{
		Query:      query,
		Stage:      res.Stage.String(),
		Count:      len(res.Matches),
		SnapshotID: snap.ID,
		Warning:    s.warning(),
	}
	switch n := len(res.Matches); {
	case n == 0:
		a.Outcome = OutcomeNotFound
	case n == 1:
		a.Outcome = OutcomeUnique
		a.Matches = res.Matches
	case n > s.maxMatches:
		a.Outcome = OutcomeTooMany
	default:
		a.Outcome = OutcomeAmbiguous
		a.Matches = res.Matches
	}

	s.metrics.Lookups.WithLabelValues(string(a.Outcome)).Inc()
	s.logger.Debug("lookup", "query", query, "outcome", a.Outcome, "stage", a.Stage, "matches", a.Count)
	return a, nil
}

// LookupMany resolves every text against one snapshot. Each must resolve to
// exactly one location; otherwise the first offender is reported as a
// *NotFoundError, *AmbiguousError or *TooManyMatchesError.
func (s *Service) LookupMany(ctx context.Context, texts []string) (Comparison, error) {
	var queries []string
	for _, t := range texts {
		if q := strings.TrimSpace(t); q != "" {
			queries = append(queries, q)
		}
	}
	if len(queries) == 0 {
		return Comparison{}, ErrNoLocations
	}

	s.snapshots.EnsureFresh()
	snap, release, err := s.snapshots.Acquire()
	if err != nil {
		return Comparison{}, err
	}
	defer release()

	out := Comparison{SnapshotID: snap.ID, Warning: s.warning()}
	seen := make(map[string]bool, len(queries))
	for _, q := range queries {
		res, err := s.resolve(ctx, snap, q)
		if err != nil {
			return Comparison{}, err
		}
		switch n := len(res.Matches); {
		case n == 0:
			return Comparison{}, &NotFoundError{Query: q}
		case n > s.maxMatches:
			return Comparison{}, &TooManyMatchesError{Query: q, Count: n}
		case n > 1:
			return Comparison{}, &AmbiguousError{Query: q, Candidates: labels(res.Matches)}
		}
		m := res.Matches[0]
		if seen[m.Label] {
			continue
		}
		seen[m.Label] = true
		out.Matches = append(out.Matches, m)
	}
	return out, nil
}

// SourcesDescription lists the feed URLs in use as "a, b and c".
func (s *Service) SourcesDescription() string {
	switch len(s.sources) {
	case 0:
		return ""
	case 1:
		return s.sources[0]
	default:
		return strings.Join(s.sources[:len(s.sources)-1], ", ") + " and " + s.sources[len(s.sources)-1]
	}
}

func (s *Service) resolve(ctx context.Context, snap *pipeline.Snapshot, query string) (Resolution, error) {
	key := cacheKey(snap.ID, query)
	if res, ok := s.cache.get(key); ok {
		s.metrics.LookupCache.WithLabelValues("hit").Inc()
		return res, nil
	}
	s.metrics.LookupCache.WithLabelValues("miss").Inc()

	res, err := s.resolver.Resolve(ctx, snap.Tree, snap.Index, query)
	if err != nil {
		return Resolution{}, err
	}
	s.cache.put(key, res)
	return res, nil
}

func (s *Service) warning() string {
	if err := s.snapshots.Warning(); err != nil {
		return "data may be out of date: last refresh failed: " + err.Error()
	}
	return ""
}

func labels(matches []domain.Match) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Label
	}
	return out
}
