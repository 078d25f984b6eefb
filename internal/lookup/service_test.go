package lookup

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/couchcryptid/outbreak-lookup-service/internal/domain"
	"github.com/couchcryptid/outbreak-lookup-service/internal/observability"
	"github.com/couchcryptid/outbreak-lookup-service/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSnapshots struct {
	snap     *pipeline.Snapshot
	warning  error
	ensured  int
	acquired int
	released int
}

func (f *fakeSnapshots) EnsureFresh() { f.ensured++ }

func (f *fakeSnapshots) Acquire() (*pipeline.Snapshot, func(), error) {
	if f.snap == nil {
		return nil, nil, pipeline.ErrNoSnapshot
	}
	f.acquired++
	return f.snap, func() { f.released++ }, nil
}

func (f *fakeSnapshots) Warning() error { return f.warning }

func newTestService(t *testing.T, tree *domain.Tree) (*Service, *fakeSnapshots, *observability.Metrics) {
	t.Helper()
	snaps := &fakeSnapshots{snap: &pipeline.Snapshot{ID: "snap-1", BuiltAt: ts, Tree: tree, Index: buildIndex(t, tree)}}
	m := observability.NewMetricsForTesting()
	svc := NewService(snaps, []string{"http://a", "http://b", "http://c"}, DefaultMaxMatches, 100, discardLogger(), m)
	return svc, snaps, m
}

func TestLookup_Unique(t *testing.T) {
	svc, snaps, m := newTestService(t, fixtureTree())

	a, err := svc.Lookup(context.Background(), "  france ")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnique, a.Outcome)
	assert.Equal(t, "france", a.Query)
	assert.Equal(t, "country", a.Stage)
	assert.Equal(t, []domain.Match{{Label: "France", Metrics: metrics(100)}}, a.Matches)
	assert.Equal(t, "snap-1", a.SnapshotID)
	assert.Empty(t, a.Warning)

	assert.Equal(t, 1, snaps.ensured)
	assert.Equal(t, snaps.acquired, snaps.released)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Lookups.WithLabelValues("unique")), 0)
}

func TestLookup_EmptyQueryIsWorld(t *testing.T) {
	svc, _, _ := newTestService(t, fixtureTree())

	a, err := svc.Lookup(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, DefaultQuery, a.Query)
	assert.Equal(t, OutcomeUnique, a.Outcome)
	assert.Equal(t, "World", a.Matches[0].Label)
}

func TestLookup_Ambiguous(t *testing.T) {
	svc, _, _ := newTestService(t, fixtureTree())

	a, err := svc.Lookup(context.Background(), "Cambridge")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAmbiguous, a.Outcome)
	assert.Equal(t, 2, a.Count)
	assert.Len(t, a.Matches, 2)
}

func TestLookup_NotFound(t *testing.T) {
	svc, _, m := newTestService(t, fixtureTree())

	a, err := svc.Lookup(context.Background(), "atlantis")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, a.Outcome)
	assert.Equal(t, "none", a.Stage)
	assert.Empty(t, a.Matches)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Lookups.WithLabelValues("not_found")), 0)
}

func TestLookup_TooMany(t *testing.T) {
	tree := domain.NewTree()
	for i := range 50 {
		tree.SetArea("Testland", fmt.Sprintf("Area %02d", i), metrics(1))
	}
	svc, _, _ := newTestService(t, tree)

	a, err := svc.Lookup(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, OutcomeTooMany, a.Outcome)
	assert.Equal(t, 50, a.Count)
	assert.Empty(t, a.Matches, "too many matches are not listed")
}

func TestLookup_ThresholdIsInclusive(t *testing.T) {
	tree := domain.NewTree()
	for i := range DefaultMaxMatches {
		tree.SetArea("Testland", fmt.Sprintf("Area %02d", i), metrics(1))
	}
	svc, _, _ := newTestService(t, tree)

	a, err := svc.Lookup(context.Background(), "area")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAmbiguous, a.Outcome)
	assert.Len(t, a.Matches, DefaultMaxMatches)
}

func TestLookup_StaleWarning(t *testing.T) {
	svc, snaps, _ := newTestService(t, fixtureTree())
	snaps.warning = &domain.FetchError{Source: domain.SourcePrimary, URL: "http://a", Err: errors.New("503")}

	a, err := svc.Lookup(context.Background(), "France")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnique, a.Outcome)
	assert.Contains(t, a.Warning, "fetch primary feed")
}

func TestLookup_NoSnapshot(t *testing.T) {
	svc := NewService(&fakeSnapshots{}, nil, 0, 0, discardLogger(), observability.NewMetricsForTesting())

	_, err := svc.Lookup(context.Background(), "France")
	require.ErrorIs(t, err, ErrNoSnapshot)
}

func TestLookup_CachesPerSnapshot(t *testing.T) {
	svc, snaps, m := newTestService(t, fixtureTree())

	_, err := svc.Lookup(context.Background(), "France")
	require.NoError(t, err)
	_, err = svc.Lookup(context.Background(), "FRANCE")
	require.NoError(t, err)
	assert.InDelta(t, 1, testutil.ToFloat64(m.LookupCache.WithLabelValues("hit")), 0)

	tree := domain.NewTree()
	tree.SetTotals("France", metrics(200))
	snaps.snap = &pipeline.Snapshot{ID: "snap-2", Tree: tree, Index: buildIndex(t, tree)}

	a, err := svc.Lookup(context.Background(), "France")
	require.NoError(t, err)
	assert.Equal(t, int64(200), a.Matches[0].Metrics.Cases, "a new snapshot is never served from the old cache")
}

func TestLookupMany(t *testing.T) {
	svc, _, _ := newTestService(t, fixtureTree())

	got, err := svc.LookupMany(context.Background(), []string{"France", " fr ", "elbonia", ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"France", "Elbonia, Oceania"}, labels(got.Matches), "duplicates collapse")
	assert.Equal(t, "snap-1", got.SnapshotID)
}

func TestLookupMany_Errors(t *testing.T) {
	tree := fixtureTree()
	for i := range 10 {
		tree.SetArea("Testland", fmt.Sprintf("Zone %02d", i), metrics(1))
	}
	svc, _, _ := newTestService(t, tree)
	ctx := context.Background()

	_, err := svc.LookupMany(ctx, []string{"France", "atlantis"})
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "atlantis", nf.Query)

	_, err = svc.LookupMany(ctx, []string{"cambridge", "France"})
	var amb *AmbiguousError
	require.ErrorAs(t, err, &amb)
	assert.Equal(t, "cambridge", amb.Query)
	assert.Equal(t, []string{"Cambridge, United States", "Cambridge, United Kingdom"}, amb.Candidates)

	_, err = svc.LookupMany(ctx, []string{"zone"})
	var many *TooManyMatchesError
	require.ErrorAs(t, err, &many)
	assert.Equal(t, 10, many.Count)

	_, err = svc.LookupMany(ctx, []string{" ", ""})
	require.ErrorIs(t, err, ErrNoLocations)
}

func TestSourcesDescription(t *testing.T) {
	m := observability.NewMetricsForTesting()
	tests := []struct {
		sources []string
		want    string
	}{
		{nil, ""},
		{[]string{"a"}, "a"},
		{[]string{"a", "b"}, "a and b"},
		{[]string{"a", "b", "c"}, "a, b and c"},
	}
	for _, tt := range tests {
		svc := NewService(&fakeSnapshots{}, tt.sources, 0, 0, discardLogger(), m)
		assert.Equal(t, tt.want, svc.SourcesDescription())
	}
}
