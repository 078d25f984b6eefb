package sqlindex

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/outbreak-lookup-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTree() *domain.Tree {
	ts := time.Date(2020, time.April, 1, 0, 0, 0, 0, time.UTC)
	tree := domain.NewTree()
	tree.SetTotals("France", domain.Metrics{Cases: 100, LastUpdate: ts})
	tree.SetArea("France", "Île-de-France", domain.Metrics{Cases: 40, LastUpdate: ts})
	tree.SetArea("Oceania", "Elbonia", domain.Metrics{Cases: 7, LastUpdate: ts})
	tree.SetTotals("Germany", domain.Metrics{Cases: 90, LastUpdate: ts})
	return tree
}

func buildIndex(t *testing.T, tree *domain.Tree) *Index {
	t.Helper()
	b := NewBuilder(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ix, err := b.Build(context.Background(), tree)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })
	return ix
}

func locations(docs []Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Location)
	}
	return out
}

func TestBuild_DocumentsInTreeOrder(t *testing.T) {
	ix := buildIndex(t, testTree())
	assert.Equal(t, 5, ix.Len())

	docs, err := ix.Search(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"France",
		"Île-de-France, France",
		"Oceania",
		"Elbonia, Oceania",
		"Germany",
	}, locations(docs))
}

func TestSearch_Substring(t *testing.T) {
	ix := buildIndex(t, testTree())

	docs, err := ix.Search(context.Background(), "lboni")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, Document{ID: 4, Country: "Oceania", Area: "Elbonia", Location: "Elbonia, Oceania"}, docs[0])
	assert.True(t, docs[0].IsArea())
}

func TestSearch_CaseInsensitive(t *testing.T) {
	ix := buildIndex(t, testTree())

	for _, q := range []string{"FRANCE", "france", "France"} {
		docs, err := ix.Search(context.Background(), q)
		require.NoError(t, err)
		assert.Equal(t, []string{"France", "Île-de-France, France"}, locations(docs), q)
	}
}

func TestSearch_FoldsNonASCII(t *testing.T) {
	ix := buildIndex(t, testTree())

	docs, err := ix.Search(context.Background(), "ÎLE")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Île-de-France", docs[0].Area)
}

func TestSearch_NoMatch(t *testing.T) {
	ix := buildIndex(t, testTree())

	docs, err := ix.Search(context.Background(), "atlantis")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestBuild_IndependentIndexes(t *testing.T) {
	first := buildIndex(t, testTree())

	other := domain.NewTree()
	other.SetTotals("Spain", domain.Metrics{Cases: 1})
	second := buildIndex(t, other)

	docs, err := first.Search(context.Background(), "spain")
	require.NoError(t, err)
	assert.Empty(t, docs)

	docs, err = second.Search(context.Background(), "spain")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestBuild_OneBuilderManyIndexes(t *testing.T) {
	b := NewBuilder(slog.New(slog.NewTextHandler(io.Discard, nil)))
	first, err := b.Build(context.Background(), testTree())
	require.NoError(t, err)
	defer first.Close()

	second, err := b.Build(context.Background(), testTree())
	require.NoError(t, err)
	defer second.Close()

	assert.Equal(t, first.Len(), second.Len())
}

func TestSearch_AfterClose(t *testing.T) {
	b := NewBuilder(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ix, err := b.Build(context.Background(), testTree())
	require.NoError(t, err)
	require.NoError(t, ix.Close())

	_, err = ix.Search(context.Background(), "france")
	assert.Error(t, err)
}

func TestBuild_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := NewBuilder(slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := b.Build(ctx, testTree())
	assert.Error(t, err)
}
