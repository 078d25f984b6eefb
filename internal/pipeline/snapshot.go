package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/outbreak-lookup-service/internal/adapter/sqlindex"
	"github.com/couchcryptid/outbreak-lookup-service/internal/domain"
)

// ErrNoSnapshot is returned by Acquire before the first successful refresh.
var ErrNoSnapshot = errors.New("no snapshot loaded yet")

// ErrClosed is returned by a refresh that completes after Close.
var ErrClosed = errors.New("scheduler closed")

// Index is the search structure published with a tree.
type Index interface {
	Search(ctx context.Context, query string) ([]sqlindex.Document, error)
	Len() int
	Close() error
}

// IndexBuilder builds a complete Index from a tree.
type IndexBuilder interface {
	Build(ctx context.Context, tree *domain.Tree) (Index, error)
}

// SQLIndexBuilder adapts a sqlindex.Builder to IndexBuilder.
func SQLIndexBuilder(b *sqlindex.Builder) IndexBuilder {
	return sqlBuilder{b}
}

type sqlBuilder struct {
	b *sqlindex.Builder
}

func (s sqlBuilder) Build(ctx context.Context, tree *domain.Tree) (Index, error) {
	ix, err := s.b.Build(ctx, tree)
	if err != nil {
		return nil, err
	}
	return ix, nil
}

// Snapshot is an immutable (tree, index) pair. Readers hold it between
// Acquire and release; it is retired only after they let go.
type Snapshot struct {
	ID      string
	BuiltAt time.Time
	Tree    *domain.Tree
	Index   Index

	mu      sync.RWMutex
	retired bool
}

// tryAcquire read-locks the snapshot unless it has been retired.
func (s *Snapshot) tryAcquire() bool {
	s.mu.RLock()
	if s.retired {
		s.mu.RUnlock()
		return false
	}
	return true
}

func (s *Snapshot) release() {
	s.mu.RUnlock()
}

// retire waits for current readers, then closes the index.
func (s *Snapshot) retire(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retired {
		return
	}
	s.retired = true
	if err := s.Index.Close(); err != nil {
		logger.Warn("close retired index failed", "snapshot", s.ID, "error", err)
	}
}
