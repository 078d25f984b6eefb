// Package sqlindex builds the substring search index over every resolvable
// location. Each build owns a private in-memory SQLite database.
package sqlindex

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/couchcryptid/outbreak-lookup-service/internal/domain"
)

const schema = `
CREATE TABLE documents (
	id       INTEGER PRIMARY KEY,
	country  TEXT NOT NULL,
	area     TEXT,
	location TEXT NOT NULL,
	folded   TEXT NOT NULL
)`

// Document is one searchable location. Area is empty for country documents.
type Document struct {
	ID       int64
	Country  string
	Area     string
	Location string
}

// IsArea reports whether the document describes an area rather than a country.
func (d Document) IsArea() bool {
	return d.Area != ""
}

// dbSeq names the in-memory databases. Shared-cache memory databases are
// process-wide, so the counter must be too.
var dbSeq atomic.Int64

// Builder creates a fresh Index from a tree.
type Builder struct {
	logger *slog.Logger
}

// NewBuilder creates an index builder.
func NewBuilder(logger *slog.Logger) *Builder {
	return &Builder{logger: logger}
}

// Build emits one document per country followed by one per area of that
// country, in tree order. The returned Index is complete and read-only.
func (b *Builder) Build(ctx context.Context, tree *domain.Tree) (*Index, error) {
	start := time.Now()

	// Every build gets its own named memory database.
	dsn := fmt.Sprintf("file:index-%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open index database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create documents table: %w", err)
	}

	n, err := insertDocuments(ctx, db, tree)
	if err != nil {
		db.Close()
		return nil, err
	}

	b.logger.Debug("search index built", "documents", n, "duration", time.Since(start))
	return &Index{db: db, size: n}, nil
}

func insertDocuments(ctx context.Context, db *sql.DB, tree *domain.Tree) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin index transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO documents (id, country, area, location, folded) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare document insert: %w", err)
	}
	defer stmt.Close()

	var id int64
	insert := func(country string, area sql.NullString, location string) error {
		id++
		if _, err := stmt.ExecContext(ctx, id, country, area, location, fold(location)); err != nil {
			return fmt.Errorf("insert document %q: %w", location, err)
		}
		return nil
	}

	for _, c := range tree.Countries() {
		if err := insert(c.Name, sql.NullString{}, c.Name); err != nil {
			return 0, err
		}
		for _, area := range c.AreaNames() {
			if err := insert(c.Name, sql.NullString{String: area, Valid: true}, domain.AreaLabel(area, c.Name)); err != nil {
				return 0, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit index transaction: %w", err)
	}
	return int(id), nil
}

// Index answers case-insensitive substring queries over document locations.
type Index struct {
	db   *sql.DB
	size int
}

// Len returns the number of documents in the index.
func (ix *Index) Len() int {
	return ix.size
}

// Search returns every document whose location contains query, ignoring
// case, in insertion order.
func (ix *Index) Search(ctx context.Context, query string) ([]Document, error) {
	rows, err := ix.db.QueryContext(ctx,
		`SELECT id, country, area, location FROM documents WHERE instr(folded, ?) > 0 ORDER BY id`,
		fold(query))
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			d    Document
			area sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.Country, &area, &d.Location); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.Area = area.String
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	return docs, nil
}

// Close releases the underlying database.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// fold is applied to both stored locations and queries so matching is
// Unicode case-insensitive; SQLite's lower() only folds ASCII.
func fold(s string) string {
	return strings.ToLower(s)
}
