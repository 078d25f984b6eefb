// Package fixture stores captured feed payloads on disk so a refresh can be
// replayed offline.
package fixture

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/couchcryptid/outbreak-lookup-service/internal/adapter/feed"
	"github.com/couchcryptid/outbreak-lookup-service/internal/domain"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the manifest's name inside a fixture directory.
const ManifestFile = "manifest.yaml"

// ErrUnknownURL is returned by Getter for a URL the manifest does not list.
var ErrUnknownURL = errors.New("url not in fixture manifest")

// Manifest describes one capture run.
type Manifest struct {
	CapturedAt time.Time `yaml:"captured_at"`
	Feeds      []Entry   `yaml:"feeds"`
}

// Entry is one captured feed payload.
type Entry struct {
	Source string `yaml:"source"`
	URL    string `yaml:"url"`
	File   string `yaml:"file"`
	Bytes  int    `yaml:"bytes"`
	SHA256 string `yaml:"sha256"`
}

// FileName returns the payload file name used for a source.
func FileName(source domain.Source) string {
	return source.String() + ".data"
}

// Checksum returns the hex SHA-256 of body.
func Checksum(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Load reads dir's manifest.
func Load(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if len(m.Feeds) == 0 {
		return nil, errors.New("manifest lists no feeds")
	}
	return &m, nil
}

// Write stores m as dir's manifest, creating dir if needed.
func Write(dir string, m *Manifest) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create fixture dir: %w", err)
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), data, 0o644); err != nil { //nolint:gosec // fixtures are not secret
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// URLs maps the manifest entries back to feed locations. Sources the
// manifest does not list stay empty and are therefore disabled.
func (m *Manifest) URLs() feed.URLs {
	var u feed.URLs
	for _, e := range m.Feeds {
		switch e.Source {
		case domain.SourcePrimary.String():
			u.Primary = e.URL
		case domain.SourceNHSRegions.String():
			u.NHSRegions = e.URL
		case domain.SourceUKRegions.String():
			u.UKRegions = e.URL
		case domain.SourceConstituents.String():
			u.Constituents = e.URL
		case domain.SourceSubnational.String():
			u.Subnational = e.URL
		case domain.SourceDistricts.String():
			u.Districts = e.URL
		}
	}
	return u
}

// Getter serves captured payloads by their original URL and verifies each
// against its recorded checksum.
type Getter struct {
	dir     string
	entries map[string]Entry
}

// NewGetter creates a Getter over the fixture directory dir.
func NewGetter(dir string, m *Manifest) *Getter {
	entries := make(map[string]Entry, len(m.Feeds))
	for _, e := range m.Feeds {
		entries[e.URL] = e
	}
	return &Getter{dir: dir, entries: entries}
}

// Get implements feed.Getter.
func (g *Getter) Get(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := g.entries[url]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownURL, url)
	}
	body, err := os.ReadFile(filepath.Join(g.dir, e.File))
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", e.File, err)
	}
	if e.SHA256 != "" && Checksum(body) != e.SHA256 {
		return nil, fmt.Errorf("fixture %s: checksum mismatch", e.File)
	}
	return body, nil
}

// Recorder wraps a feed.Getter and keeps every body it returns.
type Recorder struct {
	next   feed.Getter
	mu     sync.Mutex
	bodies map[string][]byte
}

// NewRecorder creates a Recorder in front of next.
func NewRecorder(next feed.Getter) *Recorder {
	return &Recorder{next: next, bodies: make(map[string][]byte)}
}

// Get implements feed.Getter.
func (r *Recorder) Get(ctx context.Context, url string) ([]byte, error) {
	body, err := r.next.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.bodies[url] = body
	r.mu.Unlock()
	return body, nil
}

// Save writes the body recorded for url into dir under source's file name
// and returns its manifest entry.
func (r *Recorder) Save(dir string, source domain.Source, url string) (Entry, error) {
	r.mu.Lock()
	body, ok := r.bodies[url]
	r.mu.Unlock()
	if !ok {
		return Entry{}, fmt.Errorf("nothing recorded for %s", url)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Entry{}, fmt.Errorf("create fixture dir: %w", err)
	}
	name := FileName(source)
	if err := os.WriteFile(filepath.Join(dir, name), body, 0o644); err != nil { //nolint:gosec // fixtures are not secret
		return Entry{}, fmt.Errorf("write fixture %s: %w", name, err)
	}
	return Entry{
		Source: source.String(),
		URL:    url,
		File:   name,
		Bytes:  len(body),
		SHA256: Checksum(body),
	}, nil
}
