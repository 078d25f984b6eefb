package domain

import (
	"strings"
	"time"
)

// Metrics is one case-count record for a location.
type Metrics struct {
	Cases      int64     `json:"cases"`
	Deaths     *int64    `json:"deaths,omitempty"`
	Recoveries *int64    `json:"recoveries,omitempty"`
	LastUpdate time.Time `json:"last_update"`
}

// Count returns a pointer to n, for populating the optional Metrics fields.
func Count(n int64) *int64 {
	return &n
}

// Country is a node of the location tree: an optional country-wide total plus
// any number of named areas.
type Country struct {
	Name   string
	Totals *Metrics

	areaOrder []string
	areas     map[string]Metrics
}

func newCountry(name string) *Country {
	return &Country{Name: name, areas: make(map[string]Metrics)}
}

// Area returns the metrics recorded for the named area.
func (c *Country) Area(name string) (Metrics, bool) {
	m, ok := c.areas[name]
	return m, ok
}

// AreaNames returns area names in first-insertion order.
func (c *Country) AreaNames() []string {
	out := make([]string, len(c.areaOrder))
	copy(out, c.areaOrder)
	return out
}

// AreaCount returns the number of areas under the country.
func (c *Country) AreaCount() int {
	return len(c.areaOrder)
}

func (c *Country) setArea(name string, m Metrics) {
	if _, ok := c.areas[name]; !ok {
		c.areaOrder = append(c.areaOrder, name)
	}
	c.areas[name] = m
}

// Tree is the merged location hierarchy produced by Normalize. It is built
// once per refresh and treated as immutable after publication.
type Tree struct {
	order  []*Country
	byName map[string]*Country
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{byName: make(map[string]*Country)}
}

// Country returns the country with the exact canonical name.
func (t *Tree) Country(name string) (*Country, bool) {
	c, ok := t.byName[name]
	return c, ok
}

// Countries returns countries in first-insertion order.
func (t *Tree) Countries() []*Country {
	out := make([]*Country, len(t.order))
	copy(out, t.order)
	return out
}

// Len returns the number of countries.
func (t *Tree) Len() int {
	return len(t.order)
}

// AreaCount returns the total number of areas across all countries.
func (t *Tree) AreaCount() int {
	n := 0
	for _, c := range t.order {
		n += c.AreaCount()
	}
	return n
}

// getOrCreate returns the named country, creating it on first reference.
func (t *Tree) getOrCreate(name string) *Country {
	if c, ok := t.byName[name]; ok {
		return c
	}
	c := newCountry(name)
	t.byName[name] = c
	t.order = append(t.order, c)
	return c
}

// SetTotals records the country-wide total, creating the country if needed.
// It reports whether a previous total was overwritten.
func (t *Tree) SetTotals(country string, m Metrics) bool {
	c := t.getOrCreate(country)
	replaced := c.Totals != nil
	c.Totals = &m
	return replaced
}

// SetArea records an area under a country, creating either if needed.
func (t *Tree) SetArea(country, area string, m Metrics) {
	t.getOrCreate(country).setArea(area, m)
}

// Match pairs a display label with the metrics it resolved to.
type Match struct {
	Label   string  `json:"location"`
	Metrics Metrics `json:"metrics"`
}

// AreaLabel formats the display label for an area document.
func AreaLabel(area, country string) string {
	return area + ", " + country
}

// BatchKind tells the normalizer how to interpret the rows of a batch.
type BatchKind int

const (
	// KindCountryRows rows carry their own country and may be totals or areas.
	KindCountryRows BatchKind = iota
	// KindAreaInjection rows are all areas of the batch's owner country.
	KindAreaInjection
)

// Row is one (location, metrics) pair produced by a feed parser.
type Row struct {
	Country string
	Area    string
	Metrics Metrics
}

// IsTotal reports whether a country-rows record is the country-wide total:
// the area is blank or case-insensitively equals the country.
func (r Row) IsTotal(country string) bool {
	return r.Area == "" || strings.EqualFold(r.Area, country)
}

// Batch is the output of one feed fetch.
type Batch struct {
	Source  Source
	Kind    BatchKind
	Country string // owner for KindAreaInjection
	Rows    []Row
}
