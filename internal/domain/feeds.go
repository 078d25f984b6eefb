package domain

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Column names of the upstream payloads.
const (
	primaryCountryCol   = "Country"
	primaryProvinceCol  = "Province"
	primaryConfirmedCol = "Confirmed"
	primaryDeathsCol    = "Deaths"
	primaryRecoveredCol = "Recovered"
	primaryUpdatedCol   = "LastUpdated"

	// NHSRegionColumn and UKRegionColumn name the location column of the two
	// regional breakdown feeds.
	NHSRegionColumn  = "NHSRNm"
	UKRegionColumn   = "GSS_NM"
	regionalCasesCol = "TotalCases"

	seriesDateCol      = "Date"
	seriesCountryCol   = "Country"
	seriesIndicatorCol = "Indicator"
	seriesValueCol     = "Value"
	seriesAreaCol      = "Area"
	seriesCasesCol     = "TotalCases"

	// seriesDateLayout is the zero-padded date used by the time-series feeds.
	// Lexicographic order equals chronological order only because of the padding.
	seriesDateLayout = "2006-01-02"
)

// Indicator keys of the constituent feed that map onto Metrics fields.
const (
	IndicatorConfirmedCases = "ConfirmedCases"
	IndicatorDeaths         = "Deaths"
)

// ConstituentRegion is one constituent region of the constituent feed and the
// nominal time of day its figures are published.
type ConstituentRegion struct {
	Name      string
	UpdatedAt time.Duration // offset from midnight UTC
}

// DefaultConstituentRegions lists the four constituent regions in output order.
var DefaultConstituentRegions = []ConstituentRegion{
	{Name: "England", UpdatedAt: 18 * time.Hour},
	{Name: "Scotland", UpdatedAt: 14 * time.Hour},
	{Name: "Wales", UpdatedAt: 12 * time.Hour},
	{Name: "Northern Ireland", UpdatedAt: 14 * time.Hour},
}

// KnownGap is a documented blank count in the sub-national feed.
type KnownGap struct {
	Area string
	Date string
}

// DefaultKnownGaps holds the blank counts that are expected upstream.
var DefaultKnownGaps = []KnownGap{
	{Area: "Shetland", Date: "2020-03-20"},
}

// ParsePrimaryFeed parses the semicolon-delimited primary case feed:
//
//	Country;Province;Confirmed;Deaths;Recovered;LastUpdated
//
// LastUpdated is epoch milliseconds; a blank value is replaced by fetchedAt.
// Blank counts are zero. Rows are returned in payload order with the raw
// country label; renaming is the normalizer's job.
func ParsePrimaryFeed(r io.Reader, fetchedAt time.Time) ([]Row, error) {
	cr := newCSVReader(r, ';')
	cols, err := readHeader(cr, primaryCountryCol, primaryProvinceCol, primaryConfirmedCol,
		primaryDeathsCol, primaryRecoveredCol, primaryUpdatedCol)
	if err != nil {
		return nil, fmt.Errorf("parse primary feed: %w", err)
	}

	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse primary feed line %d: %w", line, err)
		}

		m, err := parsePrimaryMetrics(rec, cols, fetchedAt)
		if err != nil {
			return nil, fmt.Errorf("parse primary feed line %d: %w", line, err)
		}
		rows = append(rows, Row{
			Country: cols.get(rec, primaryCountryCol),
			Area:    cols.get(rec, primaryProvinceCol),
			Metrics: m,
		})
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("parse primary feed: %w", ErrEmptyFeed)
	}
	return rows, nil
}

func parsePrimaryMetrics(rec []string, cols columns, fetchedAt time.Time) (Metrics, error) {
	cases, err := parseCount(cols.get(rec, primaryConfirmedCol))
	if err != nil {
		return Metrics{}, fmt.Errorf("%s: %w", primaryConfirmedCol, err)
	}
	deaths, err := parseCount(cols.get(rec, primaryDeathsCol))
	if err != nil {
		return Metrics{}, fmt.Errorf("%s: %w", primaryDeathsCol, err)
	}
	recovered, err := parseCount(cols.get(rec, primaryRecoveredCol))
	if err != nil {
		return Metrics{}, fmt.Errorf("%s: %w", primaryRecoveredCol, err)
	}
	updated, err := parseEpochMillis(cols.get(rec, primaryUpdatedCol), fetchedAt)
	if err != nil {
		return Metrics{}, fmt.Errorf("%s: %w", primaryUpdatedCol, err)
	}
	return Metrics{
		Cases:      cases,
		Deaths:     Count(deaths),
		Recoveries: Count(recovered),
		LastUpdate: updated,
	}, nil
}

// ParseRegionalFeed parses a comma-delimited regional breakdown with a location
// column and a cumulative TotalCases column. Thousands separators are stripped.
// Rows carry only the area name and cases; the owner country is set by the caller.
func ParseRegionalFeed(r io.Reader, nameColumn string, fetchedAt time.Time) ([]Row, error) {
	cr := newCSVReader(r, ',')
	cols, err := readHeader(cr, nameColumn, regionalCasesCol)
	if err != nil {
		return nil, fmt.Errorf("parse regional feed: %w", err)
	}

	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse regional feed line %d: %w", line, err)
		}

		name := cols.get(rec, nameColumn)
		if name == "" {
			continue
		}
		cases, err := parseCount(cols.get(rec, regionalCasesCol))
		if err != nil {
			return nil, fmt.Errorf("parse regional feed line %d: %w", line, err)
		}
		rows = append(rows, Row{Area: name, Metrics: Metrics{Cases: cases, LastUpdate: fetchedAt.UTC()}})
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("parse regional feed: %w", ErrEmptyFeed)
	}
	return rows, nil
}

// ParseConstituentFeed parses the constituent-region indicator series
// (Date,Country,Indicator,Value). For each region only the rows of its latest
// date are kept and pivoted into one Metrics record; ConfirmedCases becomes
// cases and Deaths becomes deaths. The timestamp is the latest date plus the
// region's nominal publication time. Regions absent from the feed are omitted.
func ParseConstituentFeed(r io.Reader, regions []ConstituentRegion) ([]Row, error) {
	cr := newCSVReader(r, ',')
	cols, err := readHeader(cr, seriesDateCol, seriesCountryCol, seriesIndicatorCol, seriesValueCol)
	if err != nil {
		return nil, fmt.Errorf("parse constituent feed: %w", err)
	}

	type latest struct {
		date       string
		indicators map[string]string
	}
	byRegion := make(map[string]*latest, len(regions))
	for _, reg := range regions {
		byRegion[reg.Name] = &latest{}
	}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse constituent feed line %d: %w", line, err)
		}

		l, ok := byRegion[cols.get(rec, seriesCountryCol)]
		if !ok {
			continue
		}
		date := cols.get(rec, seriesDateCol)
		switch {
		case date == "":
			continue
		case date > l.date:
			l.date = date
			l.indicators = map[string]string{}
		case date < l.date:
			continue
		}
		l.indicators[cols.get(rec, seriesIndicatorCol)] = cols.get(rec, seriesValueCol)
	}

	var rows []Row
	for _, reg := range regions {
		l := byRegion[reg.Name]
		if l.date == "" {
			continue
		}
		day, err := time.Parse(seriesDateLayout, l.date)
		if err != nil {
			return nil, fmt.Errorf("parse constituent feed: %s date %q: %w", reg.Name, l.date, err)
		}
		m := Metrics{LastUpdate: day.Add(reg.UpdatedAt).UTC()}
		if m.Cases, err = parseCount(l.indicators[IndicatorConfirmedCases]); err != nil {
			return nil, fmt.Errorf("parse constituent feed: %s cases: %w", reg.Name, err)
		}
		if v, ok := l.indicators[IndicatorDeaths]; ok {
			deaths, err := parseCount(v)
			if err != nil {
				return nil, fmt.Errorf("parse constituent feed: %s deaths: %w", reg.Name, err)
			}
			m.Deaths = Count(deaths)
		}
		rows = append(rows, Row{Area: reg.Name, Metrics: m})
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("parse constituent feed: %w", ErrEmptyFeed)
	}
	return rows, nil
}

// SubnationalResult is the output of ParseSubnationalFeed.
type SubnationalResult struct {
	Date string
	Rows []Row
	// UnexpectedBlanks lists areas whose blank count was treated as zero
	// without being a known gap.
	UnexpectedBlanks []string
}

// ParseSubnationalFeed parses the area-level series
// (Date,Country,AreaCode,Area,TotalCases), keeping only rows of the given
// constituent region at its latest date. Blank counts are zero.
func ParseSubnationalFeed(r io.Reader, region string, gaps []KnownGap) (SubnationalResult, error) {
	cr := newCSVReader(r, ',')
	cols, err := readHeader(cr, seriesDateCol, seriesCountryCol, seriesAreaCol, seriesCasesCol)
	if err != nil {
		return SubnationalResult{}, fmt.Errorf("parse subnational feed: %w", err)
	}

	type areaCount struct {
		area  string
		count string
	}
	var (
		maxDate string
		current []areaCount
	)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return SubnationalResult{}, fmt.Errorf("parse subnational feed line %d: %w", line, err)
		}
		if cols.get(rec, seriesCountryCol) != region {
			continue
		}
		date := cols.get(rec, seriesDateCol)
		switch {
		case date == "":
			continue
		case date > maxDate:
			maxDate = date
			current = current[:0]
		case date < maxDate:
			continue
		}
		current = append(current, areaCount{area: cols.get(rec, seriesAreaCol), count: cols.get(rec, seriesCasesCol)})
	}
	if maxDate == "" {
		return SubnationalResult{}, fmt.Errorf("parse subnational feed: no rows for %s: %w", region, ErrEmptyFeed)
	}

	day, err := time.Parse(seriesDateLayout, maxDate)
	if err != nil {
		return SubnationalResult{}, fmt.Errorf("parse subnational feed: date %q: %w", maxDate, err)
	}

	res := SubnationalResult{Date: maxDate}
	for _, ac := range current {
		if ac.area == "" {
			continue
		}
		if strings.TrimSpace(ac.count) == "" && !isKnownGap(gaps, ac.area, maxDate) {
			res.UnexpectedBlanks = append(res.UnexpectedBlanks, ac.area)
		}
		cases, err := parseCount(ac.count)
		if err != nil {
			return SubnationalResult{}, fmt.Errorf("parse subnational feed: %s: %w", ac.area, err)
		}
		res.Rows = append(res.Rows, Row{Area: ac.area, Metrics: Metrics{Cases: cases, LastUpdate: day}})
	}
	return res, nil
}

func isKnownGap(gaps []KnownGap, area, date string) bool {
	for _, g := range gaps {
		if g.Area == area && g.Date == date {
			return true
		}
	}
	return false
}

// districtPayload is the JSON shape of the district feed: one element per
// confirmed case.
type districtPayload struct {
	RawData []struct {
		District string `json:"detecteddistrict"`
	} `json:"raw_data"`
}

// ParseDistrictFeed counts confirmed-case events per district. Events with a
// blank district are excluded. Rows are returned in order of first appearance.
func ParseDistrictFeed(r io.Reader, fetchedAt time.Time) ([]Row, error) {
	var payload districtPayload
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("parse district feed: %w", err)
	}

	counts := make(map[string]int64)
	var order []string
	for _, ev := range payload.RawData {
		d := strings.TrimSpace(ev.District)
		if d == "" {
			continue
		}
		if _, ok := counts[d]; !ok {
			order = append(order, d)
		}
		counts[d]++
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("parse district feed: %w", ErrEmptyFeed)
	}

	rows := make([]Row, 0, len(order))
	for _, d := range order {
		rows = append(rows, Row{Area: d, Metrics: Metrics{Cases: counts[d], LastUpdate: fetchedAt.UTC()}})
	}
	return rows, nil
}

// parseCount parses a non-negative integer count. Blank is zero and
// thousands separators are ignored.
func parseCount(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid count %q", s)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative count %q", s)
	}
	return n, nil
}

// parseEpochMillis converts an epoch-milliseconds string into a UTC time with
// second precision. Blank returns fallback.
func parseEpochMillis(s string, fallback time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback.UTC().Truncate(time.Second), nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	return time.Unix(ms/1000, 0).UTC(), nil
}

func newCSVReader(r io.Reader, comma rune) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	return cr
}

// columns maps header names to record indexes.
type columns map[string]int

func (c columns) get(rec []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// readHeader reads the header row and verifies the required columns exist.
func readHeader(cr *csv.Reader, required ...string) (columns, error) {
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(columns, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		cols[h] = i
	}
	var missing []string
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}
