package domain

import (
	"errors"
	"fmt"
)

// Source identifies an upstream feed. The declaration order is the merge
// priority used by Normalize: later sources overwrite earlier ones.
type Source int

const (
	SourcePrimary Source = iota
	SourceNHSRegions
	SourceUKRegions
	SourceDistricts
	SourceConstituents
	SourceSubnational
)

var sourceNames = map[Source]string{
	SourcePrimary:      "primary",
	SourceNHSRegions:   "nhs_regions",
	SourceUKRegions:    "uk_regions",
	SourceDistricts:    "districts",
	SourceConstituents: "constituents",
	SourceSubnational:  "subnational",
}

func (s Source) String() string {
	if n, ok := sourceNames[s]; ok {
		return n
	}
	return fmt.Sprintf("source(%d)", int(s))
}

// ErrEmptyFeed is returned by parsers when a payload has no usable rows.
var ErrEmptyFeed = errors.New("feed contained no rows")

// FetchError reports that a feed could not be retrieved or parsed.
type FetchError struct {
	Source Source
	URL    string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s feed: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
