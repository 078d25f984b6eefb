package lookup

import (
	"errors"
	"fmt"
	"strings"

	"github.com/couchcryptid/outbreak-lookup-service/internal/pipeline"
)

// ErrNoSnapshot is returned while no dataset has been loaded yet.
var ErrNoSnapshot = pipeline.ErrNoSnapshot

// ErrNoLocations is returned by LookupMany when given nothing to compare.
var ErrNoLocations = errors.New("no locations given")

// NotFoundError reports a location that matched nothing.
type NotFoundError struct {
	Query string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no match for %q", e.Query)
}

// AmbiguousError reports a location that matched several entries.
type AmbiguousError struct {
	Query      string
	Candidates []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%q is ambiguous: %s", e.Query, strings.Join(e.Candidates, "; "))
}

// TooManyMatchesError reports a location that matched more entries than can
// usefully be listed.
type TooManyMatchesError struct {
	Query string
	Count int
}

func (e *TooManyMatchesError) Error() string {
	return fmt.Sprintf("%q matches %d locations, please be more specific", e.Query, e.Count)
}
