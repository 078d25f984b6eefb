package lookup

import (
	"testing"

	"github.com/couchcryptid/outbreak-lookup-service/internal/domain"
	"github.com/stretchr/testify/assert"
)

func resolutionFor(label string) Resolution {
	return Resolution{Stage: StageCountry, Matches: []domain.Match{{Label: label}}}
}

func TestResultCache_BasicGetPut(t *testing.T) {
	c := newResultCache(3)

	c.put("a", resolutionFor("A"))
	c.put("b", resolutionFor("B"))

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A", result.Matches[0].Label)

	_, ok = c.get("missing")
	assert.False(t, ok)
}

func TestResultCache_Eviction(t *testing.T) {
	c := newResultCache(2)

	c.put("a", resolutionFor("A"))
	c.put("b", resolutionFor("B"))
	c.put("c", resolutionFor("C")) // evicts "a"

	_, ok := c.get("a")
	assert.False(t, ok, "a should have been evicted")

	result, ok := c.get("b")
	assert.True(t, ok)
	assert.Equal(t, "B", result.Matches[0].Label)

	result, ok = c.get("c")
	assert.True(t, ok)
	assert.Equal(t, "C", result.Matches[0].Label)
	assert.Equal(t, 2, c.len())
}

func TestResultCache_AccessPromotesEntry(t *testing.T) {
	c := newResultCache(2)

	c.put("a", resolutionFor("A"))
	c.put("b", resolutionFor("B"))

	c.get("a")

	// "b" is now least recently used
	c.put("c", resolutionFor("C"))

	_, ok := c.get("a")
	assert.True(t, ok, "a was accessed recently, should not be evicted")

	_, ok = c.get("b")
	assert.False(t, ok, "b should have been evicted")
}

func TestResultCache_UpdateExisting(t *testing.T) {
	c := newResultCache(2)

	c.put("a", resolutionFor("A1"))
	c.put("a", resolutionFor("A2"))

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A2", result.Matches[0].Label)
}

func TestResultCache_Disabled(t *testing.T) {
	c := newResultCache(0)

	c.put("a", resolutionFor("A"))
	_, ok := c.get("a")
	assert.False(t, ok)
}

func TestCacheKey_FoldsQuery(t *testing.T) {
	assert.Equal(t, cacheKey("s1", "France"), cacheKey("s1", "  FRANCE "))
	assert.NotEqual(t, cacheKey("s1", "France"), cacheKey("s2", "France"))
}
