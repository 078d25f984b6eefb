package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	s := Summarize(Metrics{Cases: 200, Deaths: Count(10), Recoveries: Count(50)})

	require.NotNil(t, s.StillSick)
	assert.Equal(t, int64(140), *s.StillSick)
	assert.Equal(t, "70", s.PercentSick.String())
	assert.Equal(t, "25", s.PercentRecovered.String())
	assert.Equal(t, "5", s.PercentDead.String())
}

func TestSummarize_Rounding(t *testing.T) {
	s := Summarize(Metrics{Cases: 3, Deaths: Count(1), Recoveries: Count(0)})
	assert.Equal(t, "33.3", s.PercentDead.String())
	assert.Equal(t, "66.7", s.PercentSick.String())
}

func TestSummarize_InconsistentSourcesGoNegative(t *testing.T) {
	s := Summarize(Metrics{Cases: 10, Deaths: Count(5), Recoveries: Count(8)})
	require.NotNil(t, s.StillSick)
	assert.Equal(t, int64(-3), *s.StillSick)
	assert.Equal(t, "-30", s.PercentSick.String())
}

func TestSummarize_CasesOnly(t *testing.T) {
	s := Summarize(Metrics{Cases: 42})
	assert.Equal(t, int64(42), s.Cases)
	assert.Nil(t, s.StillSick)
	assert.Nil(t, s.PercentSick)
	assert.Nil(t, s.PercentRecovered)
	assert.Nil(t, s.PercentDead)
}

func TestSummarize_ZeroCases(t *testing.T) {
	s := Summarize(Metrics{Cases: 0, Deaths: Count(0), Recoveries: Count(0)})
	assert.True(t, s.PercentDead.IsZero())
	assert.True(t, s.PercentSick.IsZero())
}
