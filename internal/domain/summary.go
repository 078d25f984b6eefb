package domain

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Summary holds the figures derived from a Metrics record for display.
// Percentages are rounded to one decimal place.
type Summary struct {
	Cases            int64            `json:"cases"`
	StillSick        *int64           `json:"still_sick,omitempty"`
	PercentSick      *decimal.Decimal `json:"percent_sick,omitempty"`
	PercentRecovered *decimal.Decimal `json:"percent_recovered,omitempty"`
	PercentDead      *decimal.Decimal `json:"percent_dead,omitempty"`
}

// Summarize derives still-sick counts and percentages. Sources are not
// required to be consistent, so StillSick may be negative. Zero cases yield
// zero percentages.
func Summarize(m Metrics) Summary {
	s := Summary{Cases: m.Cases}
	if m.Recoveries != nil {
		p := percentOf(*m.Recoveries, m.Cases)
		s.PercentRecovered = &p
	}
	if m.Deaths != nil {
		p := percentOf(*m.Deaths, m.Cases)
		s.PercentDead = &p
	}
	if m.Recoveries != nil && m.Deaths != nil {
		sick := m.Cases - *m.Recoveries - *m.Deaths
		s.StillSick = &sick
		p := percentOf(sick, m.Cases)
		s.PercentSick = &p
	}
	return s
}

func percentOf(part, whole int64) decimal.Decimal {
	if whole == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(part).Mul(hundred).Div(decimal.NewFromInt(whole)).Round(1)
}
