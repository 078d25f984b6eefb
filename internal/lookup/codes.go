package lookup

import (
	"strings"

	"github.com/biter777/countries"

	"github.com/couchcryptid/outbreak-lookup-service/internal/domain"
)

// codeAliases maps informal two-letter abbreviations to their ISO code.
var codeAliases = map[string]string{
	"UK": "GB",
}

// displayNames overrides the ISO short name where the feeds use a different
// common name. Keys are alpha-2 codes.
var displayNames = map[string]string{
	"BO": "Bolivia",
	"BN": "Brunei",
	"CD": "Democratic Republic of the Congo",
	"CG": "Congo",
	"CZ": "Czechia",
	"GB": "United Kingdom",
	"IR": "Iran",
	"KR": "South Korea",
	"LA": "Laos",
	"MD": "Moldova",
	"PS": "Palestine",
	"RU": "Russia",
	"SY": "Syria",
	"TW": "Taiwan",
	"TZ": "Tanzania",
	"US": "United States",
	"VE": "Venezuela",
	"VN": "Vietnam",
	"VI": "United States Virgin Islands",
}

// CountryForCode resolves an ISO 3166-1 alpha-2 or alpha-3 code, ignoring
// case, to the canonical country name used in the tree. Only codes are
// accepted; full names are left to the later stages.
func CountryForCode(query string) (string, bool) {
	code := strings.ToUpper(strings.TrimSpace(query))
	if alias, ok := codeAliases[code]; ok {
		code = alias
	}
	if len(code) != 2 && len(code) != 3 {
		return "", false
	}

	c := countries.ByName(code)
	if c == countries.Unknown {
		return "", false
	}
	if c.Alpha2() != code && c.Alpha3() != code {
		return "", false
	}

	if name, ok := displayNames[c.Alpha2()]; ok {
		return name, true
	}
	return domain.CanonicalCountry(c.String()), true
}
