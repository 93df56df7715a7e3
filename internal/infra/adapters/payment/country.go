package payment

import (
	"strings"

	"golang.org/x/text/language"
)

// CountryAlpha3 converts an ISO 3166 alpha-2 code to alpha-3. Unknown codes
// are returned upper-cased as given.
func CountryAlpha3(alpha2 string) string {
	code := strings.ToUpper(strings.TrimSpace(alpha2))
	if code == "" {
		return ""
	}
	region, err := language.ParseRegion(code)
	if err != nil {
		return code
	}
	if iso3 := region.ISO3(); iso3 != "" && iso3 != "ZZZ" {
		return iso3
	}
	return code
}
