package payment

import (
	"regexp"
	"strings"
)

var houseNumberPattern = regexp.MustCompile(`(?i)\d+[a-z]?`)

// StreetAddress is a street line split into its gateway fields.
type StreetAddress struct {
	Street         string
	HouseNumber    string
	HouseExtension string
}

// SplitStreet splits "Main Street 12B, 3. th" into street, house number and
// extension. Without a house number the whole line is the street.
func SplitStreet(line string) StreetAddress {
	line = strings.TrimSpace(line)
	loc := houseNumberPattern.FindStringIndex(line)
	if loc == nil {
		return StreetAddress{Street: line}
	}
	return StreetAddress{
		Street:         strings.TrimSpace(line[:loc[0]]),
		HouseNumber:    line[loc[0]:loc[1]],
		HouseExtension: strings.TrimSpace(strings.Trim(strings.TrimSpace(line[loc[1]:]), ",")),
	}
}
