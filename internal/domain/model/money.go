package model

import (
	"strings"

	"coolpay-gateway/internal/domain"

	"github.com/shopspring/decimal"
)

var dec100 = decimal.NewFromInt(100)

// PriceNormalize converts minor units to a two-decimal major unit string (12345 -> "123.45").
func PriceNormalize(minor int64) string {
	return decimal.NewFromInt(minor).Div(dec100).StringFixed(2)
}

// PriceMultiply converts a major unit amount to minor units, rounding half away from zero.
func PriceMultiply(major decimal.Decimal) int64 {
	return major.Mul(dec100).Round(0).IntPart()
}

// PriceCustomToMultiplied parses a shop formatted price such as "1.234,50"
// using the given separators and returns minor units.
func PriceCustomToMultiplied(price, decimalSep, thousandSep string) (int64, error) {
	s := strings.TrimSpace(price)
	if thousandSep != "" {
		s = strings.ReplaceAll(s, thousandSep, "")
	}
	if decimalSep != "" && decimalSep != "." {
		s = strings.ReplaceAll(s, decimalSep, ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, domain.ErrInvalidArgument
	}
	return PriceMultiply(d), nil
}

// MinorToDecimal converts minor units to a decimal major amount.
func MinorToDecimal(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(dec100)
}
