//go:build !integration

package model

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestPriceNormalize(t *testing.T) {
	cases := map[int64]string{
		0:      "0.00",
		5:      "0.05",
		12345:  "123.45",
		100000: "1000.00",
	}
	for in, want := range cases {
		if got := PriceNormalize(in); got != want {
			t.Errorf("PriceNormalize(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestPriceMultiply(t *testing.T) {
	cases := map[string]int64{
		"100":    10000,
		"99.99":  9999,
		"0.005":  1,
		"12.344": 1234,
	}
	for in, want := range cases {
		if got := PriceMultiply(decimal.RequireFromString(in)); got != want {
			t.Errorf("PriceMultiply(%s) = %d, want %d", in, got, want)
		}
	}
}

func TestPriceCustomToMultiplied(t *testing.T) {
	got, err := PriceCustomToMultiplied("1.234,50", ",", ".")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 123450 {
		t.Errorf("expected 123450, got %d", got)
	}

	if _, err := PriceCustomToMultiplied("abc", ",", "."); err == nil {
		t.Error("expected an error for a non numeric price")
	}
}
