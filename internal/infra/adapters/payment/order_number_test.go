//go:build !integration

package payment

import (
	"testing"
	"time"

	"coolpay-gateway/internal/domain/model"
)

func TestOrderNumberForAPI(t *testing.T) {
	now := time.Unix(1700000000, 0)

	tests := []struct {
		name      string
		order     model.Order
		recurring bool
		want      string
	}{
		{"short number is padded", model.Order{Number: "1"}, false, "0001"},
		{"leading hash stripped", model.Order{Number: "#12345"}, false, "12345"},
		{"failed count suffix", model.Order{Number: "1001", FailedPaymentCount: 3}, false, "1001-3"},
		{"suffix counts towards length", model.Order{Number: "1", FailedPaymentCount: 2}, false, "01-2"},
		{"subscription itself", model.Order{ID: 7, Number: "100", IsSubscription: true}, false, "0007"},
		{
			"initial subscription authorization uses subscription id",
			model.Order{Number: "1500", ContainsSubscription: true, SubscriptionID: 1501, FailedPaymentCount: 2},
			false, "1501-2",
		},
		{
			"recurring charge keeps the order number",
			model.Order{Number: "1500", ContainsSubscription: true, SubscriptionID: 1501},
			true, "1500",
		},
		{
			"switch pays as regular order",
			model.Order{Number: "1500", ContainsSubscription: true, ContainsSwitch: true, SubscriptionID: 1501},
			false, "1500",
		},
		{"manual retry of failed renewal", model.Order{Number: "2000", RetryOfFailedRenewal: true, SubscriptionFailedCount: 4}, true, "2000-4"},
		{"renewal cart gets unix time", model.Order{Number: "2000", InRenewalCart: true}, false, "2000-1700000000"},
		{"payment method change", model.Order{Number: "3000", ChangingPaymentMethod: true, PaymentMethodChangeCount: 2}, false, "3000-2"},
		{"no digits left alone", model.Order{Number: "AB"}, false, "AB"},
		{"pads first digit run", model.Order{Number: "A1"}, false, "A001"},
		{"every occurrence of the run is padded", model.Order{Number: "1", FailedPaymentCount: 1}, false, "01-01"},
		{"later runs only padded where they repeat the first", model.Order{Number: "5", FailedPaymentCount: 2}, false, "05-2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := tt.order
			if got := OrderNumberForAPI(&o, tt.recurring, now); got != tt.want {
				t.Errorf("OrderNumberForAPI() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSplitStreet(t *testing.T) {
	tests := []struct {
		in   string
		want StreetAddress
	}{
		{"Main Street 12B, 3. th", StreetAddress{Street: "Main Street", HouseNumber: "12B", HouseExtension: "3. th"}},
		{"Harbour Road 7", StreetAddress{Street: "Harbour Road", HouseNumber: "7"}},
		{"Nowhere Lane", StreetAddress{Street: "Nowhere Lane"}},
		{"  Kongevej 101a  ", StreetAddress{Street: "Kongevej", HouseNumber: "101a"}},
	}
	for _, tt := range tests {
		if got := SplitStreet(tt.in); got != tt.want {
			t.Errorf("SplitStreet(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestCountryAlpha3(t *testing.T) {
	for in, want := range map[string]string{"DK": "DNK", "se": "SWE", "": "", "??": "??"} {
		if got := CountryAlpha3(in); got != want {
			t.Errorf("CountryAlpha3(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParamsEncode(t *testing.T) {
	p := Params{
		"b":        true,
		"a":        1,
		"methods":  []string{"visa", "mc"},
		"vars":     Params{"z": "1", "k": "x y"},
		"skip":     nil,
		"disabled": false,
	}
	want := "a=1&b=1&disabled=0&methods%5B%5D=visa&methods%5B%5D=mc&vars%5Bk%5D=x+y&vars%5Bz%5D=1"
	if got := p.Encode(); got != want {
		t.Errorf("Encode() = %q\nwant       %q", got, want)
	}
}

func TestMethodRegistry(t *testing.T) {
	r := DefaultMethodRegistry(nil)
	if got := r.CardTypeLock("ViaBill", "creditcard"); got != "viabill" {
		t.Errorf("viabill lock = %q", got)
	}
	if got := r.CardTypeLock("coolpay", "creditcard"); got != "creditcard" {
		t.Errorf("fallback lock = %q", got)
	}
}
