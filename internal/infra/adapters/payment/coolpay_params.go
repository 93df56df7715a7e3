package payment

import (
	"net/url"
	"strconv"
	"time"

	"coolpay-gateway/internal/config"
	"coolpay-gateway/internal/domain/model"

	"github.com/shopspring/decimal"
)

// labels of the optional custom variables stored on the transaction
var customVariableLabels = map[string]string{
	"customer_email":    "Customer Email",
	"customer_phone":    "Customer Phone",
	"browser_useragent": "User Agent",
	"shipping_method":   "Shipping Method",
}

type paramBuilder struct {
	cfg     config.GatewayConfig
	methods *MethodRegistry
	now     func() time.Time
}

// Currency is the order currency when currency_auto is on, else the configured one.
func (b *paramBuilder) Currency(o *model.Order) string {
	if b.cfg.CurrencyAuto && o.Currency != "" {
		return o.Currency
	}
	return b.cfg.Currency
}

// Autocapture uses the virtual-products setting only when nothing needs shipping.
func (b *paramBuilder) Autocapture(o *model.Order) bool {
	if o.AllVirtual() {
		return b.cfg.AutocaptureVirtual
	}
	return b.cfg.Autocapture
}

func (b *paramBuilder) createParams(o *model.Order) Params {
	p := Params{
		"currency":         b.Currency(o),
		"order_post_id":    o.ID,
		"order_id":         OrderNumberForAPI(o, false, b.now()),
		"basket":           b.basket(o),
		"shipping_address": addressParams(o.Shipping, o.Billing),
		"invoice_address":  addressParams(o.Billing, o.Billing),
		"shipping":         shippingParams(o.ShippingLine),
		"shopsystem": Params{
			"name":    b.cfg.ShopName,
			"version": b.cfg.ShopVersion,
		},
		"variables": b.variables(o),
	}
	if b.cfg.TextOnStatement != "" {
		p["text_on_statement"] = b.cfg.TextOnStatement
	}
	if o.IsSubscriptionPayment() {
		p["description"] = b.cfg.SubscriptionDescription
	}
	return p
}

func (b *paramBuilder) basket(o *model.Order) []Params {
	lines := make([]Params, 0, len(o.Items))
	for _, it := range o.Items {
		vat := decimal.Zero
		if it.VATRate.IsPositive() {
			vat = it.VATRate.Div(decimal.NewFromInt(100))
		}
		lines = append(lines, Params{
			"qty":        it.Quantity,
			"item_no":    it.ProductID,
			"item_name":  it.Name,
			"item_price": model.PriceMultiply(it.UnitPriceIncl),
			"vat_rate":   vat,
		})
	}
	return lines
}

// addressParams takes contact details (phone, email) from billing for both addresses.
func addressParams(a, billing model.Address) Params {
	street := SplitStreet(a.Address1)
	return Params{
		"name":            a.FirstName + " " + a.LastName,
		"street":          street.Street,
		"house_number":    street.HouseNumber,
		"house_extension": street.HouseExtension,
		"city":            a.City,
		"region":          a.State,
		"zip_code":        a.Postcode,
		"country_code":    CountryAlpha3(a.Country),
		"phone_number":    billing.Phone,
		"mobile_number":   billing.Phone,
		"email":           billing.Email,
	}
}

func shippingParams(s model.ShippingLine) Params {
	incl := s.Total
	vatRate := decimal.Zero
	if !s.Tax.IsZero() && !s.Total.IsZero() {
		incl = incl.Add(s.Tax)
		vatRate = s.Tax.Div(s.Total)
	}
	return Params{
		"method":          "own_delivery",
		"company":         s.Method,
		"amount":          model.PriceMultiply(incl),
		"vat_rate":        vatRate,
		"tracking_number": "",
		"tracking_url":    "",
	}
}

func (b *paramBuilder) variables(o *model.Order) Params {
	vars := Params{}
	for _, key := range b.cfg.CustomVariables {
		label, ok := customVariableLabels[key]
		if !ok {
			continue
		}
		switch key {
		case "customer_email":
			vars[label] = o.Billing.Email
		case "customer_phone":
			vars[label] = o.Billing.Phone
		case "browser_useragent":
			vars[label] = o.UserAgent
		case "shipping_method":
			vars[label] = o.ShippingLine.Method
		}
	}

	vars["order_post_id"] = o.ID

	// a switch is paid as a regular payment
	if !o.ContainsSwitch {
		if subID := subscriptionPostID(o); subID != 0 {
			vars["subscription_post_id"] = subID
		}
	}
	if o.ChangingPaymentMethod {
		vars["change_payment"] = true
	}
	return vars
}

func subscriptionPostID(o *model.Order) int64 {
	if o.IsSubscription {
		return o.ID
	}
	return o.SubscriptionID
}

func (b *paramBuilder) linkParams(o *model.Order) Params {
	continueURL := o.ContinueURL
	if continueURL == "" {
		continueURL = b.cfg.ContinueURL
	}
	cancelURL := o.CancelURL
	if cancelURL == "" {
		cancelURL = b.cfg.CancelURL
	}
	return Params{
		"language":                     b.cfg.Language,
		"currency":                     b.Currency(o),
		"callbackurl":                  b.callbackURL(o),
		"autocapture":                  b.Autocapture(o),
		"autofee":                      b.cfg.Autofee,
		"payment_methods":              b.methods.CardTypeLock(o.PaymentMethod, b.cfg.CardTypeLock),
		"branding_id":                  b.cfg.BrandingID,
		"google_analytics_tracking_id": b.cfg.GoogleAnalyticsTrackingID,
		"customer_email":               o.Billing.Email,
		"order_id":                     OrderNumberForAPI(o, false, b.now()),
		"continueurl":                  continueURL,
		"cancelurl":                    cancelURL,
		"amount":                       model.PriceMultiply(o.Total),
	}
}

func (b *paramBuilder) recurringParams(o *model.Order, amount decimal.Decimal) Params {
	return Params{
		"amount":            model.PriceMultiply(amount),
		"order_id":          OrderNumberForAPI(o, true, b.now()),
		"auto_capture":      b.Autocapture(o),
		"autofee":           b.cfg.Autofee,
		"text_on_statement": b.cfg.TextOnStatement,
		"order_post_id":     o.ID,
	}
}

// callbackURL carries the order id so callbacks without variables still resolve.
func (b *paramBuilder) callbackURL(o *model.Order) string {
	u, err := url.Parse(b.cfg.CallbackURL)
	if err != nil || b.cfg.CallbackURL == "" {
		return b.cfg.CallbackURL
	}
	q := u.Query()
	q.Set("order_post_id", strconv.FormatInt(o.ID, 10))
	u.RawQuery = q.Encode()
	return u.String()
}
