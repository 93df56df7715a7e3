package payment

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"coolpay-gateway/internal/domain/model"
)

const minOrderNumberLength = 4

var digitRun = regexp.MustCompile(`\d+`)

// OrderNumberForAPI derives the order_id sent to the gateway. The gateway
// rejects reused order ids, so retries and renewals get a suffix.
func OrderNumberForAPI(o *model.Order, recurring bool, now time.Time) string {
	var number string

	switch {
	case o.IsSubscription:
		number = strconv.FormatInt(o.ID, 10)
	case !o.ContainsSwitch && o.ContainsSubscription && !recurring && o.SubscriptionID != 0:
		// first authorization of a subscription is made against the subscription itself
		number = strconv.FormatInt(o.SubscriptionID, 10)
		if o.FailedPaymentCount > 0 {
			number += "-" + strconv.Itoa(o.FailedPaymentCount)
		}
	default:
		number = o.CleanNumber()
		switch {
		case o.FailedPaymentCount > 0:
			number += "-" + strconv.Itoa(o.FailedPaymentCount)
		case o.RetryOfFailedRenewal:
			number += "-" + strconv.Itoa(o.SubscriptionFailedCount)
		case o.InRenewalCart:
			number += "-" + strconv.FormatInt(now.Unix(), 10)
		}
	}

	if o.ChangingPaymentMethod {
		number += "-" + strconv.Itoa(o.PaymentMethodChangeCount)
	}

	return padOrderNumber(number)
}

// padOrderNumber left-pads the first digit run with zeros until the number is
// four characters long. Every occurrence of that run is padded, so "1-1"
// becomes "01-01".
func padOrderNumber(number string) string {
	if len(number) >= minOrderNumberLength {
		return number
	}
	run := digitRun.FindString(number)
	if run == "" {
		return number
	}
	pad := strings.Repeat("0", minOrderNumberLength-len(number))
	return strings.ReplaceAll(number, run, pad+run)
}
