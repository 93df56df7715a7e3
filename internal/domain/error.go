package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Transaction resource errors
	ErrNotLoaded          = errors.New("no API payment resource data available")
	ErrMalformedOperation = errors.New("malformed operation object")
	ErrEmptyTransactionID = errors.New("transaction id cannot be empty")

	// Action gating
	ErrActionNotAllowed = errors.New("action is not allowed in the current transaction state")
	ErrUnknownAction    = errors.New("unknown transaction action")
	ErrNotCaptured      = errors.New("a non-captured payment cannot be refunded")
	ErrRefundNotAllowed = errors.New("transaction state does not allow refunds")

	ErrLockNotAcquired = errors.New("transaction is locked by another process")

	// Callback verification
	ErrEmptyCallback      = errors.New("empty callback body")
	ErrMissingSignature   = errors.New("callback signature header missing")
	ErrSignatureMismatch  = errors.New("callback signature mismatch")
	ErrOrderNotResolvable = errors.New("callback does not identify an order")
)

// APIError is returned for any gateway response with a status above 299 and for
// transport failures (HTTPStatus 0). It carries the full request/response audit trail.
type APIError struct {
	Message      string
	HTTPStatus   int
	RequestURL   string
	RequestBody  string
	ResponseBody string
}

func (e *APIError) Error() string {
	if e.HTTPStatus == 0 {
		return fmt.Sprintf("coolpay api: %s", e.Message)
	}
	return fmt.Sprintf("coolpay api: %d: %s", e.HTTPStatus, e.Message)
}

// RecurringNotAcceptedError means the acquirer declined a recurring charge.
type RecurringNotAcceptedError struct {
	TransactionID string
	QPStatusMsg   string
	AQStatusMsg   string
}

func (e *RecurringNotAcceptedError) Error() string {
	msg := "recurring payment not accepted by acquirer"
	if e.QPStatusMsg != "" {
		msg += ": " + e.QPStatusMsg
	}
	if e.AQStatusMsg != "" {
		msg += " (" + e.AQStatusMsg + ")"
	}
	return msg
}
