package model

import (
	"encoding/json"
	"time"
)

const (
	EventAccepted       = "accepted"
	eventAcceptedPrefix = "accepted:"
)

// AcceptedTypeEvent is the name of the type specific accepted event, e.g. "accepted:capture".
func AcceptedTypeEvent(t OperationType) string {
	return eventAcceptedPrefix + string(t)
}

// CallbackEvent is emitted after an accepted callback has been applied to an order.
type CallbackEvent struct {
	ID          string
	Name        string
	OrderID     int64
	Transaction *Transaction
	Payload     json.RawMessage
	OccurredAt  time.Time
}
