package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"coolpay-gateway/internal/domain/model"
	"coolpay-gateway/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

var _ adapter.EventPublisher = (*KafkaPublisher)(nil)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes accepted callbacks to a topic keyed by order id, so
// events of one order stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	log    *zerolog.Logger
}

// publishBatchTimeout bounds how long a synchronous write waits for a batch to
// fill. Callbacks publish one event at a time.
const publishBatchTimeout = 10 * time.Millisecond

func NewKafkaPublisher(brokers []string, topic string, logger *zerolog.Logger) *KafkaPublisher {
	l := logger.With().Str("component", "kafka").Logger()
	return &KafkaPublisher{writer: newKafkaWriter(brokers, topic), topic: topic, log: &l}
}

func newKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: publishBatchTimeout,
		WriteTimeout: 10 * time.Second,
	}
}

type callbackMessage struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	OccurredAt    string          `json:"occurred_at"`
	OrderID       int64           `json:"order_id"`
	TransactionID string          `json:"transaction_id,omitempty"`
	State         string          `json:"state,omitempty"`
	Operation     string          `json:"operation,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev model.CallbackEvent) error {
	msg := callbackMessage{
		EventID:    ev.ID,
		EventType:  ev.Name,
		OccurredAt: ev.OccurredAt.UTC().Format(time.RFC3339),
		OrderID:    ev.OrderID,
		Payload:    ev.Payload,
	}
	if ev.Transaction != nil {
		msg.TransactionID = ev.Transaction.IDString()
		msg.State = string(ev.Transaction.State)
		if ct, err := ev.Transaction.CurrentType(); err == nil {
			msg.Operation = string(ct)
		}
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.OrderID, 10)),
		Value: value,
		Time:  ev.OccurredAt,
	})
	if err != nil {
		p.log.Error().Err(err).Str("topic", p.topic).Str("event_id", ev.ID).Int64("order_id", ev.OrderID).Msg("publish callback event")
		return err
	}
	p.log.Debug().Str("topic", p.topic).Str("event", ev.Name).Int64("order_id", ev.OrderID).Msg("callback event published")
	return nil
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }
