// Package events streams committed delivery transitions to kafka for
// downstream consumers such as statistics.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/publishflow/internal/models"
	"github.com/segmentio/kafka-go"
)

const writeTimeout = 5 * time.Second

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type deliveryMessage struct {
	Kind       models.DeliveryKind   `json:"kind"`
	DeliveryID int64                 `json:"delivery_id"`
	ParentID   int64                 `json:"parent_id"`
	AccountID  int64                 `json:"account_id"`
	Platform   string                `json:"platform"`
	Status     models.DeliveryStatus `json:"status"`
	ExternalID string                `json:"external_id,omitempty"`
	Error      string                `json:"error,omitempty"`
	Timestamp  int64                 `json:"timestamp"`
}

type Producer struct {
	writer MessageWriter
	topic  string
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}

	slog.Info("kafka producer initialized", "brokers", brokers, "topic", topic)
	return NewProducerWithWriter(writer, topic)
}

func NewProducerWithWriter(writer MessageWriter, topic string) *Producer {
	return &Producer{writer: writer, topic: topic}
}

// Notify publishes the event keyed by delivery so a consumer sees the
// transitions of one delivery in order. Failures are logged and dropped.
func (p *Producer) Notify(ctx context.Context, event models.DeliveryEvent) {
	msg := deliveryMessage{
		Kind:       event.Kind,
		DeliveryID: event.DeliveryID,
		ParentID:   event.ParentID,
		AccountID:  event.AccountID,
		Platform:   event.Platform,
		Status:     event.Status,
		ExternalID: event.ExternalID,
		Error:      event.Error,
		Timestamp:  event.At.Unix(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("unable to encode delivery event", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(fmt.Sprintf("%s-%d", event.Kind, event.DeliveryID)),
		Value: data,
	})
	if err != nil {
		slog.Error("unable to send delivery event",
			"kind", event.Kind, "delivery_id", event.DeliveryID, "status", event.Status, "error", err)
		return
	}
	slog.Debug("delivery event sent", "kind", event.Kind, "delivery_id", event.DeliveryID, "status", event.Status)
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

// Nop drops every event. It is used when no brokers are configured.
type Nop struct{}

func (Nop) Notify(context.Context, models.DeliveryEvent) {}

func (Nop) Close() error { return nil }
