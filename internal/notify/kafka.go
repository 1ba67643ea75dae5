package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/m3rciful/flowerbot/core/logger"
	"github.com/m3rciful/flowerbot/internal/model"
)

// Event types published to the order topic.
const (
	EventOrderPlaced        = "order.placed"
	EventOrderStatusChanged = "order.status_changed"
	EventFeedbackReceived   = "feedback.received"
)

// Event is the JSON envelope written to Kafka.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	UserID     int64           `json:"user_id"`
	Username   string          `json:"username,omitempty"`
	Order      *model.Order    `json:"order,omitempty"`
	Feedback   *model.Feedback `json:"feedback,omitempty"`
}

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes shop events keyed by user id so one user's events stay ordered.
type Kafka struct {
	w     MessageWriter
	now   func() time.Time
	newID func() string
}

// NewKafkaWriter builds a synchronous writer for topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
}

// NewKafka wraps a writer.
func NewKafka(w MessageWriter) *Kafka {
	return &Kafka{w: w, now: time.Now, newID: uuid.NewString}
}

func (k *Kafka) publish(ctx context.Context, ev Event) error {
	ev.ID = k.newID()
	ev.OccurredAt = k.now().UTC()
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", ev.Type, err)
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.UserID, 10)),
		Value: data,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		logger.Error(ctx, componentNotify, "kafka.publish",
			slog.String("status", "fail"),
			slog.String("op", ev.Type),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	logger.Debug(ctx, componentNotify, "kafka.publish",
		slog.String("status", "ok"),
		slog.String("op", ev.Type),
		slog.String("id", ev.ID),
	)
	return nil
}

func (k *Kafka) OrderPlaced(ctx context.Context, o model.Order, customer model.User) error {
	return k.publish(ctx, Event{Type: EventOrderPlaced, UserID: o.UserID, Username: customer.Username, Order: &o})
}

func (k *Kafka) FeedbackReceived(ctx context.Context, fb model.Feedback, customer model.User) error {
	return k.publish(ctx, Event{Type: EventFeedbackReceived, UserID: fb.UserID, Username: customer.Username, Feedback: &fb})
}

func (k *Kafka) OrderStatusChanged(ctx context.Context, o model.Order) error {
	return k.publish(ctx, Event{Type: EventOrderStatusChanged, UserID: o.UserID, Order: &o})
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error {
	return k.w.Close()
}
