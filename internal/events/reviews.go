// Package events publishes review lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"sneaker-review-service/internal/domain"
)

type EventType string

const (
	ReviewCreated EventType = "review_created"
	ReviewUpdated EventType = "review_updated"
	ReviewDeleted EventType = "review_deleted"
)

// ReviewEvent is the message value written for each review mutation.
type ReviewEvent struct {
	Type       EventType `json:"type"`
	ReviewID   int64     `json:"review_id"`
	SneakerID  int64     `json:"sneaker_id"`
	AuthorID   int64     `json:"author_id"`
	Rating     int       `json:"rating"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewReviewEvent describes r at the current time.
func NewReviewEvent(t EventType, r *domain.Review) ReviewEvent {
	return ReviewEvent{
		Type:       t,
		ReviewID:   r.ID,
		SneakerID:  r.SneakerID,
		AuthorID:   r.Author.ID,
		Rating:     r.Rating,
		OccurredAt: time.Now().UTC(),
	}
}

// ReviewPublisher delivers review events somewhere downstream.
type ReviewPublisher interface {
	PublishReview(ctx context.Context, ev ReviewEvent) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DefaultPublishTimeout bounds how long a review write waits on the broker.
const DefaultPublishTimeout = time.Second

// NewKafkaWriter builds a synchronous writer for topic with a short batch
// window so a single event is flushed promptly. A single attempt keeps an
// unreachable broker from stalling requests through retry backoff.
func NewKafkaWriter(brokers []string, topic string, timeout time.Duration) *kafka.Writer {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: timeout,
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  1,
	}
}

// KafkaPublisher writes events keyed by sneaker id, so every event of one
// sneaker lands on the same partition in order.
type KafkaPublisher struct {
	writer  messageWriter
	timeout time.Duration
}

// NewKafkaPublisher caps every publish at timeout, DefaultPublishTimeout when
// zero. Events are published inline after the write commits, so this is the
// worst-case delay a down broker adds to a review request.
func NewKafkaPublisher(writer messageWriter, timeout time.Duration) *KafkaPublisher {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &KafkaPublisher{writer: writer, timeout: timeout}
}

func (p *KafkaPublisher) PublishReview(ctx context.Context, ev ReviewEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", ev.Type, err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.SneakerID, 10)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("events: publish %s: %w", ev.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher drops events; used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishReview(context.Context, ReviewEvent) error { return nil }
