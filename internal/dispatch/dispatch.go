// Package dispatch announces staged manifests to the event dispatcher that
// triggers the next stage.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Staged describes a manifest that has been uploaded.
type Staged struct {
	Stage        string    `json:"stage"`
	Bucket       string    `json:"bucket"`
	Key          string    `json:"key"`
	Items        int       `json:"items"`
	InvocationID string    `json:"invocation_id"`
	StagedAt     time.Time `json:"staged_at"`
}

// Notifier announces staged manifests.
type Notifier interface {
	Notify(ctx context.Context, s Staged) error
	Close() error
}

// Nop drops every announcement. It is used when no broker is configured and
// the dispatcher watches the bucket instead.
type Nop struct{}

func (Nop) Notify(context.Context, Staged) error { return nil }

func (Nop) Close() error { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes one message per staged manifest, keyed by the manifest key.
type Kafka struct {
	logger zerolog.Logger
	w      messageWriter
}

// NewKafka creates a notifier writing to topic on the given brokers.
func NewKafka(logger zerolog.Logger, brokers []string, topic string) *Kafka {
	return &Kafka{
		logger: logger.With().Str("component", "kafka-dispatch").Logger(),
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
	}
}

// Notify publishes s.
func (k *Kafka) Notify(ctx context.Context, s Staged) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := k.w.WriteMessages(ctx, kafka.Message{Key: []byte(s.Key), Value: b}); err != nil {
		return fmt.Errorf("cannot announce %s: %w", s.Key, err)
	}
	k.logger.Debug().Str("key", s.Key).Int("items", s.Items).Msg("Announced staged manifest")
	return nil
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error {
	return k.w.Close()
}
