package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// KafkaSink publishes audit entries to a topic; the writer runs async so Record never blocks on the broker.
type KafkaSink struct {
	w      *kafka.Writer
	logger *slog.Logger
}

type envelope struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	Entry      Entry     `json:"entry"`
}

func NewKafkaSink(brokers []string, topic string, logger *slog.Logger) *KafkaSink {
	k := &KafkaSink{logger: logger}
	k.w = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				k.logger.Warn("failed to publish audit entries", "count", len(messages), "err", err)
			}
		},
	}
	return k
}

func (k *KafkaSink) Record(ctx context.Context, e Entry) {
	b, err := json.Marshal(envelope{
		EventID:    uuid.NewString(),
		EventType:  "audit." + string(e.Action),
		OccurredAt: e.Timestamp,
		Entry:      e,
	})
	if err != nil {
		k.logger.WarnContext(ctx, "failed to encode audit entry", "err", err)
		return
	}
	// actor 単位でパーティションを固定（順序保証）
	msg := kafka.Message{
		Key:   []byte(e.Actor),
		Value: b,
		Headers: []kafka.Header{
			{Key: "x-event-type", Value: []byte("audit." + string(e.Action))},
		},
	}
	if err := k.w.WriteMessages(context.WithoutCancel(ctx), msg); err != nil {
		k.logger.WarnContext(ctx, "failed to enqueue audit entry", "err", err)
	}
}

func (k *KafkaSink) Close() error { return k.w.Close() }
