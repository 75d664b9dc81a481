package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/smallbiznis/commissionhub/internal/observability/metrics"
	"go.uber.org/zap"
)

var ErrNoBrokers = errors.New("kafka_brokers_required")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a single topic keyed by aggregate key, so
// events for one order land on one partition.
type KafkaPublisher struct {
	writer  messageWriter
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewKafkaPublisher(brokers []string, topic string, log *zap.Logger, m *metrics.Metrics) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}
	log = log.Named("events.kafka")
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        strings.TrimSpace(topic),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		Completion: func(messages []kafka.Message, err error) {
			for _, msg := range messages {
				eventType := headerValue(msg.Headers, "event_type")
				m.RecordEventPublished(context.Background(), eventType, err == nil)
				if err != nil {
					log.Warn("event delivery failed",
						zap.String("event_type", eventType),
						zap.ByteString("key", msg.Key),
						zap.Error(err),
					)
				}
			}
		},
	}
	return newKafkaPublisher(w, log, m), nil
}

func newKafkaPublisher(w messageWriter, log *zap.Logger, m *metrics.Metrics) *KafkaPublisher {
	return &KafkaPublisher{writer: w, log: log, metrics: m}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(evt.Key),
		Value: body,
		Time:  evt.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(evt.ID)},
			{Key: "event_type", Value: []byte(evt.Type)},
		},
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultPublishTimeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.metrics.RecordEventPublished(ctx, string(evt.Type), false)
		p.log.Warn("failed to enqueue event",
			zap.String("event_id", evt.ID),
			zap.String("event_type", string(evt.Type)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
