package events

import (
	"context"

	"github.com/smallbiznis/commissionhub/internal/observability/metrics"
	"go.uber.org/zap"
)

// LogPublisher writes events to the log. Used when no broker is configured.
type LogPublisher struct {
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewLogPublisher(log *zap.Logger, m *metrics.Metrics) *LogPublisher {
	return &LogPublisher{log: log.Named("events.log"), metrics: m}
}

func (p *LogPublisher) Publish(ctx context.Context, evt Event) error {
	p.log.Debug("event published",
		zap.String("event_id", evt.ID),
		zap.String("event_type", string(evt.Type)),
		zap.String("key", evt.Key),
	)
	p.metrics.RecordEventPublished(ctx, string(evt.Type), true)
	return nil
}
