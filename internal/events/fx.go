package events

import (
	"context"

	"github.com/smallbiznis/commissionhub/internal/config"
	"github.com/smallbiznis/commissionhub/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events",
	fx.Provide(NewPublisher),
)

// NewPublisher picks the kafka publisher when brokers are configured and the
// log publisher otherwise.
func NewPublisher(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, m *metrics.Metrics) (Publisher, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Info("kafka brokers not configured, events are logged only")
		return NewLogPublisher(log, m), nil
	}
	p, err := NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log, m)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return p.Close()
		},
	})
	return p, nil
}
