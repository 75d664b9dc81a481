package webhook

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/commissionhub/internal/config"
	"github.com/smallbiznis/commissionhub/internal/jobqueue"
	obscontext "github.com/smallbiznis/commissionhub/internal/observability/context"
	"github.com/smallbiznis/commissionhub/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/commissionhub/internal/order/domain"
	"github.com/smallbiznis/commissionhub/internal/upstream"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultDedupeTTL = 24 * time.Hour
	ingestTimeout    = 30 * time.Second
)

var ErrInvalidSignature = errors.New("invalid_signature")

type Status string

const (
	StatusAccepted         Status = "accepted"
	StatusProcessed        Status = "processed"
	StatusAlreadyProcessed Status = "already_processed"
)

// Delivery is one raw order webhook as received over HTTP.
type Delivery struct {
	Body       []byte
	Signature  string
	DeliveryID string
}

type Result struct {
	Status          Status                    `json:"status"`
	OrderExternalID string                    `json:"order_external_id,omitempty"`
	Ingest          *orderdomain.IngestResult `json:"result,omitempty"`
}

type Enqueuer interface {
	Enqueue(job jobqueue.Job) error
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Config  config.Config
	Orders  orderdomain.Service
	Queue   Enqueuer
	Deduper Deduper          `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	log       *zap.Logger
	secret    string
	async     bool
	dedupeTTL time.Duration
	orders    orderdomain.Service
	queue     Enqueuer
	deduper   Deduper
	metrics   *metrics.Metrics
}

func New(p Params) *Service {
	ttl := p.Config.Webhook.DedupeTTL
	if ttl <= 0 {
		ttl = defaultDedupeTTL
	}
	return &Service{
		log:       p.Log.Named("webhook.service"),
		secret:    p.Config.Webhook.Secret,
		async:     p.Config.Webhook.Async,
		dedupeTTL: ttl,
		orders:    p.Orders,
		queue:     p.Queue,
		deduper:   p.Deduper,
		metrics:   p.Metrics,
	}
}

// Receive authenticates and accepts an order delivery. Nothing is persisted
// for a delivery that fails verification or parsing.
func (s *Service) Receive(ctx context.Context, d Delivery) (Result, error) {
	if !upstream.Verify(s.secret, d.Body, d.Signature) {
		s.metrics.RecordWebhookRejected(ctx, "signature")
		return Result{}, ErrInvalidSignature
	}
	payload, err := upstream.ParseOrder(d.Body)
	if err != nil {
		s.metrics.RecordWebhookRejected(ctx, "payload")
		return Result{}, err
	}
	req := payload.IngestRequest(orderdomain.SourceWebhook)
	result := Result{OrderExternalID: req.ExternalID}

	token, first := s.claim(ctx, d.DeliveryID)
	if !first {
		s.log.Info("duplicate webhook delivery dropped",
			zap.String("delivery_id", d.DeliveryID),
			zap.String("order_external_id", req.ExternalID),
		)
		result.Status = StatusAlreadyProcessed
		return result, nil
	}

	if !s.async {
		res, err := s.orders.Ingest(ctx, req)
		if err != nil {
			s.release(ctx, d.DeliveryID, token)
			return Result{}, err
		}
		result.Status = StatusProcessed
		if res.AlreadyProcessed {
			result.Status = StatusAlreadyProcessed
		}
		result.Ingest = &res
		return result, nil
	}

	err = s.queue.Enqueue(jobqueue.Job{
		Name:      "webhook_order",
		Key:       req.ExternalID,
		RequestID: obscontext.RequestIDFromContext(ctx),
		Timeout:   ingestTimeout,
		Run: func(jobCtx context.Context) error {
			if _, err := s.orders.Ingest(jobCtx, req); err != nil {
				s.release(context.WithoutCancel(jobCtx), d.DeliveryID, token)
				return err
			}
			return nil
		},
	})
	if err != nil {
		s.release(ctx, d.DeliveryID, token)
		return Result{}, err
	}
	result.Status = StatusAccepted
	return result, nil
}

// claim reports true when the delivery should be processed. Dedupe failures
// fall through to the database idempotency key.
func (s *Service) claim(ctx context.Context, deliveryID string) (string, bool) {
	if s.deduper == nil || deliveryID == "" {
		return "", true
	}
	token, first, err := s.deduper.Claim(ctx, deliveryID, s.dedupeTTL)
	if err != nil {
		s.log.Warn("webhook dedupe unavailable", zap.String("delivery_id", deliveryID), zap.Error(err))
		return "", true
	}
	return token, first
}

func (s *Service) release(ctx context.Context, deliveryID, token string) {
	if s.deduper == nil || token == "" {
		return
	}
	if err := s.deduper.Release(ctx, deliveryID, token); err != nil {
		s.log.Warn("failed to release webhook delivery", zap.String("delivery_id", deliveryID), zap.Error(err))
	}
}
