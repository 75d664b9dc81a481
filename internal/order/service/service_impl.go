package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/commissionhub/internal/audit/domain"
	"github.com/smallbiznis/commissionhub/internal/authorization"
	"github.com/smallbiznis/commissionhub/internal/clock"
	"github.com/smallbiznis/commissionhub/internal/commission/calculator"
	commissiondomain "github.com/smallbiznis/commissionhub/internal/commission/domain"
	customerdomain "github.com/smallbiznis/commissionhub/internal/customer/domain"
	"github.com/smallbiznis/commissionhub/internal/events"
	"github.com/smallbiznis/commissionhub/internal/observability/metrics"
	"github.com/smallbiznis/commissionhub/internal/order/domain"
	ruledomain "github.com/smallbiznis/commissionhub/internal/rule/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// errLostRace rolls back an ingestion whose order row was written by a
// concurrent delivery between the fast-path check and the insert.
var errLostRace = errors.New("order inserted concurrently")

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Repo          domain.Repository
	CustomerSvc   customerdomain.Service
	CommissionSvc commissiondomain.Service
	Rules         ruledomain.Loader
	Calculator    *calculator.Calculator
	Authz         authorization.Service
	AuditSvc      auditdomain.Service
	Publisher     events.Publisher
	Metrics       *metrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	repo          domain.Repository
	customerSvc   customerdomain.Service
	commissionSvc commissiondomain.Service
	rules         ruledomain.Loader
	calculator    *calculator.Calculator
	authz         authorization.Service
	auditSvc      auditdomain.Service
	publisher     events.Publisher
	metrics       *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("order.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		repo:          p.Repo,
		customerSvc:   p.CustomerSvc,
		commissionSvc: p.CommissionSvc,
		rules:         p.Rules,
		calculator:    p.Calculator,
		authz:         p.Authz,
		auditSvc:      p.AuditSvc,
		publisher:     p.Publisher,
		metrics:       p.Metrics,
	}
}

func (s *Service) Ingest(ctx context.Context, req domain.IngestRequest) (domain.IngestResult, error) {
	req.ExternalID = strings.TrimSpace(req.ExternalID)
	if req.ExternalID == "" {
		return domain.IngestResult{}, domain.ErrInvalidExternalID
	}
	if err := validateLineItems(req.LineItems); err != nil {
		return domain.IngestResult{}, err
	}
	if req.Source == "" {
		req.Source = domain.SourceWebhook
	}
	log := s.log.With(
		zap.String("order_external_id", req.ExternalID),
		zap.String("source", string(req.Source)),
	)

	now := s.clock.Now()
	cancelled := domain.Cancelled(req.CancelledAt, req.CancelReason, req.FinancialStatus)

	existing, err := s.repo.FindByExternalID(ctx, s.db, req.ExternalID)
	if err != nil {
		return domain.IngestResult{}, err
	}
	if existing != nil {
		if err := s.repo.RefreshStatus(ctx, s.db, req.ExternalID, domain.StatusUpdate{
			FinancialStatus:   req.FinancialStatus,
			FulfillmentStatus: req.FulfillmentStatus,
			IsCancelled:       cancelled || existing.IsCancelled,
			CancelledAt:       firstNonNil(req.CancelledAt, existing.CancelledAt),
			UpdatedAt:         now,
		}); err != nil {
			return domain.IngestResult{}, err
		}
		s.metrics.RecordOrderIngested(ctx, string(req.Source), "duplicate")
		log.Debug("order already processed, status refreshed")
		return domain.IngestResult{OrderID: existing.ID, AlreadyProcessed: true}, nil
	}

	var customer *customerdomain.Customer
	if ref := strings.TrimSpace(req.CustomerExternalID); ref != "" {
		customer, err = s.customerSvc.Resolve(ctx, ref)
		if err != nil {
			s.metrics.RecordOrderIngested(ctx, string(req.Source), "failed")
			return domain.IngestResult{}, fmt.Errorf("resolve customer %s: %w", ref, err)
		}
	}

	var computed *calculator.Result
	if customer != nil && customer.IsAgent && !cancelled {
		rules, err := s.rules.Load(ctx)
		if err != nil {
			s.metrics.RecordOrderIngested(ctx, string(req.Source), "failed")
			return domain.IngestResult{}, err
		}
		result := s.calculator.Compute(ctx, rules, toLines(req.LineItems))
		computed = &result
	}

	order := s.newOrder(req, cancelled)
	var commission *commissiondomain.Commission
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if customer != nil {
			if err := s.customerSvc.Ensure(ctx, tx, customer); err != nil {
				return err
			}
			order.CustomerID = &customer.ID
		}
		inserted, err := s.repo.Insert(ctx, tx, order)
		if err != nil {
			return err
		}
		if !inserted {
			return errLostRace
		}
		if computed == nil {
			return nil
		}
		commission = &commissiondomain.Commission{
			OrderID:       order.ID,
			AgentID:       customer.ID,
			Currency:      order.Currency,
			Amount:        computed.Amount,
			ActualAmount:  computed.Amount,
			TotalDiscount: computed.TotalDiscount,
			RuleType:      computed.RuleType,
			Breakdown:     datatypes.NewJSONSlice(computed.Breakdown),
			Status:        commissiondomain.StatusPending,
		}
		_, err = s.commissionSvc.Record(ctx, tx, commission)
		return err
	})
	if errors.Is(err, errLostRace) {
		stored, findErr := s.repo.FindByExternalID(ctx, s.db, req.ExternalID)
		if findErr != nil {
			return domain.IngestResult{}, findErr
		}
		result := domain.IngestResult{AlreadyProcessed: true}
		if stored != nil {
			result.OrderID = stored.ID
		}
		s.metrics.RecordOrderIngested(ctx, string(req.Source), "duplicate")
		log.Info("concurrent delivery already stored the order")
		return result, nil
	}
	if err != nil {
		s.metrics.RecordOrderIngested(ctx, string(req.Source), "failed")
		log.Error("order ingestion failed", zap.Error(err))
		return domain.IngestResult{}, err
	}

	s.metrics.RecordOrderIngested(ctx, string(req.Source), "created")
	s.publish(ctx, events.TypeOrderIngested, order.ExternalID, map[string]any{
		"order_id":     order.ID.String(),
		"external_id":  order.ExternalID,
		"is_cancelled": order.IsCancelled,
		"source":       string(order.Source),
	})

	result := domain.IngestResult{OrderID: order.ID, CommissionAmount: decimal.Zero}
	if commission != nil {
		result.CommissionID = commission.ID
		result.CommissionAmount = commission.Amount
		s.metrics.RecordCommissionComputed(ctx, string(commission.RuleType))
		s.publishComputed(ctx, order.ExternalID, commission)
	}
	log.Info("order ingested",
		zap.String("order_id", order.ID.String()),
		zap.Bool("is_cancelled", order.IsCancelled),
		zap.Bool("commission", commission != nil),
	)
	return result, nil
}

func (s *Service) Recalculate(ctx context.Context, req domain.RecalculateRequest) (domain.RecalculateResult, error) {
	actor := strings.TrimSpace(req.Actor)
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectCommission, authorization.ActionCommissionRecalculate); err != nil {
		return domain.RecalculateResult{}, err
	}

	rules, err := s.rules.Load(ctx)
	if err != nil {
		return domain.RecalculateResult{}, err
	}
	orders, err := s.repo.ListCommissionable(ctx, s.db, req.OrderIDs)
	if err != nil {
		return domain.RecalculateResult{}, err
	}

	var (
		result domain.RecalculateResult
		errs   []error
	)
	for _, order := range orders {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		result.Processed++

		computed := s.calculator.Compute(ctx, rules, toLines(order.LineItems))
		commission := &commissiondomain.Commission{
			OrderID:       order.ID,
			AgentID:       *order.CustomerID,
			Currency:      order.Currency,
			Amount:        computed.Amount,
			ActualAmount:  computed.Amount,
			TotalDiscount: computed.TotalDiscount,
			RuleType:      computed.RuleType,
			Breakdown:     datatypes.NewJSONSlice(computed.Breakdown),
			Status:        commissiondomain.StatusPending,
		}

		var outcome commissiondomain.UpsertOutcome
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			outcome, err = s.commissionSvc.Record(ctx, tx, commission)
			return err
		})
		if err != nil {
			result.Failed++
			errs = append(errs, fmt.Errorf("order %s: %w", order.ExternalID, err))
			continue
		}

		switch outcome {
		case commissiondomain.OutcomeCreated:
			result.Created++
		case commissiondomain.OutcomeUpdated:
			result.Updated++
		case commissiondomain.OutcomeSkippedPaid:
			result.SkippedPaid++
			continue
		}
		s.metrics.RecordCommissionComputed(ctx, string(computed.RuleType))
		s.publishComputed(ctx, order.ExternalID, commission)
	}

	if err := s.auditSvc.Record(ctx, nil, auditdomain.Entry{
		Actor:      actor,
		Action:     authorization.ActionCommissionRecalculate,
		TargetType: authorization.ObjectCommission,
		Metadata: map[string]any{
			"processed":    result.Processed,
			"created":      result.Created,
			"updated":      result.Updated,
			"skipped_paid": result.SkippedPaid,
			"failed":       result.Failed,
		},
	}); err != nil {
		errs = append(errs, err)
	}

	s.log.Info("commissions recalculated",
		zap.String("actor", actor),
		zap.Int("processed", result.Processed),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("skipped_paid", result.SkippedPaid),
		zap.Int("failed", result.Failed),
	)
	return result, errors.Join(errs...)
}

func (s *Service) GetByExternalID(ctx context.Context, externalID string) (domain.Order, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return domain.Order{}, domain.ErrInvalidExternalID
	}
	order, err := s.repo.FindByExternalID(ctx, s.db, externalID)
	if err != nil {
		return domain.Order{}, err
	}
	if order == nil {
		return domain.Order{}, domain.ErrNotFound
	}
	return *order, nil
}

func (s *Service) newOrder(req domain.IngestRequest, cancelled bool) *domain.Order {
	now := s.clock.Now()
	lineItems := req.LineItems
	if lineItems == nil {
		lineItems = []domain.LineItem{}
	}
	codes := req.DiscountCodes
	if codes == nil {
		codes = []string{}
	}
	return &domain.Order{
		ID:                s.genID.Generate(),
		ExternalID:        req.ExternalID,
		OrderNumber:       strings.TrimSpace(req.OrderNumber),
		Currency:          strings.ToUpper(strings.TrimSpace(req.Currency)),
		Subtotal:          req.Subtotal,
		TotalTax:          req.TotalTax,
		TotalShipping:     req.TotalShipping,
		TotalDiscounts:    req.TotalDiscounts,
		TotalPrice:        req.TotalPrice,
		LineItems:         datatypes.NewJSONSlice(lineItems),
		DiscountCodes:     datatypes.NewJSONSlice(codes),
		FinancialStatus:   strings.TrimSpace(req.FinancialStatus),
		FulfillmentStatus: strings.TrimSpace(req.FulfillmentStatus),
		IsCancelled:       cancelled,
		Source:            req.Source,
		PlacedAt:          req.PlacedAt,
		ProcessedAt:       req.ProcessedAt,
		CancelledAt:       req.CancelledAt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (s *Service) publishComputed(ctx context.Context, key string, c *commissiondomain.Commission) {
	s.publish(ctx, events.TypeCommissionComputed, key, map[string]any{
		"commission_id": c.ID.String(),
		"order_id":      c.OrderID.String(),
		"agent_id":      c.AgentID.String(),
		"amount":        c.Amount.String(),
		"actual_amount": c.ActualAmount.String(),
		"rule_type":     string(c.RuleType),
		"status":        string(c.Status),
	})
}

func (s *Service) publish(ctx context.Context, typ events.Type, key string, payload map[string]any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events.New(ctx, typ, key, "", payload)); err != nil {
		s.log.Warn("failed to publish order event",
			zap.String("event_type", string(typ)),
			zap.String("order_external_id", key),
			zap.Error(err),
		)
	}
}

func validateLineItems(items []domain.LineItem) error {
	for i, item := range items {
		if item.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: line %d has a negative price", domain.ErrInvalidLineItem, i)
		}
		if item.Quantity < 0 {
			return fmt.Errorf("%w: line %d has a negative quantity", domain.ErrInvalidLineItem, i)
		}
	}
	return nil
}

func toLines(items []domain.LineItem) []calculator.Line {
	lines := make([]calculator.Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, calculator.Line{
			Name:       item.Name,
			ProductRef: item.ProductRef,
			UnitPrice:  item.UnitPrice,
			Quantity:   item.Quantity,
			Discount:   item.Discount,
		})
	}
	return lines
}

func firstNonNil[T any](values ...*T) *T {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
