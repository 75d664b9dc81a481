package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/commissionhub/internal/audit/domain"
	"github.com/smallbiznis/commissionhub/internal/authorization"
	"github.com/smallbiznis/commissionhub/internal/clock"
	"github.com/smallbiznis/commissionhub/internal/commission/domain"
	"github.com/smallbiznis/commissionhub/internal/events"
	"github.com/smallbiznis/commissionhub/internal/observability/metrics"
	"github.com/smallbiznis/commissionhub/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Authz     authorization.Service
	AuditSvc  auditdomain.Service
	Publisher events.Publisher
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	authz     authorization.Service
	auditSvc  auditdomain.Service
	publisher events.Publisher
	metrics   *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("commission.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		authz:     p.Authz,
		auditSvc:  p.AuditSvc,
		publisher: p.Publisher,
		metrics:   p.Metrics,
	}
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Commission, error) {
	if id == 0 {
		return domain.Commission{}, domain.ErrInvalidID
	}
	c, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Commission{}, err
	}
	if c == nil {
		return domain.Commission{}, domain.ErrNotFound
	}
	return *c, nil
}

func (s *Service) GetByOrderID(ctx context.Context, orderID snowflake.ID) (domain.Commission, error) {
	if orderID == 0 {
		return domain.Commission{}, domain.ErrInvalidID
	}
	c, err := s.repo.FindByOrderID(ctx, s.db, orderID)
	if err != nil {
		return domain.Commission{}, err
	}
	if c == nil {
		return domain.Commission{}, domain.ErrNotFound
	}
	return *c, nil
}

func (s *Service) List(ctx context.Context, req domain.ListCommissionRequest) (domain.ListCommissionResponse, error) {
	filter := domain.ListFilter{Limit: req.Limit()}

	if status := strings.TrimSpace(req.Status); status != "" {
		filter.Status = domain.Status(strings.ToLower(status))
		if !filter.Status.Valid() {
			return domain.ListCommissionResponse{}, domain.ErrInvalidStatus
		}
	}
	if agent := strings.TrimSpace(req.AgentID); agent != "" {
		agentID, err := snowflake.ParseString(agent)
		if err != nil || agentID == 0 {
			return domain.ListCommissionResponse{}, domain.ErrInvalidAgentID
		}
		filter.AgentID = agentID
	}
	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return domain.ListCommissionResponse{}, domain.ErrInvalidPageToken
	}
	if cursor != nil {
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil || id == 0 {
			return domain.ListCommissionResponse{}, domain.ErrInvalidPageToken
		}
		filter.Cursor = &id
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListCommissionResponse{}, err
	}
	items, pageInfo := pagination.Trim(items, filter.Limit, func(c domain.Commission) pagination.Cursor {
		return pagination.Cursor{ID: c.ID.String(), CreatedAt: c.CreatedAt.Format(time.RFC3339)}
	})
	return domain.ListCommissionResponse{PageInfo: pageInfo, Commissions: items}, nil
}

func (s *Service) Approve(ctx context.Context, req domain.ApproveRequest) (domain.Commission, error) {
	items, err := s.BulkApprove(ctx, domain.BulkApproveRequest{IDs: []snowflake.ID{req.ID}, Actor: req.Actor})
	if err != nil {
		return domain.Commission{}, unwrapSingle(err)
	}
	return items[0], nil
}

func (s *Service) BulkApprove(ctx context.Context, req domain.BulkApproveRequest) ([]domain.Commission, error) {
	actor := strings.TrimSpace(req.Actor)
	ids, err := normalizeIDs(req.IDs)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectCommission, authorization.ActionCommissionApprove); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	out := make([]domain.Commission, 0, len(ids))
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			c, err := s.load(ctx, tx, id)
			if err != nil {
				return err
			}
			if c.Status != domain.StatusPending {
				return itemError(id, domain.ErrInvalidTransition)
			}
			ok, err := s.repo.Approve(ctx, tx, id, actor, now)
			if err != nil {
				return err
			}
			if !ok {
				return itemError(id, domain.ErrInvalidTransition)
			}
			c.Status = domain.StatusApproved
			c.ApprovedBy = actor
			c.ApprovedAt = &now
			c.UpdatedAt = now
			if err := s.audit(ctx, tx, actor, authorization.ActionCommissionApprove, c, map[string]any{
				"from_status": string(domain.StatusPending),
				"to_status":   string(domain.StatusApproved),
			}); err != nil {
				return err
			}
			out = append(out, *c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordCommissionTransition(ctx, string(domain.StatusPending), string(domain.StatusApproved), len(out))
	for _, c := range out {
		s.publish(ctx, events.TypeCommissionApproved, actor, c)
	}
	s.log.Info("commissions approved", zap.String("actor", actor), zap.Int("count", len(out)))
	return out, nil
}

func (s *Service) Adjust(ctx context.Context, req domain.AdjustRequest) (domain.Commission, error) {
	if req.ID == 0 {
		return domain.Commission{}, domain.ErrInvalidID
	}
	req.Actor = strings.TrimSpace(req.Actor)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		return domain.Commission{}, domain.ErrReasonRequired
	}
	if req.Amount.IsNegative() {
		return domain.Commission{}, domain.ErrNegativeAmount
	}
	req.Amount = req.Amount.Round(2)
	if err := s.authz.Authorize(ctx, req.Actor, authorization.ObjectCommission, authorization.ActionCommissionAdjust); err != nil {
		return domain.Commission{}, err
	}

	now := s.clock.Now()
	var adjusted domain.Commission
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.load(ctx, tx, req.ID)
		if err != nil {
			return err
		}
		if c.Status == domain.StatusPaid {
			return domain.ErrInvalidTransition
		}
		ok, err := s.repo.Adjust(ctx, tx, req.ID, req, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidTransition
		}
		previous := c.Amount
		c.Amount = req.Amount
		c.AdjustmentReason = req.Reason
		c.AdjustedBy = req.Actor
		c.AdjustedAt = &now
		c.UpdatedAt = now
		adjusted = *c
		return s.audit(ctx, tx, req.Actor, authorization.ActionCommissionAdjust, c, map[string]any{
			"previous_amount": previous.String(),
			"amount":          req.Amount.String(),
			"reason":          req.Reason,
		})
	})
	if err != nil {
		return domain.Commission{}, unwrapSingle(err)
	}

	s.publish(ctx, events.TypeCommissionAdjusted, req.Actor, adjusted)
	return adjusted, nil
}

func (s *Service) MarkPaid(ctx context.Context, req domain.MarkPaidRequest) (domain.Commission, error) {
	items, err := s.BulkMarkPaid(ctx, domain.BulkMarkPaidRequest{
		IDs:        []snowflake.ID{req.ID},
		Actor:      req.Actor,
		Note:       req.Note,
		ReceiptRef: req.ReceiptRef,
	})
	if err != nil {
		return domain.Commission{}, unwrapSingle(err)
	}
	return items[0], nil
}

func (s *Service) BulkMarkPaid(ctx context.Context, req domain.BulkMarkPaidRequest) ([]domain.Commission, error) {
	actor := strings.TrimSpace(req.Actor)
	ids, err := normalizeIDs(req.IDs)
	if err != nil {
		return nil, err
	}
	pay := domain.MarkPaidRequest{
		Actor:      actor,
		Note:       strings.TrimSpace(req.Note),
		ReceiptRef: strings.TrimSpace(req.ReceiptRef),
	}
	if pay.Note == "" {
		return nil, domain.ErrPaymentNoteRequired
	}
	if pay.ReceiptRef == "" {
		return nil, domain.ErrReceiptRequired
	}
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectCommission, authorization.ActionCommissionMarkPaid); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	out := make([]domain.Commission, 0, len(ids))
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			c, err := s.load(ctx, tx, id)
			if err != nil {
				return err
			}
			if c.Status != domain.StatusApproved {
				return itemError(id, domain.ErrInvalidTransition)
			}
			if !c.Amount.IsPositive() {
				return itemError(id, domain.ErrNonPositiveAmount)
			}
			ok, err := s.repo.MarkPaid(ctx, tx, id, pay, now)
			if err != nil {
				return err
			}
			if !ok {
				return itemError(id, domain.ErrInvalidTransition)
			}
			c.Status = domain.StatusPaid
			c.PaymentNote = pay.Note
			c.PaymentReceipt = pay.ReceiptRef
			c.PaidBy = actor
			c.PaidAt = &now
			c.UpdatedAt = now
			if err := s.audit(ctx, tx, actor, authorization.ActionCommissionMarkPaid, c, map[string]any{
				"amount":          c.Amount.String(),
				"payment_note":    pay.Note,
				"payment_receipt": pay.ReceiptRef,
			}); err != nil {
				return err
			}
			out = append(out, *c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordCommissionTransition(ctx, string(domain.StatusApproved), string(domain.StatusPaid), len(out))
	for _, c := range out {
		s.publish(ctx, events.TypeCommissionPaid, actor, c)
	}
	s.log.Info("commissions marked paid", zap.String("actor", actor), zap.Int("count", len(out)))
	return out, nil
}

func (s *Service) Delete(ctx context.Context, req domain.DeleteRequest) error {
	if req.ID == 0 {
		return domain.ErrInvalidID
	}
	actor := strings.TrimSpace(req.Actor)
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectCommission, authorization.ActionCommissionDelete); err != nil {
		return err
	}

	var deleted domain.Commission
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.load(ctx, tx, req.ID)
		if err != nil {
			return err
		}
		ok, err := s.repo.Delete(ctx, tx, req.ID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrNotFound
		}
		deleted = *c
		return s.audit(ctx, tx, actor, authorization.ActionCommissionDelete, c, map[string]any{
			"status": string(c.Status),
			"amount": c.Amount.String(),
		})
	})
	if err != nil {
		return unwrapSingle(err)
	}

	s.publish(ctx, events.TypeCommissionDeleted, actor, deleted)
	s.log.Warn("commission deleted",
		zap.String("actor", actor),
		zap.String("commission_id", deleted.ID.String()),
		zap.String("status", string(deleted.Status)),
	)
	return nil
}

func (s *Service) Record(ctx context.Context, tx *gorm.DB, c *domain.Commission) (domain.UpsertOutcome, error) {
	if c == nil {
		return "", domain.ErrInvalidID
	}
	if tx == nil {
		tx = s.db
	}
	now := s.clock.Now()
	if c.ID == 0 {
		c.ID = s.genID.Generate()
	}
	if c.Status == "" {
		c.Status = domain.StatusPending
	}
	c.Amount = c.Amount.Round(2)
	c.ActualAmount = c.ActualAmount.Round(2)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	outcome, err := s.repo.Upsert(ctx, tx, c)
	if err != nil {
		return "", err
	}
	if outcome == domain.OutcomeCreated {
		return outcome, nil
	}

	stored, err := s.repo.FindByOrderID(ctx, tx, c.OrderID)
	if err != nil {
		return "", err
	}
	if stored == nil {
		return "", domain.ErrNotFound
	}
	*c = *stored
	if outcome == domain.OutcomeSkippedPaid {
		s.log.Info("commission already paid, recomputation skipped",
			zap.String("order_id", c.OrderID.String()),
			zap.String("commission_id", c.ID.String()),
		)
	}
	return outcome, nil
}

func (s *Service) load(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Commission, error) {
	c, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, itemError(id, domain.ErrNotFound)
	}
	return c, nil
}

func (s *Service) audit(ctx context.Context, tx *gorm.DB, actor, action string, c *domain.Commission, metadata map[string]any) error {
	metadata["order_id"] = c.OrderID.String()
	metadata["agent_id"] = c.AgentID.String()
	return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
		Actor:      actor,
		Action:     action,
		TargetType: authorization.ObjectCommission,
		TargetID:   c.ID.String(),
		Metadata:   metadata,
	})
}

func (s *Service) publish(ctx context.Context, typ events.Type, actor string, c domain.Commission) {
	if s.publisher == nil {
		return
	}
	evt := events.New(ctx, typ, c.OrderID.String(), actor, map[string]any{
		"commission_id": c.ID.String(),
		"order_id":      c.OrderID.String(),
		"agent_id":      c.AgentID.String(),
		"amount":        c.Amount.String(),
		"actual_amount": c.ActualAmount.String(),
		"currency":      c.Currency,
		"status":        string(c.Status),
	})
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.log.Warn("failed to publish commission event",
			zap.String("event_type", string(typ)),
			zap.String("commission_id", c.ID.String()),
			zap.Error(err),
		)
	}
}

func itemError(id snowflake.ID, err error) error {
	return &domain.ItemError{ID: id, Err: err}
}

func unwrapSingle(err error) error {
	if ie, ok := err.(*domain.ItemError); ok {
		return ie.Err
	}
	return err
}

func normalizeIDs(ids []snowflake.ID) ([]snowflake.ID, error) {
	if len(ids) == 0 {
		return nil, domain.ErrEmptyBatch
	}
	seen := make(map[snowflake.ID]struct{}, len(ids))
	out := make([]snowflake.ID, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			return nil, domain.ErrInvalidID
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
