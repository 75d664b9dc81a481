package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditrepository "github.com/smallbiznis/commissionhub/internal/audit/repository"
	auditservice "github.com/smallbiznis/commissionhub/internal/audit/service"
	"github.com/smallbiznis/commissionhub/internal/authorization"
	"github.com/smallbiznis/commissionhub/internal/clock"
	"github.com/smallbiznis/commissionhub/internal/commission/domain"
	"github.com/smallbiznis/commissionhub/internal/commission/repository"
	"github.com/smallbiznis/commissionhub/internal/commission/service"
	"github.com/smallbiznis/commissionhub/internal/config"
	"github.com/smallbiznis/commissionhub/internal/events"
	ruledomain "github.com/smallbiznis/commissionhub/internal/rule/domain"
	"github.com/smallbiznis/commissionhub/internal/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	finance  = "finance@example.com"
	approver = "approver@example.com"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, evt := range p.events {
		out = append(out, evt.Type)
	}
	return out
}

type fixture struct {
	db        *gorm.DB
	svc       domain.Service
	clock     *clock.FakeClock
	publisher *recordingPublisher
	node      *snowflake.Node
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testsupport.OpenDB(t)
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	node := testsupport.Node(t, 7)
	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  auditrepository.Provide(),
	})
	enforcer, err := authorization.NewEnforcer(nil, config.Config{Authz: config.AuthzConfig{
		FinanceActors:  []string{finance},
		ApproverActors: []string{approver},
	}})
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer})

	publisher := &recordingPublisher{}
	svc := service.New(service.Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clk,
		Repo:      repository.Provide(),
		Authz:     authz,
		AuditSvc:  auditSvc,
		Publisher: publisher,
	})
	return &fixture{db: db, svc: svc, clock: clk, publisher: publisher, node: node}
}

func (f *fixture) seed(t *testing.T, amount string) domain.Commission {
	t.Helper()

	value := decimal.RequireFromString(amount)
	c := &domain.Commission{
		OrderID:       f.node.Generate(),
		AgentID:       f.node.Generate(),
		Currency:      "IDR",
		Amount:        value,
		ActualAmount:  value,
		TotalDiscount: decimal.Zero,
		RuleType:      ruledomain.RuleTypeProductType,
	}
	outcome, err := f.svc.Record(context.Background(), nil, c)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeCreated, outcome)
	return *c
}

func (f *fixture) status(t *testing.T, id snowflake.ID) domain.Status {
	t.Helper()
	c, err := f.svc.Get(context.Background(), id)
	require.NoError(t, err)
	return c.Status
}

func TestApproveMovesPendingToApproved(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.seed(t, "16.00")

	approved, err := f.svc.Approve(ctx, domain.ApproveRequest{ID: c.ID, Actor: approver})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, approved.Status)
	assert.Equal(t, approver, approved.ApprovedBy)
	require.NotNil(t, approved.ApprovedAt)

	_, err = f.svc.Approve(ctx, domain.ApproveRequest{ID: c.ID, Actor: approver})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	testsupport.AssertCount(t, f.db, `SELECT COUNT(*) FROM audit_logs WHERE action = ? AND actor = ?`, 1, authorization.ActionCommissionApprove, approver)
	assert.Equal(t, []events.Type{events.TypeCommissionApproved}, f.publisher.types())
}

func TestApproveUnknownCommission(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Approve(context.Background(), domain.ApproveRequest{ID: 12345, Actor: approver})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMutationsRequireAuthorizedActor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.seed(t, "10")

	_, err := f.svc.Approve(ctx, domain.ApproveRequest{ID: c.ID})
	assert.ErrorIs(t, err, authorization.ErrInvalidActor)

	_, err = f.svc.Approve(ctx, domain.ApproveRequest{ID: c.ID, Actor: "stranger"})
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	_, err = f.svc.Adjust(ctx, domain.AdjustRequest{ID: c.ID, Actor: approver, Amount: decimal.NewFromInt(5), Reason: "typo"})
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	assert.Equal(t, domain.StatusPending, f.status(t, c.ID))
}

func TestLedgerNeverMovesBackwards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.seed(t, "25")

	_, err := f.svc.Approve(ctx, domain.ApproveRequest{ID: c.ID, Actor: finance})
	require.NoError(t, err)
	paid, err := f.svc.MarkPaid(ctx, domain.MarkPaidRequest{ID: c.ID, Actor: finance, Note: "March payout", ReceiptRef: "TRX-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, paid.Status)
	assert.Equal(t, finance, paid.PaidBy)

	_, err = f.svc.Approve(ctx, domain.ApproveRequest{ID: c.ID, Actor: finance})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = f.svc.Adjust(ctx, domain.AdjustRequest{ID: c.ID, Actor: finance, Amount: decimal.NewFromInt(1), Reason: "late fix"})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = f.svc.MarkPaid(ctx, domain.MarkPaidRequest{ID: c.ID, Actor: finance, Note: "again", ReceiptRef: "TRX-2"})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	stored, err := f.svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, stored.Status)
	assert.Equal(t, "TRX-1", stored.PaymentReceipt)
	assert.True(t, stored.Amount.Equal(decimal.NewFromInt(25)))
}

func TestMarkPaidRequiresApproval(t *testing.T) {
	f := newFixture(t)
	c := f.seed(t, "25")

	_, err := f.svc.MarkPaid(context.Background(), domain.MarkPaidRequest{ID: c.ID, Actor: finance, Note: "n", ReceiptRef: "r"})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, domain.StatusPending, f.status(t, c.ID))
}

func TestMarkPaidRejectsZeroAmount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.seed(t, "0")

	_, err := f.svc.Approve(ctx, domain.ApproveRequest{ID: c.ID, Actor: finance})
	require.NoError(t, err)

	_, err = f.svc.MarkPaid(ctx, domain.MarkPaidRequest{ID: c.ID, Actor: finance, Note: "payout", ReceiptRef: "TRX-0"})
	assert.ErrorIs(t, err, domain.ErrNonPositiveAmount)
	assert.Equal(t, domain.StatusApproved, f.status(t, c.ID))
}

func TestMarkPaidRequiresNoteAndReceipt(t *testing.T) {
	f := newFixture(t)
	c := f.seed(t, "5")

	_, err := f.svc.MarkPaid(context.Background(), domain.MarkPaidRequest{ID: c.ID, Actor: finance, ReceiptRef: "r"})
	assert.ErrorIs(t, err, domain.ErrPaymentNoteRequired)
	_, err = f.svc.MarkPaid(context.Background(), domain.MarkPaidRequest{ID: c.ID, Actor: finance, Note: "n"})
	assert.ErrorIs(t, err, domain.ErrReceiptRequired)
}

func TestAdjustKeepsStatusAndActualAmount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.seed(t, "16")
	f.clock.Advance(time.Hour)

	adjusted, err := f.svc.Adjust(ctx, domain.AdjustRequest{
		ID:     c.ID,
		Actor:  finance,
		Amount: decimal.RequireFromString("12.50"),
		Reason: "returned one mat",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, adjusted.Status)

	stored, err := f.svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, stored.Amount.Equal(decimal.RequireFromString("12.50")))
	assert.True(t, stored.ActualAmount.Equal(decimal.NewFromInt(16)))
	assert.Equal(t, "returned one mat", stored.AdjustmentReason)
	assert.Equal(t, finance, stored.AdjustedBy)
	require.NotNil(t, stored.AdjustedAt)
	assert.True(t, stored.AdjustedAt.Equal(f.clock.Now()))
}

func TestAdjustValidation(t *testing.T) {
	f := newFixture(t)
	c := f.seed(t, "16")

	_, err := f.svc.Adjust(context.Background(), domain.AdjustRequest{ID: c.ID, Actor: finance, Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrReasonRequired)
	_, err = f.svc.Adjust(context.Background(), domain.AdjustRequest{ID: c.ID, Actor: finance, Amount: decimal.NewFromInt(-1), Reason: "x"})
	assert.ErrorIs(t, err, domain.ErrNegativeAmount)
}

func TestBulkMarkPaidIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	good1 := f.seed(t, "10")
	zero := f.seed(t, "0")
	good2 := f.seed(t, "20")

	_, err := f.svc.BulkApprove(ctx, domain.BulkApproveRequest{IDs: []snowflake.ID{good1.ID, zero.ID, good2.ID}, Actor: finance})
	require.NoError(t, err)

	_, err = f.svc.BulkMarkPaid(ctx, domain.BulkMarkPaidRequest{
		IDs:        []snowflake.ID{good1.ID, zero.ID, good2.ID},
		Actor:      finance,
		Note:       "March payout",
		ReceiptRef: "TRX-BATCH",
	})
	require.ErrorIs(t, err, domain.ErrNonPositiveAmount)
	var itemErr *domain.ItemError
	require.True(t, errors.As(err, &itemErr))
	assert.Equal(t, zero.ID, itemErr.ID)

	for _, id := range []snowflake.ID{good1.ID, zero.ID, good2.ID} {
		assert.Equal(t, domain.StatusApproved, f.status(t, id))
	}
	testsupport.AssertCount(t, f.db, `SELECT COUNT(*) FROM audit_logs WHERE action = ?`, 0, authorization.ActionCommissionMarkPaid)
}

func TestBulkApproveRejectsWholeBatchOnNonPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.seed(t, "10")
	b := f.seed(t, "10")

	_, err := f.svc.Approve(ctx, domain.ApproveRequest{ID: b.ID, Actor: finance})
	require.NoError(t, err)

	_, err = f.svc.BulkApprove(ctx, domain.BulkApproveRequest{IDs: []snowflake.ID{a.ID, b.ID}, Actor: finance})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, domain.StatusPending, f.status(t, a.ID))

	_, err = f.svc.BulkApprove(ctx, domain.BulkApproveRequest{Actor: finance})
	assert.ErrorIs(t, err, domain.ErrEmptyBatch)
}

func TestConcurrentApprovalsSucceedOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.seed(t, "10")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Approve(ctx, domain.ApproveRequest{ID: c.ID, Actor: finance})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
}

func TestRecordPreservesAdjustmentAndSkipsPaid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.seed(t, "16")

	_, err := f.svc.Adjust(ctx, domain.AdjustRequest{ID: c.ID, Actor: finance, Amount: decimal.NewFromInt(10), Reason: "manual"})
	require.NoError(t, err)

	recomputed := &domain.Commission{
		OrderID:       c.OrderID,
		AgentID:       c.AgentID,
		Currency:      "IDR",
		Amount:        decimal.NewFromInt(18),
		ActualAmount:  decimal.NewFromInt(18),
		TotalDiscount: decimal.Zero,
		RuleType:      ruledomain.RuleTypeDefault,
	}
	outcome, err := f.svc.Record(ctx, nil, recomputed)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeUpdated, outcome)

	stored, err := f.svc.GetByOrderID(ctx, c.OrderID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, stored.ID)
	assert.True(t, stored.Amount.Equal(decimal.NewFromInt(10)))
	assert.True(t, stored.ActualAmount.Equal(decimal.NewFromInt(18)))
	assert.Equal(t, ruledomain.RuleTypeDefault, stored.RuleType)

	_, err = f.svc.Approve(ctx, domain.ApproveRequest{ID: c.ID, Actor: finance})
	require.NoError(t, err)
	_, err = f.svc.MarkPaid(ctx, domain.MarkPaidRequest{ID: c.ID, Actor: finance, Note: "n", ReceiptRef: "r"})
	require.NoError(t, err)

	assert.Equal(t, c.ID, recomputed.ID)
	recomputed.ID = 0
	recomputed.ActualAmount = decimal.NewFromInt(99)
	outcome, err = f.svc.Record(ctx, nil, recomputed)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSkippedPaid, outcome)

	stored, err = f.svc.GetByOrderID(ctx, c.OrderID)
	require.NoError(t, err)
	assert.True(t, stored.ActualAmount.Equal(decimal.NewFromInt(18)))
}

func TestDeleteRemovesCommission(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.seed(t, "16")

	err := f.svc.Delete(ctx, domain.DeleteRequest{ID: c.ID, Actor: approver})
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	require.NoError(t, f.svc.Delete(ctx, domain.DeleteRequest{ID: c.ID, Actor: finance}))
	_, err = f.svc.Get(ctx, c.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(ctx, domain.DeleteRequest{ID: c.ID, Actor: finance}), domain.ErrNotFound)
	assert.Contains(t, f.publisher.types(), events.TypeCommissionDeleted)
}

func TestListFiltersByStatusAndPages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.seed(t, "5")
	}
	approved := f.seed(t, "5")
	_, err := f.svc.Approve(ctx, domain.ApproveRequest{ID: approved.ID, Actor: finance})
	require.NoError(t, err)

	page, err := f.svc.List(ctx, domain.ListCommissionRequest{Status: "pending"})
	require.NoError(t, err)
	assert.Len(t, page.Commissions, 3)

	req := domain.ListCommissionRequest{}
	req.PageSize = 2
	first, err := f.svc.List(ctx, req)
	require.NoError(t, err)
	require.True(t, first.HasMore)
	req.PageToken = first.NextPageToken
	second, err := f.svc.List(ctx, req)
	require.NoError(t, err)
	assert.Len(t, second.Commissions, 2)
	assert.False(t, second.HasMore)

	_, err = f.svc.List(ctx, domain.ListCommissionRequest{Status: "void"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}
