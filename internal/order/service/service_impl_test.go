package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	commissiondomain "github.com/smallbiznis/commissionhub/internal/commission/domain"
	"github.com/smallbiznis/commissionhub/internal/config"
	customerdomain "github.com/smallbiznis/commissionhub/internal/customer/domain"
	"github.com/smallbiznis/commissionhub/internal/events"
	"github.com/smallbiznis/commissionhub/internal/order/domain"
	ruledomain "github.com/smallbiznis/commissionhub/internal/rule/domain"
	"github.com/smallbiznis/commissionhub/internal/testsupport"
	"github.com/smallbiznis/commissionhub/internal/testsupport/stack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLookup struct {
	mock.Mock
}

func (m *mockLookup) FetchCustomer(ctx context.Context, externalID string) (*customerdomain.RemoteCustomer, error) {
	args := m.Called(ctx, externalID)
	remote, _ := args.Get(0).(*customerdomain.RemoteCustomer)
	return remote, args.Error(1)
}

var bydSynonyms = []config.Synonym{{Match: "BYD", Canonical: "TRAPO CLASSIC"}}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func bydOrder(externalID, customerID string) domain.IngestRequest {
	return domain.IngestRequest{
		ExternalID:         externalID,
		OrderNumber:        "#1001",
		CustomerExternalID: customerID,
		Currency:           "idr",
		Subtotal:           dec("200"),
		TotalPrice:         dec("200"),
		FinancialStatus:    "paid",
		LineItems: []domain.LineItem{
			{Name: "BYD Premium Mat - Black", ProductRef: "p-1", UnitPrice: dec("200"), Quantity: 1},
		},
	}
}

func TestIngestBYDOrderProducesPendingCommission(t *testing.T) {
	ctx := context.Background()
	s := stack.New(t, stack.Options{Synonyms: bydSynonyms})
	s.AddRule(t, ruledomain.RuleTypeProductType, "TRAPO CLASSIC", "8")
	agent := s.AddCustomer(t, "agent-1", true)

	result, err := s.Orders.Ingest(ctx, bydOrder("O1", "agent-1"))
	require.NoError(t, err)
	assert.False(t, result.AlreadyProcessed)
	assert.True(t, result.CommissionAmount.Equal(dec("16.00")))

	commission, err := s.Commissions.GetByOrderID(ctx, result.OrderID)
	require.NoError(t, err)
	assert.True(t, commission.Amount.Equal(dec("16.00")), commission.Amount.String())
	assert.True(t, commission.ActualAmount.Equal(dec("16.00")))
	assert.Equal(t, commissiondomain.StatusPending, commission.Status)
	assert.Equal(t, ruledomain.RuleTypeProductType, commission.RuleType)
	assert.Equal(t, agent.ID, commission.AgentID)
	require.Len(t, commission.Breakdown, 1)
	assert.Equal(t, "TRAPO CLASSIC", commission.Breakdown[0].ProductType)

	order, err := s.Orders.GetByExternalID(ctx, "O1")
	require.NoError(t, err)
	assert.Equal(t, "IDR", order.Currency)
	require.NotNil(t, order.CustomerID)
	assert.Equal(t, agent.ID, *order.CustomerID)
	assert.Equal(t, 1, s.Publisher.Count(events.TypeOrderIngested))
	assert.Equal(t, 1, s.Publisher.Count(events.TypeCommissionComputed))
}

func TestIngestIsIdempotentSequentially(t *testing.T) {
	ctx := context.Background()
	s := stack.New(t, stack.Options{Synonyms: bydSynonyms})
	s.AddRule(t, ruledomain.RuleTypeProductType, "TRAPO CLASSIC", "8")
	s.AddCustomer(t, "agent-1", true)

	first, err := s.Orders.Ingest(ctx, bydOrder("O1", "agent-1"))
	require.NoError(t, err)

	redelivery := bydOrder("O1", "agent-1")
	redelivery.FulfillmentStatus = "fulfilled"
	second, err := s.Orders.Ingest(ctx, redelivery)
	require.NoError(t, err)
	assert.True(t, second.AlreadyProcessed)
	assert.Equal(t, first.OrderID, second.OrderID)

	testsupport.AssertCount(t, s.DB, `SELECT COUNT(*) FROM orders WHERE external_id = 'O1'`, 1)
	testsupport.AssertCount(t, s.DB, `SELECT COUNT(*) FROM commissions`, 1)
	testsupport.AssertCount(t, s.DB, `SELECT COUNT(*) FROM orders WHERE fulfillment_status = 'fulfilled'`, 1)
}

func TestIngestIsIdempotentConcurrently(t *testing.T) {
	ctx := context.Background()
	lookup := &mockLookup{}
	lookup.On("FetchCustomer", mock.Anything, "agent-9").Return(&customerdomain.RemoteCustomer{
		ExternalID: "agent-9",
		Name:       "Agent Nine",
		Tags:       []string{"agent"},
	}, nil).Maybe()
	s := stack.New(t, stack.Options{Lookup: lookup, Synonyms: bydSynonyms})
	s.AddRule(t, ruledomain.RuleTypeProductType, "TRAPO CLASSIC", "8")

	const deliveries = 6
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.Orders.Ingest(ctx, bydOrder("O-race", "agent-9"))
			assert.NoError(t, err)
			if err == nil && !result.AlreadyProcessed {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	testsupport.AssertCount(t, s.DB, `SELECT COUNT(*) FROM orders WHERE external_id = 'O-race'`, 1)
	testsupport.AssertCount(t, s.DB, `SELECT COUNT(*) FROM commissions`, 1)
	testsupport.AssertCount(t, s.DB, `SELECT COUNT(*) FROM customers WHERE external_id = 'agent-9'`, 1)
}

func TestIngestFloorsDiscountsPerLine(t *testing.T) {
	ctx := context.Background()
	s := stack.New(t, stack.Options{})
	s.AddRule(t, ruledomain.RuleTypeDefault, "", "10")
	s.AddCustomer(t, "agent-1", true)

	req := domain.IngestRequest{
		ExternalID:         "O-discount",
		CustomerExternalID: "agent-1",
		Currency:           "IDR",
		LineItems: []domain.LineItem{
			{Name: "Seat Cover", UnitPrice: dec("30"), Quantity: 1, Discount: dec("50")},
			{Name: "Steering Wrap", UnitPrice: dec("100"), Quantity: 2, Discount: dec("20")},
		},
	}
	result, err := s.Orders.Ingest(ctx, req)
	require.NoError(t, err)

	commission, err := s.Commissions.GetByOrderID(ctx, result.OrderID)
	require.NoError(t, err)
	assert.True(t, commission.Amount.Equal(dec("18")), commission.Amount.String())
	assert.True(t, commission.TotalDiscount.Equal(dec("50")), commission.TotalDiscount.String())
	assert.True(t, commission.Breakdown[0].ItemTotal.IsZero())
	assert.Equal(t, ruledomain.RuleTypeDefault, commission.RuleType)
}

func TestIngestWithoutMatchingRuleStoresZeroCommission(t *testing.T) {
	ctx := context.Background()
	s := stack.New(t, stack.Options{})
	s.AddCustomer(t, "agent-1", true)

	result, err := s.Orders.Ingest(ctx, bydOrder("O-none", "agent-1"))
	require.NoError(t, err)

	commission, err := s.Commissions.GetByOrderID(ctx, result.OrderID)
	require.NoError(t, err)
	assert.True(t, commission.Amount.IsZero())
	assert.Equal(t, ruledomain.RuleTypeNone, commission.RuleType)
}

func TestIngestNonAgentOrderHasNoCommission(t *testing.T) {
	ctx := context.Background()
	s := stack.New(t, stack.Options{Synonyms: bydSynonyms})
	s.AddRule(t, ruledomain.RuleTypeProductType, "TRAPO CLASSIC", "8")
	s.AddCustomer(t, "buyer-1", false)

	result, err := s.Orders.Ingest(ctx, bydOrder("O2", "buyer-1"))
	require.NoError(t, err)
	assert.True(t, result.CommissionAmount.IsZero())
	assert.Zero(t, result.CommissionID)
	testsupport.AssertCount(t, s.DB, `SELECT COUNT(*) FROM orders`, 1)
	testsupport.AssertCount(t, s.DB, `SELECT COUNT(*) FROM commissions`, 0)
}

func TestIngestCancelledOrderIsStoredWithoutCommission(t *testing.T) {
	ctx := context.Background()
	s := stack.New(t, stack.Options{Synonyms: bydSynonyms})
	s.AddRule(t, ruledomain.RuleTypeProductType, "TRAPO CLASSIC", "8")
	s.AddCustomer(t, "agent-1", true)

	req := bydOrder("O3", "agent-1")
	cancelledAt := time.Date(2025, 2, 28, 10, 0, 0, 0, time.UTC)
	req.CancelledAt = &cancelledAt
	_, err := s.Orders.Ingest(ctx, req)
	require.NoError(t, err)

	order, err := s.Orders.GetByExternalID(ctx, "O3")
	require.NoError(t, err)
	assert.True(t, order.IsCancelled)
	testsupport.AssertCount(t, s.DB, `SELECT COUNT(*) FROM commissions`, 0)
}

func TestIngestVoidedOrderEarnsNothing(t *testing.T) {
	ctx := context.Background()
	s := stack.New(t, stack.Options{Synonyms: bydSynonyms})
	s.AddRule(t, ruledomain.RuleTypeProductType, "TRAPO CLASSIC", "8")
	s.AddCustomer(t, "agent-1", true)

	req := bydOrder("V1", "agent-1")
	req.FinancialStatus = "voided"
	result, err := s.Orders.Ingest(ctx, req)
	require.NoError(t, err)
	assert.True(t, result.CommissionAmount.IsZero())
	assert.Zero(t, result.CommissionID)

	order, err := s.Orders.GetByExternalID(ctx, "V1")
	require.NoError(t, err)
	assert.True(t, order.IsCancelled)
	testsupport.AssertCount(t, s.DB, `SELECT COUNT(*) FROM commissions`, 0)
}

func TestIngestRejectsMissingExternalIDBeforeStorage(t *testing.T) {
	s := stack.New(t, stack.Options{})

	_, err := s.Orders.Ingest(context.Background(), domain.IngestRequest{ExternalID: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidExternalID)

	bad := bydOrder("O4", "")
	bad.LineItems[0].Quantity = -1
	_, err = s.Orders.Ingest(context.Background(), bad)
	assert.ErrorIs(t, err, domain.ErrInvalidLineItem)
	testsupport.AssertCount(t, s.DB, `SELECT COUNT(*) FROM orders`, 0)
}

func TestIngestFailsWholeWhenCustomerLookupFails(t *testing.T) {
	ctx := context.Background()
	lookup := &mockLookup{}
	lookup.On("FetchCustomer", mock.Anything, "ghost").Return(nil, errors.New("upstream 502")).Once()
	s := stack.New(t, stack.Options{Lookup: lookup})

	_, err := s.Orders.Ingest(ctx, bydOrder("O5", "ghost"))
	require.Error(t, err)
	assert.ErrorIs(t, err, customerdomain.ErrLookupFailed)

	testsupport.AssertCount(t, s.DB, `SELECT COUNT(*) FROM orders`, 0)
	testsupport.AssertCount(t, s.DB, `SELECT COUNT(*) FROM customers`, 0)
	testsupport.AssertCount(t, s.DB, `SELECT COUNT(*) FROM commissions`, 0)
	lookup.AssertExpectations(t)
}

func TestIngestRollsBackOrderWhenCommissionWriteFails(t *testing.T) {
	ctx := context.Background()
	s := stack.New(t, stack.Options{Synonyms: bydSynonyms})
	s.AddRule(t, ruledomain.RuleTypeProductType, "TRAPO CLASSIC", "8")
	s.AddCustomer(t, "agent-1", true)
	require.NoError(t, s.DB.Exec(`DROP TABLE commissions`).Error)

	_, err := s.Orders.Ingest(ctx, bydOrder("O6", "agent-1"))
	require.Error(t, err)

	testsupport.AssertCount(t, s.DB, `SELECT COUNT(*) FROM orders`, 0)
	assert.Zero(t, s.Publisher.Count(events.TypeOrderIngested))
}

func TestRecalculateRefreshesUnpaidCommissions(t *testing.T) {
	ctx := context.Background()
	s := stack.New(t, stack.Options{Synonyms: bydSynonyms})
	s.AddRule(t, ruledomain.RuleTypeProductType, "TRAPO CLASSIC", "8")
	s.AddCustomer(t, "agent-1", true)

	first, err := s.Orders.Ingest(ctx, bydOrder("O1", "agent-1"))
	require.NoError(t, err)
	second, err := s.Orders.Ingest(ctx, bydOrder("O2", "agent-1"))
	require.NoError(t, err)

	_, err = s.Commissions.Approve(ctx, commissiondomain.ApproveRequest{ID: second.CommissionID, Actor: stack.FinanceActor})
	require.NoError(t, err)
	_, err = s.Commissions.MarkPaid(ctx, commissiondomain.MarkPaidRequest{ID: second.CommissionID, Actor: stack.FinanceActor, Note: "paid", ReceiptRef: "TRX"})
	require.NoError(t, err)

	require.NoError(t, s.DB.Exec(`UPDATE commission_rules SET percentage = 10`).Error)

	_, err = s.Orders.Recalculate(ctx, domain.RecalculateRequest{Actor: stack.ApproverActor})
	require.Error(t, err)

	result, err := s.Orders.Recalculate(ctx, domain.RecalculateRequest{Actor: stack.FinanceActor})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.SkippedPaid)

	refreshed, err := s.Commissions.GetByOrderID(ctx, first.OrderID)
	require.NoError(t, err)
	assert.True(t, refreshed.Amount.Equal(dec("20")))

	paid, err := s.Commissions.GetByOrderID(ctx, second.OrderID)
	require.NoError(t, err)
	assert.True(t, paid.Amount.Equal(dec("16")))
	assert.Equal(t, commissiondomain.StatusPaid, paid.Status)
}
