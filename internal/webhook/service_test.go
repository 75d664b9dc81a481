package webhook

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/commissionhub/internal/config"
	"github.com/smallbiznis/commissionhub/internal/jobqueue"
	ruledomain "github.com/smallbiznis/commissionhub/internal/rule/domain"
	"github.com/smallbiznis/commissionhub/internal/testsupport"
	"github.com/smallbiznis/commissionhub/internal/testsupport/stack"
	"github.com/smallbiznis/commissionhub/internal/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const secret = "webhook-secret"

const orderBody = `{
  "id": 9100,
  "name": "#9100",
  "currency": "IDR",
  "total_price": "200.00",
  "financial_status": "paid",
  "customer": {"id": "agent-1"},
  "line_items": [{"name": "BYD Seal", "product_id": 77, "price": "100.00", "quantity": 2}]
}`

type recordingQueue struct {
	jobs []jobqueue.Job
	err  error
}

func (q *recordingQueue) Enqueue(job jobqueue.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func newService(t *testing.T, st *stack.Stack, async bool, q Enqueuer) *Service {
	t.Helper()
	return New(Params{
		Log: zap.NewNop(),
		Config: config.Config{Webhook: config.WebhookConfig{
			Secret:    secret,
			Async:     async,
			DedupeTTL: time.Hour,
		}},
		Orders:  st.Orders,
		Queue:   q,
		Deduper: NewMemoryDeduper(st.Clock),
	})
}

func delivery(body, id string) Delivery {
	return Delivery{Body: []byte(body), Signature: upstream.Sign(secret, []byte(body)), DeliveryID: id}
}

func seed(t *testing.T, st *stack.Stack) {
	t.Helper()
	st.AddCustomer(t, "agent-1", true)
	st.AddRule(t, ruledomain.RuleTypeDefault, "", "8")
}

func TestReceiveRejectsBadSignature(t *testing.T) {
	st := stack.New(t, stack.Options{})
	svc := newService(t, st, false, &recordingQueue{})

	d := delivery(orderBody, "d-1")
	d.Signature = upstream.Sign("wrong", d.Body)
	_, err := svc.Receive(context.Background(), d)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	d.Signature = ""
	_, err = svc.Receive(context.Background(), d)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	testsupport.AssertCount(t, st.DB, "SELECT COUNT(*) FROM orders", 0)
}

func TestReceiveRejectsMalformedPayload(t *testing.T) {
	st := stack.New(t, stack.Options{})
	svc := newService(t, st, false, &recordingQueue{})

	_, err := svc.Receive(context.Background(), delivery(`{"id":`, "d-1"))
	assert.ErrorIs(t, err, upstream.ErrMalformedPayload)

	_, err = svc.Receive(context.Background(), delivery(`{"name":"#1"}`, "d-2"))
	assert.ErrorIs(t, err, upstream.ErrMissingOrderID)
	testsupport.AssertCount(t, st.DB, "SELECT COUNT(*) FROM orders", 0)
}

func TestReceiveInline(t *testing.T) {
	st := stack.New(t, stack.Options{})
	seed(t, st)
	svc := newService(t, st, false, &recordingQueue{})

	res, err := svc.Receive(context.Background(), delivery(orderBody, "d-1"))
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, res.Status)
	require.NotNil(t, res.Ingest)
	assert.True(t, res.Ingest.CommissionAmount.Equal(decimal.NewFromInt(16)), res.Ingest.CommissionAmount.String())

	// Redelivery with the same id is dropped before ingestion.
	res, err = svc.Receive(context.Background(), delivery(orderBody, "d-1"))
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyProcessed, res.Status)
	assert.Nil(t, res.Ingest)

	// A new delivery id for the same order is caught by the database key.
	res, err = svc.Receive(context.Background(), delivery(orderBody, "d-2"))
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyProcessed, res.Status)
	require.NotNil(t, res.Ingest)

	testsupport.AssertCount(t, st.DB, "SELECT COUNT(*) FROM orders", 1)
	testsupport.AssertCount(t, st.DB, "SELECT COUNT(*) FROM commissions", 1)
}

func TestReceiveAsyncEnqueues(t *testing.T) {
	st := stack.New(t, stack.Options{})
	seed(t, st)
	q := &recordingQueue{}
	svc := newService(t, st, true, q)

	res, err := svc.Receive(context.Background(), delivery(orderBody, "d-1"))
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, res.Status)
	assert.Equal(t, "9100", res.OrderExternalID)
	require.Len(t, q.jobs, 1)
	testsupport.AssertCount(t, st.DB, "SELECT COUNT(*) FROM orders", 0)

	require.NoError(t, q.jobs[0].Run(context.Background()))
	testsupport.AssertCount(t, st.DB, "SELECT COUNT(*) FROM orders", 1)
}

func TestReceiveQueueFullReleasesClaim(t *testing.T) {
	st := stack.New(t, stack.Options{})
	seed(t, st)
	q := &recordingQueue{err: jobqueue.ErrQueueFull}
	svc := newService(t, st, true, q)

	_, err := svc.Receive(context.Background(), delivery(orderBody, "d-1"))
	assert.True(t, errors.Is(err, jobqueue.ErrQueueFull))

	// The upstream retry of the same delivery must be processed.
	q.err = nil
	res, err := svc.Receive(context.Background(), delivery(orderBody, "d-1"))
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, res.Status)
}

func TestFailedIngestReleasesClaim(t *testing.T) {
	st := stack.New(t, stack.Options{})
	st.AddRule(t, ruledomain.RuleTypeDefault, "", "8")
	svc := newService(t, st, false, &recordingQueue{})

	// No local customer and no upstream lookup: ingestion fails.
	_, err := svc.Receive(context.Background(), delivery(orderBody, "d-1"))
	require.Error(t, err)
	testsupport.AssertCount(t, st.DB, "SELECT COUNT(*) FROM orders", 0)

	st.AddCustomer(t, "agent-1", true)
	res, err := svc.Receive(context.Background(), delivery(orderBody, "d-1"))
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, res.Status)
}
