package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/commissionhub/internal/clock"
	"github.com/smallbiznis/commissionhub/internal/customer/domain"
	"github.com/smallbiznis/commissionhub/internal/customer/repository"
	"github.com/smallbiznis/commissionhub/internal/customer/service"
	"github.com/smallbiznis/commissionhub/internal/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockLookup struct {
	mock.Mock
}

func (m *mockLookup) FetchCustomer(ctx context.Context, externalID string) (*domain.RemoteCustomer, error) {
	args := m.Called(ctx, externalID)
	remote, _ := args.Get(0).(*domain.RemoteCustomer)
	return remote, args.Error(1)
}

func newService(t *testing.T, db *gorm.DB, lookup domain.Lookup) domain.Service {
	t.Helper()
	return service.New(service.Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  testsupport.Node(t, 3),
		Clock:  clock.NewFakeClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)),
		Repo:   repository.Provide(),
		Lookup: lookup,
	})
}

func TestResolveUnknownCustomerUsesLookup(t *testing.T) {
	ctx := context.Background()
	db := testsupport.OpenDB(t)
	lookup := &mockLookup{}
	lookup.On("FetchCustomer", mock.Anything, "207119551").Return(&domain.RemoteCustomer{
		ExternalID: "207119551",
		Name:       "Bob Norman",
		Email:      "bob@example.com",
		Tags:       []string{"VIP", "Agent"},
	}, nil).Once()
	svc := newService(t, db, lookup)

	customer, err := svc.Resolve(ctx, "207119551")
	require.NoError(t, err)
	require.NotNil(t, customer)
	assert.True(t, customer.IsAgent)
	testsupport.AssertCount(t, db, `SELECT COUNT(*) FROM customers`, 0)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.Ensure(ctx, tx, customer)
	}))
	testsupport.AssertCount(t, db, `SELECT COUNT(*) FROM customers WHERE external_id = '207119551'`, 1)

	again, err := svc.Resolve(ctx, "207119551")
	require.NoError(t, err)
	assert.Equal(t, customer.ID, again.ID)
	lookup.AssertExpectations(t)
}

func TestEnsureAdoptsExistingRow(t *testing.T) {
	ctx := context.Background()
	db := testsupport.OpenDB(t)
	svc := newService(t, db, &mockLookup{})

	first, err := svc.Upsert(ctx, domain.UpsertCustomerRequest{ExternalID: "c-1", Name: "First"})
	require.NoError(t, err)

	late := &domain.Customer{ID: first.ID + 100, ExternalID: "c-1", Name: "Late", CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.Ensure(ctx, tx, late)
	}))
	assert.Equal(t, first.ID, late.ID)
	assert.Equal(t, "First", late.Name)
	testsupport.AssertCount(t, db, `SELECT COUNT(*) FROM customers`, 1)
}

func TestResolveLookupFailure(t *testing.T) {
	db := testsupport.OpenDB(t)
	lookup := &mockLookup{}
	lookup.On("FetchCustomer", mock.Anything, "x").Return(nil, errors.New("upstream 503"))
	lookup.On("FetchCustomer", mock.Anything, "gone").Return(nil, nil)
	svc := newService(t, db, lookup)

	_, err := svc.Resolve(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrLookupFailed)

	_, err = svc.Resolve(context.Background(), "gone")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Resolve(context.Background(), " ")
	assert.ErrorIs(t, err, domain.ErrInvalidExternalID)
}

func TestUpsertUpdatesAgentFlag(t *testing.T) {
	ctx := context.Background()
	db := testsupport.OpenDB(t)
	svc := newService(t, db, &mockLookup{})

	created, err := svc.Upsert(ctx, domain.UpsertCustomerRequest{ExternalID: "c-9", Name: "Ana", Email: "ana@example.com"})
	require.NoError(t, err)
	assert.False(t, created.IsAgent)

	updated, err := svc.Upsert(ctx, domain.UpsertCustomerRequest{ExternalID: "c-9", Name: "Ana M", Email: "ana@example.com", Tags: []string{"agent"}})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.True(t, updated.IsAgent)

	got, err := svc.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana M", got.Name)
	assert.True(t, got.IsAgent)
}
