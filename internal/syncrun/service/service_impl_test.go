package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/commissionhub/internal/clock"
	"github.com/smallbiznis/commissionhub/internal/config"
	"github.com/smallbiznis/commissionhub/internal/events"
	"github.com/smallbiznis/commissionhub/internal/syncrun/domain"
	"github.com/smallbiznis/commissionhub/internal/syncrun/repository"
	"github.com/smallbiznis/commissionhub/internal/syncrun/service"
	"github.com/smallbiznis/commissionhub/internal/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newService(t *testing.T) (domain.Service, *clock.FakeClock, *gorm.DB) {
	t.Helper()
	db := testsupport.OpenDB(t)
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC))
	svc := service.New(service.Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     testsupport.Node(t, 11),
		Clock:     clk,
		Config:    config.Config{SyncStaleThreshold: 5 * time.Minute},
		Repo:      repository.Provide(),
		Publisher: events.NewLogPublisher(zap.NewNop(), nil),
	})
	return svc, clk, db
}

func TestStartRejectsUnknownType(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.Start(context.Background(), "invoices")
	assert.ErrorIs(t, err, domain.ErrInvalidType)
}

func TestProgressIsMonotonic(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	id, err := svc.Start(ctx, domain.TypeOrders)
	require.NoError(t, err)

	require.NoError(t, svc.Progress(ctx, id, 40))
	require.NoError(t, svc.Progress(ctx, id, 25))

	view, err := svc.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(40), view.ItemsSynced)
	assert.Equal(t, domain.StatusRunning, view.Status)

	assert.ErrorIs(t, svc.Progress(ctx, id, -1), domain.ErrInvalidItems)
}

func TestFinishIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, clk, _ := newService(t)

	id, err := svc.Start(ctx, domain.TypeCustomers)
	require.NoError(t, err)
	require.NoError(t, svc.Progress(ctx, id, 120))

	clk.Advance(30 * time.Second)
	require.NoError(t, svc.Finish(ctx, id, true, ""))
	first, err := svc.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, first.Status)
	assert.Equal(t, 100, first.Progress)
	assert.Equal(t, "30s", first.Duration)

	clk.Advance(time.Minute)
	require.NoError(t, svc.Finish(ctx, id, false, "late failure"))
	second, err := svc.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, second.Status)
	assert.Empty(t, second.ErrorMessage)
	require.NotNil(t, second.CompletedAt)
	assert.True(t, first.CompletedAt.Equal(*second.CompletedAt))

	assert.ErrorIs(t, svc.Progress(ctx, id, 500), domain.ErrNotRunning)
}

func TestStatusReapsStaleRunOnce(t *testing.T) {
	ctx := context.Background()
	svc, clk, _ := newService(t)

	id, err := svc.Start(ctx, domain.TypeProductTags)
	require.NoError(t, err)

	clk.Advance(4 * time.Minute)
	view, err := svc.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, view.Status)
	assert.Equal(t, 80, view.Progress)

	clk.Advance(2 * time.Minute)
	reapedAt := clk.Now()
	view, err = svc.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, view.Status)
	assert.Equal(t, "sync timed out after 5m0s", view.ErrorMessage)
	require.NotNil(t, view.CompletedAt)
	assert.True(t, view.CompletedAt.Equal(reapedAt))
	assert.Equal(t, 99, view.Progress)

	clk.Advance(10 * time.Minute)
	again, err := svc.Status(ctx, id)
	require.NoError(t, err)
	assert.True(t, again.CompletedAt.Equal(reapedAt))
	assert.Equal(t, view.Progress, again.Progress)
	assert.Equal(t, view.Duration, again.Duration)

	require.NoError(t, svc.Finish(ctx, id, true, ""))
	final, err := svc.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, final.Status)
}

func TestReapStaleOnlyTouchesOldRuns(t *testing.T) {
	ctx := context.Background()
	svc, clk, db := newService(t)

	old, err := svc.Start(ctx, domain.TypeOrders)
	require.NoError(t, err)
	clk.Advance(4 * time.Minute)
	fresh, err := svc.Start(ctx, domain.TypeOrders)
	require.NoError(t, err)
	clk.Advance(2 * time.Minute)

	reaped, err := svc.ReapStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	reaped, err = svc.ReapStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, reaped)

	testsupport.AssertCount(t, db, `SELECT COUNT(*) FROM sync_runs WHERE id = ? AND status = 'failed'`, 1, old)
	testsupport.AssertCount(t, db, `SELECT COUNT(*) FROM sync_runs WHERE id = ? AND status = 'running'`, 1, fresh)
}

func TestStatusUnknownRun(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.Status(context.Background(), 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
