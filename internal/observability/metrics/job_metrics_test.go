package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/commissionhub/internal/authorization"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeUpstreamErr struct{}

func (fakeUpstreamErr) Error() string  { return "upstream 502" }
func (fakeUpstreamErr) Upstream() bool { return true }

func TestClassifyJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: JobReasonDeadlineExceeded},
		{name: "forbidden", err: authorization.ErrForbidden, want: JobReasonForbidden},
		{name: "upstream", err: fmt.Errorf("fetch page: %w", fakeUpstreamErr{}), want: JobReasonUpstream},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: JobReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: JobReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: JobReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: JobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyJobReason(tc.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&pgconn.PgError{Code: "40001"}))
	assert.True(t, IsRetryable(fakeUpstreamErr{}))
	assert.False(t, IsRetryable(errors.New("boom")))
	assert.False(t, IsRetryable(nil))
}

func TestJobMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewJobMetricsWithRegistry(registry, Config{ServiceName: "commissionhub", Environment: "test"})

	m.AddItemsSynced("orders", 3)
	m.AddItemsSynced("orders", 0)
	m.AddStaleReaped(2)
	m.IncQueueRejected()

	assert.Equal(t, float64(3), testutil.ToFloat64(m.itemsSynced.WithLabelValues("orders")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.staleReaped))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.queueReject))
}

func TestJobMetricsCarryServiceLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewJobMetricsWithRegistry(registry, Config{ServiceName: "commissionhub", Environment: "test"})

	m.ObserveJobDuration("sync_orders", 250*time.Millisecond)
	m.ObserveJobDuration("sync_orders", 2*time.Second)

	families, err := registry.Gather()
	require.NoError(t, err)
	family := findFamily(families, "commissionhub_job_duration_seconds")
	require.NotNil(t, family)
	require.Len(t, family.GetMetric(), 1)

	metric := family.GetMetric()[0]
	assert.Equal(t, uint64(2), metric.GetHistogram().GetSampleCount())
	labels := map[string]string{}
	for _, pair := range metric.GetLabel() {
		labels[pair.GetName()] = pair.GetValue()
	}
	assert.Equal(t, map[string]string{"env": "test", "service": "commissionhub", "job": "sync_orders"}, labels)
}

func findFamily(families []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, family := range families {
		if family.GetName() == name {
			return family
		}
	}
	return nil
}
