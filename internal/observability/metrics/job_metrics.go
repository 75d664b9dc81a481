package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/commissionhub/internal/authorization"
	"gorm.io/gorm"
)

const (
	JobReasonDeadlineExceeded     = "deadline_exceeded"
	JobReasonDBLockTimeout        = "db_lock_timeout"
	JobReasonSerializationFailure = "serialization_failure"
	JobReasonUniqueViolation      = "unique_violation"
	JobReasonForbidden            = "forbidden"
	JobReasonUpstream             = "upstream"
	JobReasonUnknown              = "unknown"
)

// UpstreamError marks failures that came from the commerce platform.
type UpstreamError interface {
	error
	Upstream() bool
}

// JobMetrics captures queue and scheduler health.
type JobMetrics struct {
	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	jobTimeouts *prometheus.CounterVec
	jobErrors   *prometheus.CounterVec
	itemsSynced *prometheus.CounterVec
	queueDepth  prometheus.Gauge
	queueReject prometheus.Counter
	runLoopLag  prometheus.Histogram
	staleReaped prometheus.Counter
}

// NewJobMetrics registers job metrics on the default registerer.
func NewJobMetrics(cfg Config) *JobMetrics {
	return newJobMetrics(prometheus.DefaultRegisterer, cfg)
}

// NewJobMetricsWithRegistry registers job metrics on the given registerer.
func NewJobMetricsWithRegistry(registerer prometheus.Registerer, cfg Config) *JobMetrics {
	return newJobMetrics(registerer, cfg)
}

func newJobMetrics(registerer prometheus.Registerer, cfg Config) *JobMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := constLabelsFor(cfg)

	m := &JobMetrics{
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "commissionhub_job_runs_total",
			Help:        "Background job runs by name.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "commissionhub_job_duration_seconds",
			Help:        "Background job latency.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "commissionhub_job_timeouts_total",
			Help:        "Background jobs cancelled by deadline.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "commissionhub_job_errors_total",
			Help:        "Background job errors by low-cardinality reason.",
			ConstLabels: constLabels,
		}, []string{"job", "reason"}),
		itemsSynced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "commissionhub_sync_items_total",
			Help:        "Items processed by sync runs.",
			ConstLabels: constLabels,
		}, []string{"sync_type"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "commissionhub_job_queue_depth",
			Help:        "Jobs waiting for a worker.",
			ConstLabels: constLabels,
		}),
		queueReject: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "commissionhub_job_queue_rejected_total",
			Help:        "Jobs rejected because the queue was full.",
			ConstLabels: constLabels,
		}),
		runLoopLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "commissionhub_scheduler_runloop_lag_seconds",
			Help:        "Scheduler run loop lag beyond the configured interval.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			ConstLabels: constLabels,
		}),
		staleReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "commissionhub_sync_runs_reaped_total",
			Help:        "Running sync runs marked failed after exceeding the stale threshold.",
			ConstLabels: constLabels,
		}),
	}

	registerer.MustRegister(
		m.jobRuns,
		m.jobDuration,
		m.jobTimeouts,
		m.jobErrors,
		m.itemsSynced,
		m.queueDepth,
		m.queueReject,
		m.runLoopLag,
		m.staleReaped,
	)
	return m
}

func constLabelsFor(cfg Config) prometheus.Labels {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "commissionhub"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	return prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}
}

func (m *JobMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *JobMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func (m *JobMetrics) IncJobTimeout(job string) {
	if m == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

// IncJobError increments the job error counter with classification.
func (m *JobMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifyJobReason(err)).Inc()
}

func (m *JobMetrics) AddItemsSynced(syncType string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.itemsSynced.WithLabelValues(syncType).Add(float64(count))
}

func (m *JobMetrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

func (m *JobMetrics) IncQueueRejected() {
	if m == nil {
		return
	}
	m.queueReject.Inc()
}

// ObserveRunLoopLag records lag between the scheduled tick and actual run start.
func (m *JobMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.runLoopLag.Observe(duration.Seconds())
}

func (m *JobMetrics) AddStaleReaped(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.staleReaped.Add(float64(count))
}

// ClassifyJobReason maps job errors to low-cardinality reasons.
func ClassifyJobReason(err error) string {
	if err == nil {
		return JobReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return JobReasonDeadlineExceeded
	}
	if errors.Is(err, authorization.ErrForbidden) || errors.Is(err, authorization.ErrInvalidActor) {
		return JobReasonForbidden
	}
	var upstreamErr UpstreamError
	if errors.As(err, &upstreamErr) && upstreamErr.Upstream() {
		return JobReasonUpstream
	}
	if hasPGCode(err, "55P03") {
		return JobReasonDBLockTimeout
	}
	if hasPGCode(err, "40001") {
		return JobReasonSerializationFailure
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return JobReasonUniqueViolation
	}
	return JobReasonUnknown
}

// IsRetryable reports whether a failed job is worth another attempt.
func IsRetryable(err error) bool {
	switch ClassifyJobReason(err) {
	case JobReasonDBLockTimeout, JobReasonSerializationFailure, JobReasonUpstream:
		return true
	default:
		return false
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
