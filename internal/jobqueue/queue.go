// Package jobqueue runs webhook ingestion and sync jobs on a bounded pool of
// workers so HTTP handlers can acknowledge deliveries immediately.
package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/smallbiznis/commissionhub/internal/config"
	obscontext "github.com/smallbiznis/commissionhub/internal/observability/context"
	obslogger "github.com/smallbiznis/commissionhub/internal/observability/logger"
	"github.com/smallbiznis/commissionhub/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 256
	defaultTimeout   = 30 * time.Second
)

var (
	ErrQueueFull   = errors.New("job_queue_full")
	ErrQueueClosed = errors.New("job_queue_closed")
	ErrInvalidJob  = errors.New("invalid_job")
)

// Job is a unit of background work. Timeout bounds a single run.
type Job struct {
	Name      string
	Key       string
	RequestID string
	Timeout   time.Duration
	Run       func(ctx context.Context) error
}

type Params struct {
	fx.In

	Log        *zap.Logger
	Config     config.Config
	JobMetrics *metrics.JobMetrics `optional:"true"`
}

type Queue struct {
	log     *zap.Logger
	metrics *metrics.JobMetrics
	workers int

	jobs chan Job

	mu      sync.RWMutex
	closed  bool
	started bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(p Params) *Queue {
	workers := p.Config.Jobs.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	size := p.Config.Jobs.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		log:     p.Log.Named("jobqueue"),
		metrics: p.JobMetrics,
		workers: workers,
		jobs:    make(chan Job, size),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers. Calling it twice is a no-op.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work(i)
	}
	q.log.Info("job queue started", zap.Int("workers", q.workers), zap.Int("capacity", cap(q.jobs)))
}

// Enqueue never blocks; a saturated queue rejects the job.
func (q *Queue) Enqueue(job Job) error {
	if job.Run == nil || job.Name == "" {
		return ErrInvalidJob
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job:
		q.metrics.SetQueueDepth(len(q.jobs))
		return nil
	default:
		q.metrics.IncQueueRejected()
		q.log.Warn("job queue full", zap.String("job", job.Name), zap.String("key", job.Key))
		return ErrQueueFull
	}
}

// Stop refuses new jobs, drains what is queued, and waits for the workers
// until ctx expires. Running jobs are cancelled when ctx expires.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	started := q.started
	q.mu.Unlock()

	if !started {
		q.cancel()
		return nil
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}

// Len reports queued jobs not yet picked up by a worker.
func (q *Queue) Len() int {
	return len(q.jobs)
}

func (q *Queue) work(id int) {
	defer q.wg.Done()
	for job := range q.jobs {
		q.metrics.SetQueueDepth(len(q.jobs))
		q.run(id, job)
	}
}

func (q *Queue) run(worker int, job Job) {
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(q.ctx, timeout)
	defer cancel()
	if job.RequestID != "" {
		ctx = obscontext.WithRequestID(ctx, job.RequestID)
	}

	log := obslogger.ForJob(ctx, q.log, job.Name, job.Key).With(zap.Int("worker", worker))
	start := time.Now()
	q.metrics.IncJobRun(job.Name)

	err := safeRun(ctx, job)
	q.metrics.ObserveJobDuration(job.Name, time.Since(start))
	if err == nil {
		log.Debug("job finished", zap.Duration("duration", time.Since(start)))
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		q.metrics.IncJobTimeout(job.Name)
	}
	q.metrics.IncJobError(job.Name, err)
	log.Error("job failed",
		zap.String("reason", metrics.ClassifyJobReason(err)),
		zap.Bool("retryable", metrics.IsRetryable(err)),
		zap.Error(err),
	)
}

func safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v\n%s", job.Name, r, debug.Stack())
		}
	}()
	return job.Run(ctx)
}
