package syncjob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/commissionhub/internal/catalog/domain"
	"github.com/smallbiznis/commissionhub/internal/config"
	customerdomain "github.com/smallbiznis/commissionhub/internal/customer/domain"
	"github.com/smallbiznis/commissionhub/internal/jobqueue"
	obscontext "github.com/smallbiznis/commissionhub/internal/observability/context"
	orderdomain "github.com/smallbiznis/commissionhub/internal/order/domain"
	syncrundomain "github.com/smallbiznis/commissionhub/internal/syncrun/domain"
	"github.com/smallbiznis/commissionhub/internal/upstream"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	finishTimeout = 5 * time.Second
	maxMessageLen = 500
)

// Source pages through upstream records using since_id cursors.
type Source interface {
	ListOrders(ctx context.Context, sinceID string) (upstream.Page[upstream.OrderPayload], error)
	ListCustomers(ctx context.Context, sinceID string) (upstream.Page[upstream.CustomerPayload], error)
	ListProducts(ctx context.Context, sinceID string) (upstream.Page[upstream.ProductPayload], error)
}

// Enqueuer is satisfied by *jobqueue.Queue.
type Enqueuer interface {
	Enqueue(job jobqueue.Job) error
}

type Params struct {
	fx.In

	Log       *zap.Logger
	Config    config.Config
	Runs      syncrundomain.Service
	Orders    orderdomain.Service
	Customers customerdomain.Service
	Catalog   catalogdomain.Service
	Source    Source
	Queue     Enqueuer
}

type Runner struct {
	log       *zap.Logger
	timeout   time.Duration
	runs      syncrundomain.Service
	orders    orderdomain.Service
	customers customerdomain.Service
	catalog   catalogdomain.Service
	source    Source
	queue     Enqueuer
}

func New(p Params) *Runner {
	timeout := p.Config.SyncStaleThreshold
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Runner{
		log:       p.Log.Named("syncjob"),
		timeout:   timeout,
		runs:      p.Runs,
		orders:    p.Orders,
		customers: p.Customers,
		catalog:   p.Catalog,
		source:    p.Source,
		queue:     p.Queue,
	}
}

// Trigger opens a run and hands it to the job queue. A rejected job fails
// the run immediately so it never lingers as running.
func (r *Runner) Trigger(ctx context.Context, typ syncrundomain.Type) (snowflake.ID, error) {
	id, err := r.runs.Start(ctx, typ)
	if err != nil {
		return 0, err
	}

	err = r.queue.Enqueue(jobqueue.Job{
		Name:      "sync_" + string(typ),
		Key:       id.String(),
		RequestID: obscontext.RequestIDFromContext(ctx),
		Timeout:   r.timeout,
		Run: func(jobCtx context.Context) error {
			return r.Run(jobCtx, id, typ)
		},
	})
	if err != nil {
		if finishErr := r.runs.Finish(ctx, id, false, "not scheduled: "+err.Error()); finishErr != nil {
			r.log.Warn("failed to close unscheduled sync run", zap.String("sync_run_id", id.String()), zap.Error(finishErr))
		}
		return 0, err
	}
	return id, nil
}

// Run executes a sync of typ for an already started run and always
// records a terminal status.
func (r *Runner) Run(ctx context.Context, runID snowflake.ID, typ syncrundomain.Type) error {
	log := r.log.With(zap.String("sync_run_id", runID.String()), zap.String("sync_type", string(typ)))
	log.Info("sync started")

	synced, err := r.sync(ctx, runID, typ)

	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	if err != nil {
		log.Warn("sync failed", zap.Int64("items_synced", synced), zap.Error(err))
		if finishErr := r.runs.Finish(finishCtx, runID, false, truncate(err.Error())); finishErr != nil {
			return errors.Join(err, finishErr)
		}
		return err
	}

	log.Info("sync finished", zap.Int64("items_synced", synced))
	return r.runs.Finish(finishCtx, runID, true, "")
}

func (r *Runner) sync(ctx context.Context, runID snowflake.ID, typ syncrundomain.Type) (int64, error) {
	switch typ {
	case syncrundomain.TypeOrders:
		return drain(ctx, r, runID, r.source.ListOrders, func(ctx context.Context, o upstream.OrderPayload) error {
			_, err := r.orders.Ingest(ctx, o.IngestRequest(orderdomain.SourceSync))
			return err
		})
	case syncrundomain.TypeCustomers:
		return drain(ctx, r, runID, r.source.ListCustomers, func(ctx context.Context, c upstream.CustomerPayload) error {
			_, err := r.customers.Upsert(ctx, c.UpsertRequest())
			return err
		})
	case syncrundomain.TypeProductTypes:
		return drain(ctx, r, runID, r.source.ListProducts, func(ctx context.Context, p upstream.ProductPayload) error {
			return r.catalog.SyncProductType(ctx, p.UpsertRequest())
		})
	case syncrundomain.TypeProductTags:
		return drain(ctx, r, runID, r.source.ListProducts, func(ctx context.Context, p upstream.ProductPayload) error {
			return r.catalog.SyncTags(ctx, p.UpsertRequest())
		})
	default:
		return 0, syncrundomain.ErrInvalidType
	}
}

// drain walks every page, reporting progress after each one. A page fetch
// error or cancellation stops the run; item errors are collected and fail
// the run once every page was visited.
func drain[T any](
	ctx context.Context,
	r *Runner,
	runID snowflake.ID,
	list func(context.Context, string) (upstream.Page[T], error),
	handle func(context.Context, T) error,
) (int64, error) {
	var (
		synced int64
		failed int
		errs   error
		since  string
	)
	for {
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		page, err := list(ctx, since)
		if err != nil {
			return synced, fmt.Errorf("fetch page after %q: %w", since, err)
		}
		if len(page.Items) == 0 {
			break
		}

		for _, item := range page.Items {
			if err := handle(ctx, item); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return synced, ctxErr
				}
				failed++
				errs = errors.Join(errs, err)
				continue
			}
			synced++
		}
		if err := r.runs.Progress(ctx, runID, synced); err != nil {
			return synced, err
		}

		if page.LastID == "" || page.LastID == since {
			break
		}
		since = page.LastID
	}

	if errs != nil {
		return synced, fmt.Errorf("%d items failed: %w", failed, errs)
	}
	return synced, nil
}

func truncate(message string) string {
	message = strings.ReplaceAll(message, "\n", "; ")
	if len(message) <= maxMessageLen {
		return message
	}
	return message[:maxMessageLen]
}
