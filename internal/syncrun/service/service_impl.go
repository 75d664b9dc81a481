package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/commissionhub/internal/clock"
	"github.com/smallbiznis/commissionhub/internal/config"
	"github.com/smallbiznis/commissionhub/internal/events"
	"github.com/smallbiznis/commissionhub/internal/observability/metrics"
	"github.com/smallbiznis/commissionhub/internal/syncrun/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultStaleThreshold = 5 * time.Minute
	maxRunningProgress    = 99
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     config.Config
	Repo       domain.Repository
	Publisher  events.Publisher
	Metrics    *metrics.Metrics    `optional:"true"`
	JobMetrics *metrics.JobMetrics `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	repo           domain.Repository
	publisher      events.Publisher
	metrics        *metrics.Metrics
	jobMetrics     *metrics.JobMetrics
	staleThreshold time.Duration
}

func New(p Params) domain.Service {
	threshold := p.Config.SyncStaleThreshold
	if threshold <= 0 {
		threshold = defaultStaleThreshold
	}
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("syncrun.service"),
		genID:          p.GenID,
		clock:          p.Clock,
		repo:           p.Repo,
		publisher:      p.Publisher,
		metrics:        p.Metrics,
		jobMetrics:     p.JobMetrics,
		staleThreshold: threshold,
	}
}

func (s *Service) Start(ctx context.Context, typ domain.Type) (snowflake.ID, error) {
	typ = domain.Type(strings.ToLower(strings.TrimSpace(string(typ))))
	if !typ.Valid() {
		return 0, domain.ErrInvalidType
	}
	run := domain.SyncRun{
		ID:        s.genID.Generate(),
		Type:      typ,
		Status:    domain.StatusRunning,
		StartedAt: s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, &run); err != nil {
		return 0, err
	}
	s.metrics.RecordSyncRun(ctx, string(typ), string(domain.StatusRunning))
	s.log.Info("sync run started", zap.String("sync_run_id", run.ID.String()), zap.String("sync_type", string(typ)))
	return run.ID, nil
}

func (s *Service) Progress(ctx context.Context, id snowflake.ID, items int64) error {
	if id == 0 {
		return domain.ErrInvalidID
	}
	if items < 0 {
		return domain.ErrInvalidItems
	}
	ok, err := s.repo.UpdateProgress(ctx, s.db, id, items)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	run, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if run == nil {
		return domain.ErrNotFound
	}
	if run.Status != domain.StatusRunning {
		return domain.ErrNotRunning
	}
	return nil
}

func (s *Service) Finish(ctx context.Context, id snowflake.ID, success bool, message string) error {
	if id == 0 {
		return domain.ErrInvalidID
	}
	status := domain.StatusFailed
	if success {
		status = domain.StatusSuccess
	}
	return s.finish(ctx, id, status, strings.TrimSpace(message))
}

func (s *Service) finish(ctx context.Context, id snowflake.ID, status domain.Status, message string) error {
	moved, err := s.repo.Finish(ctx, s.db, id, status, message, s.clock.Now())
	if err != nil {
		return err
	}
	run, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if run == nil {
		return domain.ErrNotFound
	}
	if !moved {
		s.log.Debug("sync run already finished",
			zap.String("sync_run_id", id.String()),
			zap.String("status", string(run.Status)),
		)
		return nil
	}

	s.metrics.RecordSyncRun(ctx, string(run.Type), string(status))
	s.jobMetrics.AddItemsSynced(string(run.Type), int(run.ItemsSynced))
	s.publishFinished(ctx, *run)
	s.log.Info("sync run finished",
		zap.String("sync_run_id", id.String()),
		zap.String("sync_type", string(run.Type)),
		zap.String("status", string(status)),
		zap.Int64("items_synced", run.ItemsSynced),
		zap.String("error_message", message),
	)
	return nil
}

func (s *Service) Status(ctx context.Context, id snowflake.ID) (domain.View, error) {
	if id == 0 {
		return domain.View{}, domain.ErrInvalidID
	}
	if _, err := s.ReapStale(ctx); err != nil {
		s.log.Warn("reaping stale sync runs failed", zap.Error(err))
	}
	run, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.View{}, err
	}
	if run == nil {
		return domain.View{}, domain.ErrNotFound
	}
	return s.view(*run, s.clock.Now()), nil
}

// ReapStale fails every running run older than the stale threshold. The
// completion time is the time of observation; a run reaped once is never
// touched again because the update is conditional on status = running.
func (s *Service) ReapStale(ctx context.Context) (int, error) {
	runs, err := s.repo.ListRunning(ctx, s.db)
	if err != nil {
		return 0, err
	}
	now := s.clock.Now()
	message := fmt.Sprintf("sync timed out after %s", s.staleThreshold)

	reaped := 0
	for _, run := range runs {
		if now.Sub(run.StartedAt) <= s.staleThreshold {
			continue
		}
		moved, err := s.repo.Finish(ctx, s.db, run.ID, domain.StatusFailed, message, now)
		if err != nil {
			return reaped, err
		}
		if !moved {
			continue
		}
		reaped++
		run.Status = domain.StatusFailed
		run.ErrorMessage = message
		run.CompletedAt = &now
		s.metrics.RecordSyncRun(ctx, string(run.Type), string(domain.StatusFailed))
		s.publishFinished(ctx, run)
		s.log.Warn("sync run timed out",
			zap.String("sync_run_id", run.ID.String()),
			zap.String("sync_type", string(run.Type)),
			zap.Time("started_at", run.StartedAt),
		)
	}
	s.jobMetrics.AddStaleReaped(int64(reaped))
	return reaped, nil
}

func (s *Service) view(run domain.SyncRun, now time.Time) domain.View {
	end := now
	if run.CompletedAt != nil {
		end = *run.CompletedAt
	}
	duration := end.Sub(run.StartedAt)
	if duration < 0 {
		duration = 0
	}

	progress := 100
	if run.Status != domain.StatusSuccess {
		progress = estimateProgress(run.ItemsSynced, run.Type.AssumedTarget(), duration, s.staleThreshold)
	}

	return domain.View{
		ID:              run.ID,
		Type:            run.Type,
		Status:          run.Status,
		Progress:        progress,
		ItemsSynced:     run.ItemsSynced,
		ErrorMessage:    run.ErrorMessage,
		StartedAt:       run.StartedAt,
		CompletedAt:     run.CompletedAt,
		Duration:        duration.Truncate(time.Second).String(),
		DurationSeconds: duration.Seconds(),
	}
}

// estimateProgress takes the larger of item progress and time progress and
// caps it below 100; only a successful run reports 100.
func estimateProgress(items, target int64, elapsed, threshold time.Duration) int {
	var byItems, byTime float64
	if target > 0 {
		byItems = float64(items) / float64(target)
	}
	if threshold > 0 {
		byTime = float64(elapsed) / float64(threshold)
	}
	pct := int(math.Floor(math.Max(byItems, byTime) * 100))
	if pct > maxRunningProgress {
		return maxRunningProgress
	}
	if pct < 0 {
		return 0
	}
	return pct
}

func (s *Service) publishFinished(ctx context.Context, run domain.SyncRun) {
	if s.publisher == nil {
		return
	}
	evt := events.New(ctx, events.TypeSyncRunFinished, run.ID.String(), "", map[string]any{
		"sync_run_id":   run.ID.String(),
		"type":          string(run.Type),
		"status":        string(run.Status),
		"items_synced":  run.ItemsSynced,
		"error_message": run.ErrorMessage,
	})
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.log.Warn("failed to publish sync run event", zap.String("sync_run_id", run.ID.String()), zap.Error(err))
	}
}
