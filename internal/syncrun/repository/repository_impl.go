package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/commissionhub/internal/syncrun/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const selectColumns = `SELECT id, type, status, items_synced, error_message, started_at, completed_at FROM sync_runs`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, run *domain.SyncRun) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO sync_runs (id, type, status, items_synced, error_message, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Type,
		run.Status,
		run.ItemsSynced,
		run.ErrorMessage,
		run.StartedAt,
		run.CompletedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.SyncRun, error) {
	var run domain.SyncRun
	if err := db.WithContext(ctx).Raw(selectColumns+` WHERE id = ?`, id).Scan(&run).Error; err != nil {
		return nil, err
	}
	if run.ID == 0 {
		return nil, nil
	}
	return &run, nil
}

func (r *repo) ListRunning(ctx context.Context, db *gorm.DB) ([]domain.SyncRun, error) {
	var runs []domain.SyncRun
	err := db.WithContext(ctx).Raw(selectColumns+` WHERE status = ? ORDER BY started_at, id`, domain.StatusRunning).Scan(&runs).Error
	return runs, err
}

func (r *repo) UpdateProgress(ctx context.Context, db *gorm.DB, id snowflake.ID, items int64) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE sync_runs SET items_synced = CASE WHEN items_synced < ? THEN ? ELSE items_synced END
		WHERE id = ? AND status = ?`,
		items, items, id, domain.StatusRunning,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) Finish(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status, message string, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE sync_runs SET status = ?, error_message = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		status, message, at, id, domain.StatusRunning,
	)
	return result.RowsAffected > 0, result.Error
}
