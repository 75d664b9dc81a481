package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository writes that change a run are conditional on status = running.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, run *SyncRun) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*SyncRun, error)
	ListRunning(ctx context.Context, db *gorm.DB) ([]SyncRun, error)
	UpdateProgress(ctx context.Context, db *gorm.DB, id snowflake.ID, items int64) (bool, error)
	Finish(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, message string, at time.Time) (bool, error)
}
