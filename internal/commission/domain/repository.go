package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository transitions are conditional on the current status and report
// whether a row actually moved.
type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Commission, error)
	FindByOrderID(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*Commission, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Commission, error)
	Upsert(ctx context.Context, db *gorm.DB, c *Commission) (UpsertOutcome, error)
	Approve(ctx context.Context, db *gorm.DB, id snowflake.ID, actor string, at time.Time) (bool, error)
	Adjust(ctx context.Context, db *gorm.DB, id snowflake.ID, req AdjustRequest, at time.Time) (bool, error)
	MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, req MarkPaidRequest, at time.Time) (bool, error)
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
}
