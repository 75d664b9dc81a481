package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*Order, error)
	// Insert reports false when an order with the same external id already exists.
	Insert(ctx context.Context, db *gorm.DB, order *Order) (bool, error)
	RefreshStatus(ctx context.Context, db *gorm.DB, externalID string, update StatusUpdate) error
	// ListCommissionable returns non-cancelled orders of agent customers,
	// optionally restricted to ids.
	ListCommissionable(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]Order, error)
}
