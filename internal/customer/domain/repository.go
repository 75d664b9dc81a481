package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Customer, error)
	FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*Customer, error)
	// InsertIfAbsent inserts the customer unless the external id exists and
	// reports whether a row was written.
	InsertIfAbsent(ctx context.Context, db *gorm.DB, customer *Customer) (bool, error)
	UpdateProfile(ctx context.Context, db *gorm.DB, customer *Customer) error
}
