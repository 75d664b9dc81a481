package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*Product, error)
	UpsertProductType(ctx context.Context, db *gorm.DB, product *Product) error
	UpsertTags(ctx context.Context, db *gorm.DB, product *Product) error
}
