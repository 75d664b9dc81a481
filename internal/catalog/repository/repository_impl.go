package repository

import (
	"context"

	"github.com/smallbiznis/commissionhub/internal/catalog/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*domain.Product, error) {
	var product domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT external_product_id, handle, title, product_type, tags, updated_at
		 FROM catalog_products WHERE external_product_id = ?`,
		externalID,
	).Scan(&product).Error
	if err != nil {
		return nil, err
	}
	if product.ExternalProductID == "" {
		return nil, nil
	}
	return &product, nil
}

// UpsertProductType writes title, handle and product type, leaving tags alone.
func (r *repo) UpsertProductType(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"handle", "title", "product_type", "updated_at"}),
	}).Create(product).Error
}

// UpsertTags writes title, handle and tags, leaving the product type alone.
func (r *repo) UpsertTags(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"handle", "title", "tags", "updated_at"}),
	}).Create(product).Error
}
