package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/commissionhub/internal/order/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const selectColumns = `SELECT o.id, o.external_id, o.order_number, o.customer_id, o.currency,
	o.subtotal, o.total_tax, o.total_shipping, o.total_discounts, o.total_price,
	o.line_items, o.discount_codes, o.financial_status, o.fulfillment_status,
	o.is_cancelled, o.source, o.placed_at, o.processed_at, o.cancelled_at,
	o.created_at, o.updated_at
	FROM orders o`

func (r *repo) FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*domain.Order, error) {
	var order domain.Order
	err := db.WithContext(ctx).Raw(selectColumns+` WHERE o.external_id = ?`, externalID).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.Order) (bool, error) {
	result := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoNothing: true,
	}).Create(order)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) RefreshStatus(ctx context.Context, db *gorm.DB, externalID string, update domain.StatusUpdate) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders SET financial_status = ?, fulfillment_status = ?, is_cancelled = ?, cancelled_at = ?, updated_at = ?
		WHERE external_id = ?`,
		update.FinancialStatus,
		update.FulfillmentStatus,
		update.IsCancelled,
		update.CancelledAt,
		update.UpdatedAt,
		externalID,
	).Error
}

func (r *repo) ListCommissionable(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]domain.Order, error) {
	query := selectColumns + ` JOIN customers c ON c.id = o.customer_id
		WHERE c.is_agent = ? AND o.is_cancelled = ?`
	args := []any{true, false}
	if len(ids) > 0 {
		query += ` AND o.id IN ?`
		args = append(args, ids)
	}
	query += ` ORDER BY o.id`

	var orders []domain.Order
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}
