package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/commissionhub/internal/commission/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const selectColumns = `SELECT id, order_id, agent_id, currency, amount, actual_amount, total_discount,
	rule_type, breakdown, status, adjustment_reason, adjusted_by, adjusted_at,
	approved_by, approved_at, payment_note, payment_receipt, paid_by, paid_at,
	created_at, updated_at
	FROM commissions`

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Commission, error) {
	return r.findOne(ctx, db, selectColumns+` WHERE id = ?`, id)
}

func (r *repo) FindByOrderID(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*domain.Commission, error) {
	return r.findOne(ctx, db, selectColumns+` WHERE order_id = ?`, orderID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Commission, error) {
	var c domain.Commission
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&c).Error; err != nil {
		return nil, err
	}
	if c.ID == 0 {
		return nil, nil
	}
	return &c, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Commission, error) {
	var items []domain.Commission
	stmt := db.WithContext(ctx).Model(&domain.Commission{})
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.AgentID != 0 {
		stmt = stmt.Where("agent_id = ?", filter.AgentID)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("id < ?", *filter.Cursor)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if err := stmt.Order("id DESC").Limit(limit + 1).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// Upsert inserts the commission for its order or refreshes the computed
// fields of an existing unpaid one. An adjusted amount survives the refresh.
func (r *repo) Upsert(ctx context.Context, db *gorm.DB, c *domain.Commission) (domain.UpsertOutcome, error) {
	result := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		DoNothing: true,
	}).Create(c)
	if result.Error != nil {
		return "", result.Error
	}
	if result.RowsAffected > 0 {
		return domain.OutcomeCreated, nil
	}

	result = db.WithContext(ctx).Exec(
		`UPDATE commissions SET
			agent_id = ?,
			currency = ?,
			actual_amount = ?,
			amount = CASE WHEN adjusted_at IS NULL THEN ? ELSE amount END,
			total_discount = ?,
			rule_type = ?,
			breakdown = ?,
			updated_at = ?
		WHERE order_id = ? AND status <> ?`,
		c.AgentID,
		c.Currency,
		c.ActualAmount,
		c.ActualAmount,
		c.TotalDiscount,
		c.RuleType,
		c.Breakdown,
		c.UpdatedAt,
		c.OrderID,
		domain.StatusPaid,
	)
	if result.Error != nil {
		return "", result.Error
	}
	if result.RowsAffected == 0 {
		return domain.OutcomeSkippedPaid, nil
	}
	return domain.OutcomeUpdated, nil
}

func (r *repo) Approve(ctx context.Context, db *gorm.DB, id snowflake.ID, actor string, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE commissions SET status = ?, approved_by = ?, approved_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		domain.StatusApproved, actor, at, at,
		id, domain.StatusPending,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) Adjust(ctx context.Context, db *gorm.DB, id snowflake.ID, req domain.AdjustRequest, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE commissions SET amount = ?, adjustment_reason = ?, adjusted_by = ?, adjusted_at = ?, updated_at = ?
		WHERE id = ? AND status <> ?`,
		req.Amount, req.Reason, req.Actor, at, at,
		id, domain.StatusPaid,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, req domain.MarkPaidRequest, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE commissions SET status = ?, payment_note = ?, payment_receipt = ?, paid_by = ?, paid_at = ?, updated_at = ?
		WHERE id = ? AND status = ? AND amount > 0`,
		domain.StatusPaid, req.Note, req.ReceiptRef, req.Actor, at, at,
		id, domain.StatusApproved,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	result := db.WithContext(ctx).Exec(`DELETE FROM commissions WHERE id = ?`, id)
	return result.RowsAffected > 0, result.Error
}
