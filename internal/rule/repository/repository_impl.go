package repository

import (
	"context"

	"github.com/smallbiznis/commissionhub/internal/rule/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]domain.Rule, error) {
	var rules []domain.Rule
	err := db.WithContext(ctx).Raw(
		`SELECT id, type, match_value, percentage, is_active, created_at, updated_at
		 FROM commission_rules
		 WHERE is_active = ?
		 ORDER BY id ASC`,
		true,
	).Scan(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}
