package resolver

import (
	"context"
	"fmt"

	"github.com/smallbiznis/commissionhub/internal/rule/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Loader struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func NewLoader(p Params) domain.Loader {
	return &Loader{
		db:   p.DB,
		log:  p.Log.Named("rule.resolver"),
		repo: p.Repo,
	}
}

// Load reads the active rules once and returns an immutable snapshot.
func (l *Loader) Load(ctx context.Context) (domain.Resolver, error) {
	rules, err := l.repo.ListActive(ctx, l.db)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRulesUnavailable, err)
	}
	rs := NewRuleSet(rules)
	if rs.HasConflictingDefaults() {
		l.log.Warn("multiple active default commission rules; using the lowest id",
			zap.Int("defaults", len(rs.defaults)),
			zap.String("rule_id", rs.defaults[0].ID.String()),
		)
	}
	if rs.Skipped() > 0 {
		l.log.Warn("active commission rules skipped", zap.Int("count", rs.Skipped()))
	}
	return rs, nil
}
