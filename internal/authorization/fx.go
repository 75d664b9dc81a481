package authorization

import (
	"github.com/casbin/casbin/v2"
	"github.com/smallbiznis/commissionhub/internal/config"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("authorization",
	fx.Provide(func(db *gorm.DB, cfg config.Config) (*casbin.SyncedEnforcer, error) {
		adapter, err := NewAdapter(db)
		if err != nil {
			return nil, err
		}
		return NewEnforcer(adapter, cfg)
	}),
	fx.Provide(NewService),
)
