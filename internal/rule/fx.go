package rule

import (
	"github.com/smallbiznis/commissionhub/internal/rule/repository"
	"github.com/smallbiznis/commissionhub/internal/rule/resolver"
	"go.uber.org/fx"
)

var Module = fx.Module("rule.resolver",
	fx.Provide(repository.Provide),
	fx.Provide(resolver.NewLoader),
)
