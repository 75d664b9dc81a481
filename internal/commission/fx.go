package commission

import (
	"github.com/smallbiznis/commissionhub/internal/catalog/classifier"
	"github.com/smallbiznis/commissionhub/internal/commission/calculator"
	"github.com/smallbiznis/commissionhub/internal/commission/repository"
	"github.com/smallbiznis/commissionhub/internal/commission/service"
	"go.uber.org/fx"
)

var Module = fx.Module("commission.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(func(c *classifier.Classifier) *calculator.Calculator {
		return calculator.New(c)
	}),
)
