package catalog

import (
	"github.com/smallbiznis/commissionhub/internal/catalog/classifier"
	"github.com/smallbiznis/commissionhub/internal/catalog/repository"
	"github.com/smallbiznis/commissionhub/internal/catalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(classifier.New),
)
