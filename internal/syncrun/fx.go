package syncrun

import (
	"github.com/smallbiznis/commissionhub/internal/syncrun/repository"
	"github.com/smallbiznis/commissionhub/internal/syncrun/service"
	"go.uber.org/fx"
)

var Module = fx.Module("syncrun.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
