package supply

import (
	"github.com/smallbiznis/comptoir/internal/supply/repository"
	"github.com/smallbiznis/comptoir/internal/supply/service"
	"go.uber.org/fx"
)

var Module = fx.Module("supply.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
