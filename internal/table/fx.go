package table

import (
	"github.com/smallbiznis/comptoir/internal/table/repository"
	"github.com/smallbiznis/comptoir/internal/table/service"
	"go.uber.org/fx"
)

var Module = fx.Module("table.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
