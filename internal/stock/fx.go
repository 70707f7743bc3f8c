package stock

import (
	"github.com/smallbiznis/comptoir/internal/stock/domain"
	"github.com/smallbiznis/comptoir/internal/stock/repository"
	"github.com/smallbiznis/comptoir/internal/stock/service"
	"go.uber.org/fx"
)

var Module = fx.Module("stock.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(func(svc domain.Service) domain.Ledger { return svc }),
)
