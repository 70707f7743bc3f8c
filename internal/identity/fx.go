package identity

import (
	"github.com/smallbiznis/comptoir/internal/identity/cache"
	"github.com/smallbiznis/comptoir/internal/identity/repository"
	"github.com/smallbiznis/comptoir/internal/identity/service"
	"go.uber.org/fx"
)

var Module = fx.Module("identity.service",
	fx.Provide(cache.New),
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
