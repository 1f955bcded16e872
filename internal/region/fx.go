package region

import (
	"github.com/smallbiznis/verdant/internal/region/repository"
	"github.com/smallbiznis/verdant/internal/region/service"
	"go.uber.org/fx"
)

var Module = fx.Module("region.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.New),
)
