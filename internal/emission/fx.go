package emission

import (
	"github.com/smallbiznis/verdant/internal/emission/repository"
	"github.com/smallbiznis/verdant/internal/emission/service"
	"go.uber.org/fx"
)

var Module = fx.Module("emission.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.New),
)
