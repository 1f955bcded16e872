package allocation

import (
	"github.com/smallbiznis/verdant/internal/allocation/domain"
	"github.com/smallbiznis/verdant/internal/allocation/repository"
	"github.com/smallbiznis/verdant/internal/allocation/service"
	emissiondomain "github.com/smallbiznis/verdant/internal/emission/domain"
	relationdomain "github.com/smallbiznis/verdant/internal/relation/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("allocation.engine",
	fx.Provide(repository.NewRepository),
	fx.Provide(func(relations relationdomain.Service) domain.RelationSource { return relations }),
	fx.Provide(func(emissions emissiondomain.Service) domain.EmissionStore { return emissions }),
	fx.Provide(service.New),
)
