package organization

import (
	emissiondomain "github.com/smallbiznis/verdant/internal/emission/domain"
	"github.com/smallbiznis/verdant/internal/organization/domain"
	"github.com/smallbiznis/verdant/internal/organization/repository"
	"github.com/smallbiznis/verdant/internal/organization/service"
	sitedomain "github.com/smallbiznis/verdant/internal/site/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("organization.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(func(sites sitedomain.Service) domain.SiteDirectory { return sites }),
	fx.Provide(func(emissions emissiondomain.Service) domain.EmissionWriter { return emissions }),
	fx.Provide(service.New),
)
