package relation

import (
	"github.com/smallbiznis/verdant/internal/relation/domain"
	"github.com/smallbiznis/verdant/internal/relation/repository"
	"github.com/smallbiznis/verdant/internal/relation/service"
	sitedomain "github.com/smallbiznis/verdant/internal/site/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("relation.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(func(sites sitedomain.Service) domain.SiteSource { return sites }),
	fx.Provide(service.New),
)
