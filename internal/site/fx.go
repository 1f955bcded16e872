package site

import (
	regiondomain "github.com/smallbiznis/verdant/internal/region/domain"
	"github.com/smallbiznis/verdant/internal/site/domain"
	"github.com/smallbiznis/verdant/internal/site/geocoder"
	"github.com/smallbiznis/verdant/internal/site/repository"
	"github.com/smallbiznis/verdant/internal/site/service"
	"go.uber.org/fx"
)

var Module = fx.Module("site.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(geocoder.New),
	fx.Provide(func(regions regiondomain.Service) domain.RegionFinder { return regions }),
	fx.Provide(service.New),
)
