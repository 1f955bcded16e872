package importer

import (
	emissiondomain "github.com/smallbiznis/verdant/internal/emission/domain"
	organizationdomain "github.com/smallbiznis/verdant/internal/organization/domain"
	regiondomain "github.com/smallbiznis/verdant/internal/region/domain"
	sitedomain "github.com/smallbiznis/verdant/internal/site/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("importer",
	fx.Provide(func(emissions emissiondomain.Service) EmissionWriter { return emissions }),
	fx.Provide(func(regions regiondomain.Service) RegionDirectory { return regions }),
	fx.Provide(func(sites sitedomain.Service) SiteRegistry { return sites }),
	fx.Provide(func(orgs organizationdomain.Service) ReportApportioner { return orgs }),
	fx.Provide(New),
)
