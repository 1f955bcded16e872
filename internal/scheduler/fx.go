package scheduler

import (
	"context"

	allocationdomain "github.com/smallbiznis/verdant/internal/allocation/domain"
	"github.com/smallbiznis/verdant/internal/config"
	emissiondomain "github.com/smallbiznis/verdant/internal/emission/domain"
	relationdomain "github.com/smallbiznis/verdant/internal/relation/domain"
	sitedomain "github.com/smallbiznis/verdant/internal/site/domain"
	"go.uber.org/fx"
)

// Providers builds the scheduler without starting its loop.
var Providers = fx.Options(
	fx.Provide(ProvideConfig),
	fx.Provide(func(sites sitedomain.Service) AddressResolver { return sites }),
	fx.Provide(func(relations relationdomain.Service) RelationRebuilder { return relations }),
	fx.Provide(func(emissions emissiondomain.Service) CategoryLinker { return emissions }),
	fx.Provide(func(engine allocationdomain.Service) Allocator { return engine }),
	fx.Provide(New),
)

var Module = fx.Module("scheduler",
	Providers,
	fx.Invoke(NewScheduler),
)

func NewScheduler(lc fx.Lifecycle, cfg config.Config, sched *Scheduler) {
	if !cfg.Scheduler.Enabled {
		return
	}

	var cancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			go sched.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			return nil
		},
	})
}
