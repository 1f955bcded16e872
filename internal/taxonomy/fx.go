package taxonomy

import (
	"context"

	"github.com/smallbiznis/verdant/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("taxonomy",
	fx.Provide(provideHolder),
	fx.Invoke(registerWatcher),
)

func provideHolder(cfg config.Config) (*Holder, error) {
	if cfg.TaxonomyFile == "" {
		return NewHolder(DefaultTaxonomy()), nil
	}
	t, err := LoadFile(cfg.TaxonomyFile)
	if err != nil {
		return nil, err
	}
	return NewHolder(t), nil
}

func registerWatcher(lc fx.Lifecycle, cfg config.Config, holder *Holder, log *zap.Logger) {
	if cfg.TaxonomyFile == "" {
		return
	}
	w := NewWatcher(cfg.TaxonomyFile, holder, log)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return w.Start() },
		OnStop:  func(context.Context) error { return w.Stop() },
	})
}
