// Package bootstrap groups the fx modules every verdant binary composes.
package bootstrap

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/verdant/internal/allocation"
	"github.com/smallbiznis/verdant/internal/clock"
	"github.com/smallbiznis/verdant/internal/config"
	"github.com/smallbiznis/verdant/internal/emission"
	"github.com/smallbiznis/verdant/internal/importer"
	"github.com/smallbiznis/verdant/internal/migration"
	"github.com/smallbiznis/verdant/internal/observability"
	"github.com/smallbiznis/verdant/internal/organization"
	"github.com/smallbiznis/verdant/internal/ratelimit"
	"github.com/smallbiznis/verdant/internal/region"
	"github.com/smallbiznis/verdant/internal/relation"
	"github.com/smallbiznis/verdant/internal/site"
	"github.com/smallbiznis/verdant/internal/taxonomy"
	"github.com/smallbiznis/verdant/pkg/db"
	"go.uber.org/fx"
)

// Infrastructure provides configuration, telemetry, the database and the
// id generator for node.
func Infrastructure(node int64) fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(func() (*snowflake.Node, error) { return snowflake.NewNode(node) }),
		db.Module,
		clock.Module,
		migration.Module,
	)
}

// Domains provides every domain service, the importer and the redis guard.
var Domains = fx.Options(
	taxonomy.Module,
	ratelimit.Module,
	region.Module,
	site.Module,
	relation.Module,
	emission.Module,
	organization.Module,
	allocation.Module,
	importer.Module,
)
