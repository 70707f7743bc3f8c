package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/comptoir/internal/cache"
	"github.com/smallbiznis/comptoir/internal/clock"
	"github.com/smallbiznis/comptoir/internal/config"
	"github.com/smallbiznis/comptoir/internal/migration"
	"github.com/smallbiznis/comptoir/internal/observability"
	"github.com/smallbiznis/comptoir/internal/server"
	"github.com/smallbiznis/comptoir/pkg/db"
	"go.uber.org/fx"
)

// api serves HTTP only; subscription expiry is driven by the cron endpoint
// or the scheduler binary.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		cache.Module,

		server.Domains,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
