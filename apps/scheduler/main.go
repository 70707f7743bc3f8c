package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/comptoir/internal/cache"
	"github.com/smallbiznis/comptoir/internal/clock"
	"github.com/smallbiznis/comptoir/internal/config"
	"github.com/smallbiznis/comptoir/internal/lock"
	"github.com/smallbiznis/comptoir/internal/observability"
	"github.com/smallbiznis/comptoir/internal/scheduler"
	"github.com/smallbiznis/comptoir/internal/server"
	"github.com/smallbiznis/comptoir/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		cache.Module,
		lock.Module,

		// Domain services required by the jobs
		server.Domains,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
