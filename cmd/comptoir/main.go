package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/comptoir/internal/cache"
	"github.com/smallbiznis/comptoir/internal/clock"
	"github.com/smallbiznis/comptoir/internal/config"
	"github.com/smallbiznis/comptoir/internal/lock"
	"github.com/smallbiznis/comptoir/internal/migration"
	"github.com/smallbiznis/comptoir/internal/observability"
	"github.com/smallbiznis/comptoir/internal/scheduler"
	"github.com/smallbiznis/comptoir/internal/server"
	"github.com/smallbiznis/comptoir/pkg/db"
	"go.uber.org/fx"
)

// comptoir runs the HTTP surface and the in-process scheduler together.
func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		cache.Module,
		lock.Module,

		// Functional Domains
		server.Domains,
		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
