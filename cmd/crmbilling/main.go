package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/crmbilling/internal/clock"
	"github.com/smallbiznis/crmbilling/internal/config"
	"github.com/smallbiznis/crmbilling/internal/migration"
	"github.com/smallbiznis/crmbilling/internal/observability"
	"github.com/smallbiznis/crmbilling/internal/scheduler"
	"github.com/smallbiznis/crmbilling/internal/server"
	"github.com/smallbiznis/crmbilling/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,

		// HTTP API plus every billing domain
		server.Module,

		// Sweeps run in-process unless SCHEDULER_ENABLED=false
		scheduler.Module,
		fx.Invoke(scheduler.StartCron),
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
