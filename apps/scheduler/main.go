package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/crmbilling/internal/activity"
	"github.com/smallbiznis/crmbilling/internal/clock"
	"github.com/smallbiznis/crmbilling/internal/company"
	"github.com/smallbiznis/crmbilling/internal/config"
	"github.com/smallbiznis/crmbilling/internal/events"
	"github.com/smallbiznis/crmbilling/internal/events/natspub"
	"github.com/smallbiznis/crmbilling/internal/invoice"
	"github.com/smallbiznis/crmbilling/internal/migration"
	"github.com/smallbiznis/crmbilling/internal/notification"
	"github.com/smallbiznis/crmbilling/internal/observability"
	"github.com/smallbiznis/crmbilling/internal/plan"
	"github.com/smallbiznis/crmbilling/internal/providers"
	"github.com/smallbiznis/crmbilling/internal/reminder"
	"github.com/smallbiznis/crmbilling/internal/scheduler"
	"github.com/smallbiznis/crmbilling/internal/subscription"
	"github.com/smallbiznis/crmbilling/internal/tax"
	"github.com/smallbiznis/crmbilling/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,

		// Domain services required by the sweeps
		events.Module,
		natspub.Module,
		activity.Module,
		providers.Module,
		company.Module,
		plan.Module,
		tax.Module,
		invoice.Module,
		subscription.Module,
		reminder.Module,
		notification.Module,

		// No server module!
		scheduler.Module,
		fx.Invoke(scheduler.StartCron),
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
