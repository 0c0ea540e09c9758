package events

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("events",
	fx.Provide(NewDispatcher),
	fx.Provide(func(d *Dispatcher) Publisher { return d }),
	fx.Invoke(registerShutdown),
)

func registerShutdown(lc fx.Lifecycle, d *Dispatcher) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return d.Wait(ctx)
		},
	})
}
