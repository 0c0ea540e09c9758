package activity

import (
	"github.com/smallbiznis/crmbilling/internal/activity/domain"
	"github.com/smallbiznis/crmbilling/internal/activity/repository"
	"github.com/smallbiznis/crmbilling/internal/activity/service"
	"github.com/smallbiznis/crmbilling/internal/events"
	"go.uber.org/fx"
)

var Module = fx.Module("activity.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(func(s *service.Service) domain.Service { return s }),
	fx.Provide(func(s *service.Service) domain.Sink { return s }),
	fx.Invoke(register),
)

func register(d *events.Dispatcher, s *service.Service) {
	d.Subscribe("activity.system_log", s)
}
