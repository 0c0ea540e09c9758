package tax

import (
	taxdomain "github.com/smallbiznis/crmbilling/internal/tax/domain"
	"github.com/smallbiznis/crmbilling/internal/tax/repository"
	"github.com/smallbiznis/crmbilling/internal/tax/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tax.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(func(svc taxdomain.Service) taxdomain.SettingsProvider { return svc }),
)
