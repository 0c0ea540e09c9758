package payment

import (
	"github.com/smallbiznis/crmbilling/internal/payment/repository"
	"github.com/smallbiznis/crmbilling/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
