package invoice

import (
	"github.com/smallbiznis/crmbilling/internal/invoice/repository"
	"github.com/smallbiznis/crmbilling/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewLedger),
	fx.Provide(service.NewService),
)
