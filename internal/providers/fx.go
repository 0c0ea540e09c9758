package providers

import (
	"github.com/smallbiznis/crmbilling/internal/providers/email"
	"github.com/smallbiznis/crmbilling/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
)
