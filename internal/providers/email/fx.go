package email

import (
	"github.com/smallbiznis/crmbilling/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	log = log.Named("providers.email")
	switch cfg.Email.Provider {
	case "smtp":
		log.Info("email provider selected", zap.String("provider", "smtp"), zap.String("host", cfg.Email.SMTPHost))
		return NewSMTP(Config{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.SMTPUsername,
			Password: cfg.Email.SMTPPassword,
			From:     cfg.Email.FromAddress,
			FromName: cfg.Email.FromName,
		})
	case "sendgrid":
		if cfg.Email.SendGridAPIKey == "" {
			log.Warn("sendgrid selected without api key, email disabled")
			return &NoOpProvider{}
		}
		log.Info("email provider selected", zap.String("provider", "sendgrid"))
		return NewSendGrid(cfg.Email.SendGridAPIKey, cfg.Email.FromAddress, cfg.Email.FromName)
	default:
		log.Info("email provider selected", zap.String("provider", "noop"))
		return &NoOpProvider{}
	}
}
