package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/crmbilling/internal/clock"
	taxdomain "github.com/smallbiznis/crmbilling/internal/tax/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  taxdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  taxdomain.Repository
}

func NewService(p Params) taxdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("tax.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// Current returns the stored settings, or defaults when none were saved yet.
func (s *Service) Current(ctx context.Context) (taxdomain.Settings, error) {
	stored, err := s.repo.Get(ctx, s.db)
	if err != nil {
		return taxdomain.Settings{}, err
	}
	if stored == nil {
		return taxdomain.DefaultSettings(), nil
	}
	return *stored, nil
}

func (s *Service) Compute(ctx context.Context, amount decimal.Decimal) (taxdomain.Breakdown, error) {
	settings, err := s.Current(ctx)
	if err != nil {
		return taxdomain.Breakdown{}, err
	}
	return taxdomain.Compute(amount, settings.TaxRate)
}

func (s *Service) Get(ctx context.Context) (*taxdomain.Response, error) {
	settings, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	resp := toResponse(settings)
	return &resp, nil
}

func (s *Service) Update(ctx context.Context, req taxdomain.UpdateRequest) (*taxdomain.Response, error) {
	var saved taxdomain.Settings
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.Get(ctx, tx)
		if err != nil {
			return err
		}
		settings := taxdomain.DefaultSettings()
		if current != nil {
			settings = *current
		} else {
			settings.ID = s.genID.Generate()
		}

		applyUpdate(&settings, req)
		if err := settings.Validate(); err != nil {
			return err
		}
		settings.UpdatedAt = s.clock.Now()

		if err := s.repo.Save(ctx, tx, &settings); err != nil {
			return err
		}
		saved = settings
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("billing settings updated",
		zap.String("tax_rate", saved.TaxRate.String()),
		zap.String("currency", saved.Currency),
	)
	resp := toResponse(saved)
	return &resp, nil
}

func applyUpdate(settings *taxdomain.Settings, req taxdomain.UpdateRequest) {
	if req.TaxRate != nil {
		settings.TaxRate = *req.TaxRate
	}
	if req.TaxLabel != nil {
		if label := strings.TrimSpace(*req.TaxLabel); label != "" {
			settings.TaxLabel = label
		}
	}
	if req.Currency != nil {
		settings.Currency = strings.ToUpper(strings.TrimSpace(*req.Currency))
	}
	setString(&settings.CompanyName, req.CompanyName)
	setString(&settings.CompanyAddress, req.CompanyAddress)
	setString(&settings.BankName, req.BankName)
	setString(&settings.BankAccountName, req.BankAccountName)
	setString(&settings.BankAccountNumber, req.BankAccountNumber)
	setString(&settings.QRCodeURL, req.QRCodeURL)
	if req.PaymentTermsDays != nil {
		settings.PaymentTermsDays = *req.PaymentTermsDays
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func toResponse(s taxdomain.Settings) taxdomain.Response {
	resp := taxdomain.Response{
		TaxRate:           s.TaxRate,
		TaxLabel:          s.TaxLabel,
		Currency:          s.Currency,
		CompanyName:       s.CompanyName,
		CompanyAddress:    s.CompanyAddress,
		BankName:          s.BankName,
		BankAccountName:   s.BankAccountName,
		BankAccountNumber: s.BankAccountNumber,
		QRCodeURL:         s.QRCodeURL,
		PaymentTermsDays:  s.PaymentTermsDays,
	}
	if !s.UpdatedAt.IsZero() {
		updated := s.UpdatedAt
		resp.UpdatedAt = &updated
	}
	return resp
}
