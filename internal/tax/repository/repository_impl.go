package repository

import (
	"context"

	taxdomain "github.com/smallbiznis/crmbilling/internal/tax/domain"
	"gorm.io/gorm"
)

type repository struct{}

func Provide() taxdomain.Repository {
	return &repository{}
}

func (r *repository) Get(ctx context.Context, db *gorm.DB) (*taxdomain.Settings, error) {
	var settings taxdomain.Settings
	err := db.WithContext(ctx).Raw(
		`SELECT id, tax_rate, tax_label, currency, company_name, company_address, bank_name,
			bank_account_name, bank_account_number, qr_code_url, payment_terms_days, updated_at
		 FROM billing_settings
		 ORDER BY id ASC
		 LIMIT 1`,
	).Scan(&settings).Error
	if err != nil {
		return nil, err
	}
	if settings.ID == 0 {
		return nil, nil
	}
	return &settings, nil
}

func (r *repository) Save(ctx context.Context, db *gorm.DB, s *taxdomain.Settings) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO billing_settings (
			id, tax_rate, tax_label, currency, company_name, company_address, bank_name,
			bank_account_name, bank_account_number, qr_code_url, payment_terms_days, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			tax_rate = excluded.tax_rate,
			tax_label = excluded.tax_label,
			currency = excluded.currency,
			company_name = excluded.company_name,
			company_address = excluded.company_address,
			bank_name = excluded.bank_name,
			bank_account_name = excluded.bank_account_name,
			bank_account_number = excluded.bank_account_number,
			qr_code_url = excluded.qr_code_url,
			payment_terms_days = excluded.payment_terms_days,
			updated_at = excluded.updated_at`,
		s.ID,
		s.TaxRate,
		s.TaxLabel,
		s.Currency,
		s.CompanyName,
		s.CompanyAddress,
		s.BankName,
		s.BankAccountName,
		s.BankAccountNumber,
		s.QRCodeURL,
		s.PaymentTermsDays,
		s.UpdatedAt,
	).Error
}
