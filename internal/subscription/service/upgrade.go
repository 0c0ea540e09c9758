package service

import (
	"context"

	companydomain "github.com/smallbiznis/crmbilling/internal/company/domain"
	"github.com/smallbiznis/crmbilling/internal/events"
	invoicedomain "github.com/smallbiznis/crmbilling/internal/invoice/domain"
	plandomain "github.com/smallbiznis/crmbilling/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/crmbilling/internal/subscription/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *Service) PreviewUpgrade(ctx context.Context, req subscriptiondomain.UpgradeRequest) (*subscriptiondomain.Proration, error) {
	companyID, err := parseID(req.CompanyID, subscriptiondomain.ErrInvalidCompany)
	if err != nil {
		return nil, err
	}
	target, err := s.loadBillablePackage(ctx, req.PackageID)
	if err != nil {
		return nil, err
	}
	duration, err := resolveDuration(req.DurationType, target)
	if err != nil {
		return nil, err
	}

	company, err := s.companyRepo.FindByID(ctx, s.db, companyID)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, companydomain.ErrNotFound
	}
	quote, err := s.quote(ctx, s.db, company, target, duration)
	if err != nil {
		return nil, err
	}
	return &quote, nil
}

func (s *Service) InitiateUpgrade(ctx context.Context, req subscriptiondomain.UpgradeRequest) (*subscriptiondomain.InitiateUpgradeResponse, error) {
	companyID, err := parseID(req.CompanyID, subscriptiondomain.ErrInvalidCompany)
	if err != nil {
		return nil, err
	}
	target, err := s.loadBillablePackage(ctx, req.PackageID)
	if err != nil {
		return nil, err
	}
	duration, err := resolveDuration(req.DurationType, target)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var (
		quote   subscriptiondomain.Proration
		invoice *invoicedomain.Invoice
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.lockCompany(ctx, tx, companyID)
		if err != nil {
			return err
		}
		if !subscriptiondomain.Allowed(c.SubscriptionStatus, subscriptiondomain.EventUpgrade) {
			return subscriptiondomain.ErrNoSubscription
		}
		quote, err = s.quote(ctx, tx, c, target, duration)
		if err != nil {
			return err
		}
		inv, err := s.ledger.Issue(ctx, tx, invoicedomain.IssueInput{
			CompanyID:     c.ID,
			PackageID:     target.ID,
			Kind:          invoicedomain.KindUpgrade,
			DurationType:  duration,
			Amount:        quote.PayableAmount,
			CreditApplied: quote.Credit,
			PeriodStart:   now,
			PeriodEnd:     duration.EndDate(now),
			DueDate:       now.AddDate(0, 0, settings.PaymentTermsDays),
			Settings:      settings,
			Currency:      target.Currency,
		})
		if err != nil {
			return err
		}
		// A newer upgrade invoice supersedes any earlier undecided one.
		c.SubscriptionInvoiceID = &inv.ID
		c.UpdatedAt = now
		if err := s.companyRepo.UpdateSubscription(ctx, tx, c); err != nil {
			return err
		}
		invoice = inv
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("upgrade initiated",
		zap.String("company_id", companyID.String()),
		zap.String("target_package_id", target.ID.String()),
		zap.String("credit", quote.Credit.StringFixed(2)),
		zap.String("payable_amount", quote.PayableAmount.StringFixed(2)),
		zap.String("invoice_number", invoice.InvoiceNumber),
	)
	s.publish(ctx,
		invoiceEvent(events.TypeUpgradeRequested, invoice, now).
			With("package_id", target.ID.String()).
			With("package_name", target.Name).
			With("credit", quote.Credit.StringFixed(2)).
			With("payable_amount", quote.PayableAmount.StringFixed(2)),
		invoiceEvent(events.TypeInvoiceCreated, invoice, now),
	)
	return &subscriptiondomain.InitiateUpgradeResponse{
		Invoice:     invoicedomain.ToResponse(invoice),
		Calculation: quote,
	}, nil
}

// quote gathers the current package and last paid invoice through db and prorates.
func (s *Service) quote(ctx context.Context, db *gorm.DB, c *companydomain.Company, target *plandomain.Package, duration plandomain.DurationType) (subscriptiondomain.Proration, error) {
	in := prorationInput{
		company:  c,
		target:   target,
		duration: duration,
		now:      s.clock.Now(),
	}
	if c.SubscriptionPackageID != nil {
		current, err := s.planRepo.FindByID(ctx, db, *c.SubscriptionPackageID)
		if err != nil {
			return subscriptiondomain.Proration{}, err
		}
		in.current = current
		if current != nil {
			paid, err := s.ledger.LatestPaid(ctx, db, c.ID, current.ID)
			if err != nil {
				return subscriptiondomain.Proration{}, err
			}
			in.lastPaid = paid
		}
	}
	return prorate(in)
}
