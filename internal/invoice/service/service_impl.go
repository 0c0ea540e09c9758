package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/crmbilling/internal/clock"
	companydomain "github.com/smallbiznis/crmbilling/internal/company/domain"
	"github.com/smallbiznis/crmbilling/internal/events"
	invoicedomain "github.com/smallbiznis/crmbilling/internal/invoice/domain"
	plandomain "github.com/smallbiznis/crmbilling/internal/plan/domain"
	"github.com/smallbiznis/crmbilling/internal/providers/pdf"
	taxdomain "github.com/smallbiznis/crmbilling/internal/tax/domain"
	"github.com/smallbiznis/crmbilling/pkg/db/option"
	"github.com/smallbiznis/crmbilling/pkg/db/pagination"
	"github.com/smallbiznis/crmbilling/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Repo        invoicedomain.Repository
	Ledger      invoicedomain.Ledger
	CompanyRepo companydomain.Repository
	PlanRepo    plandomain.Repository
	Settings    taxdomain.SettingsProvider
	Publisher   events.Publisher
	PDF         pdf.Provider
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	clock       clock.Clock
	repo        invoicedomain.Repository
	invoicerepo repository.Repository[invoicedomain.Invoice]
	ledger      invoicedomain.Ledger
	companyRepo companydomain.Repository
	planRepo    plandomain.Repository
	settings    taxdomain.SettingsProvider
	publisher   events.Publisher
	pdf         pdf.Provider
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("invoice.service"),

		clock:       p.Clock,
		repo:        p.Repo,
		invoicerepo: repository.ProvideStore[invoicedomain.Invoice](p.DB),
		ledger:      p.Ledger,
		companyRepo: p.CompanyRepo,
		planRepo:    p.PlanRepo,
		settings:    p.Settings,
		publisher:   p.Publisher,
		pdf:         p.PDF,
	}
}

func (s *Service) Create(ctx context.Context, req invoicedomain.CreateRequest) (*invoicedomain.Response, error) {
	companyID, err := parseID(req.CompanyID)
	if err != nil {
		return nil, invoicedomain.ErrInvalidCompany
	}
	packageID, err := parseID(req.PackageID)
	if err != nil {
		return nil, invoicedomain.ErrInvalidPackage
	}

	company, err := s.companyRepo.FindByID(ctx, s.db, companyID)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, companydomain.ErrNotFound
	}
	pkg, err := s.planRepo.FindByID(ctx, s.db, packageID)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, plandomain.ErrNotFound
	}

	duration := pkg.DurationType
	if strings.TrimSpace(req.DurationType) != "" {
		parsed, ok := plandomain.ParseDurationType(req.DurationType)
		if !ok {
			return nil, plandomain.ErrInvalidDurationType
		}
		duration = parsed
	}

	var amount decimal.Decimal
	if req.Amount != nil {
		amount = *req.Amount
	} else {
		price, ok := pkg.PriceFor(duration)
		if !ok {
			return nil, plandomain.ErrPriceNotConfigured
		}
		amount = price
	}

	settings, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	start := now
	if req.BillingPeriodStart != nil {
		start = req.BillingPeriodStart.UTC()
	}
	end := duration.EndDate(start)
	if req.BillingPeriodEnd != nil {
		end = req.BillingPeriodEnd.UTC()
	}
	due := now.AddDate(0, 0, settings.PaymentTermsDays)
	if req.DueDate != nil {
		due = req.DueDate.UTC()
	}

	var created *invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.ledger.Issue(ctx, tx, invoicedomain.IssueInput{
			CompanyID:    company.ID,
			PackageID:    pkg.ID,
			Kind:         invoicedomain.KindSubscription,
			DurationType: duration,
			Amount:       amount,
			PeriodStart:  start,
			PeriodEnd:    end,
			DueDate:      due,
			Settings:     settings,
			Currency:     pkg.Currency,
			Notes:        req.Notes,
		})
		if err != nil {
			return err
		}
		created = inv
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.TypeInvoiceCreated, created, nil)
	resp := invoicedomain.ToResponse(created)
	return &resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*invoicedomain.Response, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return nil, invoicedomain.ErrInvalidID
	}
	inv, err := s.repo.FindByID(ctx, s.db, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, invoicedomain.ErrNotFound
	}
	resp := invoicedomain.ToResponse(inv)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListRequest) (invoicedomain.ListResponse, error) {
	filter := &invoicedomain.Invoice{}
	if strings.TrimSpace(req.CompanyID) != "" {
		companyID, err := parseID(req.CompanyID)
		if err != nil {
			return invoicedomain.ListResponse{}, invoicedomain.ErrInvalidCompany
		}
		filter.CompanyID = companyID
	}
	if strings.TrimSpace(req.Status) != "" {
		status, ok := invoicedomain.ParseStatus(strings.TrimSpace(req.Status))
		if !ok {
			return invoicedomain.ListResponse{}, invoicedomain.ErrInvalidStatus
		}
		filter.Status = status
	}

	options := []option.QueryOption{option.ApplyPagination(req.Pagination)}
	if req.DueFrom != nil {
		options = append(options, option.ApplyOperator(option.Condition{
			Field:    "due_date",
			Operator: option.GTE,
			Value:    invoicedomain.DueDay(*req.DueFrom),
		}))
	}
	if req.DueTo != nil {
		options = append(options, option.ApplyOperator(option.Condition{
			Field:    "due_date",
			Operator: option.LTE,
			Value:    invoicedomain.DueDay(*req.DueTo),
		}))
	}

	items, err := s.invoicerepo.Find(ctx, filter, options...)
	if err != nil {
		return invoicedomain.ListResponse{}, err
	}
	page, info := pagination.BuildCursorPageInfo(items, req.Pagination.Size(), func(inv *invoicedomain.Invoice) string {
		return inv.ID.String()
	})

	invoices := make([]invoicedomain.Response, 0, len(page))
	for _, item := range page {
		if item == nil {
			continue
		}
		invoices = append(invoices, invoicedomain.ToResponse(item))
	}
	return invoicedomain.ListResponse{PageInfo: info, Invoices: invoices}, nil
}

func (s *Service) Update(ctx context.Context, req invoicedomain.UpdateRequest) (*invoicedomain.Response, error) {
	invoiceID, err := parseID(req.ID)
	if err != nil {
		return nil, invoicedomain.ErrInvalidID
	}

	var updated *invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.ledger.LoadForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status.Closed() {
			return invoicedomain.ErrNotEditable
		}

		if req.Amount != nil {
			if err := recomputeTax(inv, *req.Amount); err != nil {
				return err
			}
		}
		if req.DueDate != nil {
			inv.DueDate = invoicedomain.DueDay(*req.DueDate)
		}
		if req.BillingPeriodStart != nil {
			inv.BillingPeriodStart = req.BillingPeriodStart.UTC()
		}
		if req.BillingPeriodEnd != nil {
			inv.BillingPeriodEnd = req.BillingPeriodEnd.UTC()
		}
		if !inv.BillingPeriodEnd.After(inv.BillingPeriodStart) {
			return invoicedomain.ErrInvalidPeriod
		}
		if req.Notes != nil {
			inv.Notes = strings.TrimSpace(*req.Notes)
		}
		inv.UpdatedAt = s.clock.Now()

		if err := s.repo.Update(ctx, tx, inv); err != nil {
			return err
		}
		updated = inv
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("invoice updated",
		zap.String("invoice_id", updated.ID.String()),
		zap.String("total_amount", updated.TotalAmount.StringFixed(2)),
	)
	resp := invoicedomain.ToResponse(updated)
	return &resp, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.ErrInvalidID
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.ledger.LoadForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status == invoicedomain.StatusPaid {
			return invoicedomain.ErrAlreadyPaid
		}
		linked, err := s.repo.CountLinkedPayments(ctx, tx, inv.ID)
		if err != nil {
			return err
		}
		if linked > 0 {
			return invoicedomain.ErrHasPayments
		}
		if err := s.repo.Delete(ctx, tx, inv.ID); err != nil {
			return err
		}
		s.log.Info("invoice deleted",
			zap.String("invoice_id", inv.ID.String()),
			zap.String("invoice_number", inv.InvoiceNumber),
		)
		return nil
	})
}

func (s *Service) MarkSent(ctx context.Context, id string) (*invoicedomain.Response, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return nil, invoicedomain.ErrInvalidID
	}

	var sent *invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.ledger.LoadForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		switch inv.Status {
		case invoicedomain.StatusDraft, invoicedomain.StatusPending, invoicedomain.StatusOverdue:
		default:
			return invoicedomain.ErrNotSendable
		}

		now := s.clock.Now()
		inv.Status = invoicedomain.StatusSent
		inv.SentAt = &now
		inv.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, inv); err != nil {
			return err
		}
		sent = inv
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.TypeInvoiceSent, sent, nil)
	resp := invoicedomain.ToResponse(sent)
	return &resp, nil
}

func (s *Service) MarkPaid(ctx context.Context, id string) (*invoicedomain.Response, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return nil, invoicedomain.ErrInvalidID
	}

	// Company rows are locked before invoice rows on every path.
	peek, err := s.repo.FindByID(ctx, s.db, invoiceID)
	if err != nil {
		return nil, err
	}
	if peek == nil {
		return nil, invoicedomain.ErrNotFound
	}

	var paid *invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		company, err := s.companyRepo.FindByIDForUpdate(ctx, tx, peek.CompanyID)
		if err != nil {
			return err
		}
		if company == nil {
			return companydomain.ErrNotFound
		}
		inv, err := s.ledger.LoadForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if company.SettlesOnApproval(inv.ID) {
			return invoicedomain.ErrAwaitingApproval
		}
		if err := s.ledger.MarkPaid(ctx, tx, inv); err != nil {
			return err
		}
		paid = inv
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.TypeInvoicePaid, paid, nil)
	resp := invoicedomain.ToResponse(paid)
	return &resp, nil
}

func (s *Service) Void(ctx context.Context, req invoicedomain.VoidRequest) (*invoicedomain.Response, error) {
	invoiceID, err := parseID(req.ID)
	if err != nil {
		return nil, invoicedomain.ErrInvalidID
	}

	var voided *invoicedomain.Invoice
	var previous invoicedomain.Status
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.ledger.LoadForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		switch inv.Status {
		case invoicedomain.StatusPaid:
			return invoicedomain.ErrAlreadyPaid
		case invoicedomain.StatusVoid, invoicedomain.StatusCancelled, invoicedomain.StatusPaymentReceived:
			return invoicedomain.ErrNotVoidable
		}
		linked, err := s.repo.CountLinkedPayments(ctx, tx, inv.ID)
		if err != nil {
			return err
		}
		if linked > 0 {
			return invoicedomain.ErrHasPayments
		}

		now := s.clock.Now()
		previous = inv.Status
		inv.Status = invoicedomain.StatusVoid
		inv.VoidReason = strings.TrimSpace(req.Reason)
		inv.VoidedAt = &now
		inv.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, inv); err != nil {
			return err
		}
		voided = inv
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.TypeInvoiceVoided, voided, map[string]any{
		"previous_status": string(previous),
		"reason":          voided.VoidReason,
	})
	resp := invoicedomain.ToResponse(voided)
	return &resp, nil
}

func (s *Service) Render(ctx context.Context, id string) (*invoicedomain.Document, error) {
	data, inv, err := s.documentData(ctx, id)
	if err != nil {
		return nil, err
	}
	content, err := s.pdf.GenerateInvoice(ctx, data)
	if err != nil {
		return nil, err
	}
	return &invoicedomain.Document{
		Filename:    inv.InvoiceNumber + ".pdf",
		ContentType: "application/pdf",
		Content:     content,
	}, nil
}

func (s *Service) RenderReceipt(ctx context.Context, id string) (*invoicedomain.Document, error) {
	data, inv, err := s.documentData(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status != invoicedomain.StatusPaid || inv.PaidAt == nil {
		return nil, invoicedomain.ErrNotPaid
	}
	content, err := s.pdf.GenerateReceipt(ctx, pdf.ReceiptData{
		InvoiceData:   data,
		DatePaid:      inv.PaidAt.Format(dateLayout),
		PaymentMethod: inv.PaymentMethod,
		Reference:     inv.PaymentReference,
	})
	if err != nil {
		return nil, err
	}
	return &invoicedomain.Document{
		Filename:    "receipt-" + inv.InvoiceNumber + ".pdf",
		ContentType: "application/pdf",
		Content:     content,
	}, nil
}

func (s *Service) documentData(ctx context.Context, id string) (pdf.InvoiceData, *invoicedomain.Invoice, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return pdf.InvoiceData{}, nil, invoicedomain.ErrInvalidID
	}
	inv, err := s.repo.FindByID(ctx, s.db, invoiceID)
	if err != nil {
		return pdf.InvoiceData{}, nil, err
	}
	if inv == nil {
		return pdf.InvoiceData{}, nil, invoicedomain.ErrNotFound
	}
	company, err := s.companyRepo.FindByID(ctx, s.db, inv.CompanyID)
	if err != nil {
		return pdf.InvoiceData{}, nil, err
	}
	if company == nil {
		return pdf.InvoiceData{}, nil, companydomain.ErrNotFound
	}
	pkg, err := s.planRepo.FindByID(ctx, s.db, inv.PackageID)
	if err != nil {
		return pdf.InvoiceData{}, nil, err
	}
	settings, err := s.settings.Current(ctx)
	if err != nil {
		return pdf.InvoiceData{}, nil, err
	}
	return buildDocument(inv, company, pkg, settings), inv, nil
}

func (s *Service) publish(ctx context.Context, t events.Type, inv *invoicedomain.Invoice, extra map[string]any) {
	if s.publisher == nil || inv == nil {
		return
	}
	event := events.New(t, inv.CompanyID, s.clock.Now()).
		WithInvoice(inv.ID).
		With("invoice_number", inv.InvoiceNumber).
		With("total_amount", inv.TotalAmount.StringFixed(2)).
		With("status", string(inv.Status))
	for key, value := range extra {
		event = event.With(key, value)
	}
	s.publisher.Publish(ctx, event)
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, invoicedomain.ErrInvalidID
	}
	return id, nil
}

const dateLayout = "2006-01-02"

func formatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}
