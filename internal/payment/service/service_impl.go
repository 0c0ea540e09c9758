package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/crmbilling/internal/clock"
	companydomain "github.com/smallbiznis/crmbilling/internal/company/domain"
	"github.com/smallbiznis/crmbilling/internal/events"
	invoicedomain "github.com/smallbiznis/crmbilling/internal/invoice/domain"
	"github.com/smallbiznis/crmbilling/internal/observability/logger"
	"github.com/smallbiznis/crmbilling/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/crmbilling/internal/payment/domain"
	"github.com/smallbiznis/crmbilling/pkg/db/option"
	"github.com/smallbiznis/crmbilling/pkg/db/pagination"
	"github.com/smallbiznis/crmbilling/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        paymentdomain.Repository
	Ledger      invoicedomain.Ledger
	InvoiceRepo invoicedomain.Repository
	CompanyRepo companydomain.Repository
	Publisher   events.Publisher
	Metrics     *metrics.Metrics `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node

	clock       clock.Clock
	repo        paymentdomain.Repository
	paymentrepo repository.Repository[paymentdomain.Payment]
	ledger      invoicedomain.Ledger
	invoiceRepo invoicedomain.Repository
	companyRepo companydomain.Repository
	publisher   events.Publisher
	metrics     *metrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("payment.service"),
		genID: p.GenID,

		clock:       p.Clock,
		repo:        p.Repo,
		paymentrepo: repository.ProvideStore[paymentdomain.Payment](p.DB),
		ledger:      p.Ledger,
		invoiceRepo: p.InvoiceRepo,
		companyRepo: p.CompanyRepo,
		publisher:   p.Publisher,
		metrics:     p.Metrics,
	}
}

func (s *Service) Record(ctx context.Context, req paymentdomain.RecordRequest) (*paymentdomain.RecordResponse, error) {
	companyID, err := parseID(req.CompanyID)
	if err != nil {
		return nil, paymentdomain.ErrInvalidCompany
	}
	amount := req.Amount.Round(2)
	if !amount.IsPositive() {
		return nil, paymentdomain.ErrInvalidAmount
	}
	method := strings.TrimSpace(req.Method)
	if method == "" {
		return nil, paymentdomain.ErrInvalidMethod
	}
	status := paymentdomain.StatusCompleted
	if raw := strings.TrimSpace(req.Status); raw != "" {
		parsed, ok := paymentdomain.ParseStatus(raw)
		if !ok {
			return nil, paymentdomain.ErrInvalidStatus
		}
		status = parsed
	}

	var invoiceID snowflake.ID
	if strings.TrimSpace(req.InvoiceID) != "" {
		invoiceID, err = parseID(req.InvoiceID)
		if err != nil {
			return nil, paymentdomain.ErrInvalidInvoice
		}
		if status != paymentdomain.StatusCompleted {
			return nil, paymentdomain.ErrNotCompleted
		}
	}

	company, err := s.companyRepo.FindByID(ctx, s.db, companyID)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, companydomain.ErrNotFound
	}

	now := s.clock.Now()
	paymentDate := now
	if req.PaymentDate != nil {
		paymentDate = req.PaymentDate.UTC()
	}
	payment := &paymentdomain.Payment{
		ID:                   s.genID.Generate(),
		CompanyID:            company.ID,
		Amount:               amount,
		Method:               method,
		TransactionReference: strings.TrimSpace(req.TransactionReference),
		PaymentDate:          paymentDate,
		Status:               status,
		Notes:                strings.TrimSpace(req.Notes),
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	var result *allocationResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var (
			owner *companydomain.Company
			inv   *invoicedomain.Invoice
		)
		if invoiceID != 0 {
			locked, err := s.lockCompany(ctx, tx, company.ID)
			if err != nil {
				return err
			}
			loaded, err := s.lockAllocatable(ctx, tx, invoiceID, company.ID)
			if err != nil {
				return err
			}
			owner, inv = locked, loaded
		}
		if err := s.repo.Insert(ctx, tx, payment); err != nil {
			return err
		}
		if inv == nil {
			return nil
		}
		applied, err := s.allocate(ctx, tx, owner, inv, []paymentdomain.Payment{*payment})
		if err != nil {
			return err
		}
		result = applied
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("payment recorded",
		zap.String("payment_id", payment.ID.String()),
		zap.String("company_id", company.ID.String()),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("status", string(status)),
	)

	resp := &paymentdomain.RecordResponse{}
	if result != nil {
		if len(result.allocation.Applications) > 0 {
			payment.InvoiceID = &result.invoice.ID
		}
		s.afterAllocation(ctx, result)
		allocation := result.response()
		resp.Allocation = &allocation
	}
	if payment.InvoiceID == nil {
		s.publishRecorded(ctx, payment, nil)
	}
	resp.Payment = paymentdomain.ToResponse(payment)
	return resp, nil
}

func (s *Service) Void(ctx context.Context, id string) error {
	paymentID, err := parseID(id)
	if err != nil {
		return paymentdomain.ErrInvalidID
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.repo.FindByIDForUpdate(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if payment == nil {
			return paymentdomain.ErrNotFound
		}
		if payment.InvoiceID != nil {
			return paymentdomain.ErrLinked
		}
		if err := s.repo.Delete(ctx, tx, payment.ID); err != nil {
			return err
		}
		s.log.Info("payment voided",
			zap.String("payment_id", payment.ID.String()),
			zap.String("company_id", payment.CompanyID.String()),
			zap.String("amount", payment.Amount.StringFixed(2)),
		)
		return nil
	})
}

func (s *Service) List(ctx context.Context, req paymentdomain.ListRequest) (paymentdomain.ListResponse, error) {
	filter := &paymentdomain.Payment{}
	if strings.TrimSpace(req.CompanyID) != "" {
		companyID, err := parseID(req.CompanyID)
		if err != nil {
			return paymentdomain.ListResponse{}, paymentdomain.ErrInvalidCompany
		}
		filter.CompanyID = companyID
	}

	options := []option.QueryOption{option.ApplyPagination(req.Pagination)}
	if req.Unapplied {
		filter.Status = paymentdomain.StatusCompleted
		options = append(options, option.IsNull("invoice_id"))
	}

	items, err := s.paymentrepo.Find(ctx, filter, options...)
	if err != nil {
		return paymentdomain.ListResponse{}, err
	}
	page, info := pagination.BuildCursorPageInfo(items, req.Pagination.Size(), func(p *paymentdomain.Payment) string {
		return p.ID.String()
	})

	payments := make([]paymentdomain.Response, 0, len(page))
	for _, item := range page {
		if item == nil {
			continue
		}
		payments = append(payments, paymentdomain.ToResponse(item))
	}
	return paymentdomain.ListResponse{PageInfo: info, Payments: payments}, nil
}

func (s *Service) AllocateToInvoice(ctx context.Context, id string) (*paymentdomain.AllocationResponse, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return nil, paymentdomain.ErrInvalidInvoice
	}

	// Company rows are locked before invoice rows on every path.
	peek, err := s.invoiceRepo.FindByID(ctx, s.db, invoiceID)
	if err != nil {
		return nil, err
	}
	if peek == nil {
		return nil, invoicedomain.ErrNotFound
	}

	var result *allocationResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owner, err := s.lockCompany(ctx, tx, peek.CompanyID)
		if err != nil {
			return err
		}
		inv, err := s.lockAllocatable(ctx, tx, invoiceID, owner.ID)
		if err != nil {
			return err
		}
		pool, err := s.repo.ListUnapplied(ctx, tx, inv.CompanyID)
		if err != nil {
			return err
		}
		applied, err := s.allocate(ctx, tx, owner, inv, pool)
		if err != nil {
			return err
		}
		result = applied
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterAllocation(ctx, result)
	resp := result.response()
	return &resp, nil
}

func (s *Service) lockCompany(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*companydomain.Company, error) {
	c, err := s.companyRepo.FindByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, companydomain.ErrNotFound
	}
	return c, nil
}

// lockAllocatable loads the invoice for update and checks it can take payments.
// A non-zero companyID must own the invoice.
func (s *Service) lockAllocatable(ctx context.Context, tx *gorm.DB, invoiceID, companyID snowflake.ID) (*invoicedomain.Invoice, error) {
	inv, err := s.ledger.LoadForUpdate(ctx, tx, invoiceID)
	if err != nil {
		return nil, err
	}
	if companyID != 0 && inv.CompanyID != companyID {
		return nil, invoicedomain.ErrCompanyMismatch
	}
	if inv.Status == invoicedomain.StatusPaid {
		return nil, invoicedomain.ErrAlreadyPaid
	}
	if !paymentdomain.InvoiceAllocatable(inv.Status) {
		return nil, paymentdomain.ErrInvoiceNotAllocatable
	}
	return inv, nil
}

type allocationResult struct {
	invoice    *invoicedomain.Invoice
	allocation paymentdomain.Allocation
	payments   map[snowflake.ID]paymentdomain.Payment
	// deferred is set when the invoice status belongs to subscription approval.
	deferred   bool
}

func (r *allocationResult) response() paymentdomain.AllocationResponse {
	applied := make([]paymentdomain.AppliedPayment, 0, len(r.allocation.Applications))
	for _, app := range r.allocation.Applications {
		applied = append(applied, paymentdomain.AppliedPayment{
			PaymentID:     app.PaymentID.String(),
			AppliedAmount: app.Applied,
		})
	}
	return paymentdomain.AllocationResponse{
		InvoiceID:          r.invoice.ID.String(),
		Applied:            applied,
		OutstandingBalance: r.allocation.Outstanding,
		UnappliedExcess:    r.allocation.UnappliedExcess,
		InvoiceStatus:      r.invoice.Status,
		AwaitingApproval:   r.deferred,
	}
}

// allocate links candidates to the locked invoice and applies the suggested
// status. An invoice that settles on subscription approval keeps its status so
// the tenant can still be verified and approved.
func (s *Service) allocate(ctx context.Context, tx *gorm.DB, owner *companydomain.Company, inv *invoicedomain.Invoice, candidates []paymentdomain.Payment) (*allocationResult, error) {
	linked, err := s.repo.SumLinked(ctx, tx, inv.ID)
	if err != nil {
		return nil, err
	}
	outstanding := decimal.Max(decimal.Zero, inv.TotalAmount.Sub(linked))
	allocation := paymentdomain.Allocate(outstanding, candidates)

	now := s.clock.Now()
	byID := make(map[snowflake.ID]paymentdomain.Payment, len(candidates))
	for _, p := range candidates {
		byID[p.ID] = p
	}
	for _, app := range allocation.Applications {
		ok, err := s.repo.Link(ctx, tx, app.PaymentID, inv.ID, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, paymentdomain.ErrLinked
		}
	}

	result := &allocationResult{invoice: inv, allocation: allocation, payments: byID}
	if owner.SettlesOnApproval(inv.ID) {
		result.deferred = true
		return result, nil
	}
	status := paymentdomain.SuggestedStatus(inv.Status, allocation)
	if err := s.ledger.SetStatus(ctx, tx, inv, status); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) afterAllocation(ctx context.Context, r *allocationResult) {
	applications := r.allocation.Applications
	if s.metrics != nil && len(applications) > 0 {
		s.metrics.RecordPaymentsAllocated(ctx, len(applications))
	}
	logger.WithCompany(s.log, r.invoice.CompanyID.String()).Info("payments allocated",
		zap.String("invoice_id", r.invoice.ID.String()),
		zap.Int("applied_count", len(applications)),
		zap.String("outstanding_balance", r.allocation.Outstanding.StringFixed(2)),
		zap.String("unapplied_excess", r.allocation.UnappliedExcess.StringFixed(2)),
		zap.String("invoice_status", string(r.invoice.Status)),
		zap.Bool("awaiting_approval", r.deferred),
	)
	for _, app := range applications {
		payment, ok := r.payments[app.PaymentID]
		if !ok {
			continue
		}
		payment.InvoiceID = &r.invoice.ID
		s.publishRecorded(ctx, &payment, &app)
	}
	if r.invoice.Status == invoicedomain.StatusPaid && s.publisher != nil {
		s.publisher.Publish(ctx, events.New(events.TypeInvoicePaid, r.invoice.CompanyID, s.clock.Now()).
			WithInvoice(r.invoice.ID).
			With("invoice_number", r.invoice.InvoiceNumber).
			With("total_amount", r.invoice.TotalAmount.StringFixed(2)).
			With("status", string(r.invoice.Status)))
	}
}

func (s *Service) publishRecorded(ctx context.Context, p *paymentdomain.Payment, app *paymentdomain.Application) {
	if s.publisher == nil {
		return
	}
	event := events.New(events.TypePaymentRecorded, p.CompanyID, s.clock.Now()).
		With("payment_id", p.ID.String()).
		With("amount", p.Amount.StringFixed(2)).
		With("method", p.Method)
	if p.InvoiceID != nil {
		event = event.WithInvoice(*p.InvoiceID)
	}
	if app != nil {
		event = event.With("applied_amount", app.Applied.StringFixed(2))
	}
	s.publisher.Publish(ctx, event)
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, paymentdomain.ErrInvalidID
	}
	return id, nil
}
