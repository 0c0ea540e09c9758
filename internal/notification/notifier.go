package notification

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"

	companydomain "github.com/smallbiznis/crmbilling/internal/company/domain"
	"github.com/smallbiznis/crmbilling/internal/events"
	invoicedomain "github.com/smallbiznis/crmbilling/internal/invoice/domain"
	"github.com/smallbiznis/crmbilling/internal/providers/email"
	taxdomain "github.com/smallbiznis/crmbilling/internal/tax/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed templates/*.html
var templateFS embed.FS

// Types lists the events that produce an email.
var Types = []events.Type{
	events.TypeInvoiceSent,
	events.TypeInvoiceReminder,
	events.TypeInvoicePaid,
	events.TypeSubscriptionApproved,
	events.TypeSubscriptionUpgraded,
	events.TypeSubscriptionRejected,
	events.TypeSubscriptionExpired,
	events.TypeUpgradeRequested,
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	CompanyRepo companydomain.Repository
	InvoiceSvc  invoicedomain.Service
	Settings    taxdomain.SettingsProvider `optional:"true"`
	Email       email.Provider
}

// Notifier turns committed billing events into tenant emails.
type Notifier struct {
	db          *gorm.DB
	log         *zap.Logger
	companyRepo companydomain.Repository
	invoiceSvc  invoicedomain.Service
	settings    taxdomain.SettingsProvider
	email       email.Provider
	templates   *template.Template
}

func New(p Params) (*Notifier, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}
	return &Notifier{
		db:          p.DB,
		log:         p.Log.Named("notification.service"),
		companyRepo: p.CompanyRepo,
		invoiceSvc:  p.InvoiceSvc,
		settings:    p.Settings,
		email:       p.Email,
		templates:   tmpl,
	}, nil
}

type view struct {
	CompanyName   string
	IssuerName    string
	InvoiceNumber string
	TotalAmount   string
	Currency      string
	DueDate       string
	ReminderType  string
	Reason        string
	Note          string
	PackageName   string
	EndDate       string
}

func (n *Notifier) Handle(ctx context.Context, event events.Event) error {
	company, err := n.companyRepo.FindByID(ctx, n.db, event.CompanyID)
	if err != nil {
		return err
	}
	if company == nil {
		return companydomain.ErrNotFound
	}
	if company.Email == "" {
		n.log.Debug("company has no email, skipping", zap.String("company_id", company.ID.String()))
		return nil
	}

	v := view{
		CompanyName:   company.Name,
		InvoiceNumber: event.String("invoice_number"),
		TotalAmount:   event.String("total_amount"),
		Currency:      event.String("currency"),
		DueDate:       event.String("due_date"),
		ReminderType:  event.String("reminder_type"),
		Reason:        event.String("reason"),
		Note:          event.String("note"),
		PackageName:   event.String("package_name"),
		EndDate:       formatDay(event.String("end_date")),
	}
	if n.settings != nil {
		if s, err := n.settings.Current(ctx); err == nil {
			v.IssuerName = s.CompanyName
		}
	}
	if event.InvoiceID != 0 {
		inv, err := n.invoiceSvc.Get(ctx, event.InvoiceID.String())
		if err != nil {
			return fmt.Errorf("load invoice: %w", err)
		}
		v.InvoiceNumber = inv.InvoiceNumber
		v.TotalAmount = inv.TotalAmount.StringFixed(2)
		v.Currency = inv.Currency
		v.DueDate = inv.DueDate.UTC().Format("2006-01-02")
	}

	msg, err := n.compose(ctx, event, v)
	if err != nil {
		return err
	}
	msg.To = []string{company.Email}
	if err := n.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %s email: %w", event.Type, err)
	}

	n.log.Info("notification sent",
		zap.String("event_type", string(event.Type)),
		zap.String("event_id", event.ID),
		zap.String("company_id", company.ID.String()),
		zap.Int("attachments", len(msg.Attachments)),
	)
	return nil
}

func (n *Notifier) compose(ctx context.Context, event events.Event, v view) (email.Message, error) {
	var (
		name    string
		subject string
		attach  func(ctx context.Context, id string) (*invoicedomain.Document, error)
	)
	switch event.Type {
	case events.TypeInvoiceSent:
		name, subject = "invoice_sent", fmt.Sprintf("Invoice %s", v.InvoiceNumber)
		attach = n.invoiceSvc.Render
	case events.TypeInvoiceReminder:
		name, subject = "invoice_reminder", reminderSubject(v)
	case events.TypeInvoicePaid:
		name, subject = "invoice_paid", fmt.Sprintf("Payment received for invoice %s", v.InvoiceNumber)
		attach = n.invoiceSvc.RenderReceipt
	case events.TypeSubscriptionApproved, events.TypeSubscriptionUpgraded:
		name, subject = "subscription_approved", "Your subscription is active"
	case events.TypeSubscriptionRejected:
		name, subject = "subscription_rejected", fmt.Sprintf("Payment for invoice %s was not accepted", v.InvoiceNumber)
	case events.TypeSubscriptionExpired:
		name, subject = "subscription_expired", "Your subscription has expired"
	case events.TypeUpgradeRequested:
		name, subject = "upgrade_requested", "Upgrade request received"
	default:
		return email.Message{}, fmt.Errorf("no email for event %s", event.Type)
	}

	var body bytes.Buffer
	if err := n.templates.ExecuteTemplate(&body, name+".html", v); err != nil {
		return email.Message{}, fmt.Errorf("render %s: %w", name, err)
	}
	msg := email.Message{Subject: subject, HTML: body.String()}

	if attach != nil && event.InvoiceID != 0 {
		doc, err := attach(ctx, event.InvoiceID.String())
		if err != nil {
			return email.Message{}, fmt.Errorf("render attachment: %w", err)
		}
		if doc != nil && len(doc.Content) > 0 {
			msg.Attachments = append(msg.Attachments, email.Attachment{
				Filename:    doc.Filename,
				ContentType: doc.ContentType,
				Content:     doc.Content,
			})
		}
	}
	return msg, nil
}

func reminderSubject(v view) string {
	switch v.ReminderType {
	case "overdue_7_days":
		return fmt.Sprintf("Invoice %s is overdue", v.InvoiceNumber)
	case "due_today":
		return fmt.Sprintf("Invoice %s is due today", v.InvoiceNumber)
	default:
		return fmt.Sprintf("Reminder: invoice %s is due on %s", v.InvoiceNumber, v.DueDate)
	}
}

func formatDay(raw string) string {
	if raw == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return raw
	}
	return t.UTC().Format("2006-01-02")
}

// Register subscribes the notifier to the dispatcher.
func Register(d *events.Dispatcher, n *Notifier) {
	d.Subscribe("notification.email", n, Types...)
}
