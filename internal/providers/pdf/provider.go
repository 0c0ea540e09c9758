package pdf

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("providers.pdf",
	fx.Provide(New),
)

// Provider renders billing documents. Inputs are fully formatted strings so
// renderers never see money arithmetic.
type Provider interface {
	GenerateInvoice(ctx context.Context, data InvoiceData) ([]byte, error)
	GenerateReceipt(ctx context.Context, data ReceiptData) ([]byte, error)
}

type InvoiceData struct {
	IssuerName    string
	IssuerAddress string

	InvoiceNumber string
	Status        string
	IssueDate     string
	DueDate       string
	ServicePeriod string

	BillToName  string
	BillToEmail string

	BankDetails string
	QRCodeURL   string

	Items []InvoiceItem

	Subtotal      string
	TaxLabel      string
	Tax           string
	CreditApplied string
	Total         string
	AmountDue     string
}

type InvoiceItem struct {
	Description string
	Qty         int
	UnitPrice   string
	Amount      string
}

type ReceiptData struct {
	InvoiceData
	DatePaid      string
	PaymentMethod string
	Reference     string
}

// NoOpProvider returns empty documents.
type NoOpProvider struct{}

func (p *NoOpProvider) GenerateInvoice(ctx context.Context, data InvoiceData) ([]byte, error) {
	return nil, nil
}

func (p *NoOpProvider) GenerateReceipt(ctx context.Context, data ReceiptData) ([]byte, error) {
	return nil, nil
}
