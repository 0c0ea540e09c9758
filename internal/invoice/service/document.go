package service

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	companydomain "github.com/smallbiznis/crmbilling/internal/company/domain"
	invoicedomain "github.com/smallbiznis/crmbilling/internal/invoice/domain"
	plandomain "github.com/smallbiznis/crmbilling/internal/plan/domain"
	"github.com/smallbiznis/crmbilling/internal/providers/pdf"
	taxdomain "github.com/smallbiznis/crmbilling/internal/tax/domain"
)

func buildDocument(inv *invoicedomain.Invoice, company *companydomain.Company, pkg *plandomain.Package, settings taxdomain.Settings) pdf.InvoiceData {
	money := func(d decimal.Decimal) string {
		return inv.Currency + " " + d.StringFixed(2)
	}

	description := "Subscription"
	if pkg != nil {
		description = pkg.Name
	}
	if inv.DurationType != "" {
		description = fmt.Sprintf("%s (%s)", description, inv.DurationType)
	}
	if inv.Kind == invoicedomain.KindUpgrade {
		description = "Upgrade to " + description
	}
	gross := inv.Amount.Add(inv.CreditApplied)

	data := pdf.InvoiceData{
		IssuerName:    settings.CompanyName,
		IssuerAddress: settings.CompanyAddress,
		InvoiceNumber: inv.InvoiceNumber,
		Status:        strings.ToUpper(string(inv.Status)),
		IssueDate:     formatDate(inv.CreatedAt),
		DueDate:       formatDate(inv.DueDate),
		ServicePeriod: formatDate(inv.BillingPeriodStart) + " to " + formatDate(inv.BillingPeriodEnd),
		BillToName:    company.Name,
		BillToEmail:   company.Email,
		BankDetails:   bankDetails(settings),
		QRCodeURL:     settings.QRCodeURL,
		Items: []pdf.InvoiceItem{{
			Description: description,
			Qty:         1,
			UnitPrice:   money(gross),
			Amount:      money(gross),
		}},
		Subtotal:  money(inv.Amount),
		TaxLabel:  fmt.Sprintf("%s (%s%%)", settings.TaxLabel, inv.TaxRate.Mul(decimal.NewFromInt(100)).String()),
		Tax:       money(inv.TaxAmount),
		Total:     money(inv.TotalAmount),
		AmountDue: money(inv.TotalAmount),
	}
	if inv.CreditApplied.IsPositive() {
		data.CreditApplied = "-" + money(inv.CreditApplied)
	}
	if inv.Status == invoicedomain.StatusPaid {
		data.AmountDue = money(decimal.Zero)
	}
	return data
}

func bankDetails(settings taxdomain.Settings) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{settings.BankName, settings.BankAccountName, settings.BankAccountNumber} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " / ")
}
