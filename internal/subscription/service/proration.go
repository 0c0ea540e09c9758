package service

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
	companydomain "github.com/smallbiznis/crmbilling/internal/company/domain"
	invoicedomain "github.com/smallbiznis/crmbilling/internal/invoice/domain"
	plandomain "github.com/smallbiznis/crmbilling/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/crmbilling/internal/subscription/domain"
)

const defaultDurationDays = 30

type prorationInput struct {
	company  *companydomain.Company
	current  *plandomain.Package
	lastPaid *invoicedomain.Invoice
	target   *plandomain.Package
	duration plandomain.DurationType
	now      time.Time
}

// prorate quotes the unused credit on the current package and the amount
// payable for the target package. It reads nothing and writes nothing.
func prorate(in prorationInput) (subscriptiondomain.Proration, error) {
	targetPrice, ok := in.target.PriceFor(in.duration)
	if !ok {
		return subscriptiondomain.Proration{}, plandomain.ErrPriceNotConfigured
	}
	targetPrice = targetPrice.Round(2)

	quote := subscriptiondomain.Proration{
		CompanyID:       in.company.ID.String(),
		TargetPackageID: in.target.ID.String(),
		DurationType:    in.duration,
		PaidAmount:      decimal.Zero,
		Credit:          decimal.Zero,
		TargetPrice:     targetPrice,
		PayableAmount:   targetPrice,
		Currency:        in.target.Currency,
	}
	if in.company.SubscriptionPackageID != nil {
		id := in.company.SubscriptionPackageID.String()
		quote.CurrentPackageID = &id
	}

	c := in.company
	if in.current == nil || in.current.IsTrial ||
		c.SubscriptionStatus != companydomain.StatusApproved || c.SubscriptionEndDate == nil {
		return quote, nil
	}

	if in.lastPaid != nil {
		quote.FromPaidInvoice = true
		quote.PaidAmount = in.lastPaid.TotalAmount
		quote.TotalDurationDays = wholeDays(in.lastPaid.BillingPeriodEnd.Sub(in.lastPaid.BillingPeriodStart))
	} else {
		if c.SubscriptionStartDate != nil {
			quote.TotalDurationDays = wholeDays(c.SubscriptionEndDate.Sub(*c.SubscriptionStartDate))
		}
		if quote.TotalDurationDays <= 0 {
			quote.TotalDurationDays = defaultDurationDays
		}
		quote.PaidAmount = estimatePaid(in.current, quote.TotalDurationDays)
	}
	if quote.TotalDurationDays <= 0 {
		quote.TotalDurationDays = defaultDurationDays
	}

	quote.DaysRemaining = wholeDays(c.SubscriptionEndDate.Sub(in.now))
	if quote.DaysRemaining <= 0 {
		quote.DaysRemaining = 0
		return quote, nil
	}

	credit := quote.PaidAmount.
		Mul(decimal.NewFromInt(int64(quote.DaysRemaining))).
		Div(decimal.NewFromInt(int64(quote.TotalDurationDays)))
	quote.Credit = credit.Round(2)
	quote.PayableAmount = decimal.Max(decimal.Zero, targetPrice.Sub(quote.Credit)).Round(2)
	return quote, nil
}

// estimatePaid picks the current package's price by period length when no
// paid invoice exists.
func estimatePaid(pkg *plandomain.Package, days int) decimal.Decimal {
	duration := plandomain.DurationMonthly
	switch {
	case days > 300:
		duration = plandomain.DurationYearly
	case days > 80:
		duration = plandomain.DurationQuarterly
	}
	if price, ok := pkg.PriceFor(duration); ok {
		return price
	}
	if price, ok := pkg.PriceFor(pkg.DurationType); ok {
		return price
	}
	return decimal.Zero
}

// wholeDays rounds a positive span up to whole days and floors negatives at zero.
func wholeDays(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Hours() / 24))
}
