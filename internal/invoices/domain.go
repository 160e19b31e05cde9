package invoices

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Invoice carries a receivable with a running outstanding amount.
type Invoice struct {
	ID                int64
	MemberID          *int64
	InvoiceNumber     string
	InvoiceDate       time.Time
	TotalAmount       decimal.Decimal
	OutstandingAmount decimal.Decimal
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// InvoiceItem is one billed line. Its total is quantity times the sum of
// trade and principal price; IsTotallyPaid flips once cumulative principal
// payments meet or exceed that total.
type InvoiceItem struct {
	ID             int64
	InvoiceID      int64
	Description    string
	Quantity       int64
	TradePrice     decimal.Decimal
	PrincipalPrice decimal.Decimal
	IsTotallyPaid  bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ItemPayment records principal and interest applied to one invoice item,
// linked back to the journal entry that posted it.
type ItemPayment struct {
	ID            int64
	InvoiceItemID int64
	Principal     decimal.Decimal
	Interest      decimal.Decimal
	LedgerID      int64
	PaymentDate   time.Time
	CreatedAt     time.Time
}

var (
	// ErrInvoiceNotFound indicates the invoice row is missing.
	ErrInvoiceNotFound = errors.New("invoices: invoice not found")
	// ErrItemNotFound indicates a payment referenced a missing item.
	ErrItemNotFound = errors.New("invoices: invoice item not found")
	// ErrNoPayments indicates a posting carried no payment rows.
	ErrNoPayments = errors.New("invoices: at least one item payment required")
	// ErrPaymentNotPositive indicates a zero or negative payment amount.
	ErrPaymentNotPositive = errors.New("invoices: payment must be positive")
)

// Total returns quantity x (trade + principal price).
func (it InvoiceItem) Total() decimal.Decimal {
	unit := it.TradePrice.Add(it.PrincipalPrice)
	return unit.Mul(decimal.NewFromInt(it.Quantity))
}

// ClampDecrement returns the outstanding decrement actually applied: the
// payment capped at the remaining outstanding, so the balance never goes
// negative on overpayment.
func ClampDecrement(outstanding, payment decimal.Decimal) decimal.Decimal {
	if payment.GreaterThan(outstanding) {
		return outstanding
	}
	return payment
}

// SettlesItem reports whether cumulative principal paid meets or exceeds
// the item total.
func SettlesItem(item InvoiceItem, principalPaid decimal.Decimal) bool {
	return principalPaid.GreaterThanOrEqual(item.Total())
}

// AgingBucket labels how overdue an outstanding invoice is.
type AgingBucket string

const (
	AgingCurrent AgingBucket = "CURRENT"
	Aging30      AgingBucket = "1-30"
	Aging60      AgingBucket = "31-60"
	Aging90      AgingBucket = "61-90"
	Aging120     AgingBucket = "91-120"
	AgingOver120 AgingBucket = "OVER_120"
)

// BucketFor assigns an invoice date to an aging bucket as of a given day.
func BucketFor(invoiceDate, asOf time.Time) AgingBucket {
	days := int(asOf.Sub(invoiceDate).Hours() / 24)
	switch {
	case days <= 0:
		return AgingCurrent
	case days <= 30:
		return Aging30
	case days <= 60:
		return Aging60
	case days <= 90:
		return Aging90
	case days <= 120:
		return Aging120
	default:
		return AgingOver120
	}
}

// AgingLine is one invoice slotted into a bucket.
type AgingLine struct {
	InvoiceID     int64
	InvoiceNumber string
	MemberID      *int64
	InvoiceDate   time.Time
	Outstanding   decimal.Decimal
	Bucket        AgingBucket
}

// AgingReport groups outstanding receivables by bucket.
type AgingReport struct {
	AsOf   time.Time
	Lines  []AgingLine
	Totals map[AgingBucket]decimal.Decimal
}

// BuildAgingReport slots every outstanding invoice into its bucket.
func BuildAgingReport(asOf time.Time, open []Invoice) AgingReport {
	report := AgingReport{AsOf: asOf, Totals: map[AgingBucket]decimal.Decimal{}}
	for _, inv := range open {
		if !inv.OutstandingAmount.IsPositive() {
			continue
		}
		bucket := BucketFor(inv.InvoiceDate, asOf)
		report.Lines = append(report.Lines, AgingLine{
			InvoiceID:     inv.ID,
			InvoiceNumber: inv.InvoiceNumber,
			MemberID:      inv.MemberID,
			InvoiceDate:   inv.InvoiceDate,
			Outstanding:   inv.OutstandingAmount,
			Bucket:        bucket,
		})
		report.Totals[bucket] = report.Totals[bucket].Add(inv.OutstandingAmount)
	}
	return report
}
