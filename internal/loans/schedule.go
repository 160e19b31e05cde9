package loans

import (
	"time"

	"github.com/shopspring/decimal"
)

var twelve = decimal.NewFromInt(12)

// ScheduleRow is one generated installment before persistence.
type ScheduleRow struct {
	Sequence  int
	DueDate   time.Time
	Principal decimal.Decimal
	Interest  decimal.Decimal
}

// BuildSchedule generates the repayment schedule for a loan. Amounts are
// rounded to two decimals; the final row absorbs the rounding remainder so
// scheduled principal sums exactly to the loan principal.
func BuildSchedule(loan MemberLoan) ([]ScheduleRow, error) {
	if !loan.Principal.IsPositive() || loan.TermMonths <= 0 || loan.AnnualRate.IsNegative() {
		return nil, ErrInvalidTerms
	}
	switch loan.Style {
	case Annuity:
		return annuitySchedule(loan), nil
	case StraightLine:
		return straightLineSchedule(loan), nil
	default:
		return nil, ErrInvalidTerms
	}
}

// annuitySchedule keeps the total payment constant: P*m/(1-(1+m)^-n) per
// month, splitting each payment into interest on the declining balance and
// the principal remainder.
func annuitySchedule(loan MemberLoan) []ScheduleRow {
	n := int64(loan.TermMonths)
	monthlyRate := loan.AnnualRate.Div(twelve)
	var payment decimal.Decimal
	if monthlyRate.IsZero() {
		payment = loan.Principal.Div(decimal.NewFromInt(n)).Round(2)
	} else {
		growth := decimal.NewFromInt(1).Add(monthlyRate).Pow(decimal.NewFromInt(n))
		payment = loan.Principal.Mul(monthlyRate).Mul(growth).
			Div(growth.Sub(decimal.NewFromInt(1))).Round(2)
	}

	rows := make([]ScheduleRow, 0, loan.TermMonths)
	balance := loan.Principal
	for k := 1; k <= loan.TermMonths; k++ {
		interest := balance.Mul(monthlyRate).Round(2)
		principal := payment.Sub(interest)
		if k == loan.TermMonths || principal.GreaterThan(balance) {
			principal = balance
		}
		principal = principal.Round(2)
		rows = append(rows, ScheduleRow{
			Sequence:  k,
			DueDate:   loan.StartDate.AddDate(0, k, 0),
			Principal: principal,
			Interest:  interest,
		})
		balance = balance.Sub(principal)
	}
	return rows
}

// straightLineSchedule keeps the principal portion constant; interest is
// charged on the declining balance.
func straightLineSchedule(loan MemberLoan) []ScheduleRow {
	n := int64(loan.TermMonths)
	monthlyRate := loan.AnnualRate.Div(twelve)
	perMonth := loan.Principal.Div(decimal.NewFromInt(n)).Round(2)

	rows := make([]ScheduleRow, 0, loan.TermMonths)
	balance := loan.Principal
	for k := 1; k <= loan.TermMonths; k++ {
		interest := balance.Mul(monthlyRate).Round(2)
		principal := perMonth
		if k == loan.TermMonths {
			principal = balance
		}
		rows = append(rows, ScheduleRow{
			Sequence:  k,
			DueDate:   loan.StartDate.AddDate(0, k, 0),
			Principal: principal,
			Interest:  interest,
		})
		balance = balance.Sub(principal)
	}
	return rows
}
