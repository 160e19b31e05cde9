package loans

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// AmortizationStyle selects how a loan schedule spreads principal and
// interest across the term.
type AmortizationStyle string

const (
	// Annuity keeps the total payment constant each month.
	Annuity AmortizationStyle = "annuity"
	// StraightLine keeps the principal portion constant each month.
	StraightLine AmortizationStyle = "straightLine"
)

// Valid reports whether the style is known.
func (s AmortizationStyle) Valid() bool {
	return s == Annuity || s == StraightLine
}

// MemberLoan carries the contracted terms of a member loan.
type MemberLoan struct {
	ID         int64
	MemberID   int64
	Principal  decimal.Decimal
	AnnualRate decimal.Decimal
	TermMonths int
	Style      AmortizationStyle
	StartDate  time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// LoanRepayment is one schedule row: the scheduled split, plus the actual
// split once a repayment posting lands, with a back-reference to the
// journal entry that posted it.
type LoanRepayment struct {
	ID                 int64
	LoanID             int64
	Sequence           int
	ScheduledDate      time.Time
	ScheduledPrincipal decimal.Decimal
	ScheduledInterest  decimal.Decimal
	ActualPrincipal    *decimal.Decimal
	ActualInterest     *decimal.Decimal
	PaymentDate        *time.Time
	JournalRef         *int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Paid reports whether a repayment posting has landed on the row.
func (r LoanRepayment) Paid() bool {
	return r.JournalRef != nil
}

var (
	// ErrLoanNotFound indicates the loan row is missing.
	ErrLoanNotFound = errors.New("loans: loan not found")
	// ErrRepaymentNotFound indicates a repayment id matched no row.
	ErrRepaymentNotFound = errors.New("loans: repayment not found")
	// ErrRepaymentAlreadyPaid indicates the row already carries a posting.
	ErrRepaymentAlreadyPaid = errors.New("loans: repayment already paid")
	// ErrNoRepayments indicates a posting carried no repayment rows.
	ErrNoRepayments = errors.New("loans: at least one repayment required")
	// ErrInvalidTerms indicates unusable loan terms.
	ErrInvalidTerms = errors.New("loans: invalid loan terms")
)
