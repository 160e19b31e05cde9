package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RootType enumerates chart-of-accounts categories. It governs the
// debit/credit sign convention for balance propagation.
type RootType string

const (
	RootTypeAssets       RootType = "ASSETS"
	RootTypeLiability    RootType = "LIABILITY"
	RootTypeEquity       RootType = "EQUITY"
	RootTypeRevenue      RootType = "REVENUE"
	RootTypeExpense      RootType = "EXPENSE"
	RootTypeContraAssets RootType = "CONTRA_ASSETS"
)

// Valid reports whether the root type is a known category.
func (rt RootType) Valid() bool {
	switch rt {
	case RootTypeAssets, RootTypeLiability, RootTypeEquity, RootTypeRevenue, RootTypeExpense, RootTypeContraAssets:
		return true
	}
	return false
}

// JournalType enumerates the journals an entry can be posted to.
type JournalType string

const (
	JournalTypeCashReceipts     JournalType = "CASH_RECEIPTS"
	JournalTypeCashDisbursement JournalType = "CASH_DISBURSEMENT"
	JournalTypeGeneral          JournalType = "GENERAL_JOURNAL"
)

// Valid reports whether the journal type is known.
func (jt JournalType) Valid() bool {
	switch jt {
	case JournalTypeCashReceipts, JournalTypeCashDisbursement, JournalTypeGeneral:
		return true
	}
	return false
}

// ReferenceType tags the business event behind an entry.
type ReferenceType string

const (
	ReferenceSavingsDeposit    ReferenceType = "SAVINGS_DEPOSIT"
	ReferenceSavingsWithdrawal ReferenceType = "SAVINGS_WITHDRAWAL"
	ReferenceShareCapDeposit   ReferenceType = "SHARE_CAPITAL_DEPOSIT"
	ReferenceShareCapWithdraw  ReferenceType = "SHARE_CAPITAL_WITHDRAWAL"
	ReferenceInvoicePayment    ReferenceType = "INVOICE_PAYMENT"
	ReferenceLoanDisbursement  ReferenceType = "LOAN_DISBURSEMENT"
	ReferenceLoanRepayment     ReferenceType = "LOAN_REPAYMENT"
	ReferenceManualEntry       ReferenceType = "MANUAL_ENTRY"
	ReferenceReversal          ReferenceType = "REVERSAL"
)

// Valid reports whether the reference type is known.
func (rt ReferenceType) Valid() bool {
	switch rt {
	case ReferenceSavingsDeposit, ReferenceSavingsWithdrawal, ReferenceShareCapDeposit,
		ReferenceShareCapWithdraw, ReferenceInvoicePayment, ReferenceLoanDisbursement,
		ReferenceLoanRepayment, ReferenceManualEntry, ReferenceReversal:
		return true
	}
	return false
}

// AccountCategory models a chart-of-accounts root.
type AccountCategory struct {
	ID        int64
	Name      string
	RootType  RootType
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Account models a concrete chart-of-accounts node. RunningBalance must
// equal OpeningBalance plus the signed sum of all posted items referencing
// the account, net of reversals.
type Account struct {
	ID             int64
	Name           string
	CategoryID     int64
	RootType       RootType
	OpeningBalance decimal.Decimal
	RunningBalance decimal.Decimal
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// JournalEntry captures posting metadata and owns two or more items.
type JournalEntry struct {
	ID            int64
	EntryDate     time.Time
	JournalType   JournalType
	ReferenceName string
	ReferenceType ReferenceType
	MemberID      *int64
	Notes         string
	SourceRef     uuid.UUID
	PostedBy      int64
	ReversedBy    *int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Items         []JournalItem
}

// JournalItem stores a debit or credit amount for an account.
type JournalItem struct {
	ID        int64
	EntryID   int64
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	CreatedAt time.Time
}

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = errors.New("ledger: journal items must balance")
	// ErrTooFewItems indicates less than two items.
	ErrTooFewItems = errors.New("ledger: journal requires at least two items")
	// ErrEntryNotFound indicates missing entry.
	ErrEntryNotFound = errors.New("ledger: journal entry not found")
	// ErrAccountNotFound indicates a missing or inactive account.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrSourceAlreadyLinked indicates idempotency conflict.
	ErrSourceAlreadyLinked = errors.New("ledger: source already linked")
	// ErrAlreadyReversed indicates the entry has a reversal posted.
	ErrAlreadyReversed = errors.New("ledger: entry already reversed")
)
