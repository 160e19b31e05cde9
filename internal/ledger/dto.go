package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PostingItemInput describes a journal item for a posting request.
type PostingItemInput struct {
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// PostingInput groups fields required to create a journal entry.
type PostingInput struct {
	EntryDate     time.Time
	JournalType   JournalType
	ReferenceName string
	ReferenceType ReferenceType
	MemberID      *int64
	Notes         string
	SourceRef     uuid.UUID
	PostedBy      int64
	Items         []PostingItemInput

	// IdempotencyKey is the caller-supplied retry key. Empty skips the
	// idempotency check.
	IdempotencyKey string
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	EntryID int64
	ActorID int64
	Notes   string
}

// Validate ensures posting input meets minimum criteria. It must reject
// before any write occurs; dual-sided items pass validation and are only
// flagged downstream.
func (in PostingInput) Validate() error {
	if in.EntryDate.IsZero() {
		return errors.New("ledger: entry date required")
	}
	if !in.JournalType.Valid() {
		return fmt.Errorf("ledger: unknown journal type %q", in.JournalType)
	}
	if !in.ReferenceType.Valid() {
		return fmt.Errorf("ledger: unknown reference type %q", in.ReferenceType)
	}
	if len(in.Items) < 2 {
		return ErrTooFewItems
	}
	debit := decimal.Zero
	credit := decimal.Zero
	for idx, item := range in.Items {
		if item.AccountID == 0 {
			return fmt.Errorf("ledger: item %d missing account", idx)
		}
		if item.Debit.IsNegative() || item.Credit.IsNegative() {
			return fmt.Errorf("ledger: item %d negative amount", idx)
		}
		debit = debit.Add(item.Debit)
		credit = credit.Add(item.Credit)
	}
	if !debit.Equal(credit) {
		return ErrUnbalanced
	}
	return nil
}
