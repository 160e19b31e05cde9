package loans

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/ledger"
	"github.com/coopledger/coopledger/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetLoan(ctx context.Context, loanID int64) (MemberLoan, []LoanRepayment, error)
	ListLoansByMember(ctx context.Context, memberID int64) ([]MemberLoan, error)
}

// LedgerPoster posts journal entries inside a caller-owned transaction.
type LedgerPoster interface {
	PostEntryInTx(ctx context.Context, tx ledger.TxRepository, input ledger.PostingInput) (ledger.JournalEntry, error)
}

// AuditPort records loan events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates loan origination and repayment postings.
type Service struct {
	repo   RepositoryPort
	poster LedgerPoster
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the loans service.
func NewService(repo RepositoryPort, poster LedgerPoster, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, poster: poster, audit: audit, logger: logger, now: time.Now}
}

// CreateLoanInput describes a new loan to originate.
type CreateLoanInput struct {
	MemberID   int64
	Principal  decimal.Decimal
	AnnualRate decimal.Decimal
	TermMonths int
	Style      AmortizationStyle
	StartDate  time.Time
	Journal    *ledger.PostingInput
}

// CreateLoan persists the loan and its generated repayment schedule. When a
// disbursement journal is supplied it posts in the same transaction.
func (s *Service) CreateLoan(ctx context.Context, input CreateLoanInput) (MemberLoan, []ScheduleRow, error) {
	loan := MemberLoan{
		MemberID:   input.MemberID,
		Principal:  input.Principal,
		AnnualRate: input.AnnualRate,
		TermMonths: input.TermMonths,
		Style:      input.Style,
		StartDate:  input.StartDate,
	}
	schedule, err := BuildSchedule(loan)
	if err != nil {
		return MemberLoan{}, nil, err
	}
	if input.Journal != nil {
		if err := input.Journal.Validate(); err != nil {
			return MemberLoan{}, nil, err
		}
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.InsertLoan(ctx, loan)
		if err != nil {
			return err
		}
		loan = inserted
		if err := tx.InsertRepayments(ctx, loan.ID, schedule); err != nil {
			return err
		}
		if input.Journal != nil {
			if _, err := s.poster.PostEntryInTx(ctx, tx.Ledger(), *input.Journal); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return MemberLoan{}, nil, err
	}
	s.recordAudit(ctx, 0, "loan.create", loan.ID, map[string]any{
		"member_id": loan.MemberID,
		"principal": loan.Principal.String(),
		"style":     loan.Style,
	})
	return loan, schedule, nil
}

// RepaymentRowInput applies an actual split to one schedule row.
type RepaymentRowInput struct {
	RepaymentID int64
	Principal   decimal.Decimal
	Interest    decimal.Decimal
}

// RepaymentInput describes a repayment posting.
type RepaymentInput struct {
	LoanID      int64
	PaymentDate time.Time
	Rows        []RepaymentRowInput
	Journal     ledger.PostingInput
}

// PostRepayment posts the journal entry and stamps the matched repayment
// rows with actual amounts and the journal back-reference, all in one
// transaction. Unknown repayment ids reject before any mutation. Account
// balances move only through the journal posting path.
func (s *Service) PostRepayment(ctx context.Context, input RepaymentInput) (int64, error) {
	if len(input.Rows) == 0 {
		return 0, ErrNoRepayments
	}
	if err := input.Journal.Validate(); err != nil {
		return 0, err
	}
	var journalRef int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetLoanForUpdate(ctx, input.LoanID); err != nil {
			return err
		}
		ids := make([]int64, 0, len(input.Rows))
		for _, row := range input.Rows {
			ids = append(ids, row.RepaymentID)
		}
		matched, err := tx.GetRepaymentsForUpdate(ctx, input.LoanID, ids)
		if err != nil {
			return err
		}
		byID := make(map[int64]LoanRepayment, len(matched))
		for _, rep := range matched {
			byID[rep.ID] = rep
		}
		for _, row := range input.Rows {
			rep, ok := byID[row.RepaymentID]
			if !ok {
				return fmt.Errorf("%w: id %d", ErrRepaymentNotFound, row.RepaymentID)
			}
			if rep.Paid() {
				return fmt.Errorf("%w: id %d", ErrRepaymentAlreadyPaid, row.RepaymentID)
			}
		}

		entry, err := s.poster.PostEntryInTx(ctx, tx.Ledger(), input.Journal)
		if err != nil {
			return err
		}
		journalRef = entry.ID

		for _, row := range input.Rows {
			if err := tx.RecordRepayment(ctx, row.RepaymentID, row.Principal, row.Interest, input.PaymentDate, entry.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.recordAudit(ctx, input.Journal.PostedBy, "loan.repay", input.LoanID, map[string]any{
		"journal_ref": journalRef,
		"rows":        len(input.Rows),
	})
	return journalRef, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, loanID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "member_loan",
		EntityID: fmt.Sprintf("%d", loanID),
		Meta:     meta,
		At:       s.now(),
	})
}

// GetLoan loads one loan with its schedule.
func (s *Service) GetLoan(ctx context.Context, loanID int64) (MemberLoan, []LoanRepayment, error) {
	return s.repo.GetLoan(ctx, loanID)
}

// ListLoansByMember returns a member's loans.
func (s *Service) ListLoansByMember(ctx context.Context, memberID int64) ([]MemberLoan, error) {
	return s.repo.ListLoansByMember(ctx, memberID)
}
