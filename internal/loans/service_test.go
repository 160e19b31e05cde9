package loans

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coopledger/coopledger/internal/ledger"
)

type memoryLoanRepo struct {
	loans      map[int64]MemberLoan
	repayments map[int64]LoanRepayment
	nextLoanID int64
	nextRepID  int64
	failRecord bool
}

func newMemoryLoanRepo() *memoryLoanRepo {
	return &memoryLoanRepo{
		loans:      map[int64]MemberLoan{},
		repayments: map[int64]LoanRepayment{},
		nextLoanID: 1,
		nextRepID:  1,
	}
}

type memoryLoanTx struct {
	repo *memoryLoanRepo
}

func (r *memoryLoanRepo) snapshot() (map[int64]MemberLoan, map[int64]LoanRepayment) {
	loans := make(map[int64]MemberLoan, len(r.loans))
	for k, v := range r.loans {
		loans[k] = v
	}
	reps := make(map[int64]LoanRepayment, len(r.repayments))
	for k, v := range r.repayments {
		reps[k] = v
	}
	return loans, reps
}

func (r *memoryLoanRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	loans, reps := r.snapshot()
	if err := fn(ctx, &memoryLoanTx{repo: r}); err != nil {
		r.loans, r.repayments = loans, reps
		return err
	}
	return nil
}

func (r *memoryLoanRepo) GetLoan(ctx context.Context, loanID int64) (MemberLoan, []LoanRepayment, error) {
	loan, ok := r.loans[loanID]
	if !ok {
		return MemberLoan{}, nil, ErrLoanNotFound
	}
	var schedule []LoanRepayment
	for _, rep := range r.repayments {
		if rep.LoanID == loanID {
			schedule = append(schedule, rep)
		}
	}
	return loan, schedule, nil
}

func (r *memoryLoanRepo) ListLoansByMember(ctx context.Context, memberID int64) ([]MemberLoan, error) {
	var out []MemberLoan
	for _, l := range r.loans {
		if l.MemberID == memberID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (t *memoryLoanTx) Ledger() ledger.TxRepository { return nil }

func (t *memoryLoanTx) GetLoanForUpdate(ctx context.Context, loanID int64) (MemberLoan, error) {
	loan, ok := t.repo.loans[loanID]
	if !ok {
		return MemberLoan{}, ErrLoanNotFound
	}
	return loan, nil
}

func (t *memoryLoanTx) GetRepaymentsForUpdate(ctx context.Context, loanID int64, ids []int64) ([]LoanRepayment, error) {
	var out []LoanRepayment
	for _, id := range ids {
		rep, ok := t.repo.repayments[id]
		if ok && rep.LoanID == loanID {
			out = append(out, rep)
		}
	}
	return out, nil
}

func (t *memoryLoanTx) InsertLoan(ctx context.Context, loan MemberLoan) (MemberLoan, error) {
	loan.ID = t.repo.nextLoanID
	t.repo.nextLoanID++
	t.repo.loans[loan.ID] = loan
	return loan, nil
}

func (t *memoryLoanTx) InsertRepayments(ctx context.Context, loanID int64, rows []ScheduleRow) error {
	for _, row := range rows {
		rep := LoanRepayment{
			ID:                 t.repo.nextRepID,
			LoanID:             loanID,
			Sequence:           row.Sequence,
			ScheduledDate:      row.DueDate,
			ScheduledPrincipal: row.Principal,
			ScheduledInterest:  row.Interest,
		}
		t.repo.nextRepID++
		t.repo.repayments[rep.ID] = rep
	}
	return nil
}

func (t *memoryLoanTx) RecordRepayment(ctx context.Context, repaymentID int64, principal, interest decimal.Decimal, paymentDate time.Time, journalRef int64) error {
	if t.repo.failRecord {
		return ErrRepaymentNotFound
	}
	rep, ok := t.repo.repayments[repaymentID]
	if !ok {
		return ErrRepaymentNotFound
	}
	rep.ActualPrincipal = &principal
	rep.ActualInterest = &interest
	rep.PaymentDate = &paymentDate
	rep.JournalRef = &journalRef
	t.repo.repayments[repaymentID] = rep
	return nil
}

type fakePoster struct {
	posted int
	err    error
	nextID int64
}

func (p *fakePoster) PostEntryInTx(ctx context.Context, tx ledger.TxRepository, input ledger.PostingInput) (ledger.JournalEntry, error) {
	if p.err != nil {
		return ledger.JournalEntry{}, p.err
	}
	p.posted++
	p.nextID++
	return ledger.JournalEntry{ID: p.nextID}, nil
}

func repaymentJournal(amount string) ledger.PostingInput {
	d := decimal.RequireFromString(amount)
	return ledger.PostingInput{
		EntryDate:     time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC),
		JournalType:   ledger.JournalTypeCashReceipts,
		ReferenceName: "loan repayment",
		ReferenceType: ledger.ReferenceLoanRepayment,
		PostedBy:      4,
		Items: []ledger.PostingItemInput{
			{AccountID: 1, Debit: d},
			{AccountID: 2, Credit: d},
		},
	}
}

func newLoanService(repo *memoryLoanRepo, poster *fakePoster) *Service {
	return NewService(repo, poster, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func originate(t *testing.T, svc *Service) MemberLoan {
	t.Helper()
	loan, schedule, err := svc.CreateLoan(context.Background(), CreateLoanInput{
		MemberID:   7,
		Principal:  decimal.RequireFromString("12000"),
		AnnualRate: decimal.RequireFromString("0.12"),
		TermMonths: 12,
		Style:      StraightLine,
		StartDate:  time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, schedule, 12)
	return loan
}

func TestCreateLoanPersistsSchedule(t *testing.T) {
	repo := newMemoryLoanRepo()
	svc := newLoanService(repo, &fakePoster{})

	loan := originate(t, svc)
	_, schedule, err := svc.GetLoan(context.Background(), loan.ID)
	require.NoError(t, err)
	require.Len(t, schedule, 12)
	for _, rep := range schedule {
		require.False(t, rep.Paid())
	}
}

func TestCreateLoanWithDisbursementJournal(t *testing.T) {
	repo := newMemoryLoanRepo()
	poster := &fakePoster{}
	svc := newLoanService(repo, poster)

	journal := repaymentJournal("12000")
	journal.ReferenceType = ledger.ReferenceLoanDisbursement
	_, _, err := svc.CreateLoan(context.Background(), CreateLoanInput{
		MemberID:   7,
		Principal:  decimal.RequireFromString("12000"),
		AnnualRate: decimal.RequireFromString("0.12"),
		TermMonths: 12,
		Style:      Annuity,
		StartDate:  time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		Journal:    &journal,
	})
	require.NoError(t, err)
	require.Equal(t, 1, poster.posted)
}

func TestPostRepaymentStampsRows(t *testing.T) {
	repo := newMemoryLoanRepo()
	svc := newLoanService(repo, &fakePoster{})
	loan := originate(t, svc)

	journalRef, err := svc.PostRepayment(context.Background(), RepaymentInput{
		LoanID:      loan.ID,
		PaymentDate: time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC),
		Rows: []RepaymentRowInput{{
			RepaymentID: 1,
			Principal:   decimal.RequireFromString("1000"),
			Interest:    decimal.RequireFromString("120"),
		}},
		Journal: repaymentJournal("1120"),
	})
	require.NoError(t, err)
	require.NotZero(t, journalRef)

	rep := repo.repayments[1]
	require.True(t, rep.Paid())
	require.Equal(t, journalRef, *rep.JournalRef)
	require.True(t, rep.ActualPrincipal.Equal(decimal.RequireFromString("1000")))
	require.True(t, rep.ActualInterest.Equal(decimal.RequireFromString("120")))
}

func TestPostRepaymentUnknownIDFailsBeforeWrite(t *testing.T) {
	repo := newMemoryLoanRepo()
	poster := &fakePoster{}
	svc := newLoanService(repo, poster)
	loan := originate(t, svc)
	poster.posted = 0

	_, err := svc.PostRepayment(context.Background(), RepaymentInput{
		LoanID:      loan.ID,
		PaymentDate: time.Now(),
		Rows:        []RepaymentRowInput{{RepaymentID: 999, Principal: decimal.RequireFromString("1000")}},
		Journal:     repaymentJournal("1000"),
	})
	require.ErrorIs(t, err, ErrRepaymentNotFound)
	require.Zero(t, poster.posted, "journal must not post for an unknown repayment id")
	require.False(t, repo.repayments[1].Paid())
}

func TestPostRepaymentAlreadyPaidConflicts(t *testing.T) {
	repo := newMemoryLoanRepo()
	svc := newLoanService(repo, &fakePoster{})
	loan := originate(t, svc)

	post := func() error {
		_, err := svc.PostRepayment(context.Background(), RepaymentInput{
			LoanID:      loan.ID,
			PaymentDate: time.Now(),
			Rows: []RepaymentRowInput{{
				RepaymentID: 1,
				Principal:   decimal.RequireFromString("1000"),
				Interest:    decimal.RequireFromString("120"),
			}},
			Journal: repaymentJournal("1120"),
		})
		return err
	}
	require.NoError(t, post())
	require.ErrorIs(t, post(), ErrRepaymentAlreadyPaid)
}

func TestPostRepaymentUnknownLoan(t *testing.T) {
	repo := newMemoryLoanRepo()
	svc := newLoanService(repo, &fakePoster{})

	_, err := svc.PostRepayment(context.Background(), RepaymentInput{
		LoanID:      42,
		PaymentDate: time.Now(),
		Rows:        []RepaymentRowInput{{RepaymentID: 1, Principal: decimal.RequireFromString("10")}},
		Journal:     repaymentJournal("10"),
	})
	require.ErrorIs(t, err, ErrLoanNotFound)
}

func TestPostRepaymentAtomicOnRecordFailure(t *testing.T) {
	repo := newMemoryLoanRepo()
	svc := newLoanService(repo, &fakePoster{})
	loan := originate(t, svc)
	repo.failRecord = true

	_, err := svc.PostRepayment(context.Background(), RepaymentInput{
		LoanID:      loan.ID,
		PaymentDate: time.Now(),
		Rows: []RepaymentRowInput{{
			RepaymentID: 1,
			Principal:   decimal.RequireFromString("1000"),
		}},
		Journal: repaymentJournal("1000"),
	})
	require.Error(t, err)
	require.False(t, repo.repayments[1].Paid(), "failed posting must leave the schedule untouched")
}
