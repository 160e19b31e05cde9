package loans

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/ledger"
)

// Repository persists member loans and repayment schedules.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes operations available within a loan transaction.
type TxRepository interface {
	Ledger() ledger.TxRepository
	GetLoanForUpdate(ctx context.Context, loanID int64) (MemberLoan, error)
	GetRepaymentsForUpdate(ctx context.Context, loanID int64, ids []int64) ([]LoanRepayment, error)
	InsertLoan(ctx context.Context, loan MemberLoan) (MemberLoan, error)
	InsertRepayments(ctx context.Context, loanID int64, rows []ScheduleRow) error
	RecordRepayment(ctx context.Context, repaymentID int64, principal, interest decimal.Decimal, paymentDate time.Time, journalRef int64) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("loans repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (r *txRepository) Ledger() ledger.TxRepository {
	return ledger.NewTxRepository(r.tx)
}

func (r *txRepository) GetLoanForUpdate(ctx context.Context, loanID int64) (MemberLoan, error) {
	var l MemberLoan
	err := r.tx.QueryRow(ctx, `SELECT id, member_id, principal, annual_rate, term_months, amortization_style, start_date, created_at, updated_at
FROM member_loans WHERE id=$1 FOR UPDATE`, loanID).
		Scan(&l.ID, &l.MemberID, &l.Principal, &l.AnnualRate, &l.TermMonths, &l.Style, &l.StartDate, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MemberLoan{}, ErrLoanNotFound
		}
		return MemberLoan{}, err
	}
	return l, nil
}

func (r *txRepository) GetRepaymentsForUpdate(ctx context.Context, loanID int64, ids []int64) ([]LoanRepayment, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, loan_id, sequence, scheduled_date, scheduled_principal, scheduled_interest,
actual_principal, actual_interest, payment_date, journal_ref, created_at, updated_at
FROM loan_repayments WHERE loan_id=$1 AND id = ANY($2) ORDER BY sequence FOR UPDATE`, loanID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRepayments(rows)
}

func (r *txRepository) InsertLoan(ctx context.Context, loan MemberLoan) (MemberLoan, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO member_loans (member_id, principal, annual_rate, term_months, amortization_style, start_date)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at, updated_at`,
		loan.MemberID, loan.Principal, loan.AnnualRate, loan.TermMonths, loan.Style, loan.StartDate)
	if err := row.Scan(&loan.ID, &loan.CreatedAt, &loan.UpdatedAt); err != nil {
		return MemberLoan{}, err
	}
	return loan, nil
}

func (r *txRepository) InsertRepayments(ctx context.Context, loanID int64, rows []ScheduleRow) error {
	for _, row := range rows {
		_, err := r.tx.Exec(ctx, `INSERT INTO loan_repayments (loan_id, sequence, scheduled_date, scheduled_principal, scheduled_interest)
VALUES ($1,$2,$3,$4,$5)`, loanID, row.Sequence, row.DueDate, row.Principal, row.Interest)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) RecordRepayment(ctx context.Context, repaymentID int64, principal, interest decimal.Decimal, paymentDate time.Time, journalRef int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE loan_repayments
SET actual_principal=$2, actual_interest=$3, payment_date=$4, journal_ref=$5, updated_at=NOW()
WHERE id=$1`, repaymentID, principal, interest, paymentDate, journalRef)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrRepaymentNotFound
	}
	return nil
}

// GetLoan loads one loan with its schedule.
func (r *Repository) GetLoan(ctx context.Context, loanID int64) (MemberLoan, []LoanRepayment, error) {
	var l MemberLoan
	err := r.pool.QueryRow(ctx, `SELECT id, member_id, principal, annual_rate, term_months, amortization_style, start_date, created_at, updated_at
FROM member_loans WHERE id=$1`, loanID).
		Scan(&l.ID, &l.MemberID, &l.Principal, &l.AnnualRate, &l.TermMonths, &l.Style, &l.StartDate, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MemberLoan{}, nil, ErrLoanNotFound
		}
		return MemberLoan{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, loan_id, sequence, scheduled_date, scheduled_principal, scheduled_interest,
actual_principal, actual_interest, payment_date, journal_ref, created_at, updated_at
FROM loan_repayments WHERE loan_id=$1 ORDER BY sequence`, loanID)
	if err != nil {
		return MemberLoan{}, nil, err
	}
	defer rows.Close()
	schedule, err := scanRepayments(rows)
	if err != nil {
		return MemberLoan{}, nil, err
	}
	return l, schedule, nil
}

// ListLoansByMember returns a member's loans.
func (r *Repository) ListLoansByMember(ctx context.Context, memberID int64) ([]MemberLoan, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, member_id, principal, annual_rate, term_months, amortization_style, start_date, created_at, updated_at
FROM member_loans WHERE member_id=$1 ORDER BY id`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MemberLoan
	for rows.Next() {
		var l MemberLoan
		if err := rows.Scan(&l.ID, &l.MemberID, &l.Principal, &l.AnnualRate, &l.TermMonths, &l.Style, &l.StartDate, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanRepayments(rows pgx.Rows) ([]LoanRepayment, error) {
	var out []LoanRepayment
	for rows.Next() {
		var rep LoanRepayment
		if err := rows.Scan(&rep.ID, &rep.LoanID, &rep.Sequence, &rep.ScheduledDate, &rep.ScheduledPrincipal, &rep.ScheduledInterest,
			&rep.ActualPrincipal, &rep.ActualInterest, &rep.PaymentDate, &rep.JournalRef, &rep.CreatedAt, &rep.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}
