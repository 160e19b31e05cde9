package funds

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coopledger/coopledger/internal/ledger"
)

// Repository persists member funds and fund transactions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes operations available within a fund posting
// transaction. Ledger gives access to journal posting on the same
// underlying transaction.
type TxRepository interface {
	Ledger() ledger.TxRepository
	GetFundForUpdate(ctx context.Context, fundID int64) (MemberFund, error)
	EntryExists(ctx context.Context, entryID int64) (bool, error)
	InsertFundTransaction(ctx context.Context, txn FundTransaction) (FundTransaction, error)
	UpdateFundBalances(ctx context.Context, fund MemberFund) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("funds repository not initialised")
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

func (r *txRepository) GetFundForUpdate(ctx context.Context, fundID int64) (MemberFund, error) {
	var f MemberFund
	err := r.tx.QueryRow(ctx, `SELECT id, member_id, savings_balance, share_capital_balance, created_at, updated_at
FROM member_funds WHERE id=$1 FOR UPDATE`, fundID).
		Scan(&f.ID, &f.MemberID, &f.SavingsBalance, &f.ShareCapBalance, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MemberFund{}, ErrFundNotFound
		}
		return MemberFund{}, err
	}
	return f, nil
}

func (r *txRepository) EntryExists(ctx context.Context, entryID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM journal_entries WHERE id=$1)`, entryID).Scan(&exists)
	return exists, err
}

func (r *txRepository) InsertFundTransaction(ctx context.Context, txn FundTransaction) (FundTransaction, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO fund_transactions (fund_id, transaction_type, amount, posted_balance, new_balance, ledger_id)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at`,
		txn.FundID, txn.Type, txn.Amount, txn.PostedBalance, txn.NewBalance, txn.LedgerID)
	if err := row.Scan(&txn.ID, &txn.CreatedAt); err != nil {
		return FundTransaction{}, err
	}
	return txn, nil
}

func (r *txRepository) UpdateFundBalances(ctx context.Context, fund MemberFund) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE member_funds SET savings_balance=$2, share_capital_balance=$3, updated_at=NOW() WHERE id=$1`,
		fund.ID, fund.SavingsBalance, fund.ShareCapBalance)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrFundNotFound
	}
	return nil
}

// GetFund loads a member fund by id.
func (r *Repository) GetFund(ctx context.Context, fundID int64) (MemberFund, error) {
	var f MemberFund
	err := r.pool.QueryRow(ctx, `SELECT id, member_id, savings_balance, share_capital_balance, created_at, updated_at
FROM member_funds WHERE id=$1`, fundID).
		Scan(&f.ID, &f.MemberID, &f.SavingsBalance, &f.ShareCapBalance, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MemberFund{}, ErrFundNotFound
		}
		return MemberFund{}, err
	}
	return f, nil
}

// GetFundByMember loads a member fund by member id.
func (r *Repository) GetFundByMember(ctx context.Context, memberID int64) (MemberFund, error) {
	var f MemberFund
	err := r.pool.QueryRow(ctx, `SELECT id, member_id, savings_balance, share_capital_balance, created_at, updated_at
FROM member_funds WHERE member_id=$1`, memberID).
		Scan(&f.ID, &f.MemberID, &f.SavingsBalance, &f.ShareCapBalance, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MemberFund{}, ErrFundNotFound
		}
		return MemberFund{}, err
	}
	return f, nil
}

// ListTransactions returns fund transactions, newest first.
func (r *Repository) ListTransactions(ctx context.Context, fundID int64, limit int) ([]FundTransaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, fund_id, transaction_type, amount, posted_balance, new_balance, ledger_id, created_at
FROM fund_transactions WHERE fund_id=$1 ORDER BY id DESC LIMIT $2`, fundID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FundTransaction
	for rows.Next() {
		var t FundTransaction
		if err := rows.Scan(&t.ID, &t.FundID, &t.Type, &t.Amount, &t.PostedBalance, &t.NewBalance, &t.LedgerID, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
