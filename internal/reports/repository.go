package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads journal activity and balances for report building. It
// never writes; each query runs outside any wrapping transaction, so a
// report built during concurrent posting may observe a torn snapshot.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// AccountActivity sums debits and credits per account within the window.
func (r *Repository) AccountActivity(ctx context.Context, from, to time.Time) ([]AccountActivity, error) {
	rows, err := r.pool.Query(ctx, `SELECT a.id, a.name, c.name, c.root_type,
COALESCE(SUM(ji.debit), 0), COALESCE(SUM(ji.credit), 0)
FROM journal_items ji
JOIN journal_entries je ON je.id = ji.entry_id
JOIN accounts a ON a.id = ji.account_id
JOIN account_categories c ON c.id = a.category_id
WHERE je.entry_date >= $1 AND je.entry_date <= $2
GROUP BY a.id, a.name, c.name, c.root_type
ORDER BY c.root_type, a.name`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountActivity
	for rows.Next() {
		var a AccountActivity
		if err := rows.Scan(&a.AccountID, &a.AccountName, &a.CategoryName, &a.RootType, &a.DebitTotal, &a.CreditTotal); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// BalanceRows returns, per balance-sheet account, the live running balance
// and the net signed activity posted after asOf. The sign convention mirrors
// the posting rules: debit-increasing for assets, credit-increasing for the
// rest, with contra assets on the credit side.
func (r *Repository) BalanceRows(ctx context.Context, asOf time.Time) ([]BalanceRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT a.id, a.name, c.root_type, a.running_balance,
COALESCE((SELECT SUM(CASE WHEN c.root_type IN ('ASSETS','EXPENSE')
		THEN ji.debit - ji.credit ELSE ji.credit - ji.debit END)
	FROM journal_items ji
	JOIN journal_entries je ON je.id = ji.entry_id
	WHERE ji.account_id = a.id AND je.entry_date > $1), 0)
FROM accounts a
JOIN account_categories c ON c.id = a.category_id
WHERE a.is_active AND c.root_type IN ('ASSETS','LIABILITY','EQUITY','CONTRA_ASSETS')
ORDER BY c.root_type, a.name`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BalanceRow
	for rows.Next() {
		var b BalanceRow
		if err := rows.Scan(&b.AccountID, &b.AccountName, &b.RootType, &b.RunningBalance, &b.ActivityAfter); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// FlowRows returns signed Revenue/Expense activity strictly within a range.
func (r *Repository) FlowRows(ctx context.Context, from, to time.Time) ([]FlowRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT a.id, a.name, c.root_type,
COALESCE(SUM(CASE WHEN c.root_type = 'EXPENSE'
	THEN ji.debit - ji.credit ELSE ji.credit - ji.debit END), 0)
FROM journal_items ji
JOIN journal_entries je ON je.id = ji.entry_id
JOIN accounts a ON a.id = ji.account_id
JOIN account_categories c ON c.id = a.category_id
WHERE c.root_type IN ('REVENUE','EXPENSE')
AND je.entry_date >= $1 AND je.entry_date <= $2
GROUP BY a.id, a.name, c.root_type
ORDER BY c.root_type, a.name`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FlowRow
	for rows.Next() {
		var f FlowRow
		if err := rows.Scan(&f.AccountID, &f.AccountName, &f.RootType, &f.Activity); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
