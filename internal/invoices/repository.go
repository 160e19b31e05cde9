package invoices

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/ledger"
)

// Repository persists invoices, items, and payments.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes operations available within a payment transaction.
type TxRepository interface {
	Ledger() ledger.TxRepository
	GetInvoiceForUpdate(ctx context.Context, invoiceID int64) (Invoice, error)
	GetItems(ctx context.Context, invoiceID int64) ([]InvoiceItem, error)
	InsertItemPayment(ctx context.Context, payment ItemPayment) (ItemPayment, error)
	SumPrincipalPaid(ctx context.Context, itemID int64) (decimal.Decimal, error)
	SetItemTotallyPaid(ctx context.Context, itemID int64) error
	UpdateOutstanding(ctx context.Context, invoiceID int64, outstanding decimal.Decimal) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("invoices repository not initialised")
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

func (r *txRepository) GetInvoiceForUpdate(ctx context.Context, invoiceID int64) (Invoice, error) {
	var inv Invoice
	err := r.tx.QueryRow(ctx, `SELECT id, member_id, invoice_number, invoice_date, total_amount, outstanding_amount, created_at, updated_at
FROM invoices WHERE id=$1 FOR UPDATE`, invoiceID).
		Scan(&inv.ID, &inv.MemberID, &inv.InvoiceNumber, &inv.InvoiceDate, &inv.TotalAmount, &inv.OutstandingAmount, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrInvoiceNotFound
		}
		return Invoice{}, err
	}
	return inv, nil
}

func (r *txRepository) GetItems(ctx context.Context, invoiceID int64) ([]InvoiceItem, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, invoice_id, description, quantity, trade_price, principal_price, is_totally_paid, created_at, updated_at
FROM invoice_items WHERE invoice_id=$1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

func (r *txRepository) InsertItemPayment(ctx context.Context, payment ItemPayment) (ItemPayment, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO invoice_item_payments (invoice_item_id, principal, interest, ledger_id, payment_date)
VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at`,
		payment.InvoiceItemID, payment.Principal, payment.Interest, payment.LedgerID, payment.PaymentDate)
	if err := row.Scan(&payment.ID, &payment.CreatedAt); err != nil {
		return ItemPayment{}, err
	}
	return payment, nil
}

func (r *txRepository) SumPrincipalPaid(ctx context.Context, itemID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(principal), 0) FROM invoice_item_payments WHERE invoice_item_id=$1`, itemID).Scan(&sum)
	return sum, err
}

func (r *txRepository) SetItemTotallyPaid(ctx context.Context, itemID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE invoice_items SET is_totally_paid=TRUE, updated_at=NOW() WHERE id=$1`, itemID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *txRepository) UpdateOutstanding(ctx context.Context, invoiceID int64, outstanding decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE invoices SET outstanding_amount=$2, updated_at=NOW() WHERE id=$1`, invoiceID, outstanding)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

// GetInvoice loads one invoice with its items.
func (r *Repository) GetInvoice(ctx context.Context, invoiceID int64) (Invoice, []InvoiceItem, error) {
	var inv Invoice
	err := r.pool.QueryRow(ctx, `SELECT id, member_id, invoice_number, invoice_date, total_amount, outstanding_amount, created_at, updated_at
FROM invoices WHERE id=$1`, invoiceID).
		Scan(&inv.ID, &inv.MemberID, &inv.InvoiceNumber, &inv.InvoiceDate, &inv.TotalAmount, &inv.OutstandingAmount, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, nil, ErrInvoiceNotFound
		}
		return Invoice{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, description, quantity, trade_price, principal_price, is_totally_paid, created_at, updated_at
FROM invoice_items WHERE invoice_id=$1 ORDER BY id`, invoiceID)
	if err != nil {
		return Invoice{}, nil, err
	}
	defer rows.Close()
	items, err := scanItems(rows)
	if err != nil {
		return Invoice{}, nil, err
	}
	return inv, items, nil
}

// ListOutstanding returns invoices with positive outstanding amounts dated
// on or before asOf.
func (r *Repository) ListOutstanding(ctx context.Context, asOf time.Time) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, member_id, invoice_number, invoice_date, total_amount, outstanding_amount, created_at, updated_at
FROM invoices WHERE outstanding_amount > 0 AND invoice_date <= $1 ORDER BY invoice_date, id`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(&inv.ID, &inv.MemberID, &inv.InvoiceNumber, &inv.InvoiceDate, &inv.TotalAmount, &inv.OutstandingAmount, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// ListPayments returns payments recorded against an item.
func (r *Repository) ListPayments(ctx context.Context, itemID int64) ([]ItemPayment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_item_id, principal, interest, ledger_id, payment_date, created_at
FROM invoice_item_payments WHERE invoice_item_id=$1 ORDER BY id`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ItemPayment
	for rows.Next() {
		var p ItemPayment
		if err := rows.Scan(&p.ID, &p.InvoiceItemID, &p.Principal, &p.Interest, &p.LedgerID, &p.PaymentDate, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanItems(rows pgx.Rows) ([]InvoiceItem, error) {
	var out []InvoiceItem
	for rows.Next() {
		var it InvoiceItem
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.Description, &it.Quantity, &it.TradePrice, &it.PrincipalPrice, &it.IsTotallyPaid, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
