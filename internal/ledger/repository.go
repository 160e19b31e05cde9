package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository persists ledger entities.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes operations available within a posting transaction.
type TxRepository interface {
	GetAccountRootTypes(ctx context.Context, accountIDs []int64) (map[int64]RootType, error)
	InsertJournalEntry(ctx context.Context, in PostingInput) (JournalEntry, error)
	InsertJournalItems(ctx context.Context, entryID int64, items []PostingItemInput) error
	ApplyAccountDelta(ctx context.Context, accountID int64, delta decimal.Decimal) error
	LinkSource(ctx context.Context, module string, ref uuid.UUID, entryID int64) error
	GetEntryWithItems(ctx context.Context, entryID int64) (JournalEntry, []JournalItem, error)
	MarkReversed(ctx context.Context, entryID, reversalID int64) error
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an existing transaction so sub-ledger modules can
// post journal entries atomically with their own writes.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes fn within a repeatable-read transaction. The whole
// posting either commits or fully aborts.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
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

func (r *txRepository) GetAccountRootTypes(ctx context.Context, accountIDs []int64) (map[int64]RootType, error) {
	rows, err := r.tx.Query(ctx, `SELECT a.id, c.root_type FROM accounts a
JOIN account_categories c ON c.id = a.category_id
WHERE a.id = ANY($1) AND a.is_active`, accountIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	types := make(map[int64]RootType, len(accountIDs))
	for rows.Next() {
		var id int64
		var rt RootType
		if err := rows.Scan(&id, &rt); err != nil {
			return nil, err
		}
		types[id] = rt
	}
	return types, rows.Err()
}

func (r *txRepository) InsertJournalEntry(ctx context.Context, in PostingInput) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (entry_date, journal_type, reference_name, reference_type, member_id, notes, source_ref, posted_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id, created_at, updated_at`,
		in.EntryDate, in.JournalType, in.ReferenceName, in.ReferenceType, in.MemberID, in.Notes, nullUUID(in.SourceRef), nullInt(in.PostedBy))
	entry := JournalEntry{
		EntryDate:     in.EntryDate,
		JournalType:   in.JournalType,
		ReferenceName: in.ReferenceName,
		ReferenceType: in.ReferenceType,
		MemberID:      in.MemberID,
		Notes:         in.Notes,
		SourceRef:     in.SourceRef,
		PostedBy:      in.PostedBy,
	}
	if err := row.Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertJournalItems(ctx context.Context, entryID int64, items []PostingItemInput) error {
	for _, item := range items {
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_items (entry_id, account_id, debit, credit)
VALUES ($1,$2,$3,$4)`, entryID, item.AccountID, item.Debit, item.Credit); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) ApplyAccountDelta(ctx context.Context, accountID int64, delta decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET running_balance = running_balance + $2, updated_at = NOW()
WHERE id = $1 AND is_active`, accountID, delta)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) LinkSource(ctx context.Context, module string, ref uuid.UUID, entryID int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO source_links (module, ref_id, entry_id) VALUES ($1,$2,$3)`, module, ref, entryID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrSourceAlreadyLinked
		}
		return err
	}
	return nil
}

func (r *txRepository) GetEntryWithItems(ctx context.Context, entryID int64) (JournalEntry, []JournalItem, error) {
	return scanEntryWithItems(ctx, r.tx, entryID)
}

func (r *txRepository) MarkReversed(ctx context.Context, entryID, reversalID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET reversed_by=$2, updated_at=NOW() WHERE id=$1 AND reversed_by IS NULL`, entryID, reversalID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAlreadyReversed
	}
	return nil
}

// querier is satisfied by both pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanEntryWithItems(ctx context.Context, q querier, entryID int64) (JournalEntry, []JournalItem, error) {
	var entry JournalEntry
	err := q.QueryRow(ctx, `SELECT id, entry_date, journal_type, reference_name, reference_type, member_id, notes, COALESCE(source_ref, '00000000-0000-0000-0000-000000000000'::uuid), COALESCE(posted_by, 0), reversed_by, created_at, updated_at
FROM journal_entries WHERE id=$1`, entryID).
		Scan(&entry.ID, &entry.EntryDate, &entry.JournalType, &entry.ReferenceName, &entry.ReferenceType, &entry.MemberID, &entry.Notes, &entry.SourceRef, &entry.PostedBy, &entry.ReversedBy, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, nil, ErrEntryNotFound
		}
		return JournalEntry{}, nil, err
	}
	rows, err := q.Query(ctx, `SELECT id, entry_id, account_id, debit, credit, created_at
FROM journal_items WHERE entry_id=$1 ORDER BY id ASC`, entryID)
	if err != nil {
		return JournalEntry{}, nil, err
	}
	defer rows.Close()
	var items []JournalItem
	for rows.Next() {
		var item JournalItem
		if err := rows.Scan(&item.ID, &item.EntryID, &item.AccountID, &item.Debit, &item.Credit, &item.CreatedAt); err != nil {
			return JournalEntry{}, nil, err
		}
		items = append(items, item)
	}
	return entry, items, rows.Err()
}

// GetEntry loads an entry with its items outside a transaction.
func (r *Repository) GetEntry(ctx context.Context, entryID int64) (JournalEntry, []JournalItem, error) {
	return scanEntryWithItems(ctx, r.pool, entryID)
}

// ListEntries returns journal entries, newest first.
func (r *Repository) ListEntries(ctx context.Context, limit int) ([]JournalEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, entry_date, journal_type, reference_name, reference_type, member_id, notes, COALESCE(source_ref, '00000000-0000-0000-0000-000000000000'::uuid), COALESCE(posted_by, 0), reversed_by, created_at, updated_at
FROM journal_entries ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.ID, &e.EntryDate, &e.JournalType, &e.ReferenceName, &e.ReferenceType, &e.MemberID, &e.Notes, &e.SourceRef, &e.PostedBy, &e.ReversedBy, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListAccounts retrieves the chart of accounts joined to categories.
func (r *Repository) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT a.id, a.name, a.category_id, c.root_type, a.opening_balance, a.running_balance, a.is_active, a.created_at, a.updated_at
FROM accounts a JOIN account_categories c ON c.id = a.category_id ORDER BY a.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Name, &a.CategoryID, &a.RootType, &a.OpeningBalance, &a.RunningBalance, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}

func nullUUID(val uuid.UUID) any {
	if val == uuid.Nil {
		return nil
	}
	return val
}
