package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/shared"
)

// AccountCheck is one account's recomputed position: opening balance plus
// the signed sum of all posted items, compared against the stored running
// balance.
type AccountCheck struct {
	AccountID      int64
	AccountName    string
	RunningBalance decimal.Decimal
	Recomputed     decimal.Decimal
}

// Drifted reports whether the stored balance disagrees with the recompute.
func (c AccountCheck) Drifted() bool {
	return !c.RunningBalance.Equal(c.Recomputed)
}

// IntegrityReader loads the rows the scan compares.
type IntegrityReader interface {
	AccountChecks(ctx context.Context) ([]AccountCheck, error)
	DualSidedItemCount(ctx context.Context) (int64, error)
}

// PGIntegrityReader recomputes balances straight from the journal.
type PGIntegrityReader struct {
	pool *pgxpool.Pool
}

// NewPGIntegrityReader constructs the reader.
func NewPGIntegrityReader(pool *pgxpool.Pool) *PGIntegrityReader {
	return &PGIntegrityReader{pool: pool}
}

// AccountChecks recomputes opening + signed activity per active account.
func (r *PGIntegrityReader) AccountChecks(ctx context.Context) ([]AccountCheck, error) {
	rows, err := r.pool.Query(ctx, `SELECT a.id, a.name, a.running_balance,
a.opening_balance + COALESCE((SELECT SUM(CASE WHEN c.root_type IN ('ASSETS','EXPENSE')
		THEN ji.debit - ji.credit ELSE ji.credit - ji.debit END)
	FROM journal_items ji WHERE ji.account_id = a.id), 0)
FROM accounts a
JOIN account_categories c ON c.id = a.category_id
WHERE a.is_active
ORDER BY a.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountCheck
	for rows.Next() {
		var c AccountCheck
		if err := rows.Scan(&c.AccountID, &c.AccountName, &c.RunningBalance, &c.Recomputed); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DualSidedItemCount counts journal items carrying both a debit and a
// credit, which posting accepts but flags as data-entry anomalies.
func (r *PGIntegrityReader) DualSidedItemCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM journal_items WHERE debit > 0 AND credit > 0`).Scan(&count)
	return count, err
}

// AuditPort records scan findings.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IntegrityScanner runs the nightly ledger drift scan.
type IntegrityScanner struct {
	reader IntegrityReader
	audit  AuditPort
	logger *slog.Logger
}

// NewIntegrityScanner constructs the scanner.
func NewIntegrityScanner(reader IntegrityReader, audit AuditPort, logger *slog.Logger) *IntegrityScanner {
	return &IntegrityScanner{reader: reader, audit: audit, logger: logger}
}

// Scan recomputes every active account and returns the drifted ones.
// Findings are logged and audited, never auto-corrected.
func (s *IntegrityScanner) Scan(ctx context.Context) ([]AccountCheck, int64, error) {
	checks, err := s.reader.AccountChecks(ctx)
	if err != nil {
		return nil, 0, err
	}
	var drifted []AccountCheck
	for _, check := range checks {
		if !check.Drifted() {
			continue
		}
		drifted = append(drifted, check)
		if s.logger != nil {
			s.logger.Error("running balance drift",
				slog.Int64("account_id", check.AccountID),
				slog.String("account", check.AccountName),
				slog.String("stored", check.RunningBalance.String()),
				slog.String("recomputed", check.Recomputed.String()))
		}
		if s.audit != nil {
			_ = s.audit.Record(ctx, shared.AuditLog{
				Action:   "ledger.integrity.drift",
				Entity:   "account",
				EntityID: fmt.Sprintf("%d", check.AccountID),
				Meta: map[string]any{
					"stored":     check.RunningBalance.String(),
					"recomputed": check.Recomputed.String(),
				},
				At: time.Now(),
			})
		}
	}
	anomalies, err := s.reader.DualSidedItemCount(ctx)
	if err != nil {
		return drifted, 0, err
	}
	if s.logger != nil {
		s.logger.Info("ledger integrity scan complete",
			slog.Int("accounts", len(checks)),
			slog.Int("drifted", len(drifted)),
			slog.Int64("dual_sided_items", anomalies))
	}
	return drifted, anomalies, nil
}

// HandlerFunc adapts the scan to an Asynq task handler.
func (s *IntegrityScanner) HandlerFunc() asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		_, _, err := s.Scan(ctx)
		return err
	}
}
