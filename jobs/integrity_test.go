package jobs

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coopledger/coopledger/internal/shared"
)

type stubIntegrityReader struct {
	checks    []AccountCheck
	anomalies int64
}

func (r *stubIntegrityReader) AccountChecks(ctx context.Context) ([]AccountCheck, error) {
	return r.checks, nil
}

func (r *stubIntegrityReader) DualSidedItemCount(ctx context.Context) (int64, error) {
	return r.anomalies, nil
}

type captureAudit struct {
	logs []shared.AuditLog
}

func (a *captureAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestIntegrityScanFlagsDrift(t *testing.T) {
	reader := &stubIntegrityReader{
		checks: []AccountCheck{
			{AccountID: 1, AccountName: "Cash", RunningBalance: d("1500"), Recomputed: d("1500")},
			{AccountID: 2, AccountName: "Savings Payable", RunningBalance: d("500"), Recomputed: d("450")},
		},
		anomalies: 3,
	}
	audit := &captureAudit{}
	scanner := NewIntegrityScanner(reader, audit, slog.New(slog.NewTextHandler(io.Discard, nil)))

	drifted, anomalies, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, drifted, 1)
	require.Equal(t, int64(2), drifted[0].AccountID)
	require.Equal(t, int64(3), anomalies)

	require.Len(t, audit.logs, 1)
	require.Equal(t, "ledger.integrity.drift", audit.logs[0].Action)
	require.Equal(t, "2", audit.logs[0].EntityID)
}

func TestIntegrityScanCleanLedger(t *testing.T) {
	reader := &stubIntegrityReader{
		checks: []AccountCheck{
			{AccountID: 1, AccountName: "Cash", RunningBalance: d("100"), Recomputed: d("100")},
		},
	}
	audit := &captureAudit{}
	scanner := NewIntegrityScanner(reader, audit, slog.New(slog.NewTextHandler(io.Discard, nil)))

	drifted, anomalies, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	require.Empty(t, drifted)
	require.Zero(t, anomalies)
	require.Empty(t, audit.logs)
}
