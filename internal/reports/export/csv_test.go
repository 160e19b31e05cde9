package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coopledger/coopledger/internal/ledger"
	"github.com/coopledger/coopledger/internal/reports"
)

func TestWriteGeneralLedgerCSV(t *testing.T) {
	report := reports.BuildGeneralLedger(
		time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC),
		[]reports.AccountActivity{
			{
				AccountID:    1,
				AccountName:  "Cash",
				CategoryName: "Current Assets",
				RootType:     ledger.RootTypeAssets,
				DebitTotal:   decimal.RequireFromString("12500.5"),
				CreditTotal:  decimal.RequireFromString("200"),
			},
		},
	)

	var buf bytes.Buffer
	require.NoError(t, WriteGeneralLedgerCSV(&buf, report))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "Account,Category,Root Type,Debit,Credit", lines[0])
	require.Contains(t, lines[1], "Cash")
	require.Contains(t, lines[1], "12,500.50")
	require.Contains(t, lines[2], "TOTAL")
}
