package reports

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coopledger/coopledger/internal/ledger"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestBuildGeneralLedgerTotals(t *testing.T) {
	from := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC)
	rows := []AccountActivity{
		{AccountID: 1, AccountName: "Cash", RootType: ledger.RootTypeAssets, DebitTotal: d("1500"), CreditTotal: d("200")},
		{AccountID: 2, AccountName: "Savings Payable", RootType: ledger.RootTypeLiability, DebitTotal: d("200"), CreditTotal: d("1500")},
	}
	gl := BuildGeneralLedger(from, to, rows)
	require.True(t, gl.DebitTotal.Equal(d("1700")))
	require.True(t, gl.CreditTotal.Equal(d("1700")))
}

func TestBuildBalanceSheetAsOfTodayEqualsLiveBalances(t *testing.T) {
	// No activity after the as-of date: reconstructed balances must equal
	// the live running balances exactly.
	asOf := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := []BalanceRow{
		{AccountID: 1, AccountName: "Cash", RootType: ledger.RootTypeAssets, RunningBalance: d("5000")},
		{AccountID: 2, AccountName: "Savings Payable", RootType: ledger.RootTypeLiability, RunningBalance: d("3000")},
		{AccountID: 3, AccountName: "Share Capital", RootType: ledger.RootTypeEquity, RunningBalance: d("2000")},
	}
	bs := BuildBalanceSheet(asOf, rows)
	require.True(t, bs.TotalAssets.Equal(d("5000")))
	require.True(t, bs.TotalLiabilities.Equal(d("3000")))
	require.True(t, bs.TotalEquity.Equal(d("2000")))
	require.True(t, bs.Balanced())
}

func TestBuildBalanceSheetSubtractsPostDateActivity(t *testing.T) {
	asOf := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	rows := []BalanceRow{
		// 1200 was posted after asOf: the as-of balance is 5000-1200.
		{AccountID: 1, AccountName: "Cash", RootType: ledger.RootTypeAssets, RunningBalance: d("5000"), ActivityAfter: d("1200")},
		{AccountID: 2, AccountName: "Savings Payable", RootType: ledger.RootTypeLiability, RunningBalance: d("3000"), ActivityAfter: d("1200")},
		{AccountID: 3, AccountName: "Share Capital", RootType: ledger.RootTypeEquity, RunningBalance: d("2000")},
	}
	bs := BuildBalanceSheet(asOf, rows)
	require.True(t, bs.TotalAssets.Equal(d("3800")))
	require.True(t, bs.TotalLiabilities.Equal(d("1800")))
	require.True(t, bs.Balanced())
}

func TestBuildBalanceSheetContraAssetsInvert(t *testing.T) {
	asOf := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := []BalanceRow{
		{AccountID: 1, AccountName: "Equipment", RootType: ledger.RootTypeAssets, RunningBalance: d("10000")},
		{AccountID: 2, AccountName: "Accumulated Depreciation", RootType: ledger.RootTypeContraAssets, RunningBalance: d("2500")},
	}
	bs := BuildBalanceSheet(asOf, rows)
	require.Len(t, bs.Assets, 2, "contra assets present inside the assets section")
	require.True(t, bs.Assets[1].Balance.Equal(d("-2500")), "contra asset line shows inverted sign")
	require.True(t, bs.TotalAssets.Equal(d("7500")))
}

func TestBuildIncomeStatement(t *testing.T) {
	from := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC)
	rows := []FlowRow{
		{AccountID: 1, AccountName: "Interest Income", RootType: ledger.RootTypeRevenue, Activity: d("800")},
		{AccountID: 2, AccountName: "Service Fees", RootType: ledger.RootTypeRevenue, Activity: d("200")},
		{AccountID: 3, AccountName: "Office Supplies", RootType: ledger.RootTypeExpense, Activity: d("350")},
	}
	is := BuildIncomeStatement(from, to, rows)
	require.True(t, is.TotalRevenue.Equal(d("1000")))
	require.True(t, is.TotalExpense.Equal(d("350")))
	require.True(t, is.NetIncome.Equal(d("650")))
	require.Len(t, is.Revenue, 2)
	require.Len(t, is.Expenses, 1)
}
