package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/coopledger/coopledger/internal/ledger"
)

// AccountActivity is one account's debit/credit totals over a window.
type AccountActivity struct {
	AccountID    int64
	AccountName  string
	CategoryName string
	RootType     ledger.RootType
	DebitTotal   decimal.Decimal
	CreditTotal  decimal.Decimal
}

// GeneralLedger groups journal activity per account within a window.
type GeneralLedger struct {
	From        time.Time
	To          time.Time
	Rows        []AccountActivity
	DebitTotal  decimal.Decimal
	CreditTotal decimal.Decimal
}

// BuildGeneralLedger totals the per-account rows.
func BuildGeneralLedger(from, to time.Time, rows []AccountActivity) GeneralLedger {
	gl := GeneralLedger{From: from, To: to, Rows: rows}
	for _, row := range rows {
		gl.DebitTotal = gl.DebitTotal.Add(row.DebitTotal)
		gl.CreditTotal = gl.CreditTotal.Add(row.CreditTotal)
	}
	return gl
}

// BalanceRow carries what a point-in-time reconstruction needs: the live
// running balance and the net signed activity posted after the as-of date.
type BalanceRow struct {
	AccountID      int64
	AccountName    string
	RootType       ledger.RootType
	RunningBalance decimal.Decimal
	ActivityAfter  decimal.Decimal
}

// BalanceSheetLine is one account at its reconstructed as-of balance.
type BalanceSheetLine struct {
	AccountID   int64
	AccountName string
	RootType    ledger.RootType
	Balance     decimal.Decimal
}

// BalanceSheet reconstructs account balances as of a date by subtracting
// later activity from the live running balance. Contra assets are presented
// inside assets with inverted sign.
type BalanceSheet struct {
	AsOf             time.Time
	Assets           []BalanceSheetLine
	Liabilities      []BalanceSheetLine
	Equity           []BalanceSheetLine
	TotalAssets      decimal.Decimal
	TotalLiabilities decimal.Decimal
	TotalEquity      decimal.Decimal
}

// Balanced reports whether assets equal liabilities plus equity.
func (bs BalanceSheet) Balanced() bool {
	return bs.TotalAssets.Equal(bs.TotalLiabilities.Add(bs.TotalEquity))
}

// BuildBalanceSheet reconstructs each account's as-of balance as
// runningBalance minus post-date activity, then slots it into its section.
func BuildBalanceSheet(asOf time.Time, rows []BalanceRow) BalanceSheet {
	bs := BalanceSheet{AsOf: asOf}
	for _, row := range rows {
		balance := row.RunningBalance.Sub(row.ActivityAfter)
		line := BalanceSheetLine{
			AccountID:   row.AccountID,
			AccountName: row.AccountName,
			RootType:    row.RootType,
			Balance:     balance,
		}
		switch row.RootType {
		case ledger.RootTypeAssets:
			bs.Assets = append(bs.Assets, line)
			bs.TotalAssets = bs.TotalAssets.Add(balance)
		case ledger.RootTypeContraAssets:
			line.Balance = balance.Neg()
			bs.Assets = append(bs.Assets, line)
			bs.TotalAssets = bs.TotalAssets.Sub(balance)
		case ledger.RootTypeLiability:
			bs.Liabilities = append(bs.Liabilities, line)
			bs.TotalLiabilities = bs.TotalLiabilities.Add(balance)
		case ledger.RootTypeEquity:
			bs.Equity = append(bs.Equity, line)
			bs.TotalEquity = bs.TotalEquity.Add(balance)
		}
	}
	return bs
}

// FlowRow is one Revenue/Expense account's signed activity within a range.
type FlowRow struct {
	AccountID   int64
	AccountName string
	RootType    ledger.RootType
	Activity    decimal.Decimal
}

// IncomeStatement sums Revenue and Expense flows strictly within a range;
// flow accounts reset each period so no running-balance subtraction applies.
type IncomeStatement struct {
	From         time.Time
	To           time.Time
	Revenue      []FlowRow
	Expenses     []FlowRow
	TotalRevenue decimal.Decimal
	TotalExpense decimal.Decimal
	NetIncome    decimal.Decimal
}

// BuildIncomeStatement splits flow rows into revenue and expense sections.
func BuildIncomeStatement(from, to time.Time, rows []FlowRow) IncomeStatement {
	is := IncomeStatement{From: from, To: to}
	for _, row := range rows {
		switch row.RootType {
		case ledger.RootTypeRevenue:
			is.Revenue = append(is.Revenue, row)
			is.TotalRevenue = is.TotalRevenue.Add(row.Activity)
		case ledger.RootTypeExpense:
			is.Expenses = append(is.Expenses, row)
			is.TotalExpense = is.TotalExpense.Add(row.Activity)
		}
	}
	is.NetIncome = is.TotalRevenue.Sub(is.TotalExpense)
	return is
}
