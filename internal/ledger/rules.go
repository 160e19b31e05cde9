package ledger

import "github.com/shopspring/decimal"

// DebitIncreasing reports whether a debit raises the balance for accounts
// of this root type. Assets and Expense grow on debit; Liability, Equity
// and Revenue grow on credit. ContraAssets inverts the Assets convention.
func DebitIncreasing(rt RootType) bool {
	switch rt {
	case RootTypeAssets, RootTypeExpense:
		return true
	case RootTypeLiability, RootTypeEquity, RootTypeRevenue, RootTypeContraAssets:
		return false
	}
	return false
}

// SignedDelta maps one journal item to the signed change it applies to the
// running balance of an account with the given root type.
func SignedDelta(rt RootType, debit, credit decimal.Decimal) decimal.Decimal {
	if DebitIncreasing(rt) {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}

// Anomalous reports whether an item carries both a debit and a credit.
// Such items are arithmetically valid and accepted, but flagged as
// data-entry anomalies.
func Anomalous(debit, credit decimal.Decimal) bool {
	return debit.IsPositive() && credit.IsPositive()
}
