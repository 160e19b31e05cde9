package funds

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType enumerates member fund movements.
type TransactionType string

const (
	SavingsDeposit    TransactionType = "SAVINGS_DEPOSIT"
	SavingsWithdrawal TransactionType = "SAVINGS_WITHDRAWAL"
	ShareCapDeposit   TransactionType = "SHARE_CAPITAL_DEPOSIT"
	ShareCapWithdraw  TransactionType = "SHARE_CAPITAL_WITHDRAWAL"
)

// MemberFund tracks a member's savings and share capital balances.
type MemberFund struct {
	ID              int64
	MemberID        int64
	SavingsBalance  decimal.Decimal
	ShareCapBalance decimal.Decimal
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// FundTransaction records one fund movement, optionally linked to the
// journal entry that posted it.
type FundTransaction struct {
	ID            int64
	FundID        int64
	Type          TransactionType
	Amount        decimal.Decimal
	PostedBalance decimal.Decimal
	NewBalance    decimal.Decimal
	LedgerID      *int64
	CreatedAt     time.Time
}

var (
	// ErrFundNotFound indicates the member fund row is missing.
	ErrFundNotFound = errors.New("funds: member fund not found")
	// ErrAmountNotPositive indicates a zero or negative amount.
	ErrAmountNotPositive = errors.New("funds: amount must be positive")
)

// Apply dispatches the transaction type against the fund and returns the
// mutated fund plus the balance observed before and after. The switch is
// exhaustive over TransactionType; new types fail loudly instead of
// silently skipping a balance field.
func (tt TransactionType) Apply(fund MemberFund, amount decimal.Decimal) (MemberFund, decimal.Decimal, decimal.Decimal, error) {
	if !amount.IsPositive() {
		return fund, decimal.Zero, decimal.Zero, ErrAmountNotPositive
	}
	switch tt {
	case SavingsDeposit:
		posted := fund.SavingsBalance
		fund.SavingsBalance = posted.Add(amount)
		return fund, posted, fund.SavingsBalance, nil
	case SavingsWithdrawal:
		posted := fund.SavingsBalance
		fund.SavingsBalance = posted.Sub(amount)
		return fund, posted, fund.SavingsBalance, nil
	case ShareCapDeposit:
		posted := fund.ShareCapBalance
		fund.ShareCapBalance = posted.Add(amount)
		return fund, posted, fund.ShareCapBalance, nil
	case ShareCapWithdraw:
		posted := fund.ShareCapBalance
		fund.ShareCapBalance = posted.Sub(amount)
		return fund, posted, fund.ShareCapBalance, nil
	default:
		return fund, decimal.Zero, decimal.Zero, fmt.Errorf("funds: unknown transaction type %q", tt)
	}
}

// Valid reports whether the transaction type is known.
func (tt TransactionType) Valid() bool {
	switch tt {
	case SavingsDeposit, SavingsWithdrawal, ShareCapDeposit, ShareCapWithdraw:
		return true
	}
	return false
}
