// Package vault custodies settlement-token collateral. It is the single
// holder of the ledger's settle capability: realized PnL only becomes
// withdrawable collateral by passing through here. The insurance fund is
// an ordinary vault account with a reserved name.
package vault

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/ledger"
)

// InsuranceFundAccount is the reserved account that backs bad debt and
// collects the insurance share of protocol fees.
const InsuranceFundAccount = "insurance_fund"

var (
	ErrNonPositiveAmount = errors.New("vault: amount must be positive")

	// ErrNotEnoughFreeCollateral is returned when a withdrawal exceeds
	// what the margin engine allows the trader to take out.
	ErrNotEnoughFreeCollateral = errors.New("vault: withdrawal exceeds free collateral")
)

// MarginChecker reports how much collateral a trader may withdraw.
// Bound after construction because the margin calculator itself needs
// the vault for collateral lookups.
type MarginChecker interface {
	FreeCollateral(trader string) (decimal.Decimal, error)
}

// Vault tracks per-account settlement-token balances. It performs no
// locking of its own; the clearing service serializes all access.
type Vault struct {
	balances map[string]decimal.Decimal
	settle   ledger.SettleFunc
	checker  MarginChecker
	decimals int32
}

// New claims the ledger's settle capability. Fails if something else
// already holds it.
func New(l *ledger.AccountLedger, decimals int32) (*Vault, error) {
	settle, err := l.GrantSettle()
	if err != nil {
		return nil, err
	}
	return &Vault{
		balances: make(map[string]decimal.Decimal),
		settle:   settle,
		decimals: decimals,
	}, nil
}

// BindChecker attaches the margin engine used to gate withdrawals.
func (v *Vault) BindChecker(c MarginChecker) { v.checker = c }

// CollateralOf returns the trader's custodied balance. Satisfies the
// margin engine's collateral lookup.
func (v *Vault) CollateralOf(trader string) decimal.Decimal {
	return v.balances[trader]
}

// TotalCollateral sums every account, insurance fund included.
func (v *Vault) TotalCollateral() decimal.Decimal {
	total := decimal.Zero
	for _, b := range v.balances {
		total = total.Add(b)
	}
	return total
}

// Deposit credits collateral, normalized to settlement precision.
func (v *Vault) Deposit(trader string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	v.credit(trader, amount.Round(v.decimals))
	return nil
}

// Withdraw settles any realized PnL into collateral first, then releases
// funds only up to the trader's free collateral.
func (v *Vault) Withdraw(trader string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	amount = amount.Round(v.decimals)
	v.SettlePnl(trader)
	free, err := v.checker.FreeCollateral(trader)
	if err != nil {
		return err
	}
	if amount.GreaterThan(free) {
		return ErrNotEnoughFreeCollateral
	}
	v.credit(trader, amount.Neg())
	return nil
}

// SettlePnl pulls the trader's owed realized PnL out of the ledger and
// into custodied collateral. Returns the settled amount, which may be
// negative.
func (v *Vault) SettlePnl(trader string) decimal.Decimal {
	settled := v.settle(trader)
	if !settled.IsZero() {
		v.credit(trader, settled)
	}
	return settled
}

// CoverBadDebt draws on the insurance fund when an account's collateral
// has gone negative after settlement, up to what the fund holds.
// Returns the covered amount.
func (v *Vault) CoverBadDebt(trader string) decimal.Decimal {
	bal := v.balances[trader]
	if !bal.IsNegative() {
		return decimal.Zero
	}
	fund := v.balances[InsuranceFundAccount]
	covered := decimal.Min(bal.Neg(), decimal.Max(fund, decimal.Zero))
	if covered.IsZero() {
		return decimal.Zero
	}
	v.credit(InsuranceFundAccount, covered.Neg())
	v.credit(trader, covered)
	return covered
}

func (v *Vault) credit(trader string, delta decimal.Decimal) {
	next := v.balances[trader].Add(delta)
	if next.IsZero() {
		delete(v.balances, trader)
		return
	}
	v.balances[trader] = next
}
