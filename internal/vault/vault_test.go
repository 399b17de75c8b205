package vault

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/ledger"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// stubChecker reports a fixed free-collateral figure.
type stubChecker struct {
	free decimal.Decimal
	err  error
}

func (s stubChecker) FreeCollateral(trader string) (decimal.Decimal, error) {
	return s.free, s.err
}

func newVault(t *testing.T) (*Vault, *ledger.AccountLedger) {
	t.Helper()
	l := ledger.New("USDC")
	v, err := New(l, 6)
	if err != nil {
		t.Fatalf("vault init: %v", err)
	}
	return v, l
}

func TestNew_ClaimsSettleCapability(t *testing.T) {
	_, l := newVault(t)
	if _, err := l.GrantSettle(); err != ledger.ErrSettleAlreadyGranted {
		t.Errorf("vault must hold the only settle grant, got %v", err)
	}
}

func TestDeposit(t *testing.T) {
	v, _ := newVault(t)
	if err := v.Deposit("alice", d(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if !v.CollateralOf("alice").Equal(d(100)) {
		t.Errorf("expected 100, got %s", v.CollateralOf("alice"))
	}
}

func TestDeposit_RoundsToSettlementPrecision(t *testing.T) {
	v, _ := newVault(t)
	v.Deposit("alice", d(1.23456789))
	if !v.CollateralOf("alice").Equal(d(1.234568)) {
		t.Errorf("expected 6-decimal rounding, got %s", v.CollateralOf("alice"))
	}
}

func TestDeposit_NonPositive(t *testing.T) {
	v, _ := newVault(t)
	if err := v.Deposit("alice", decimal.Zero); err != ErrNonPositiveAmount {
		t.Errorf("expected ErrNonPositiveAmount, got %v", err)
	}
}

func TestWithdraw_GatedByFreeCollateral(t *testing.T) {
	v, _ := newVault(t)
	v.Deposit("alice", d(100))
	v.BindChecker(stubChecker{free: d(40)})

	if err := v.Withdraw("alice", d(50)); err != ErrNotEnoughFreeCollateral {
		t.Errorf("expected ErrNotEnoughFreeCollateral, got %v", err)
	}
	if err := v.Withdraw("alice", d(40)); err != nil {
		t.Errorf("withdrawal within free collateral should pass, got %v", err)
	}
	if !v.CollateralOf("alice").Equal(d(60)) {
		t.Errorf("expected 60 remaining, got %s", v.CollateralOf("alice"))
	}
}

func TestWithdraw_SettlesPnlFirst(t *testing.T) {
	v, l := newVault(t)
	v.Deposit("alice", d(100))
	l.AddOwedRealizedPnl("alice", d(25))
	v.BindChecker(stubChecker{free: d(125)})

	if err := v.Withdraw("alice", d(125)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if !v.CollateralOf("alice").IsZero() {
		t.Errorf("realized profit should have been withdrawable, remaining %s", v.CollateralOf("alice"))
	}
	if !l.OwedRealizedPnl("alice").IsZero() {
		t.Error("withdrawal must settle owed pnl")
	}
}

func TestSettlePnl_NegativeReducesCollateral(t *testing.T) {
	v, l := newVault(t)
	v.Deposit("alice", d(100))
	l.AddOwedRealizedPnl("alice", d(-30))

	settled := v.SettlePnl("alice")
	if !settled.Equal(d(-30)) {
		t.Errorf("expected settled -30, got %s", settled)
	}
	if !v.CollateralOf("alice").Equal(d(70)) {
		t.Errorf("expected collateral 70, got %s", v.CollateralOf("alice"))
	}
}

func TestCoverBadDebt(t *testing.T) {
	v, l := newVault(t)
	v.Deposit(InsuranceFundAccount, d(50))
	v.Deposit("alice", d(10))
	l.AddOwedRealizedPnl("alice", d(-40))
	v.SettlePnl("alice")

	covered := v.CoverBadDebt("alice")
	if !covered.Equal(d(30)) {
		t.Errorf("expected 30 covered, got %s", covered)
	}
	if !v.CollateralOf("alice").IsZero() {
		t.Errorf("bad debt should be zeroed, got %s", v.CollateralOf("alice"))
	}
	if !v.CollateralOf(InsuranceFundAccount).Equal(d(20)) {
		t.Errorf("fund should pay 30, remaining %s", v.CollateralOf(InsuranceFundAccount))
	}
}

func TestCoverBadDebt_CappedByFund(t *testing.T) {
	v, l := newVault(t)
	v.Deposit(InsuranceFundAccount, d(5))
	l.AddOwedRealizedPnl("alice", d(-40))
	v.SettlePnl("alice")

	covered := v.CoverBadDebt("alice")
	if !covered.Equal(d(5)) {
		t.Errorf("fund can only cover what it holds, got %s", covered)
	}
	if !v.CollateralOf("alice").Equal(d(-35)) {
		t.Errorf("uncovered shortfall remains, got %s", v.CollateralOf("alice"))
	}
	if !v.CollateralOf(InsuranceFundAccount).IsZero() {
		t.Errorf("fund should be drained, got %s", v.CollateralOf(InsuranceFundAccount))
	}
}

func TestCoverBadDebt_NoOpWhenSolvent(t *testing.T) {
	v, _ := newVault(t)
	v.Deposit(InsuranceFundAccount, d(50))
	v.Deposit("alice", d(10))
	if !v.CoverBadDebt("alice").IsZero() {
		t.Error("solvent accounts draw nothing")
	}
	if !v.CollateralOf(InsuranceFundAccount).Equal(d(50)) {
		t.Error("fund must be untouched")
	}
}

func TestTotalCollateral(t *testing.T) {
	v, _ := newVault(t)
	v.Deposit("alice", d(100))
	v.Deposit("bob", d(50))
	v.Deposit(InsuranceFundAccount, d(25))
	if !v.TotalCollateral().Equal(d(175)) {
		t.Errorf("expected 175, got %s", v.TotalCollateral())
	}
}
