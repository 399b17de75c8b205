package ledger

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/model"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

const (
	quote = "USDC"
	mkt   = "ETH-USDC-PERP"
)

// --- Mint / Burn tests ---

func TestMint_BacksAvailableWithEqualDebt(t *testing.T) {
	l := New(quote)
	if err := l.Mint("alice", mkt, d(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	b := l.Balance("alice", mkt)
	if !b.Available.Equal(d(10)) || !b.Debt.Equal(d(10)) {
		t.Errorf("expected available=debt=10, got %s/%s", b.Available, b.Debt)
	}
	if !l.HasToken("alice", mkt) {
		t.Error("mint should register the token")
	}
}

func TestMint_NonPositive(t *testing.T) {
	l := New(quote)
	if err := l.Mint("alice", mkt, decimal.Zero); err != ErrNonPositiveAmount {
		t.Errorf("expected ErrNonPositiveAmount, got %v", err)
	}
	if err := l.Mint("alice", mkt, d(-5)); err != ErrNonPositiveAmount {
		t.Errorf("expected ErrNonPositiveAmount, got %v", err)
	}
}

func TestBurn_BoundedByBothLegs(t *testing.T) {
	l := New(quote)
	l.Mint("alice", mkt, d(10))
	// Drain available below debt: burn is now capped by available.
	if err := l.AdjustAvailable("alice", mkt, d(-4)); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if err := l.Burn("alice", mkt, d(7)); err != ErrInsufficientBalance {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := l.Burn("alice", mkt, d(6)); err != nil {
		t.Errorf("burn within min(available, debt) should succeed: %v", err)
	}
}

func TestBurn_FullDeregistersToken(t *testing.T) {
	l := New(quote)
	l.Mint("alice", mkt, d(10))
	if err := l.Burn("alice", mkt, d(10)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if l.HasToken("alice", mkt) {
		t.Error("zero balance with no orders should deregister the token")
	}
}

func TestBurn_KeepsTokenWhileOrdersOpen(t *testing.T) {
	l := New(quote)
	l.Mint("alice", mkt, d(10))
	l.PutOrder("alice", mkt, &model.OpenOrder{ID: "o1", Liquidity: d(5), LowerTick: -60, UpperTick: 60})
	l.Burn("alice", mkt, d(10))
	if !l.HasToken("alice", mkt) {
		t.Error("token must stay registered while maker orders exist")
	}
}

func TestBurnMax(t *testing.T) {
	l := New(quote)
	l.Mint("alice", mkt, d(10))
	l.AdjustAvailable("alice", mkt, d(-3))

	burned := l.BurnMax("alice", mkt)
	if !burned.Equal(d(7)) {
		t.Errorf("expected burn of 7, got %s", burned)
	}
	b := l.Balance("alice", mkt)
	if !b.Available.IsZero() || !b.Debt.Equal(d(3)) {
		t.Errorf("expected available=0 debt=3, got %s/%s", b.Available, b.Debt)
	}
}

func TestAdjustAvailable_RejectsNegativeResult(t *testing.T) {
	l := New(quote)
	l.Mint("alice", mkt, d(5))
	if err := l.AdjustAvailable("alice", mkt, d(-6)); err != ErrInsufficientBalance {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
	b := l.Balance("alice", mkt)
	if !b.Available.Equal(d(5)) {
		t.Errorf("failed adjust must not change the balance, got %s", b.Available)
	}
}

func TestAdjustDebt_RejectsNegativeResult(t *testing.T) {
	l := New(quote)
	l.Mint("alice", quote, d(5))
	if err := l.AdjustDebt("alice", quote, d(-6)); err != ErrInsufficientBalance {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := l.AdjustDebt("alice", quote, d(-5)); err != nil {
		t.Errorf("debt to exactly zero should succeed: %v", err)
	}
}

// --- Realized PnL / notional fraction tests ---

func TestOwedRealizedPnl_Accrues(t *testing.T) {
	l := New(quote)
	l.AddOwedRealizedPnl("alice", d(3))
	l.AddOwedRealizedPnl("alice", d(-5))
	if !l.OwedRealizedPnl("alice").Equal(d(-2)) {
		t.Errorf("expected -2, got %s", l.OwedRealizedPnl("alice"))
	}
}

func TestOpenNotionalFraction(t *testing.T) {
	l := New(quote)
	l.AddOpenNotionalFraction("alice", mkt, d(100))
	l.AddOpenNotionalFraction("alice", mkt, d(-40))
	if !l.OpenNotionalFraction("alice", mkt).Equal(d(60)) {
		t.Errorf("expected 60, got %s", l.OpenNotionalFraction("alice", mkt))
	}
	l.SetOpenNotionalFraction("alice", mkt, d(7))
	if !l.OpenNotionalFraction("alice", mkt).Equal(d(7)) {
		t.Errorf("expected 7, got %s", l.OpenNotionalFraction("alice", mkt))
	}
}

// --- Funding watermark tests ---

func TestFundingWatermark_NeverMovesBackward(t *testing.T) {
	l := New(quote)
	l.SetNextFundingIndex("alice", mkt, 5)
	l.SetNextFundingIndex("alice", mkt, 3)
	if got := l.NextFundingIndex("alice", mkt); got != 5 {
		t.Errorf("watermark must be monotone, got %d", got)
	}
}

// --- Settlement capability tests ---

func TestGrantSettle_OnlyOnce(t *testing.T) {
	l := New(quote)
	if _, err := l.GrantSettle(); err != nil {
		t.Fatalf("first grant: %v", err)
	}
	if _, err := l.GrantSettle(); err != ErrSettleAlreadyGranted {
		t.Errorf("expected ErrSettleAlreadyGranted, got %v", err)
	}
}

func TestSettle_ClearsOwedPnl(t *testing.T) {
	l := New(quote)
	settle, _ := l.GrantSettle()
	l.AddOwedRealizedPnl("alice", d(12))

	if got := settle("alice"); !got.Equal(d(12)) {
		t.Errorf("expected 12, got %s", got)
	}
	if !l.OwedRealizedPnl("alice").IsZero() {
		t.Error("settle must clear the owed amount")
	}
}

func TestSettle_NetsResidualQuoteWhenFlat(t *testing.T) {
	l := New(quote)
	settle, _ := l.GrantSettle()

	// Flat in every base market; 8 available vs 5 debt in quote nets +3.
	l.Mint("alice", quote, d(5))
	l.AdjustAvailable("alice", quote, d(3))

	if got := settle("alice"); !got.Equal(d(3)) {
		t.Errorf("expected net +3, got %s", got)
	}
	b := l.Balance("alice", quote)
	if !b.Available.IsZero() || !b.Debt.IsZero() {
		t.Errorf("residual quote should be burned, got %s/%s", b.Available, b.Debt)
	}
}

func TestSettle_SkipsNettingWithOpenBaseMarket(t *testing.T) {
	l := New(quote)
	settle, _ := l.GrantSettle()

	l.Mint("alice", mkt, d(1))
	l.Mint("alice", quote, d(5))
	l.AdjustAvailable("alice", quote, d(3))

	if got := settle("alice"); !got.IsZero() {
		t.Errorf("expected no netting while a base market is open, got %s", got)
	}
	b := l.Balance("alice", quote)
	if !b.Available.Equal(d(8)) || !b.Debt.Equal(d(5)) {
		t.Errorf("quote balances must be untouched, got %s/%s", b.Available, b.Debt)
	}
}

// --- Order book tests ---

func TestOrders_PutLookupRemove(t *testing.T) {
	l := New(quote)
	o := &model.OpenOrder{ID: "o1", Liquidity: d(100), LowerTick: -60, UpperTick: 60}
	l.PutOrder("alice", mkt, o)

	if got := l.OrderByRange("alice", mkt, -60, 60); got == nil || got.ID != "o1" {
		t.Fatalf("expected order o1 by range, got %+v", got)
	}
	got, err := l.OrderByID("alice", mkt, "o1")
	if err != nil || got.ID != "o1" {
		t.Fatalf("expected order o1 by id, got %+v err=%v", got, err)
	}
	if !l.HasOrders("alice", mkt) {
		t.Error("HasOrders should report true")
	}
	if !l.TotalOrderLiquidity("alice", mkt).Equal(d(100)) {
		t.Errorf("expected total liquidity 100, got %s", l.TotalOrderLiquidity("alice", mkt))
	}

	l.RemoveOrder("alice", mkt, "o1")
	if l.HasOrders("alice", mkt) {
		t.Error("order should be removed")
	}
	if _, err := l.OrderByID("alice", mkt, "o1"); err != ErrOrderNotFound {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
}

// --- Snapshot tests ---

func TestSnapshotRestoreAccount(t *testing.T) {
	l := New(quote)
	l.Mint("alice", mkt, d(10))
	l.AddOwedRealizedPnl("alice", d(2))
	l.AddOpenNotionalFraction("alice", mkt, d(50))
	l.PutOrder("alice", mkt, &model.OpenOrder{ID: "o1", Liquidity: d(7), LowerTick: -60, UpperTick: 60})
	snap := l.SnapshotAccount("alice")

	l.Mint("alice", mkt, d(100))
	l.AddOwedRealizedPnl("alice", d(-99))
	l.RemoveOrder("alice", mkt, "o1")
	l.RestoreAccount(snap)

	b := l.Balance("alice", mkt)
	if !b.Available.Equal(d(10)) || !b.Debt.Equal(d(10)) {
		t.Errorf("restore should rewind balances, got %s/%s", b.Available, b.Debt)
	}
	if !l.OwedRealizedPnl("alice").Equal(d(2)) {
		t.Errorf("restore should rewind pnl, got %s", l.OwedRealizedPnl("alice"))
	}
	if !l.OpenNotionalFraction("alice", mkt).Equal(d(50)) {
		t.Errorf("restore should rewind notional fraction, got %s", l.OpenNotionalFraction("alice", mkt))
	}
	if !l.HasOrders("alice", mkt) {
		t.Error("restore should bring the order back")
	}
}

func TestSnapshotAccount_IsDeep(t *testing.T) {
	l := New(quote)
	l.Mint("alice", mkt, d(10))
	snap := l.SnapshotAccount("alice")
	l.AdjustAvailable("alice", mkt, d(-5))
	l.RestoreAccount(snap)
	if !l.Balance("alice", mkt).Available.Equal(d(10)) {
		t.Error("snapshot must be a deep copy")
	}
}
