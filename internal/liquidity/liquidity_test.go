package liquidity

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/ledger"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/pool"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/registry"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/tickledger"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func noPay(base, quote decimal.Decimal) error { return nil }

const (
	maker = "maker-1"
	mkt   = "ETH-USDC-PERP"
)

type fixture struct {
	ledger *ledger.AccountLedger
	mgr    *Manager
	market *registry.Market
}

// newFixture builds a market at price 1 and a funded maker.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	p, err := pool.New(d(1), 60, d(0.003))
	if err != nil {
		t.Fatalf("pool init: %v", err)
	}
	l := ledger.New("USDC")
	l.Mint(maker, mkt, d(10000))
	l.Mint(maker, "USDC", d(10000))
	return &fixture{
		ledger: l,
		mgr:    NewManager(l),
		market: &registry.Market{
			Symbol:           mkt,
			BaseToken:        "ETH",
			QuoteToken:       "USDC",
			Pool:             p,
			PoolFeeRatio:     d(0.003),
			ProtocolFeeRatio: d(0.003),
			Ticks:            tickledger.New(),
		},
	}
}

// pay debits the fixture maker's held balances, mirroring the clearing
// service's liquidity payment callback.
func (f *fixture) pay(base, quote decimal.Decimal) error {
	if base.IsPositive() {
		if err := f.ledger.AdjustAvailable(maker, mkt, base.Neg()); err != nil {
			return err
		}
	}
	if quote.IsPositive() {
		if err := f.ledger.AdjustAvailable(maker, "USDC", quote.Neg()); err != nil {
			return err
		}
	}
	return nil
}

// --- Add tests ---

func TestAdd_CreatesOrderAndDebitsMaker(t *testing.T) {
	f := newFixture(t)
	res, err := f.mgr.Add(f.market, AddParams{
		Trader: maker, Base: d(100), Quote: d(100), LowerTick: -600, UpperTick: 600,
	}, f.pay)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if res.OrderID == "" {
		t.Error("expected an order id")
	}
	if !res.Liquidity.IsPositive() {
		t.Errorf("expected positive liquidity, got %s", res.Liquidity)
	}

	wantBase := d(10000).Sub(res.Base)
	if !f.ledger.Balance(maker, mkt).Available.Equal(wantBase) {
		t.Errorf("base not debited: want %s got %s", wantBase, f.ledger.Balance(maker, mkt).Available)
	}
	wantQuote := d(10000).Sub(res.Quote)
	if !f.ledger.Balance(maker, "USDC").Available.Equal(wantQuote) {
		t.Errorf("quote not debited: want %s got %s", wantQuote, f.ledger.Balance(maker, "USDC").Available)
	}
	if !f.ledger.HasOrders(maker, mkt) {
		t.Error("order should be recorded in the ledger")
	}
	if !f.market.Pool.PositionLiquidity(-600, 600).Equal(res.Liquidity) {
		t.Error("pool position should match the order")
	}
}

func TestAdd_SameRangeMergesIntoOneOrder(t *testing.T) {
	f := newFixture(t)
	first, err := f.mgr.Add(f.market, AddParams{Trader: maker, Base: d(50), Quote: d(50), LowerTick: -600, UpperTick: 600}, f.pay)
	if err != nil {
		t.Fatalf("first add: %v", err)
	}
	second, err := f.mgr.Add(f.market, AddParams{Trader: maker, Base: d(50), Quote: d(50), LowerTick: -600, UpperTick: 600}, f.pay)
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if first.OrderID != second.OrderID {
		t.Error("same range should reuse the order")
	}
	orders := f.ledger.Orders(maker, mkt)
	if len(orders) != 1 {
		t.Fatalf("expected one order, got %d", len(orders))
	}
	want := first.Liquidity.Add(second.Liquidity)
	if !orders[0].Liquidity.Equal(want) {
		t.Errorf("expected merged liquidity %s, got %s", want, orders[0].Liquidity)
	}
}

func TestAdd_ZeroAmounts(t *testing.T) {
	f := newFixture(t)
	_, err := f.mgr.Add(f.market, AddParams{Trader: maker, LowerTick: -600, UpperTick: 600}, f.pay)
	if err != ErrZeroLiquidity {
		t.Errorf("expected ErrZeroLiquidity, got %v", err)
	}
}

func TestAdd_InsufficientFundsAborts(t *testing.T) {
	f := newFixture(t)
	poor := "pauper"
	_, err := f.mgr.Add(f.market, AddParams{Trader: poor, Base: d(100), Quote: d(100), LowerTick: -600, UpperTick: 600},
		func(base, quote decimal.Decimal) error {
			if base.IsPositive() {
				if err := f.ledger.AdjustAvailable(poor, mkt, base.Neg()); err != nil {
					return err
				}
			}
			if quote.IsPositive() {
				return f.ledger.AdjustAvailable(poor, "USDC", quote.Neg())
			}
			return nil
		})
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if f.ledger.HasOrders(poor, mkt) {
		t.Error("failed add must not record an order")
	}
}

// --- Remove tests ---

func TestRemove_RoundTripReturnsFunds(t *testing.T) {
	f := newFixture(t)
	if _, err := f.mgr.Add(f.market, AddParams{Trader: maker, Base: d(100), Quote: d(100), LowerTick: -600, UpperTick: 600}, f.pay); err != nil {
		t.Fatalf("add: %v", err)
	}
	res, err := f.mgr.Remove(f.market, RemoveParams{Trader: maker, LowerTick: -600, UpperTick: 600})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !res.Closed {
		t.Error("full removal should close the order")
	}
	if f.ledger.HasOrders(maker, mkt) {
		t.Error("order should be gone")
	}
	// No swaps happened, so the maker ends where they started.
	if !f.ledger.Balance(maker, mkt).Available.Equal(d(10000)) {
		t.Errorf("base should round-trip, got %s", f.ledger.Balance(maker, mkt).Available)
	}
	if !f.ledger.Balance(maker, "USDC").Available.Equal(d(10000)) {
		t.Errorf("quote should round-trip, got %s", f.ledger.Balance(maker, "USDC").Available)
	}
	if !f.ledger.OpenNotionalFraction(maker, mkt).IsZero() {
		t.Errorf("notional fraction should net to zero, got %s", f.ledger.OpenNotionalFraction(maker, mkt))
	}
}

func TestRemove_NoOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.mgr.Remove(f.market, RemoveParams{Trader: maker, LowerTick: -600, UpperTick: 600})
	if err != ErrOrderNotFound {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestRemove_ExceedsOrderLiquidity(t *testing.T) {
	f := newFixture(t)
	res, err := f.mgr.Add(f.market, AddParams{Trader: maker, Base: d(100), Quote: d(100), LowerTick: -600, UpperTick: 600}, f.pay)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	_, err = f.mgr.Remove(f.market, RemoveParams{
		Trader: maker, LowerTick: -600, UpperTick: 600,
		Liquidity: res.Liquidity.Add(d(1)),
	})
	if err != ErrNotEnoughLiquidity {
		t.Errorf("expected ErrNotEnoughLiquidity, got %v", err)
	}
}

func TestRemove_SlippageBoundExecutesNothing(t *testing.T) {
	f := newFixture(t)
	if _, err := f.mgr.Add(f.market, AddParams{Trader: maker, Base: d(100), Quote: d(100), LowerTick: -600, UpperTick: 600}, f.pay); err != nil {
		t.Fatalf("add: %v", err)
	}
	liqBefore := f.market.Pool.PositionLiquidity(-600, 600)

	_, err := f.mgr.Remove(f.market, RemoveParams{
		Trader: maker, LowerTick: -600, UpperTick: 600,
		MinBase: d(1000000),
	})
	if err != ErrSlippage {
		t.Fatalf("expected ErrSlippage, got %v", err)
	}
	if !f.market.Pool.PositionLiquidity(-600, 600).Equal(liqBefore) {
		t.Error("slippage failure must not touch the pool")
	}
	if !f.ledger.HasOrders(maker, mkt) {
		t.Error("slippage failure must keep the order")
	}
}

func TestRemove_PartialKeepsOrderOpen(t *testing.T) {
	f := newFixture(t)
	added, err := f.mgr.Add(f.market, AddParams{Trader: maker, Base: d(100), Quote: d(100), LowerTick: -600, UpperTick: 600}, f.pay)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	half := added.Liquidity.Div(d(2))
	res, err := f.mgr.Remove(f.market, RemoveParams{Trader: maker, LowerTick: -600, UpperTick: 600, Liquidity: half})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if res.Closed {
		t.Error("partial removal must not close the order")
	}
	orders := f.ledger.Orders(maker, mkt)
	if len(orders) != 1 || !orders[0].Liquidity.Equal(added.Liquidity.Sub(half)) {
		t.Errorf("expected remaining liquidity %s, got %+v", added.Liquidity.Sub(half), orders)
	}
}

// --- Fee accrual tests ---

func TestRemove_CollectsFeesAccruedWhileInRange(t *testing.T) {
	f := newFixture(t)
	if _, err := f.mgr.Add(f.market, AddParams{Trader: maker, Base: d(100), Quote: d(100), LowerTick: -600, UpperTick: 600}, f.pay); err != nil {
		t.Fatalf("add: %v", err)
	}

	// Simulate protocol fee accrual while the order was in range.
	f.market.FeeGrowthGlobal = f.market.FeeGrowthGlobal.Add(d(0.001))

	res, err := f.mgr.Remove(f.market, RemoveParams{Trader: maker, LowerTick: -600, UpperTick: 600})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !res.Fee.IsPositive() {
		t.Errorf("expected accrued maker fee, got %s", res.Fee)
	}
	// Fee = growth delta x order liquidity, credited in quote.
	quoteAfter := f.ledger.Balance(maker, "USDC").Available
	if !quoteAfter.GreaterThan(d(10000)) {
		t.Errorf("maker should end above their starting quote, got %s", quoteAfter)
	}
}

func TestRemoveAll(t *testing.T) {
	f := newFixture(t)
	f.mgr.Add(f.market, AddParams{Trader: maker, Base: d(50), Quote: d(50), LowerTick: -600, UpperTick: 600}, f.pay)
	f.mgr.Add(f.market, AddParams{Trader: maker, Base: d(50), Quote: d(50), LowerTick: -1200, UpperTick: 1200}, f.pay)

	results, err := f.mgr.RemoveAll(f.market, maker)
	if err != nil {
		t.Fatalf("remove all: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 removals, got %d", len(results))
	}
	if f.ledger.HasOrders(maker, mkt) {
		t.Error("all orders should be gone")
	}
}
