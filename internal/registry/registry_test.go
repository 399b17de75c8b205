package registry

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/funding"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/pool"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/tickledger"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func testMarket(t *testing.T, symbol string) *Market {
	t.Helper()
	pl, err := pool.New(d(10), 60, d(0.003))
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	return &Market{
		Symbol:           symbol,
		BaseToken:        "ETH",
		QuoteToken:       "USDC",
		Pool:             pl,
		PoolFeeRatio:     d(0.003),
		ProtocolFeeRatio: d(0.01),
		Ticks:            tickledger.New(),
		Funding:          funding.NewState(now, time.Hour),
		CreatedAt:        now,
	}
}

func TestRegistry_AddGet(t *testing.T) {
	r := New()
	m := testMarket(t, "ETH-USDC-PERP")
	if err := r.Add(m); err != nil {
		t.Fatalf("add: %v", err)
	}
	got, err := r.Get("ETH-USDC-PERP")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != m {
		t.Error("registry must return the registered market")
	}
	if !r.Has("ETH-USDC-PERP") || r.Has("BTC-USDC-PERP") {
		t.Error("Has mismatch")
	}
}

func TestRegistry_AddDuplicate(t *testing.T) {
	r := New()
	r.Add(testMarket(t, "ETH-USDC-PERP"))
	if err := r.Add(testMarket(t, "ETH-USDC-PERP")); !errors.Is(err, ErrMarketExists) {
		t.Errorf("expected ErrMarketExists, got %v", err)
	}
}

func TestRegistry_GetMissing(t *testing.T) {
	r := New()
	if _, err := r.Get("NOPE-USDC-PERP"); !errors.Is(err, ErrMarketNotFound) {
		t.Errorf("expected ErrMarketNotFound, got %v", err)
	}
}

func TestRegistry_SymbolsSorted(t *testing.T) {
	r := New()
	r.Add(testMarket(t, "ETH-USDC-PERP"))
	r.Add(testMarket(t, "BTC-USDC-PERP"))
	syms := r.Symbols()
	if len(syms) != 2 || syms[0] != "BTC-USDC-PERP" || syms[1] != "ETH-USDC-PERP" {
		t.Errorf("symbols = %v, want sorted pair", syms)
	}
}

func TestRegistry_Setters(t *testing.T) {
	r := New()
	r.Add(testMarket(t, "ETH-USDC-PERP"))

	if err := r.SetProtocolFeeRatio("ETH-USDC-PERP", d(0.02)); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	if err := r.SetMaxTickDeltaPerBlock("ETH-USDC-PERP", 100); err != nil {
		t.Fatalf("set cap: %v", err)
	}
	m, _ := r.Get("ETH-USDC-PERP")
	if !m.ProtocolFeeRatio.Equal(d(0.02)) || m.MaxTickDeltaPerBlock != 100 {
		t.Errorf("setters not applied: fee=%s cap=%d", m.ProtocolFeeRatio, m.MaxTickDeltaPerBlock)
	}

	if err := r.SetProtocolFeeRatio("NOPE-USDC-PERP", d(0.02)); !errors.Is(err, ErrMarketNotFound) {
		t.Errorf("expected ErrMarketNotFound, got %v", err)
	}
}

func TestMarket_MarkPrice(t *testing.T) {
	m := testMarket(t, "ETH-USDC-PERP")
	if !m.MarkPrice().Equal(d(100)) {
		t.Errorf("mark price = %s, want 100", m.MarkPrice())
	}
}

func TestMarket_BlockStartTick(t *testing.T) {
	m := testMarket(t, "ETH-USDC-PERP")
	start := m.BlockStartTick(1)
	if start != m.Pool.Tick() {
		t.Errorf("first use should snapshot the current tick")
	}
	// The snapshot is sticky within a block even if the pool moves.
	if m.BlockStartTick(1) != start {
		t.Error("snapshot must not refresh within a block")
	}
}
