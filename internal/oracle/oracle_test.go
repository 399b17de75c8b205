package oracle

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestIndexPrice_NoPrice(t *testing.T) {
	f := NewStaticFeed()
	if _, err := f.IndexPrice("ETH-USDC-PERP", 0); err != ErrNoPrice {
		t.Errorf("expected ErrNoPrice, got %v", err)
	}
}

func TestIndexPrice_Spot(t *testing.T) {
	f := NewStaticFeed()
	f.SetPrice("ETH-USDC-PERP", d(100), t0)
	f.SetPrice("ETH-USDC-PERP", d(105), t0.Add(time.Minute))

	got, err := f.IndexPrice("ETH-USDC-PERP", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(d(105)) {
		t.Errorf("expected latest price 105, got %s", got)
	}
}

func TestIndexPrice_Twap(t *testing.T) {
	f := NewStaticFeed()
	// 100 for 10 minutes, then 200 as the final observation: twap over
	// the trailing 20 minutes ending at the last observation is
	// (100*10 + ... ) weighted only by elapsed segments before it.
	f.SetPrice("ETH-USDC-PERP", d(100), t0)
	f.SetPrice("ETH-USDC-PERP", d(200), t0.Add(10*time.Minute))

	got, err := f.IndexPrice("ETH-USDC-PERP", 20*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The last observation carries no elapsed time, so the average is the
	// 10 minutes of 100 before it.
	if !got.Equal(d(100)) {
		t.Errorf("expected twap 100, got %s", got)
	}
}

func TestIndexPrice_MarketsIsolated(t *testing.T) {
	f := NewStaticFeed()
	f.SetPrice("ETH-USDC-PERP", d(100), t0)
	if _, err := f.IndexPrice("BTC-USDC-PERP", 0); err != ErrNoPrice {
		t.Errorf("prices must be per market, got %v", err)
	}
}
