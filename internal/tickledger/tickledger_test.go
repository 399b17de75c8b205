package tickledger

import (
	"testing"

	"github.com/shopspring/decimal"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestInitializeTick_BelowCurrentStartsAtGlobal(t *testing.T) {
	l := New()
	l.InitializeTick(-60, 0, d(5))
	// Inside a range straddling the current tick, the below-part is the
	// lower tick's outside value.
	inside := l.FeeGrowthInside(-60, 60, 0, d(5))
	if !inside.Equal(decimal.Zero) {
		t.Errorf("fresh range should have zero inside growth, got %s", inside)
	}
}

func TestInitializeTick_AboveCurrentStartsAtZero(t *testing.T) {
	l := New()
	l.InitializeTick(60, 0, d(5))
	if !l.Has(60) {
		t.Fatal("tick 60 should be initialized")
	}
	inside := l.FeeGrowthInside(-60, 60, 0, d(5))
	// lower (-60) was never initialized: outside 0, below = 0 since
	// current >= lower; above = 0. Inside = global.
	if !inside.Equal(d(5)) {
		t.Errorf("expected inside 5, got %s", inside)
	}
}

func TestFeeGrowthInside_GrowsWithGlobalWhileInRange(t *testing.T) {
	l := New()
	l.InitializeTick(-60, 0, d(1))
	l.InitializeTick(60, 0, d(1))

	before := l.FeeGrowthInside(-60, 60, 0, d(1))
	after := l.FeeGrowthInside(-60, 60, 0, d(3))
	if !after.Sub(before).Equal(d(2)) {
		t.Errorf("in-range growth should track global delta: before=%s after=%s", before, after)
	}
}

func TestFeeGrowthInside_FrozenOutOfRange(t *testing.T) {
	l := New()
	l.InitializeTick(-60, 0, d(1))
	l.InitializeTick(60, 0, d(1))

	// Price leaves the range upward, crossing the upper tick at global=2.
	l.CrossTick(60, d(2))
	at2 := l.FeeGrowthInside(-60, 60, 100, d(2))
	at9 := l.FeeGrowthInside(-60, 60, 100, d(9))
	if !at2.Equal(at9) {
		t.Errorf("out-of-range inside growth must freeze: %s vs %s", at2, at9)
	}
}

func TestCrossTick_RoundTripRestoresOutside(t *testing.T) {
	l := New()
	l.InitializeTick(60, 0, d(1))

	// Cross up at global=2, back down at global=5: outside ends at
	// 5 - (2 - 0) = 3, and the inside value below the tick resumes
	// tracking the global from there.
	l.CrossTick(60, d(2))
	l.CrossTick(60, d(5))
	inside := l.FeeGrowthInside(-60, 60, 0, d(5))
	// lower uninitialized: below = 0. above = outside(60) = 3. inside = 2.
	if !inside.Equal(d(2)) {
		t.Errorf("expected inside 2 after round trip, got %s", inside)
	}
}

func TestClearTick(t *testing.T) {
	l := New()
	l.InitializeTick(0, 0, d(7))
	l.ClearTick(0)
	if l.Has(0) {
		t.Error("tick should be cleared")
	}
}

func TestSnapshotRestore(t *testing.T) {
	l := New()
	l.InitializeTick(-60, 0, d(1))
	snap := l.Snapshot()

	l.CrossTick(-60, d(4))
	l.InitializeTick(120, 0, d(4))
	l.Restore(snap)

	if l.Has(120) {
		t.Error("restore should drop ticks initialized after the snapshot")
	}
	inside := l.FeeGrowthInside(-60, 60, 0, d(1))
	if !inside.Equal(decimal.Zero) {
		t.Errorf("restored state should match pre-snapshot inside growth, got %s", inside)
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	l := New()
	l.InitializeTick(0, 0, d(1))
	snap := l.Snapshot()
	l.CrossTick(0, d(9))
	if !snap[0].Equal(d(1)) {
		t.Errorf("mutations after snapshot must not leak into it, got %s", snap[0])
	}
}
