package fixedpoint

import (
	"testing"

	"github.com/shopspring/decimal"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// --- Tick math tests ---

func TestSqrtPriceAtTick_Zero(t *testing.T) {
	p := SqrtPriceAtTick(0)
	if !p.Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected sqrt price 1 at tick 0, got %s", p)
	}
}

func TestSqrtPriceAtTick_Monotone(t *testing.T) {
	prev := SqrtPriceAtTick(-1000)
	for tick := -900; tick <= 1000; tick += 100 {
		p := SqrtPriceAtTick(tick)
		if !p.GreaterThan(prev) {
			t.Fatalf("sqrt price must increase with tick: tick=%d p=%s prev=%s", tick, p, prev)
		}
		prev = p
	}
}

func TestTickAtSqrtPrice_RoundTrip(t *testing.T) {
	ticks := []int{-100000, -6932, -60, -1, 0, 1, 60, 6932, 100000}
	for _, tick := range ticks {
		got, err := TickAtSqrtPrice(SqrtPriceAtTick(tick))
		if err != nil {
			t.Fatalf("tick %d: unexpected error: %v", tick, err)
		}
		if got != tick {
			t.Errorf("round trip tick %d, got %d", tick, got)
		}
	}
}

func TestTickAtSqrtPrice_BracketingInvariant(t *testing.T) {
	prices := []float64{0.001, 0.5, 0.999, 1, 1.001, 2, 100, 31.6227766}
	for _, f := range prices {
		p := d(f)
		tick, err := TickAtSqrtPrice(p)
		if err != nil {
			t.Fatalf("price %v: unexpected error: %v", f, err)
		}
		if SqrtPriceAtTick(tick).GreaterThan(p) {
			t.Errorf("price %v: sqrt(tick=%d) above p", f, tick)
		}
		if SqrtPriceAtTick(tick + 1).LessThanOrEqual(p) {
			t.Errorf("price %v: sqrt(tick+1=%d) not above p", f, tick+1)
		}
	}
}

func TestTickAtSqrtPrice_NonPositive(t *testing.T) {
	if _, err := TickAtSqrtPrice(decimal.Zero); err != ErrZeroDivision {
		t.Errorf("expected ErrZeroDivision for zero price, got %v", err)
	}
	if _, err := TickAtSqrtPrice(d(-1)); err != ErrZeroDivision {
		t.Errorf("expected ErrZeroDivision for negative price, got %v", err)
	}
}

func TestCheckRange(t *testing.T) {
	tests := []struct {
		lower, upper int
		want         error
	}{
		{-60, 60, nil},
		{MinTick, MaxTick, nil},
		{60, 60, ErrInvalidRange},
		{60, -60, ErrInvalidRange},
		{MinTick - 1, 0, ErrTickOutOfRange},
		{0, MaxTick + 1, ErrTickOutOfRange},
	}
	for _, tt := range tests {
		if err := CheckRange(tt.lower, tt.upper); err != tt.want {
			t.Errorf("CheckRange(%d, %d) = %v, want %v", tt.lower, tt.upper, err, tt.want)
		}
	}
}

// --- Amount / liquidity conversion tests ---

func TestBaseAmountDelta_Formula(t *testing.T) {
	// L=6, a=2, b=3: L*(b-a)/(a*b) = 6*1/6 = 1
	got, err := BaseAmountDelta(d(2), d(3), d(6))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(d(1)) {
		t.Errorf("expected 1, got %s", got)
	}
}

func TestBaseAmountDelta_OrderInsensitive(t *testing.T) {
	a, _ := BaseAmountDelta(d(2), d(3), d(100))
	b, _ := BaseAmountDelta(d(3), d(2), d(100))
	if !a.Equal(b) {
		t.Errorf("bounds order should not matter: %s vs %s", a, b)
	}
}

func TestBaseAmountDelta_ZeroPrice(t *testing.T) {
	if _, err := BaseAmountDelta(d(0), d(2), d(100)); err != ErrZeroDivision {
		t.Errorf("expected ErrZeroDivision, got %v", err)
	}
}

func TestQuoteAmountDelta_Formula(t *testing.T) {
	// L=10, a=2, b=3: L*(b-a) = 10
	got := QuoteAmountDelta(d(2), d(3), d(10))
	if !got.Equal(d(10)) {
		t.Errorf("expected 10, got %s", got)
	}
}

func TestAmountsForLiquidity_BelowRange(t *testing.T) {
	base, quote, err := AmountsForLiquidity(d(1), d(2), d(3), d(100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !quote.IsZero() {
		t.Errorf("below range should hold no quote, got %s", quote)
	}
	if !base.IsPositive() {
		t.Errorf("below range should hold base, got %s", base)
	}
}

func TestAmountsForLiquidity_AboveRange(t *testing.T) {
	base, quote, err := AmountsForLiquidity(d(4), d(2), d(3), d(100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !base.IsZero() {
		t.Errorf("above range should hold no base, got %s", base)
	}
	if !quote.Equal(d(100)) {
		t.Errorf("expected quote 100, got %s", quote)
	}
}

func TestAmountsForLiquidity_InRangeSplits(t *testing.T) {
	base, quote, err := AmountsForLiquidity(d(2.5), d(2), d(3), d(100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !base.IsPositive() || !quote.IsPositive() {
		t.Errorf("in-range position should hold both tokens: base=%s quote=%s", base, quote)
	}
}

func TestLiquidityForBase_InvertsBaseAmount(t *testing.T) {
	liq := d(1000)
	base, err := BaseAmountDelta(d(2), d(3), liq)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := LiquidityForBase(d(2), d(3), base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Sub(liq).Abs().GreaterThan(d(0.000001)) {
		t.Errorf("expected liquidity ~%s, got %s", liq, got)
	}
}

func TestLiquidityForQuote_InvertsQuoteAmount(t *testing.T) {
	liq := d(1000)
	quote := QuoteAmountDelta(d(2), d(3), liq)
	got, err := LiquidityForQuote(d(2), d(3), quote)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Sub(liq).Abs().GreaterThan(d(0.000001)) {
		t.Errorf("expected liquidity ~%s, got %s", liq, got)
	}
}

func TestLiquidityForBase_EmptySpan(t *testing.T) {
	if _, err := LiquidityForBase(d(2), d(2), d(1)); err != ErrZeroDivision {
		t.Errorf("expected ErrZeroDivision, got %v", err)
	}
}

// --- Swap step tests ---

func TestComputeSwapStep_ExactInputReachesTarget(t *testing.T) {
	// Plenty of input: the step must land exactly on the target so the
	// caller can detect the tick crossing by equality.
	step, err := ComputeSwapStep(d(2), d(1.9), d(100), d(1000000), d(0.003), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !step.NextSqrtPrice.Equal(d(1.9)) {
		t.Errorf("expected next price exactly 1.9, got %s", step.NextSqrtPrice)
	}
}

func TestComputeSwapStep_ExactInputPartial(t *testing.T) {
	step, err := ComputeSwapStep(d(2), d(1), d(10000), d(10), d(0.003), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !step.NextSqrtPrice.LessThan(d(2)) || !step.NextSqrtPrice.GreaterThan(d(1)) {
		t.Errorf("partial step should stay inside (1, 2), got %s", step.NextSqrtPrice)
	}
	spent := step.AmountIn.Add(step.FeeAmount)
	if spent.Sub(d(10)).Abs().GreaterThan(d(0.000001)) {
		t.Errorf("exact-input should consume the whole budget: in+fee=%s", spent)
	}
}

func TestComputeSwapStep_FeeCharged(t *testing.T) {
	step, err := ComputeSwapStep(d(2), d(1.999), d(100000), d(50), d(0.01), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !step.FeeAmount.IsPositive() {
		t.Errorf("expected positive fee, got %s", step.FeeAmount)
	}
}

func TestComputeSwapStep_ZeroFeeNoCharge(t *testing.T) {
	step, err := ComputeSwapStep(d(2), d(1.9), d(100), d(1000000), decimal.Zero, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !step.FeeAmount.IsZero() {
		t.Errorf("expected zero fee, got %s", step.FeeAmount)
	}
}

func TestComputeSwapStep_ExactOutputCapped(t *testing.T) {
	// Ask for more output than the range can give; the step caps at the
	// target boundary.
	step, err := ComputeSwapStep(d(2), d(1.99), d(100), d(1000000), d(0.003), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !step.NextSqrtPrice.Equal(d(1.99)) {
		t.Errorf("expected capped at target 1.99, got %s", step.NextSqrtPrice)
	}
	maxOut := QuoteAmountDelta(d(1.99), d(2), d(100))
	if !step.AmountOut.Equal(maxOut) {
		t.Errorf("expected max output %s, got %s", maxOut, step.AmountOut)
	}
}

func TestComputeSwapStep_ExactOutputPartial(t *testing.T) {
	// Small output request: the price moves up but stays short of the
	// target, and the fee is charged on the input leg.
	step, err := ComputeSwapStep(d(2), d(3), d(10000), d(1), d(0.003), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !step.AmountOut.Equal(d(1)) {
		t.Errorf("expected full requested output 1, got %s", step.AmountOut)
	}
	if !step.NextSqrtPrice.GreaterThan(d(2)) || !step.NextSqrtPrice.LessThan(d(3)) {
		t.Errorf("partial step should stay inside (2, 3), got %s", step.NextSqrtPrice)
	}
	if !step.FeeAmount.IsPositive() {
		t.Errorf("expected positive fee, got %s", step.FeeAmount)
	}
}

func TestComputeSwapStep_ZeroLiquidity(t *testing.T) {
	_, err := ComputeSwapStep(d(2), d(1.9), decimal.Zero, d(10), d(0.003), true)
	if err != ErrZeroDivision {
		t.Errorf("expected ErrZeroDivision, got %v", err)
	}
}
