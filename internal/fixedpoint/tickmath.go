// Package fixedpoint implements the tick and liquidity math for the
// concentrated-liquidity AMM used by every perpetual market.
//
// Ticks are discretized price coordinates: price(t) = 1.0001^t, so the
// sqrt price at tick t is 1.0001^(t/2). Liquidity supplied over a tick
// range [lower, upper) converts to token amounts via the standard
// constant-product-within-range identities:
//
//	base  = L * (sqrtB - sqrtA) / (sqrtA * sqrtB)
//	quote = L * (sqrtB - sqrtA)
//
// All monetary values use shopspring/decimal — never float64 for money.
// Transcendental math (powers and logs of 1.0001) goes through float64
// and is immediately converted back to decimal.
package fixedpoint

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

// MinTick and MaxTick bound every tick coordinate. They correspond to the
// price range [2^-128, 2^128], which comfortably covers any market.
const (
	MinTick = -887272
	MaxTick = 887272
)

var (
	// ErrTickOutOfRange is returned when a tick falls outside [MinTick, MaxTick].
	ErrTickOutOfRange = errors.New("fixedpoint: tick out of range")

	// ErrInvalidRange is returned when lower >= upper or a bound is misaligned.
	ErrInvalidRange = errors.New("fixedpoint: invalid tick range")

	// ErrZeroDivision is returned when a computation would divide by a zero
	// price or zero liquidity. Arithmetic violations are fatal for the
	// enclosing action; they never silently saturate.
	ErrZeroDivision = errors.New("fixedpoint: division by zero price or liquidity")
)

// PriceScale is the number of fractional digits carried by rounded
// price and amount results.
const PriceScale int32 = 18

var lnBase = math.Log(1.0001)

// SqrtPriceAtTick returns 1.0001^(tick/2) as a decimal.
func SqrtPriceAtTick(tick int) decimal.Decimal {
	return decimal.NewFromFloat(math.Pow(1.0001, float64(tick)/2)).Round(PriceScale)
}

// TickAtSqrtPrice returns the greatest tick whose sqrt price is <= p.
func TickAtSqrtPrice(p decimal.Decimal) (int, error) {
	if p.LessThanOrEqual(decimal.Zero) {
		return 0, ErrZeroDivision
	}
	tick := int(math.Floor(2 * math.Log(p.InexactFloat64()) / lnBase))

	// Float rounding can land one tick off in either direction near a
	// boundary; nudge until the bracketing invariant holds.
	for tick < MaxTick && SqrtPriceAtTick(tick+1).LessThanOrEqual(p) {
		tick++
	}
	for tick > MinTick && SqrtPriceAtTick(tick).GreaterThan(p) {
		tick--
	}
	if tick < MinTick || tick > MaxTick {
		return 0, ErrTickOutOfRange
	}
	return tick, nil
}

// CheckRange validates a liquidity range against the tick bounds.
func CheckRange(lower, upper int) error {
	if lower >= upper {
		return ErrInvalidRange
	}
	if lower < MinTick || upper > MaxTick {
		return ErrTickOutOfRange
	}
	return nil
}

// BaseAmountDelta returns the base-token amount held by liquidity L between
// two sqrt prices: L * (b - a) / (a * b), with the bounds ordered internally.
func BaseAmountDelta(sqrtA, sqrtB, liquidity decimal.Decimal) (decimal.Decimal, error) {
	if sqrtA.GreaterThan(sqrtB) {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	if sqrtA.IsZero() || sqrtB.IsZero() {
		return decimal.Zero, ErrZeroDivision
	}
	return liquidity.Mul(sqrtB.Sub(sqrtA)).Div(sqrtA.Mul(sqrtB)).Round(PriceScale), nil
}

// QuoteAmountDelta returns the quote-token amount held by liquidity L between
// two sqrt prices: L * (b - a), with the bounds ordered internally.
func QuoteAmountDelta(sqrtA, sqrtB, liquidity decimal.Decimal) decimal.Decimal {
	if sqrtA.GreaterThan(sqrtB) {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	return liquidity.Mul(sqrtB.Sub(sqrtA)).Round(PriceScale)
}

// AmountsForLiquidity returns the base and quote amounts a position of the
// given liquidity holds at the current sqrt price. Below the range the
// position is all base; above it, all quote.
func AmountsForLiquidity(sqrtCurrent, sqrtLower, sqrtUpper, liquidity decimal.Decimal) (base, quote decimal.Decimal, err error) {
	switch {
	case sqrtCurrent.LessThanOrEqual(sqrtLower):
		base, err = BaseAmountDelta(sqrtLower, sqrtUpper, liquidity)
		return base, decimal.Zero, err
	case sqrtCurrent.GreaterThanOrEqual(sqrtUpper):
		return decimal.Zero, QuoteAmountDelta(sqrtLower, sqrtUpper, liquidity), nil
	default:
		base, err = BaseAmountDelta(sqrtCurrent, sqrtUpper, liquidity)
		if err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		return base, QuoteAmountDelta(sqrtLower, sqrtCurrent, liquidity), nil
	}
}

// LiquidityForBase returns the liquidity representable by a base amount
// over [sqrtA, sqrtB]: base * a * b / (b - a).
func LiquidityForBase(sqrtA, sqrtB, base decimal.Decimal) (decimal.Decimal, error) {
	if sqrtA.GreaterThan(sqrtB) {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	span := sqrtB.Sub(sqrtA)
	if span.IsZero() {
		return decimal.Zero, ErrZeroDivision
	}
	return base.Mul(sqrtA).Mul(sqrtB).Div(span).Round(PriceScale), nil
}

// LiquidityForQuote returns the liquidity representable by a quote amount
// over [sqrtA, sqrtB]: quote / (b - a).
func LiquidityForQuote(sqrtA, sqrtB, quote decimal.Decimal) (decimal.Decimal, error) {
	if sqrtA.GreaterThan(sqrtB) {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	span := sqrtB.Sub(sqrtA)
	if span.IsZero() {
		return decimal.Zero, ErrZeroDivision
	}
	return quote.Div(span).Round(PriceScale), nil
}
