// Package tickledger tracks per-tick outside-fee accumulators for one
// market, mirroring the pool's own tick lifecycle so protocol fee growth
// can be attributed to liquidity ranges.
//
// The accumulators are denominated in the protocol's own fee currency
// (quote per unit liquidity), not the pool's. Values are sparse: an entry
// exists only while the corresponding pool tick is initialized.
package tickledger

import "github.com/shopspring/decimal"

// Ledger holds the feeGrowthOutside accumulator for every initialized tick
// of a single market.
type Ledger struct {
	outside map[int]decimal.Decimal
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{outside: make(map[int]decimal.Decimal)}
}

// InitializeTick sets the tick's outside-fee baseline when the tick flips
// from uninitialized to initialized on the pool side. Ticks at or below the
// current tick start at the global accumulator; ticks above start at zero.
// This matches the pool's own initialization rule, keeping inside/outside
// accounting consistent.
func (l *Ledger) InitializeTick(tick, currentTick int, feeGrowthGlobal decimal.Decimal) {
	if tick <= currentTick {
		l.outside[tick] = feeGrowthGlobal
		return
	}
	l.outside[tick] = decimal.Zero
}

// CrossTick flips the tick's stored outside value when the price crosses it:
// outside becomes global − outside. Only differences carry meaning, so the
// subtraction is taken as-is, never clamped.
func (l *Ledger) CrossTick(tick int, feeGrowthGlobal decimal.Decimal) {
	l.outside[tick] = feeGrowthGlobal.Sub(l.outside[tick])
}

// FeeGrowthInside returns the portion of global fee growth attributable
// strictly to the [lower, upper) range, by the standard below/above
// subtraction depending on where the current tick sits.
func (l *Ledger) FeeGrowthInside(lower, upper, currentTick int, feeGrowthGlobal decimal.Decimal) decimal.Decimal {
	lowerOutside := l.outside[lower]
	upperOutside := l.outside[upper]

	var below decimal.Decimal
	if currentTick >= lower {
		below = lowerOutside
	} else {
		below = feeGrowthGlobal.Sub(lowerOutside)
	}

	var above decimal.Decimal
	if currentTick < upper {
		above = upperOutside
	} else {
		above = feeGrowthGlobal.Sub(upperOutside)
	}

	return feeGrowthGlobal.Sub(below).Sub(above)
}

// ClearTick deletes the tick's entry once it flips back to uninitialized
// in the pool. No-op if the tick was never initialized here.
func (l *Ledger) ClearTick(tick int) {
	delete(l.outside, tick)
}

// Has reports whether the tick currently carries an outside accumulator.
func (l *Ledger) Has(tick int) bool {
	_, ok := l.outside[tick]
	return ok
}

// Snapshot returns a copy of the sparse accumulator map, used for
// all-or-nothing rollback of failed actions.
func (l *Ledger) Snapshot() map[int]decimal.Decimal {
	cp := make(map[int]decimal.Decimal, len(l.outside))
	for t, v := range l.outside {
		cp[t] = v
	}
	return cp
}

// Restore replaces the accumulator map with a snapshot taken earlier.
func (l *Ledger) Restore(snap map[int]decimal.Decimal) {
	l.outside = snap
}
