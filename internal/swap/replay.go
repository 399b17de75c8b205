package swap

import (
	"github.com/shopspring/decimal"

	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/fixedpoint"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/registry"
)

// replayState seeds the replay cursor. stop, when nonzero, is the pool's
// actual post-swap sqrt price; the replay never walks past it.
type replayState struct {
	sqrt      decimal.Decimal
	tick      int
	liquidity decimal.Decimal
	stop      decimal.Decimal
}

type replayResult struct {
	tick     int
	fee      decimal.Decimal // total protocol fee (base→quote only)
	makerFee decimal.Decimal // share accrued to fee growth
	crossed  int
}

// replay simulates the swap path tick-by-tick at the protocol's own fee
// ratio, advancing a local tick cursor, remaining-amount counter and
// fee-growth accumulator until the amount is exhausted or the stop price
// is reached. With update set, tick crossings flip the market's tick fee
// ledger and the final fee-growth accumulator is written back; otherwise
// the walk is side-effect free.
//
// The protocol charges fee on the quote leg, so per-step fee accrual
// happens only on the base→quote direction; quote→base walks fee-free.
func replay(m *registry.Market, p Params, st replayState, update bool) (replayResult, error) {
	remaining := replayAmount(p.BaseToQuote, p.ExactInput, p.Amount, m.ProtocolFeeRatio)
	feeGrowth := m.FeeGrowthGlobal
	res := replayResult{fee: decimal.Zero, makerFee: decimal.Zero}

	sqrt := st.sqrt
	tick := st.tick
	liquidity := st.liquidity
	makerRatio := one.Sub(m.InsuranceFundFeeRatio)

	for remaining.IsPositive() && (st.stop.IsZero() || !sqrt.Equal(st.stop)) {
		nextTick, found := m.Pool.NextInitializedTick(tick, p.BaseToQuote)
		targetTick := nextTick
		if !found {
			if p.BaseToQuote {
				targetTick = fixedpoint.MinTick
			} else {
				targetTick = fixedpoint.MaxTick
			}
		}
		if targetTick < fixedpoint.MinTick {
			targetTick = fixedpoint.MinTick
		}
		if targetTick > fixedpoint.MaxTick {
			targetTick = fixedpoint.MaxTick
		}

		targetSqrt := fixedpoint.SqrtPriceAtTick(targetTick)
		limited := false
		if !st.stop.IsZero() {
			if p.BaseToQuote && targetSqrt.LessThan(st.stop) {
				targetSqrt = st.stop
				limited = true
			}
			if !p.BaseToQuote && targetSqrt.GreaterThan(st.stop) {
				targetSqrt = st.stop
				limited = true
			}
		}

		if liquidity.IsZero() {
			sqrt = targetSqrt
		} else {
			step, err := fixedpoint.ComputeSwapStep(sqrt, targetSqrt, liquidity, remaining, decimal.Zero, p.ExactInput)
			if err != nil {
				return replayResult{}, err
			}
			if step.NextSqrtPrice.Equal(sqrt) && step.AmountIn.IsZero() && step.AmountOut.IsZero() && !sqrt.Equal(targetSqrt) {
				// Zero-width step on the target boundary still crosses the
				// tick below; only true mid-range dust ends the walk.
				break
			}
			if p.ExactInput {
				remaining = remaining.Sub(step.AmountIn)
			} else {
				remaining = remaining.Sub(step.AmountOut)
			}
			sqrt = step.NextSqrtPrice

			if p.BaseToQuote {
				stepFee := step.AmountOut.Mul(m.ProtocolFeeRatio).Round(fixedpoint.PriceScale)
				res.fee = res.fee.Add(stepFee)
				stepMaker := stepFee.Mul(makerRatio)
				res.makerFee = res.makerFee.Add(stepMaker)
				feeGrowth = feeGrowth.Add(stepMaker.Div(liquidity))
			}
		}

		if !sqrt.Equal(targetSqrt) {
			t, err := fixedpoint.TickAtSqrtPrice(sqrt)
			if err != nil {
				return replayResult{}, err
			}
			tick = t
			break
		}

		if limited {
			t, err := fixedpoint.TickAtSqrtPrice(sqrt)
			if err != nil {
				return replayResult{}, err
			}
			tick = t
			break
		}

		if found {
			if update {
				m.Ticks.CrossTick(nextTick, feeGrowth)
			}
			net := m.Pool.TickLiquidityNet(nextTick)
			if p.BaseToQuote {
				net = net.Neg()
			}
			liquidity = liquidity.Add(net)
			res.crossed++
			if p.BaseToQuote {
				tick = nextTick - 1
			} else {
				tick = nextTick
			}
		} else {
			tick = targetTick
			break
		}
	}

	if update {
		m.FeeGrowthGlobal = feeGrowth
	}
	res.tick = tick
	return res, nil
}
