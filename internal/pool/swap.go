package pool

import (
	"github.com/shopspring/decimal"

	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/fixedpoint"
)

// Swap executes a directional swap against the pool's live tick state,
// charging the pool's native fee ratio on the input token. The payment
// callback is invoked with the owed input before any state is committed;
// a callback error aborts the swap leaving the pool untouched.
//
// The swap walks initialized ticks in the trade direction, crossing each
// one it reaches, until the amount is exhausted, the price limit is hit,
// or the tick range is out of liquidity.
func (p *MemoryPool) Swap(params SwapParams, pay PaymentCallback) (SwapOutcome, error) {
	if params.Amount.LessThanOrEqual(decimal.Zero) {
		return SwapOutcome{}, ErrZeroAmount
	}

	limit := params.SqrtPriceLimit
	if limit.IsZero() {
		if params.BaseToQuote {
			limit = fixedpoint.SqrtPriceAtTick(fixedpoint.MinTick)
		} else {
			limit = fixedpoint.SqrtPriceAtTick(fixedpoint.MaxTick)
		}
	}

	sqrt := p.sqrtPrice
	tick := p.tick
	liquidity := p.liquidity
	remaining := params.Amount
	totalIn := decimal.Zero
	totalOut := decimal.Zero
	crossed := 0

	for remaining.IsPositive() && !sqrt.Equal(limit) {
		nextTick, found := p.NextInitializedTick(tick, params.BaseToQuote)
		targetTick := nextTick
		if !found {
			if params.BaseToQuote {
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
		if params.BaseToQuote && targetSqrt.LessThan(limit) {
			targetSqrt = limit
			limited = true
		}
		if !params.BaseToQuote && targetSqrt.GreaterThan(limit) {
			targetSqrt = limit
			limited = true
		}

		if liquidity.IsZero() {
			// Gap with no liquidity: the price jumps to the target.
			sqrt = targetSqrt
		} else {
			step, err := fixedpoint.ComputeSwapStep(sqrt, targetSqrt, liquidity, remaining, p.feeRatio, params.ExactInput)
			if err != nil {
				return SwapOutcome{}, err
			}
			consumedIn := step.AmountIn.Add(step.FeeAmount)
			if step.NextSqrtPrice.Equal(sqrt) && step.AmountOut.IsZero() && consumedIn.IsZero() && !sqrt.Equal(targetSqrt) {
				// Residual dust too small to move the price. A zero-width
				// step that sits exactly on the target boundary is not dust:
				// it must fall through so the tick still gets crossed.
				break
			}
			totalIn = totalIn.Add(consumedIn)
			totalOut = totalOut.Add(step.AmountOut)
			if params.ExactInput {
				remaining = remaining.Sub(consumedIn)
			} else {
				remaining = remaining.Sub(step.AmountOut)
			}
			sqrt = step.NextSqrtPrice
		}

		if !sqrt.Equal(targetSqrt) {
			// Amount exhausted mid-range.
			t, err := fixedpoint.TickAtSqrtPrice(sqrt)
			if err != nil {
				return SwapOutcome{}, err
			}
			tick = t
			break
		}

		if limited {
			t, err := fixedpoint.TickAtSqrtPrice(sqrt)
			if err != nil {
				return SwapOutcome{}, err
			}
			tick = t
			break
		}

		if found {
			// Crossed an initialized tick: apply its liquidity delta,
			// sign-flipped when moving down.
			net := p.ticks[nextTick].liquidityNet
			if params.BaseToQuote {
				net = net.Neg()
			}
			liquidity = liquidity.Add(net)
			crossed++
			if params.BaseToQuote {
				tick = nextTick - 1
			} else {
				tick = nextTick
			}
		} else {
			tick = targetTick
			break
		}
	}

	var baseOwed, quoteOwed decimal.Decimal
	out := SwapOutcome{SqrtPriceAfter: sqrt, TickAfter: tick, TicksCrossed: crossed}
	if params.BaseToQuote {
		baseOwed = totalIn
		out.BaseDelta = totalIn
		out.QuoteDelta = totalOut.Neg()
	} else {
		quoteOwed = totalIn
		out.QuoteDelta = totalIn
		out.BaseDelta = totalOut.Neg()
	}

	if err := pay(baseOwed, quoteOwed); err != nil {
		return SwapOutcome{}, err
	}

	p.sqrtPrice = sqrt
	p.tick = tick
	p.liquidity = liquidity
	if params.BaseToQuote {
		p.baseReserve = p.baseReserve.Add(totalIn)
		p.quoteReserve = p.quoteReserve.Sub(totalOut)
	} else {
		p.quoteReserve = p.quoteReserve.Add(totalIn)
		p.baseReserve = p.baseReserve.Sub(totalOut)
	}
	return out, nil
}
