package fixedpoint

import "github.com/shopspring/decimal"

// SwapStep is the outcome of swapping within a single tick range.
// AmountIn is the net input absorbed by the curve; FeeAmount is charged
// on the input token on top of AmountIn.
type SwapStep struct {
	NextSqrtPrice decimal.Decimal
	AmountIn      decimal.Decimal
	AmountOut     decimal.Decimal
	FeeAmount     decimal.Decimal
}

// ComputeSwapStep advances the price from sqrtCurrent toward sqrtTarget,
// constrained by amountRemaining. Direction is implied by the ordering of
// the two prices: target below current sells base for quote, target above
// current sells quote for base. For exact-input swaps amountRemaining is
// the gross input budget (fee included); for exact-output it is the output
// still wanted. feeRatio is charged on the input token.
//
// When the target is reached, NextSqrtPrice equals sqrtTarget exactly so
// callers can detect tick crossings by equality.
func ComputeSwapStep(
	sqrtCurrent, sqrtTarget, liquidity, amountRemaining decimal.Decimal,
	feeRatio decimal.Decimal,
	isExactInput bool,
) (SwapStep, error) {
	if liquidity.LessThanOrEqual(decimal.Zero) || sqrtCurrent.LessThanOrEqual(decimal.Zero) {
		return SwapStep{}, ErrZeroDivision
	}
	oneMinusFee := decimal.NewFromInt(1).Sub(feeRatio)
	if oneMinusFee.LessThanOrEqual(decimal.Zero) {
		return SwapStep{}, ErrZeroDivision
	}

	baseToQuote := sqrtTarget.LessThan(sqrtCurrent)
	var step SwapStep

	if isExactInput {
		netRemaining := amountRemaining.Mul(oneMinusFee)

		var maxIn decimal.Decimal
		if baseToQuote {
			in, err := BaseAmountDelta(sqrtTarget, sqrtCurrent, liquidity)
			if err != nil {
				return SwapStep{}, err
			}
			maxIn = in
		} else {
			maxIn = QuoteAmountDelta(sqrtCurrent, sqrtTarget, liquidity)
		}

		if netRemaining.GreaterThanOrEqual(maxIn) {
			step.NextSqrtPrice = sqrtTarget
			step.AmountIn = maxIn
			step.FeeAmount = maxIn.Mul(feeRatio).Div(oneMinusFee).Round(PriceScale)
		} else {
			step.AmountIn = netRemaining
			step.FeeAmount = amountRemaining.Sub(netRemaining)
			if baseToQuote {
				// next = L*cur / (L + in*cur)
				denom := liquidity.Add(netRemaining.Mul(sqrtCurrent))
				step.NextSqrtPrice = liquidity.Mul(sqrtCurrent).Div(denom).Round(PriceScale)
			} else {
				step.NextSqrtPrice = sqrtCurrent.Add(netRemaining.Div(liquidity)).Round(PriceScale)
			}
		}

		if baseToQuote {
			step.AmountOut = QuoteAmountDelta(step.NextSqrtPrice, sqrtCurrent, liquidity)
		} else {
			out, err := BaseAmountDelta(sqrtCurrent, step.NextSqrtPrice, liquidity)
			if err != nil {
				return SwapStep{}, err
			}
			step.AmountOut = out
		}
		return step, nil
	}

	// Exact output.
	var maxOut decimal.Decimal
	if baseToQuote {
		maxOut = QuoteAmountDelta(sqrtTarget, sqrtCurrent, liquidity)
	} else {
		out, err := BaseAmountDelta(sqrtCurrent, sqrtTarget, liquidity)
		if err != nil {
			return SwapStep{}, err
		}
		maxOut = out
	}

	if amountRemaining.GreaterThanOrEqual(maxOut) {
		step.NextSqrtPrice = sqrtTarget
		step.AmountOut = maxOut
	} else {
		step.AmountOut = amountRemaining
		if baseToQuote {
			step.NextSqrtPrice = sqrtCurrent.Sub(amountRemaining.Div(liquidity)).Round(PriceScale)
			if step.NextSqrtPrice.LessThanOrEqual(decimal.Zero) {
				return SwapStep{}, ErrZeroDivision
			}
		} else {
			// next = L*cur / (L - out*cur); the denominator reaching zero
			// means the range cannot supply the requested base.
			denom := liquidity.Sub(amountRemaining.Mul(sqrtCurrent))
			if denom.LessThanOrEqual(decimal.Zero) {
				return SwapStep{}, ErrZeroDivision
			}
			step.NextSqrtPrice = liquidity.Mul(sqrtCurrent).Div(denom).Round(PriceScale)
		}
	}

	if baseToQuote {
		in, err := BaseAmountDelta(step.NextSqrtPrice, sqrtCurrent, liquidity)
		if err != nil {
			return SwapStep{}, err
		}
		step.AmountIn = in
	} else {
		step.AmountIn = QuoteAmountDelta(sqrtCurrent, step.NextSqrtPrice, liquidity)
	}
	step.FeeAmount = step.AmountIn.Mul(feeRatio).Div(oneMinusFee).Round(PriceScale)
	return step, nil
}
