// Package swap executes directional swaps for the clearing engine. A swap
// runs against the external pool at the pool's native fee rate while the
// protocol's own fee and post-swap tick are computed independently by
// replaying the swap path at the protocol fee rate.
//
// The scaled amount sent to the pool preserves the trader's exact economic
// obligation after the pool extracts its own fee; the difference between
// what the pool demands and that obligation is minted as a
// protocol-covered buffer by the payment callback.
package swap

import (
	"github.com/shopspring/decimal"

	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/fixedpoint"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/model"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/pool"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/registry"
)

var one = decimal.NewFromInt(1)

// Params describes one swap request. Amount is unsigned; direction and
// exactness carry the sign information.
type Params struct {
	BaseToQuote    bool
	ExactInput     bool
	Amount         decimal.Decimal
	SqrtPriceLimit decimal.Decimal // zero means no limit
}

// Result is the swap outcome plus the insurance fund's share of the
// protocol fee (the remainder accrued to makers via fee growth).
type Result struct {
	model.SwapResult
	InsuranceFundFee decimal.Decimal
	TickAfter        int
	TicksCrossed     int
}

// ScaledAmount computes the amount to send to the pool so that, after the
// pool extracts its own fee, the protocol's desired net amount is
// preserved:
//
//	base→quote exact-input:  amount / (1 − poolFee)
//	base→quote exact-output: amount / (1 − protocolFee)
//	quote→base exact-input:  amount × (1 − protocolFee) / (1 − poolFee)
//	quote→base exact-output: amount
func ScaledAmount(baseToQuote, exactInput bool, amount, poolFee, protocolFee decimal.Decimal) decimal.Decimal {
	if baseToQuote {
		if exactInput {
			return amount.Div(one.Sub(poolFee))
		}
		return amount.Div(one.Sub(protocolFee))
	}
	if exactInput {
		return amount.Mul(one.Sub(protocolFee)).Div(one.Sub(poolFee))
	}
	return amount
}

// replayAmount is the fee-free amount the replay walks through: the
// protocol-net input for exact-input swaps, the gross output for
// exact-output swaps.
func replayAmount(baseToQuote, exactInput bool, amount, protocolFee decimal.Decimal) decimal.Decimal {
	if exactInput {
		if baseToQuote {
			return amount
		}
		return amount.Mul(one.Sub(protocolFee))
	}
	if baseToQuote {
		return amount.Div(one.Sub(protocolFee))
	}
	return amount
}

// Execute performs the real pool swap and the protocol-fee replay,
// producing a coherent exchanged-size/notional result. Sign convention:
// positive size/notional corresponds to buying base / paying quote.
func Execute(m *registry.Market, p Params, pay pool.PaymentCallback) (Result, error) {
	scaled := ScaledAmount(p.BaseToQuote, p.ExactInput, p.Amount, m.PoolFeeRatio, m.ProtocolFeeRatio)

	startSqrt := m.Pool.SqrtPrice()
	startTick := m.Pool.Tick()
	startLiquidity := m.Pool.Liquidity()

	outcome, err := m.Pool.Swap(pool.SwapParams{
		BaseToQuote:    p.BaseToQuote,
		ExactInput:     p.ExactInput,
		Amount:         scaled,
		SqrtPriceLimit: p.SqrtPriceLimit,
	}, pay)
	if err != nil {
		return Result{}, err
	}

	rep, err := replay(m, p, replayState{
		sqrt:      startSqrt,
		tick:      startTick,
		liquidity: startLiquidity,
		stop:      outcome.SqrtPriceAfter,
	}, true)
	if err != nil {
		return Result{}, err
	}

	oneMinusPoolFee := one.Sub(m.PoolFeeRatio)
	res := Result{TickAfter: rep.tick, TicksCrossed: rep.crossed}

	if p.BaseToQuote {
		quoteOut := outcome.QuoteDelta.Neg()
		res.ExchangedPositionSize = outcome.BaseDelta.Mul(oneMinusPoolFee).Neg()
		res.ExchangedPositionNotional = quoteOut
		res.Fee = rep.fee
		res.DeltaAvailableBase = res.ExchangedPositionSize
		res.DeltaAvailableQuote = quoteOut.Sub(rep.fee)
		res.InsuranceFundFee = rep.fee.Sub(rep.makerFee)
	} else {
		netQuote := outcome.QuoteDelta.Mul(oneMinusPoolFee)
		fee := netQuote.Mul(m.ProtocolFeeRatio).Div(one.Sub(m.ProtocolFeeRatio)).Round(fixedpoint.PriceScale)
		res.ExchangedPositionSize = outcome.BaseDelta.Neg()
		res.ExchangedPositionNotional = netQuote.Neg()
		res.Fee = fee
		res.DeltaAvailableBase = res.ExchangedPositionSize
		res.DeltaAvailableQuote = netQuote.Add(fee).Neg()

		// The per-step fee-growth update runs only on the base→quote
		// direction; the quote→base maker share lands as one post-replay
		// accrual against the liquidity now in range.
		makerShare := fee.Mul(one.Sub(m.InsuranceFundFeeRatio))
		liq := m.Pool.Liquidity()
		if liq.IsPositive() && makerShare.IsPositive() {
			m.FeeGrowthGlobal = m.FeeGrowthGlobal.Add(makerShare.Div(liq))
			res.InsuranceFundFee = fee.Sub(makerShare)
		} else {
			res.InsuranceFundFee = fee
		}
	}

	return res, nil
}

// ProjectFinalTick replays the swap path from the current pool state
// without mutating anything, returning the tick the swap would end on.
// Used for price-impact capping of forced closes.
func ProjectFinalTick(m *registry.Market, p Params) (int, error) {
	rep, err := replay(m, p, replayState{
		sqrt:      m.Pool.SqrtPrice(),
		tick:      m.Pool.Tick(),
		liquidity: m.Pool.Liquidity(),
	}, false)
	if err != nil {
		return 0, err
	}
	return rep.tick, nil
}
