package clearing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/metrics"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/model"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/registry"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/swap"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/vault"
)

// SwapParams describes a position-changing swap request.
type SwapParams struct {
	Trader         string
	Market         string
	BaseToQuote    bool
	ExactInput     bool
	Amount         decimal.Decimal
	SqrtPriceLimit decimal.Decimal
	Deadline       time.Time
	CheckMargin    bool
}

// SwapReceipt reports an executed swap together with its ledger effects.
type SwapReceipt struct {
	model.SwapResult
	RealizedPnl  decimal.Decimal
	PositionSize decimal.Decimal
	OpenNotional decimal.Decimal
	TickAfter    int
}

// Swap executes a swap for the trader, minting the input side as needed
// (leverage comes from minted debt, bounded by the margin check).
func (s *Service) Swap(ctx context.Context, p SwapParams) (SwapReceipt, error) {
	if err := s.enter(); err != nil {
		return SwapReceipt{}, err
	}
	defer s.exit()
	if err := s.checkDeadline(p.Deadline); err != nil {
		return SwapReceipt{}, err
	}

	m, err := s.markets.Get(p.Market)
	if err != nil {
		return SwapReceipt{}, err
	}
	t := s.beginTxn(m, p.Trader, vault.InsuranceFundAccount)
	if err := s.settleFundingLocked(p.Trader, p.Market); err != nil {
		t.rollback()
		return SwapReceipt{}, err
	}

	receipt, err := s.executeSwapLocked(m, p)
	if err != nil {
		t.rollback()
		return SwapReceipt{}, err
	}
	if p.CheckMargin {
		if err := s.margin.CheckInitialMargin(p.Trader); err != nil {
			t.rollback()
			metrics.MarginRejections.Inc()
			return SwapReceipt{}, err
		}
	}

	s.commitSwap(ctx, m, p.Trader, model.OpSwap, receipt)
	return receipt, nil
}

// OpenPosition is a swap with the initial-margin check always enforced.
func (s *Service) OpenPosition(ctx context.Context, p SwapParams) (SwapReceipt, error) {
	p.CheckMargin = true
	return s.Swap(ctx, p)
}

// ClosePosition swaps the trader's whole directional position back to
// zero. Fails when flat.
func (s *Service) ClosePosition(ctx context.Context, trader, market string, sqrtPriceLimit decimal.Decimal, deadline time.Time) (SwapReceipt, error) {
	if err := s.enter(); err != nil {
		return SwapReceipt{}, err
	}
	defer s.exit()
	if err := s.checkDeadline(deadline); err != nil {
		return SwapReceipt{}, err
	}

	m, err := s.markets.Get(market)
	if err != nil {
		return SwapReceipt{}, err
	}
	t := s.beginTxn(m, trader, vault.InsuranceFundAccount)
	if err := s.settleFundingLocked(trader, market); err != nil {
		t.rollback()
		return SwapReceipt{}, err
	}

	size := s.ledgerPositionSize(trader, market)
	if size.IsZero() {
		t.rollback()
		return SwapReceipt{}, ErrNoPosition
	}
	p := closeParams(trader, market, size)
	p.SqrtPriceLimit = sqrtPriceLimit

	receipt, err := s.executeSwapLocked(m, p)
	if err != nil {
		t.rollback()
		return SwapReceipt{}, err
	}

	s.commitSwap(ctx, m, trader, model.OpSwap, receipt)
	return receipt, nil
}

// closeParams builds the swap that takes a directional position to zero:
// longs sell exact-input base, shorts buy exact-output base.
func closeParams(trader, market string, size decimal.Decimal) SwapParams {
	if size.IsPositive() {
		return SwapParams{
			Trader:      trader,
			Market:      market,
			BaseToQuote: true,
			ExactInput:  true,
			Amount:      size,
		}
	}
	return SwapParams{
		Trader:      trader,
		Market:      market,
		BaseToQuote: false,
		ExactInput:  false,
		Amount:      size.Neg(),
	}
}

// executeSwapLocked runs the pool swap plus replay and applies every
// ledger effect. Callers hold the action guard and own rollback.
func (s *Service) executeSwapLocked(m *registry.Market, p SwapParams) (SwapReceipt, error) {
	start := time.Now()
	defer func() {
		metrics.SwapLatency.WithLabelValues(m.Symbol).Observe(time.Since(start).Seconds())
	}()

	m.BlockStartTick(s.block())

	s.settlingMarket = m.Symbol
	res, err := swap.Execute(m, swap.Params{
		BaseToQuote:    p.BaseToQuote,
		ExactInput:     p.ExactInput,
		Amount:         p.Amount,
		SqrtPriceLimit: p.SqrtPriceLimit,
	}, s.swapPayment(m))
	s.settlingMarket = ""
	if err != nil {
		return SwapReceipt{}, err
	}

	oldSize := s.ledgerPositionSize(p.Trader, m.Symbol)

	if err := s.coverDelta(p.Trader, m.Symbol, res.DeltaAvailableBase); err != nil {
		return SwapReceipt{}, err
	}
	if err := s.coverDelta(p.Trader, s.ledger.QuoteToken(), res.DeltaAvailableQuote); err != nil {
		return SwapReceipt{}, err
	}

	realized := s.applyNotional(p.Trader, m.Symbol, oldSize, res)
	s.realizePnl(p.Trader, realized)

	if res.InsuranceFundFee.IsPositive() {
		s.ledger.AddOwedRealizedPnl(vault.InsuranceFundAccount, res.InsuranceFundFee)
	}

	s.ledger.BurnMax(p.Trader, m.Symbol)
	s.ledger.BurnMax(p.Trader, s.ledger.QuoteToken())

	m.Funding.RecordMarkPrice(m.MarkPrice(), s.now())

	return SwapReceipt{
		SwapResult:   res.SwapResult,
		RealizedPnl:  realized,
		PositionSize: s.ledgerPositionSize(p.Trader, m.Symbol),
		OpenNotional: s.ledger.OpenNotionalFraction(p.Trader, m.Symbol),
		TickAfter:    res.TickAfter,
	}, nil
}

// coverDelta applies a signed balance delta, minting any shortfall on
// the debit side first so the trade can lever against new debt.
func (s *Service) coverDelta(trader, token string, delta decimal.Decimal) error {
	if delta.IsNegative() {
		avail := s.ledger.Balance(trader, token).Available
		short := delta.Neg().Sub(avail)
		if short.IsPositive() {
			if err := s.ledger.Mint(trader, token, short); err != nil {
				return err
			}
		}
	} else if delta.IsZero() {
		return nil
	}
	return s.ledger.AdjustAvailable(trader, token, delta)
}

// applyNotional updates the open-notional fraction for the swap and
// returns the PnL realized by any position reduction. The cost basis of
// the closed portion is released proportionally.
func (s *Service) applyNotional(trader, market string, oldSize decimal.Decimal, res swap.Result) decimal.Decimal {
	delta := res.ExchangedPositionSize
	dq := res.DeltaAvailableQuote

	if oldSize.IsZero() || delta.IsZero() || oldSize.Sign() == delta.Sign() {
		s.ledger.AddOpenNotionalFraction(trader, market, dq.Neg())
		return decimal.Zero
	}

	closed := decimal.Min(delta.Abs(), oldSize.Abs())
	closedRatio := closed.Div(oldSize.Abs())
	oldFraction := s.ledger.OpenNotionalFraction(trader, market)
	released := oldFraction.Mul(closedRatio)
	closedQuote := dq.Mul(closed.Div(delta.Abs()))
	residualQuote := dq.Sub(closedQuote)

	realized := closedQuote.Sub(released)
	s.ledger.SetOpenNotionalFraction(trader, market,
		oldFraction.Sub(released).Sub(residualQuote))
	return realized
}

// commitSwap records journal/metrics/broadcast effects after a swap
// action has fully committed.
func (s *Service) commitSwap(ctx context.Context, m *registry.Market, trader, kind string, r SwapReceipt) {
	direction := "quote_to_base"
	if r.ExchangedPositionSize.IsNegative() {
		direction = "base_to_quote"
	}
	metrics.SwapsTotal.WithLabelValues(m.Symbol, direction).Inc()
	metrics.MarketVolume.WithLabelValues(m.Symbol, direction).
		Add(r.ExchangedPositionNotional.Abs().InexactFloat64())

	s.journal(ctx, trader, m.Symbol, kind, r.ExchangedPositionSize, r.ExchangedPositionNotional, r.Fee)
	s.persistMarket(ctx, m)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:      "swap_executed",
			Market:    m.Symbol,
			Trader:    trader,
			MarkPrice: m.MarkPrice().String(),
			Tick:      m.Pool.Tick(),
			Size:      r.ExchangedPositionSize.String(),
			Notional:  r.ExchangedPositionNotional.String(),
			Fee:       r.Fee.String(),
		})
	}
}
