package clearing

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/metrics"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/model"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/registry"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/swap"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/vault"
)

// LiquidationReceipt reports an executed liquidation.
type LiquidationReceipt struct {
	SwapReceipt
	Penalty        decimal.Decimal
	OrdersRemoved  int
	PartialClose   bool
	BadDebtCovered decimal.Decimal
}

// Liquidate closes an undercollateralized account's position in one
// market. All maker liquidity is removed first (orders are never
// partially liquidated), then the now-purely-directional position is
// closed through an impact-capped swap. The penalty comes out of the
// target's realized PnL and is credited to the caller.
func (s *Service) Liquidate(ctx context.Context, liquidator, trader, market string) (LiquidationReceipt, error) {
	if err := s.enter(); err != nil {
		return LiquidationReceipt{}, err
	}
	defer s.exit()

	m, err := s.markets.Get(market)
	if err != nil {
		return LiquidationReceipt{}, err
	}
	t := s.beginTxn(m, trader, liquidator, vault.InsuranceFundAccount)
	if err := s.settleFundingLocked(trader, market); err != nil {
		t.rollback()
		return LiquidationReceipt{}, err
	}

	ok, err := s.margin.Liquidatable(trader)
	if err != nil {
		t.rollback()
		return LiquidationReceipt{}, err
	}
	if !ok {
		t.rollback()
		return LiquidationReceipt{}, ErrNotLiquidatable
	}

	removed, err := s.liq.RemoveAll(m, trader)
	if err != nil {
		t.rollback()
		return LiquidationReceipt{}, err
	}

	size := s.ledgerPositionSize(trader, market)
	if size.IsZero() {
		t.rollback()
		return LiquidationReceipt{}, ErrNoPosition
	}

	p := closeParams(trader, market, size)
	amount, partial := s.capImpact(m, p)
	p.Amount = amount

	receipt, err := s.executeSwapLocked(m, p)
	if err != nil {
		t.rollback()
		return LiquidationReceipt{}, err
	}

	penalty := s.cfg.Parsed.LiquidationPenaltyRatio.Mul(receipt.ExchangedPositionNotional.Abs())
	s.ledger.AddOwedRealizedPnl(trader, penalty.Neg())
	s.ledger.AddOwedRealizedPnl(liquidator, penalty)

	// Settle the target into the vault and let the insurance fund absorb
	// anything their collateral cannot cover.
	s.vault.SettlePnl(trader)
	covered := s.vault.CoverBadDebt(trader)

	metrics.LiquidationsTotal.WithLabelValues(market).Inc()
	s.journal(ctx, trader, market, model.OpLiquidate,
		receipt.ExchangedPositionSize, receipt.ExchangedPositionNotional, penalty)
	s.persistMarket(ctx, m)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:      "liquidation",
			Market:    market,
			Trader:    trader,
			MarkPrice: m.MarkPrice().String(),
			Tick:      m.Pool.Tick(),
			Size:      receipt.ExchangedPositionSize.String(),
			Notional:  receipt.ExchangedPositionNotional.String(),
			Fee:       penalty.String(),
		})
	}

	slog.Info("liquidation executed",
		"market", market,
		"trader", trader,
		"liquidator", liquidator,
		"size", receipt.ExchangedPositionSize.String(),
		"penalty", penalty.String(),
		"partial", partial,
		"orders_removed", len(removed),
	)

	return LiquidationReceipt{
		SwapReceipt:    receipt,
		Penalty:        penalty,
		OrdersRemoved:  len(removed),
		PartialClose:   partial,
		BadDebtCovered: covered,
	}, nil
}

// capImpact scales a forced close down by the partial-close ratio when
// the projected post-swap tick would move further from the block's
// starting tick than the market's configured cap. The projection reuses
// the replay without mutating state.
func (s *Service) capImpact(m *registry.Market, p SwapParams) (decimal.Decimal, bool) {
	if m.MaxTickDeltaPerBlock <= 0 {
		return p.Amount, false
	}
	start := m.BlockStartTick(s.block())
	projected, err := swap.ProjectFinalTick(m, swap.Params{
		BaseToQuote:    p.BaseToQuote,
		ExactInput:     p.ExactInput,
		Amount:         p.Amount,
		SqrtPriceLimit: p.SqrtPriceLimit,
	})
	if err != nil {
		return p.Amount, false
	}
	delta := projected - start
	if delta < 0 {
		delta = -delta
	}
	if delta <= m.MaxTickDeltaPerBlock {
		return p.Amount, false
	}
	return p.Amount.Mul(s.cfg.Parsed.PartialCloseRatio), true
}
