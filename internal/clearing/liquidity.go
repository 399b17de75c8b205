package clearing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/liquidity"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/model"
)

// AddLiquidityParams describes a maker provision request.
type AddLiquidityParams struct {
	Trader    string
	Market    string
	Base      decimal.Decimal
	Quote     decimal.Decimal
	LowerTick int
	UpperTick int
	Deadline  time.Time
}

// AddLiquidity supplies held base and quote into a pool range. The maker
// must already hold the amounts; nothing is minted implicitly.
func (s *Service) AddLiquidity(ctx context.Context, p AddLiquidityParams) (liquidity.AddResult, error) {
	if err := s.enter(); err != nil {
		return liquidity.AddResult{}, err
	}
	defer s.exit()
	if err := s.checkDeadline(p.Deadline); err != nil {
		return liquidity.AddResult{}, err
	}

	m, err := s.markets.Get(p.Market)
	if err != nil {
		return liquidity.AddResult{}, err
	}
	t := s.beginTxn(m, p.Trader)
	if err := s.settleFundingLocked(p.Trader, p.Market); err != nil {
		t.rollback()
		return liquidity.AddResult{}, err
	}

	s.settlingMarket = m.Symbol
	res, err := s.liq.Add(m, liquidity.AddParams{
		Trader:    p.Trader,
		Base:      p.Base,
		Quote:     p.Quote,
		LowerTick: p.LowerTick,
		UpperTick: p.UpperTick,
	}, s.liquidityPayment(m, p.Trader))
	s.settlingMarket = ""
	if err != nil {
		t.rollback()
		return liquidity.AddResult{}, err
	}

	s.journal(ctx, p.Trader, p.Market, model.OpAddLiquidity, res.Base, res.Quote, res.Fee)
	s.persistMarket(ctx, m)
	return res, nil
}

// RemoveLiquidityParams describes a maker withdrawal request. Zero
// Liquidity removes the whole order.
type RemoveLiquidityParams struct {
	Trader    string
	Market    string
	LowerTick int
	UpperTick int
	Liquidity decimal.Decimal
	MinBase   decimal.Decimal
	MinQuote  decimal.Decimal
	Deadline  time.Time
}

// RemoveLiquidity withdraws a maker range, settling owed fees.
func (s *Service) RemoveLiquidity(ctx context.Context, p RemoveLiquidityParams) (liquidity.RemoveResult, error) {
	if err := s.enter(); err != nil {
		return liquidity.RemoveResult{}, err
	}
	defer s.exit()
	if err := s.checkDeadline(p.Deadline); err != nil {
		return liquidity.RemoveResult{}, err
	}

	m, err := s.markets.Get(p.Market)
	if err != nil {
		return liquidity.RemoveResult{}, err
	}
	t := s.beginTxn(m, p.Trader)
	if err := s.settleFundingLocked(p.Trader, p.Market); err != nil {
		t.rollback()
		return liquidity.RemoveResult{}, err
	}

	res, err := s.liq.Remove(m, liquidity.RemoveParams{
		Trader:    p.Trader,
		LowerTick: p.LowerTick,
		UpperTick: p.UpperTick,
		Liquidity: p.Liquidity,
		MinBase:   p.MinBase,
		MinQuote:  p.MinQuote,
	})
	if err != nil {
		t.rollback()
		return liquidity.RemoveResult{}, err
	}

	// Withdrawn base and fee-burned legs may now net to zero.
	s.ledger.BurnMax(p.Trader, p.Market)
	s.ledger.BurnMax(p.Trader, s.ledger.QuoteToken())

	s.journal(ctx, p.Trader, p.Market, model.OpRemoveLiquidity, res.Base.Neg(), res.Quote.Neg(), res.Fee)
	s.persistMarket(ctx, m)
	return res, nil
}

// CancelExcessOrders force-removes every maker order of an account whose
// free collateral has gone negative. Callable by anyone.
func (s *Service) CancelExcessOrders(ctx context.Context, trader, market string) error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.exit()

	m, err := s.markets.Get(market)
	if err != nil {
		return err
	}
	t := s.beginTxn(m, trader)
	if err := s.settleFundingLocked(trader, market); err != nil {
		t.rollback()
		return err
	}

	free, err := s.margin.FreeCollateral(trader)
	if err != nil {
		t.rollback()
		return err
	}
	if !free.IsNegative() {
		t.rollback()
		return ErrOrdersNotCancelable
	}

	if _, err := s.liq.RemoveAll(m, trader); err != nil {
		t.rollback()
		return err
	}
	s.ledger.BurnMax(trader, market)
	s.ledger.BurnMax(trader, s.ledger.QuoteToken())

	s.journal(ctx, trader, market, model.OpCancelOrders, decimal.Zero, decimal.Zero, decimal.Zero)
	s.persistMarket(ctx, m)
	return nil
}
