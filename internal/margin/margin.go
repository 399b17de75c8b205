// Package margin evaluates account health: position sizes including
// pool-resident maker amounts, account value against index prices, and
// the initial/maintenance margin requirements that gate every
// state-mutating action.
//
// All monetary values use shopspring/decimal — never float64 for money.
package margin

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/fixedpoint"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/ledger"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/oracle"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/registry"
)

// ErrBelowInitialMargin is returned when an action would leave the
// account below its initial margin requirement.
var ErrBelowInitialMargin = errors.New("margin: account below initial margin requirement")

// CollateralProvider reports the settlement-token collateral custodied
// for a trader. Implemented by the vault; the indirection keeps this
// package free of custody concerns.
type CollateralProvider interface {
	CollateralOf(trader string) decimal.Decimal
}

// Calculator computes margin figures from the shared ledger, the market
// registry and the index oracle. It holds no mutable state of its own.
type Calculator struct {
	ledger     *ledger.AccountLedger
	markets    *registry.Registry
	feed       oracle.PriceFeed
	collateral CollateralProvider

	imRatio      decimal.Decimal
	mmRatio      decimal.Decimal
	twapInterval time.Duration
}

// NewCalculator wires a calculator. twapInterval is the index TWAP
// window used for valuation; zero means spot.
func NewCalculator(
	l *ledger.AccountLedger,
	markets *registry.Registry,
	feed oracle.PriceFeed,
	collateral CollateralProvider,
	imRatio, mmRatio decimal.Decimal,
	twapInterval time.Duration,
) *Calculator {
	return &Calculator{
		ledger:       l,
		markets:      markets,
		feed:         feed,
		collateral:   collateral,
		imRatio:      imRatio,
		mmRatio:      mmRatio,
		twapInterval: twapInterval,
	}
}

// PositionSize is the trader's directional base exposure in a market at
// the given sqrt price: available minus debt plus the base currently
// sitting in the trader's pool ranges.
func (c *Calculator) PositionSize(trader string, m *registry.Market, sqrtPrice decimal.Decimal) decimal.Decimal {
	bal := c.ledger.Balance(trader, m.Symbol)
	size := bal.Available.Sub(bal.Debt)
	for _, o := range c.ledger.Orders(trader, m.Symbol) {
		base, _, err := fixedpoint.AmountsForLiquidity(
			sqrtPrice,
			fixedpoint.SqrtPriceAtTick(o.LowerTick),
			fixedpoint.SqrtPriceAtTick(o.UpperTick),
			o.Liquidity,
		)
		if err != nil {
			continue
		}
		size = size.Add(base)
	}
	return size
}

// MarkPositionSize is PositionSize at the pool's current price.
func (c *Calculator) MarkPositionSize(trader string, m *registry.Market) decimal.Decimal {
	return c.PositionSize(trader, m, m.Pool.SqrtPrice())
}

// OpenNotional is the settlement-token cost basis of the trader's
// position in a market. Positive for longs.
func (c *Calculator) OpenNotional(trader, market string) decimal.Decimal {
	return c.ledger.OpenNotionalFraction(trader, market)
}

// poolQuote sums the quote currently in the trader's ranges for a market.
func (c *Calculator) poolQuote(trader string, m *registry.Market) decimal.Decimal {
	total := decimal.Zero
	for _, o := range c.ledger.Orders(trader, m.Symbol) {
		_, quote, err := fixedpoint.AmountsForLiquidity(
			m.Pool.SqrtPrice(),
			fixedpoint.SqrtPriceAtTick(o.LowerTick),
			fixedpoint.SqrtPriceAtTick(o.UpperTick),
			o.Liquidity,
		)
		if err != nil {
			continue
		}
		total = total.Add(quote)
	}
	return total
}

// NetQuoteBalance is quote available minus quote debt plus pool-resident
// quote across the trader's registered markets.
func (c *Calculator) NetQuoteBalance(trader string) decimal.Decimal {
	qb := c.ledger.Balance(trader, c.ledger.QuoteToken())
	net := qb.Available.Sub(qb.Debt)
	for _, token := range c.ledger.RegisteredTokens(trader) {
		m, err := c.markets.Get(token)
		if err != nil {
			continue
		}
		net = net.Add(c.poolQuote(trader, m))
	}
	return net
}

// PendingFunding sums the trader's unsettled funding payments across
// registered markets. Positive means the trader owes.
func (c *Calculator) PendingFunding(trader string) decimal.Decimal {
	total := decimal.Zero
	for _, token := range c.ledger.RegisteredTokens(trader) {
		m, err := c.markets.Get(token)
		if err != nil {
			continue
		}
		payment, _ := m.Funding.PendingPayment(
			c.ledger.NextFundingIndex(trader, token),
			func(markSqrtPrice decimal.Decimal) decimal.Decimal {
				return c.PositionSize(trader, m, markSqrtPrice)
			},
		)
		total = total.Add(payment)
	}
	return total
}

// TotalAbsPositionValue values every registered position at the index
// price and sums the absolute values.
func (c *Calculator) TotalAbsPositionValue(trader string) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, token := range c.ledger.RegisteredTokens(trader) {
		m, err := c.markets.Get(token)
		if err != nil {
			continue
		}
		idx, err := c.feed.IndexPrice(token, c.twapInterval)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(c.MarkPositionSize(trader, m).Mul(idx).Abs())
	}
	return total, nil
}

// TotalDebtValue is base debt valued at index prices plus quote debt.
func (c *Calculator) TotalDebtValue(trader string) (decimal.Decimal, error) {
	total := c.ledger.Balance(trader, c.ledger.QuoteToken()).Debt
	for _, token := range c.ledger.RegisteredTokens(trader) {
		if _, err := c.markets.Get(token); err != nil {
			continue
		}
		idx, err := c.feed.IndexPrice(token, c.twapInterval)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(c.ledger.Balance(trader, token).Debt.Mul(idx))
	}
	return total, nil
}

// AccountValue is custodied collateral plus realized PnL owed, minus
// pending funding, plus index-valued position exposure, plus the net
// quote balance.
func (c *Calculator) AccountValue(trader string) (decimal.Decimal, error) {
	v := c.collateral.CollateralOf(trader).
		Add(c.ledger.OwedRealizedPnl(trader)).
		Sub(c.PendingFunding(trader))
	for _, token := range c.ledger.RegisteredTokens(trader) {
		m, err := c.markets.Get(token)
		if err != nil {
			continue
		}
		idx, err := c.feed.IndexPrice(token, c.twapInterval)
		if err != nil {
			return decimal.Zero, err
		}
		v = v.Add(c.MarkPositionSize(trader, m).Mul(idx))
	}
	return v.Add(c.NetQuoteBalance(trader)), nil
}

// InitialMarginRequirement = max(totalAbsPositionValue, totalDebtValue) × imRatio.
func (c *Calculator) InitialMarginRequirement(trader string) (decimal.Decimal, error) {
	pos, err := c.TotalAbsPositionValue(trader)
	if err != nil {
		return decimal.Zero, err
	}
	debt, err := c.TotalDebtValue(trader)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.Max(pos, debt).Mul(c.imRatio), nil
}

// MaintenanceMarginRequirement = totalAbsPositionValue × mmRatio.
func (c *Calculator) MaintenanceMarginRequirement(trader string) (decimal.Decimal, error) {
	pos, err := c.TotalAbsPositionValue(trader)
	if err != nil {
		return decimal.Zero, err
	}
	return pos.Mul(c.mmRatio), nil
}

// MarginRatio is accountValue over totalAbsPositionValue. ok is false
// when the trader has no open exposure.
func (c *Calculator) MarginRatio(trader string) (ratio decimal.Decimal, ok bool, err error) {
	pos, err := c.TotalAbsPositionValue(trader)
	if err != nil {
		return decimal.Zero, false, err
	}
	if pos.IsZero() {
		return decimal.Zero, false, nil
	}
	av, err := c.AccountValue(trader)
	if err != nil {
		return decimal.Zero, false, err
	}
	return av.Div(pos), true, nil
}

// FreeCollateral is what the trader may withdraw: the lesser of pure
// collateral value and account value, minus the initial margin
// requirement. May be negative.
func (c *Calculator) FreeCollateral(trader string) (decimal.Decimal, error) {
	collateral := c.collateral.CollateralOf(trader).
		Add(c.ledger.OwedRealizedPnl(trader)).
		Sub(c.PendingFunding(trader))
	av, err := c.AccountValue(trader)
	if err != nil {
		return decimal.Zero, err
	}
	im, err := c.InitialMarginRequirement(trader)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.Min(collateral, av).Sub(im), nil
}

// CheckInitialMargin rejects accounts below their initial requirement.
func (c *Calculator) CheckInitialMargin(trader string) error {
	av, err := c.AccountValue(trader)
	if err != nil {
		return err
	}
	im, err := c.InitialMarginRequirement(trader)
	if err != nil {
		return err
	}
	if av.LessThan(im) {
		return ErrBelowInitialMargin
	}
	return nil
}

// Liquidatable reports whether the account has fallen below its
// maintenance requirement. Accounts with no exposure never qualify.
func (c *Calculator) Liquidatable(trader string) (bool, error) {
	mm, err := c.MaintenanceMarginRequirement(trader)
	if err != nil {
		return false, err
	}
	if mm.IsZero() {
		return false, nil
	}
	av, err := c.AccountValue(trader)
	if err != nil {
		return false, err
	}
	return av.LessThan(mm), nil
}
