// Package liquidity opens, closes and adjusts maker liquidity ranges
// against the external pool, keeps the tick fee ledger in sync with pool
// tick initialization, and computes owed maker fees from fee-growth deltas.
//
// Makers must already hold the base and quote they supply; nothing is
// minted implicitly here.
package liquidity

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/fixedpoint"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/ledger"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/model"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/pool"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/registry"
)

var (
	// ErrZeroLiquidity is returned when the supplied amounts convert to no
	// liquidity over the requested range.
	ErrZeroLiquidity = errors.New("liquidity: supplied amounts yield zero liquidity")

	// ErrOrderNotFound is returned when removing from a range the trader
	// holds no order in.
	ErrOrderNotFound = errors.New("liquidity: no open order for range")

	// ErrNotEnoughLiquidity is returned when a removal exceeds the order's
	// liquidity units.
	ErrNotEnoughLiquidity = errors.New("liquidity: removal exceeds order liquidity")

	// ErrSlippage is returned when a removal returns less base or quote
	// than the caller's bound. Nothing is executed.
	ErrSlippage = errors.New("liquidity: returned amounts below slippage bounds")
)

// Manager mutates maker positions. It owns no market state of its own;
// orders live in the account ledger and fee accumulators in the market.
type Manager struct {
	ledger *ledger.AccountLedger
}

// NewManager creates a manager over the shared account ledger.
func NewManager(l *ledger.AccountLedger) *Manager {
	return &Manager{ledger: l}
}

// AddParams describes a liquidity provision request. Base and Quote are
// upper bounds on what the maker supplies; the pool takes the amounts the
// range can actually hold at the current price.
type AddParams struct {
	Trader    string
	Base      decimal.Decimal
	Quote     decimal.Decimal
	LowerTick int
	UpperTick int
}

// AddResult reports the executed provision.
type AddResult struct {
	OrderID   string
	Base      decimal.Decimal
	Quote     decimal.Decimal
	Liquidity decimal.Decimal
	Fee       decimal.Decimal
}

// Add supplies liquidity over [lower, upper). The payment callback
// transfers the owed base/quote to the pool; it is expected to debit the
// maker's available balances and fail if they are short.
func (mgr *Manager) Add(m *registry.Market, p AddParams, pay pool.PaymentCallback) (AddResult, error) {
	if err := fixedpoint.CheckRange(p.LowerTick, p.UpperTick); err != nil {
		return AddResult{}, err
	}

	liq, err := liquidityForAmounts(m.Pool.SqrtPrice(), p.LowerTick, p.UpperTick, p.Base, p.Quote)
	if err != nil {
		return AddResult{}, err
	}
	if liq.LessThanOrEqual(decimal.Zero) {
		return AddResult{}, ErrZeroLiquidity
	}

	minted, err := m.Pool.Mint(p.LowerTick, p.UpperTick, liq, pay)
	if err != nil {
		return AddResult{}, err
	}
	if minted.LowerFlipped {
		m.Ticks.InitializeTick(p.LowerTick, m.Pool.Tick(), m.FeeGrowthGlobal)
	}
	if minted.UpperFlipped {
		m.Ticks.InitializeTick(p.UpperTick, m.Pool.Tick(), m.FeeGrowthGlobal)
	}

	inside := m.Ticks.FeeGrowthInside(p.LowerTick, p.UpperTick, m.Pool.Tick(), m.FeeGrowthGlobal)

	res := AddResult{Base: minted.Base, Quote: minted.Quote, Liquidity: liq}

	order := mgr.ledger.OrderByRange(p.Trader, m.Symbol, p.LowerTick, p.UpperTick)
	if order == nil {
		order = &model.OpenOrder{
			ID:                  uuid.New().String(),
			Liquidity:           liq,
			LowerTick:           p.LowerTick,
			UpperTick:           p.UpperTick,
			FeeGrowthInsideLast: inside,
		}
		mgr.ledger.PutOrder(p.Trader, m.Symbol, order)
	} else {
		res.Fee = mgr.touchOrder(order, inside)
		order.Liquidity = order.Liquidity.Add(liq)
	}
	res.OrderID = order.ID

	if res.Fee.IsPositive() {
		if err := mgr.ledger.AdjustAvailable(p.Trader, mgr.ledger.QuoteToken(), res.Fee); err != nil {
			return AddResult{}, err
		}
	}
	mgr.ledger.RegisterToken(p.Trader, m.Symbol)
	mgr.ledger.AddOpenNotionalFraction(p.Trader, m.Symbol, minted.Quote.Sub(res.Fee))

	return res, nil
}

// RemoveParams describes a liquidity removal. Zero Liquidity removes the
// whole order. MinBase/MinQuote are slippage bounds on the returned
// amounts.
type RemoveParams struct {
	Trader    string
	LowerTick int
	UpperTick int
	Liquidity decimal.Decimal
	MinBase   decimal.Decimal
	MinQuote  decimal.Decimal
}

// RemoveResult reports the executed removal.
type RemoveResult struct {
	OrderID string
	Base    decimal.Decimal
	Quote   decimal.Decimal
	Fee     decimal.Decimal
	Closed  bool
}

// Remove withdraws liquidity, enforces the slippage bounds, nets the
// withdrawn base/quote plus owed fee into the maker's ledger, and adjusts
// the open-notional fraction by the negative of the returned quote + fee.
func (mgr *Manager) Remove(m *registry.Market, p RemoveParams) (RemoveResult, error) {
	order := mgr.ledger.OrderByRange(p.Trader, m.Symbol, p.LowerTick, p.UpperTick)
	if order == nil {
		return RemoveResult{}, ErrOrderNotFound
	}

	liq := p.Liquidity
	if liq.IsZero() {
		liq = order.Liquidity
	}
	if liq.GreaterThan(order.Liquidity) {
		return RemoveResult{}, ErrNotEnoughLiquidity
	}

	// Project the returned amounts and check slippage before touching the
	// pool, so a bound breach executes nothing.
	base, quote, err := fixedpoint.AmountsForLiquidity(
		m.Pool.SqrtPrice(),
		fixedpoint.SqrtPriceAtTick(p.LowerTick),
		fixedpoint.SqrtPriceAtTick(p.UpperTick),
		liq,
	)
	if err != nil {
		return RemoveResult{}, err
	}
	if base.LessThan(p.MinBase) || quote.LessThan(p.MinQuote) {
		return RemoveResult{}, ErrSlippage
	}

	burned, err := m.Pool.Burn(p.LowerTick, p.UpperTick, liq)
	if err != nil {
		return RemoveResult{}, err
	}
	if burned.LowerCleared {
		m.Ticks.ClearTick(p.LowerTick)
	}
	if burned.UpperCleared {
		m.Ticks.ClearTick(p.UpperTick)
	}

	inside := m.Ticks.FeeGrowthInside(p.LowerTick, p.UpperTick, m.Pool.Tick(), m.FeeGrowthGlobal)
	fee := mgr.touchOrder(order, inside)

	res := RemoveResult{
		OrderID: order.ID,
		Base:    burned.Base,
		Quote:   burned.Quote,
		Fee:     fee,
	}

	order.Liquidity = order.Liquidity.Sub(liq)
	if order.Liquidity.IsZero() {
		mgr.ledger.RemoveOrder(p.Trader, m.Symbol, order.ID)
		res.Closed = true
	}

	if burned.Base.IsPositive() {
		if err := mgr.ledger.AdjustAvailable(p.Trader, m.Symbol, burned.Base); err != nil {
			return RemoveResult{}, err
		}
	}
	quoteCredit := burned.Quote.Add(fee)
	if quoteCredit.IsPositive() {
		if err := mgr.ledger.AdjustAvailable(p.Trader, mgr.ledger.QuoteToken(), quoteCredit); err != nil {
			return RemoveResult{}, err
		}
	}
	mgr.ledger.AddOpenNotionalFraction(p.Trader, m.Symbol, quoteCredit.Neg())

	return res, nil
}

// RemoveAll withdraws every order the trader holds in the market, with no
// slippage bounds. Used by liquidation and excess-order cancellation.
func (mgr *Manager) RemoveAll(m *registry.Market, trader string) ([]RemoveResult, error) {
	var out []RemoveResult
	for _, o := range mgr.ledger.Orders(trader, m.Symbol) {
		res, err := mgr.Remove(m, RemoveParams{
			Trader:    trader,
			LowerTick: o.LowerTick,
			UpperTick: o.UpperTick,
		})
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

// touchOrder settles the fee newly owed to an order since its last touch
// and advances its fee-growth snapshot. The subtraction is taken as-is:
// only deltas carry meaning, never clamp before subtracting.
func (mgr *Manager) touchOrder(order *model.OpenOrder, inside decimal.Decimal) decimal.Decimal {
	fee := inside.Sub(order.FeeGrowthInsideLast).Mul(order.Liquidity)
	order.FeeGrowthInsideLast = inside
	return fee
}

// liquidityForAmounts converts the supplied base/quote into liquidity
// units, depending on where the current price sits relative to the range.
func liquidityForAmounts(sqrtCurrent decimal.Decimal, lower, upper int, base, quote decimal.Decimal) (decimal.Decimal, error) {
	sqrtLower := fixedpoint.SqrtPriceAtTick(lower)
	sqrtUpper := fixedpoint.SqrtPriceAtTick(upper)

	switch {
	case sqrtCurrent.LessThanOrEqual(sqrtLower):
		return fixedpoint.LiquidityForBase(sqrtLower, sqrtUpper, base)
	case sqrtCurrent.GreaterThanOrEqual(sqrtUpper):
		return fixedpoint.LiquidityForQuote(sqrtLower, sqrtUpper, quote)
	default:
		lb, err := fixedpoint.LiquidityForBase(sqrtCurrent, sqrtUpper, base)
		if err != nil {
			return decimal.Zero, err
		}
		lq, err := fixedpoint.LiquidityForQuote(sqrtLower, sqrtCurrent, quote)
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.Min(lb, lq), nil
	}
}
