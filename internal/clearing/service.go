// Package clearing provides the serialized entry points of the perpetual
// clearing engine: minting and burning synthetic tokens, opening and
// closing positions through the pool-replay swap path, maker liquidity
// management, funding settlement, and liquidation.
//
// All monetary values use shopspring/decimal — never float64 for money.
package clearing

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/config"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/fixedpoint"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/funding"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/ledger"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/liquidity"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/margin"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/metrics"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/model"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/oracle"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/pool"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/registry"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/store"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/symbol"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/tickledger"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/vault"
)

var (
	// ErrActionInProgress is returned when a state-mutating entry point is
	// called while another action is in flight, nested calls included.
	ErrActionInProgress = errors.New("clearing: action already in progress")

	// ErrDeadlineExceeded is returned when an action's deadline has passed
	// before any state was touched.
	ErrDeadlineExceeded = errors.New("clearing: deadline exceeded")

	// ErrUnauthorizedCallback is returned when a pool payment callback
	// fires outside the action that armed it.
	ErrUnauthorizedCallback = errors.New("clearing: unauthorized payment callback")

	// ErrNotLiquidatable is returned when the target account is at or
	// above its maintenance margin requirement.
	ErrNotLiquidatable = errors.New("clearing: account above maintenance margin")

	// ErrOrdersNotCancelable is returned when cancelExcessOrders targets
	// an account that still has free collateral.
	ErrOrdersNotCancelable = errors.New("clearing: account has sufficient collateral")

	// ErrNoPosition is returned when closing or liquidating a flat account.
	ErrNoPosition = errors.New("clearing: no position to close")
)

// Service is the clearing engine. Every state-mutating entry point is
// strictly serialized and non-reentrant; each action fully commits or
// fully aborts.
type Service struct {
	cfg     config.AppConfig
	markets *registry.Registry
	ledger  *ledger.AccountLedger
	liq     *liquidity.Manager
	margin  *margin.Calculator
	vault   *vault.Vault
	feed    oracle.PriceFeed
	store   store.Store
	wsHub   *WSHub // optional WebSocket hub for real-time broadcasts

	mu       sync.Mutex
	inAction bool
	// settlingMarket is non-empty while the engine expects pool payment
	// callbacks for that market; callbacks firing outside it are rejected.
	settlingMarket string

	now   func() time.Time
	block func() int64
}

// Deps wires a Service. Now and Block may be nil; they default to wall
// clock and unix-second logical blocks.
type Deps struct {
	Cfg     config.AppConfig
	Markets *registry.Registry
	Ledger  *ledger.AccountLedger
	Liq     *liquidity.Manager
	Margin  *margin.Calculator
	Vault   *vault.Vault
	Feed    oracle.PriceFeed
	Store   store.Store
	Hub     *WSHub
	Now     func() time.Time
	Block   func() int64
}

// NewService creates the clearing service.
// Pass nil for Hub if WebSocket broadcasting is not needed.
func NewService(d Deps) *Service {
	s := &Service{
		cfg:     d.Cfg,
		markets: d.Markets,
		ledger:  d.Ledger,
		liq:     d.Liq,
		margin:  d.Margin,
		vault:   d.Vault,
		feed:    d.Feed,
		store:   d.Store,
		wsHub:   d.Hub,
		now:     d.Now,
		block:   d.Block,
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.block == nil {
		s.block = func() int64 { return s.now().Unix() }
	}
	return s
}

// --- Serialization guard ---

func (s *Service) enter() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inAction {
		return ErrActionInProgress
	}
	s.inAction = true
	return nil
}

func (s *Service) exit() {
	s.mu.Lock()
	s.inAction = false
	s.settlingMarket = ""
	s.mu.Unlock()
}

func (s *Service) checkDeadline(deadline time.Time) error {
	if !deadline.IsZero() && s.now().After(deadline) {
		return ErrDeadlineExceeded
	}
	return nil
}

// --- Pool payment callbacks ---

// swapPayment authorizes the pool's demand during a swap. Token movement
// is bookkept entirely through the ledger deltas the replay produces;
// the pool's reserves act as the synthetic counterparty, so the callback
// only verifies it fires inside the action that armed it.
func (s *Service) swapPayment(m *registry.Market) pool.PaymentCallback {
	return func(baseOwed, quoteOwed decimal.Decimal) error {
		if s.settlingMarket != m.Symbol {
			return ErrUnauthorizedCallback
		}
		return nil
	}
}

// liquidityPayment debits the maker's held balances for a mint. Makers
// must already hold what they supply; nothing is minted here.
func (s *Service) liquidityPayment(m *registry.Market, trader string) pool.PaymentCallback {
	return func(baseOwed, quoteOwed decimal.Decimal) error {
		if s.settlingMarket != m.Symbol {
			return ErrUnauthorizedCallback
		}
		if baseOwed.IsPositive() {
			if err := s.ledger.AdjustAvailable(trader, m.Symbol, baseOwed.Neg()); err != nil {
				return err
			}
		}
		if quoteOwed.IsPositive() {
			if err := s.ledger.AdjustAvailable(trader, s.ledger.QuoteToken(), quoteOwed.Neg()); err != nil {
				return err
			}
		}
		return nil
	}
}

// --- Market lifecycle ---

// AddMarketParams configures a new perpetual market.
type AddMarketParams struct {
	Symbol               string
	StartPrice           decimal.Decimal
	PoolFeeRatio         decimal.Decimal
	ProtocolFeeRatio     decimal.Decimal // zero → same as pool fee
	MaxTickDeltaPerBlock int
}

// AddMarket registers a market and its backing pool.
func (s *Service) AddMarket(ctx context.Context, p AddMarketParams) (*registry.Market, error) {
	if err := s.enter(); err != nil {
		return nil, err
	}
	defer s.exit()

	parsed, err := symbol.Parse(p.Symbol)
	if err != nil {
		return nil, err
	}
	if !p.StartPrice.IsPositive() {
		return nil, errors.New("clearing: start price must be positive")
	}
	spacing, err := symbol.TickSpacingForFee(p.PoolFeeRatio)
	if err != nil {
		return nil, err
	}

	protocolFee := p.ProtocolFeeRatio
	if protocolFee.IsZero() {
		protocolFee = p.PoolFeeRatio
	}

	sqrtPrice := decimalSqrt(p.StartPrice)
	pl, err := pool.New(sqrtPrice, spacing, p.PoolFeeRatio)
	if err != nil {
		return nil, err
	}
	now := s.now()
	m := &registry.Market{
		Symbol:                parsed.Symbol,
		BaseToken:             parsed.BaseToken,
		QuoteToken:            parsed.QuoteToken,
		Pool:                  pl,
		PoolFeeRatio:          p.PoolFeeRatio,
		ProtocolFeeRatio:      protocolFee,
		InsuranceFundFeeRatio: s.cfg.Parsed.InsuranceFundFeeRatio,
		MaxTickDeltaPerBlock:  p.MaxTickDeltaPerBlock,
		Ticks:                 tickledger.New(),
		Funding:               funding.NewState(now, s.cfg.FundingPeriod()),
		CreatedAt:             now,
	}
	if err := s.markets.Add(m); err != nil {
		return nil, err
	}

	record := &model.MarketRecord{
		Symbol:           m.Symbol,
		BaseToken:        m.BaseToken,
		QuoteToken:       m.QuoteToken,
		Tick:             m.Pool.Tick(),
		SqrtPrice:        m.Pool.SqrtPrice(),
		FeeGrowthGlobal:  decimal.Zero,
		PoolFeeRatio:     m.PoolFeeRatio,
		ProtocolFeeRatio: m.ProtocolFeeRatio,
		CreatedAt:        now,
	}
	if err := s.store.CreateMarket(ctx, record); err != nil {
		slog.Warn("market persist failed", "market", m.Symbol, "err", err)
	}
	metrics.ActiveMarkets.Inc()

	slog.Info("market added",
		"market", m.Symbol,
		"start_price", p.StartPrice.String(),
		"pool_fee", p.PoolFeeRatio.String(),
		"protocol_fee", protocolFee.String(),
	)
	return m, nil
}

// --- Mint / Burn ---

// Mint creates synthetic exposure: available and debt both grow by
// amount. Settles pending funding first when the token is a base market,
// and optionally enforces the initial-margin check afterward.
func (s *Service) Mint(ctx context.Context, trader, token string, amount decimal.Decimal, checkMargin bool, deadline time.Time) error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.exit()
	if err := s.checkDeadline(deadline); err != nil {
		return err
	}

	t := s.beginTxn(s.marketOf(token), trader)
	if err := s.settleFundingLocked(trader, token); err != nil {
		t.rollback()
		return err
	}
	if err := s.ledger.Mint(trader, token, amount); err != nil {
		t.rollback()
		return err
	}
	if checkMargin {
		if err := s.margin.CheckInitialMargin(trader); err != nil {
			t.rollback()
			metrics.MarginRejections.Inc()
			return err
		}
	}

	s.journal(ctx, trader, token, model.OpMint, amount, decimal.Zero, decimal.Zero)
	return nil
}

// Burn destroys synthetic exposure: requires amount <= min(available, debt).
func (s *Service) Burn(ctx context.Context, trader, token string, amount decimal.Decimal, deadline time.Time) error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.exit()
	if err := s.checkDeadline(deadline); err != nil {
		return err
	}

	t := s.beginTxn(s.marketOf(token), trader)
	if err := s.settleFundingLocked(trader, token); err != nil {
		t.rollback()
		return err
	}
	if err := s.ledger.Burn(trader, token, amount); err != nil {
		t.rollback()
		return err
	}

	s.journal(ctx, trader, token, model.OpBurn, amount.Neg(), decimal.Zero, decimal.Zero)
	return nil
}

// --- Funding ---

// UpdateFunding settles one funding period for a market. Callable by
// anyone, no more often than once per funding period.
func (s *Service) UpdateFunding(ctx context.Context, market string) (model.FundingEntry, error) {
	if err := s.enter(); err != nil {
		return model.FundingEntry{}, err
	}
	defer s.exit()

	m, err := s.markets.Get(market)
	if err != nil {
		return model.FundingEntry{}, err
	}

	now := s.now()
	period := s.cfg.FundingPeriod()
	m.Funding.RecordMarkPrice(m.MarkPrice(), now)
	markTwap := m.Funding.MarkTwap(period, now)
	indexTwap, err := s.feed.IndexPrice(market, period)
	if err != nil {
		return model.FundingEntry{}, err
	}

	entry, err := m.Funding.Update(markTwap, indexTwap, m.Pool.SqrtPrice(), now, period)
	if err != nil {
		return model.FundingEntry{}, err
	}

	metrics.FundingUpdatesTotal.WithLabelValues(market).Inc()
	s.journal(ctx, "", market, model.OpFundingUpdate, decimal.Zero, entry.PremiumFraction, decimal.Zero)

	slog.Info("funding updated",
		"market", market,
		"premium_fraction", entry.PremiumFraction.String(),
		"mark_twap", markTwap.String(),
		"index_twap", indexTwap.String(),
	)
	return entry, nil
}

// SettleFunding applies a trader's pending funding payments in one market.
func (s *Service) SettleFunding(trader, market string) error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.exit()
	return s.settleFundingLocked(trader, market)
}

// settleFundingLocked is the mandatory pre-step of every action touching
// a trader/market pair. No-op when token is not a registered market.
func (s *Service) settleFundingLocked(trader, token string) error {
	m, err := s.markets.Get(token)
	if err != nil {
		return nil
	}
	payment, next := m.Funding.PendingPayment(
		s.ledger.NextFundingIndex(trader, token),
		func(markSqrtPrice decimal.Decimal) decimal.Decimal {
			return s.margin.PositionSize(trader, m, markSqrtPrice)
		},
	)
	if !payment.IsZero() {
		// Positive payment means the trader owes funding.
		s.ledger.AddOwedRealizedPnl(trader, payment.Neg())
	}
	s.ledger.SetNextFundingIndex(trader, token, next)
	return nil
}

// --- Helpers ---

func (s *Service) marketOf(token string) *registry.Market {
	m, err := s.markets.Get(token)
	if err != nil {
		return nil
	}
	return m
}

// ledgerPositionSize is the directional size held purely in ledger
// balances, excluding pool-resident maker amounts.
func (s *Service) ledgerPositionSize(trader, market string) decimal.Decimal {
	b := s.ledger.Balance(trader, market)
	return b.Available.Sub(b.Debt)
}

func (s *Service) journal(ctx context.Context, trader, market, kind string, size, notional, fee decimal.Decimal) {
	entry := &model.JournalEntry{
		ID:        uuid.New().String(),
		Trader:    trader,
		Market:    market,
		Kind:      kind,
		Size:      size,
		Notional:  notional,
		Fee:       fee,
		Timestamp: s.now(),
	}
	if err := s.store.InsertJournalEntry(ctx, entry); err != nil {
		slog.Warn("journal persist failed", "kind", kind, "err", err)
	}
}

func (s *Service) persistMarket(ctx context.Context, m *registry.Market) {
	if err := s.store.UpdateMarketSnapshot(ctx, m.Symbol, m.Pool.Tick(), m.Pool.SqrtPrice(), m.FeeGrowthGlobal); err != nil {
		slog.Warn("market snapshot persist failed", "market", m.Symbol, "err", err)
	}
}

// decimalSqrt takes the square root through float64 and immediately
// returns to decimal at price precision. Acceptable for prices; never
// used on monetary amounts.
func decimalSqrt(p decimal.Decimal) decimal.Decimal {
	f, _ := p.Float64()
	return decimal.NewFromFloat(math.Sqrt(f)).Round(fixedpoint.PriceScale)
}

// realizePnl accrues a signed realized amount and nets the matching
// quote out of the trader's balances: profit leaves available, loss
// cancels debt first then available. Clamped so balances never go
// negative.
func (s *Service) realizePnl(trader string, amount decimal.Decimal) {
	if amount.IsZero() {
		return
	}
	s.ledger.AddOwedRealizedPnl(trader, amount)
	quote := s.ledger.QuoteToken()
	b := s.ledger.Balance(trader, quote)
	if amount.IsPositive() {
		take := decimal.Min(b.Available, amount)
		if take.IsPositive() {
			s.ledger.AdjustAvailable(trader, quote, take.Neg())
		}
		return
	}
	loss := amount.Neg()
	fromDebt := decimal.Min(b.Debt, loss)
	if fromDebt.IsPositive() {
		s.ledger.AdjustDebt(trader, quote, fromDebt.Neg())
	}
	rest := loss.Sub(fromDebt)
	if rest.IsPositive() {
		take := decimal.Min(b.Available, rest)
		if take.IsPositive() {
			s.ledger.AdjustAvailable(trader, quote, take.Neg())
		}
	}
}
