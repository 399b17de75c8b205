// Package registry owns the per-market wiring the clearing engine reads on
// every action: the pool reference, the pool-native and protocol-native fee
// ratios, the protocol-side tick fee ledger and fee growth accumulator,
// funding state and the per-block price-impact snapshot.
//
// Fee ratios and impact caps are read-mostly configuration; every mutation
// funnels through the single update path here.
package registry

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/funding"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/pool"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/tickledger"
)

var (
	// ErrMarketNotFound is returned for operations on unknown markets.
	ErrMarketNotFound = errors.New("registry: market not found")

	// ErrMarketExists is returned when adding a market twice.
	ErrMarketExists = errors.New("registry: market already exists")
)

// Market aggregates everything the engine tracks per tradable base asset.
type Market struct {
	Symbol     string
	BaseToken  string
	QuoteToken string

	Pool pool.Pool

	// PoolFeeRatio caches the external pool's fee; ProtocolFeeRatio is the
	// protocol's own, independently configurable fee charged on the quote
	// leg. InsuranceFundFeeRatio is the insurance fund's share of every
	// protocol fee.
	PoolFeeRatio          decimal.Decimal
	ProtocolFeeRatio      decimal.Decimal
	InsuranceFundFeeRatio decimal.Decimal

	// MaxTickDeltaPerBlock caps single-block price impact of forced
	// closes. Zero disables the cap.
	MaxTickDeltaPerBlock int

	Ticks           *tickledger.Ledger
	FeeGrowthGlobal decimal.Decimal

	Funding *funding.State

	CreatedAt time.Time

	lastBlock          int64
	lastBlockStartTick int
}

// MarkPrice returns the pool's spot mark price (sqrt price squared).
func (m *Market) MarkPrice() decimal.Decimal {
	p := m.Pool.SqrtPrice()
	return p.Mul(p)
}

// BlockStartTick returns the tick snapshotted at the first swap touching
// this market in the given logical block, taking the snapshot on first use.
func (m *Market) BlockStartTick(block int64) int {
	if block != m.lastBlock {
		m.lastBlock = block
		m.lastBlockStartTick = m.Pool.Tick()
	}
	return m.lastBlockStartTick
}

// Registry is the market directory.
type Registry struct {
	markets map[string]*Market
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{markets: make(map[string]*Market)}
}

// Add registers a market. The symbol must be unused.
func (r *Registry) Add(m *Market) error {
	if _, ok := r.markets[m.Symbol]; ok {
		return ErrMarketExists
	}
	r.markets[m.Symbol] = m
	return nil
}

// Get returns a market by symbol.
func (r *Registry) Get(symbol string) (*Market, error) {
	m, ok := r.markets[symbol]
	if !ok {
		return nil, ErrMarketNotFound
	}
	return m, nil
}

// Has reports whether the symbol is registered.
func (r *Registry) Has(symbol string) bool {
	_, ok := r.markets[symbol]
	return ok
}

// Symbols returns the registered market symbols, sorted.
func (r *Registry) Symbols() []string {
	out := make([]string, 0, len(r.markets))
	for s := range r.markets {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// SetProtocolFeeRatio is the owner-gated update path for a market's
// protocol fee.
func (r *Registry) SetProtocolFeeRatio(symbol string, ratio decimal.Decimal) error {
	m, ok := r.markets[symbol]
	if !ok {
		return ErrMarketNotFound
	}
	m.ProtocolFeeRatio = ratio
	return nil
}

// SetMaxTickDeltaPerBlock is the owner-gated update path for a market's
// price-impact cap.
func (r *Registry) SetMaxTickDeltaPerBlock(symbol string, delta int) error {
	m, ok := r.markets[symbol]
	if !ok {
		return ErrMarketNotFound
	}
	m.MaxTickDeltaPerBlock = delta
	return nil
}
