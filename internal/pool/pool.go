// Package pool implements the concentrated-liquidity AMM the clearing
// engine trades against. The engine treats the pool as an external
// collaborator with a known tick/liquidity interface: it never reaches
// into pool internals, and the pool collects payment for swaps and mints
// through synchronous callbacks.
//
// All monetary values use shopspring/decimal — never float64 for money.
package pool

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/fixedpoint"
)

var (
	// ErrUnalignedTick is returned when a range bound is not a multiple of
	// the pool's tick spacing.
	ErrUnalignedTick = errors.New("pool: tick not aligned to spacing")

	// ErrZeroLiquidity is returned for zero-liquidity mints and burns.
	ErrZeroLiquidity = errors.New("pool: liquidity must be positive")

	// ErrPositionUnderflow is returned when a burn exceeds the liquidity
	// held in that range.
	ErrPositionUnderflow = errors.New("pool: burn exceeds position liquidity")

	// ErrZeroAmount is returned for zero-amount swaps.
	ErrZeroAmount = errors.New("pool: swap amount must be positive")
)

// PaymentCallback collects the tokens a pool operation demands. Both
// amounts are non-negative and denominated in base/quote respectively.
// Returning an error aborts the operation with no pool state change.
type PaymentCallback func(baseOwed, quoteOwed decimal.Decimal) error

// MintResult reports the token amounts a mint consumed and whether the
// range bounds transitioned from uninitialized to initialized.
type MintResult struct {
	Base         decimal.Decimal
	Quote        decimal.Decimal
	LowerFlipped bool
	UpperFlipped bool
}

// BurnResult reports the token amounts a burn released and whether the
// range bounds transitioned back to uninitialized.
type BurnResult struct {
	Base         decimal.Decimal
	Quote        decimal.Decimal
	LowerCleared bool
	UpperCleared bool
}

// SwapParams describes a directional swap request.
type SwapParams struct {
	BaseToQuote   bool
	ExactInput    bool
	Amount        decimal.Decimal
	SqrtPriceLimit decimal.Decimal // zero means no limit
}

// SwapOutcome reports the executed swap. Deltas are signed from the pool's
// perspective: positive = owed to the pool, negative = paid out by it.
type SwapOutcome struct {
	BaseDelta     decimal.Decimal
	QuoteDelta    decimal.Decimal
	SqrtPriceAfter decimal.Decimal
	TickAfter     int
	TicksCrossed  int
}

// Pool is the AMM surface the clearing engine consumes.
type Pool interface {
	Tick() int
	SqrtPrice() decimal.Decimal
	Liquidity() decimal.Decimal
	TickSpacing() int
	FeeRatio() decimal.Decimal
	IsTickInitialized(tick int) bool
	TickLiquidityNet(tick int) decimal.Decimal
	NextInitializedTick(from int, lte bool) (tick int, found bool)
	PositionLiquidity(lower, upper int) decimal.Decimal
	Mint(lower, upper int, liquidity decimal.Decimal, pay PaymentCallback) (MintResult, error)
	Burn(lower, upper int, liquidity decimal.Decimal) (BurnResult, error)
	Swap(params SwapParams, pay PaymentCallback) (SwapOutcome, error)

	// Snapshot and Restore support the engine's all-or-nothing actions:
	// a failed action must leave the pool byte-for-byte unchanged.
	Snapshot() *State
	Restore(*State)
}

type tickState struct {
	liquidityGross decimal.Decimal
	liquidityNet   decimal.Decimal
}

// MemoryPool is the in-memory pool implementation.
type MemoryPool struct {
	tickSpacing int
	feeRatio    decimal.Decimal

	sqrtPrice decimal.Decimal
	tick      int
	liquidity decimal.Decimal

	ticks  map[int]*tickState
	sorted []int // initialized ticks, ascending

	positions map[rangeKey]decimal.Decimal

	baseReserve  decimal.Decimal
	quoteReserve decimal.Decimal
}

type rangeKey struct{ lower, upper int }

// New creates a pool at the given starting sqrt price.
func New(sqrtPrice decimal.Decimal, tickSpacing int, feeRatio decimal.Decimal) (*MemoryPool, error) {
	tick, err := fixedpoint.TickAtSqrtPrice(sqrtPrice)
	if err != nil {
		return nil, err
	}
	if tickSpacing < 1 {
		tickSpacing = 1
	}
	return &MemoryPool{
		tickSpacing: tickSpacing,
		feeRatio:    feeRatio,
		sqrtPrice:   sqrtPrice,
		tick:        tick,
		ticks:       make(map[int]*tickState),
		positions:   make(map[rangeKey]decimal.Decimal),
	}, nil
}

func (p *MemoryPool) Tick() int                    { return p.tick }
func (p *MemoryPool) SqrtPrice() decimal.Decimal   { return p.sqrtPrice }
func (p *MemoryPool) Liquidity() decimal.Decimal   { return p.liquidity }
func (p *MemoryPool) TickSpacing() int             { return p.tickSpacing }
func (p *MemoryPool) FeeRatio() decimal.Decimal    { return p.feeRatio }

func (p *MemoryPool) IsTickInitialized(tick int) bool {
	_, ok := p.ticks[tick]
	return ok
}

func (p *MemoryPool) TickLiquidityNet(tick int) decimal.Decimal {
	if ts, ok := p.ticks[tick]; ok {
		return ts.liquidityNet
	}
	return decimal.Zero
}

// NextInitializedTick returns the nearest initialized tick at or below
// `from` (lte) or strictly above it (!lte).
func (p *MemoryPool) NextInitializedTick(from int, lte bool) (int, bool) {
	if lte {
		i := sort.SearchInts(p.sorted, from+1) - 1
		if i < 0 {
			return 0, false
		}
		return p.sorted[i], true
	}
	i := sort.SearchInts(p.sorted, from+1)
	if i >= len(p.sorted) {
		return 0, false
	}
	return p.sorted[i], true
}

// PositionLiquidity returns the liquidity held in the given range; used by
// the engine to reconcile its order book against pool-side holdings.
func (p *MemoryPool) PositionLiquidity(lower, upper int) decimal.Decimal {
	return p.positions[rangeKey{lower, upper}]
}

// Reserves returns the pool's token holdings.
func (p *MemoryPool) Reserves() (base, quote decimal.Decimal) {
	return p.baseReserve, p.quoteReserve
}

func (p *MemoryPool) checkRange(lower, upper int) error {
	if err := fixedpoint.CheckRange(lower, upper); err != nil {
		return err
	}
	if lower%p.tickSpacing != 0 || upper%p.tickSpacing != 0 {
		return ErrUnalignedTick
	}
	return nil
}

// Mint adds liquidity over [lower, upper), collecting the owed token
// amounts through the payment callback before committing any state.
func (p *MemoryPool) Mint(lower, upper int, liquidity decimal.Decimal, pay PaymentCallback) (MintResult, error) {
	if err := p.checkRange(lower, upper); err != nil {
		return MintResult{}, err
	}
	if liquidity.LessThanOrEqual(decimal.Zero) {
		return MintResult{}, ErrZeroLiquidity
	}

	base, quote, err := fixedpoint.AmountsForLiquidity(
		p.sqrtPrice,
		fixedpoint.SqrtPriceAtTick(lower),
		fixedpoint.SqrtPriceAtTick(upper),
		liquidity,
	)
	if err != nil {
		return MintResult{}, err
	}

	if err := pay(base, quote); err != nil {
		return MintResult{}, err
	}

	res := MintResult{
		Base:         base,
		Quote:        quote,
		LowerFlipped: p.updateTick(lower, liquidity, false),
		UpperFlipped: p.updateTick(upper, liquidity, true),
	}
	if lower <= p.tick && p.tick < upper {
		p.liquidity = p.liquidity.Add(liquidity)
	}
	key := rangeKey{lower, upper}
	p.positions[key] = p.positions[key].Add(liquidity)
	p.baseReserve = p.baseReserve.Add(base)
	p.quoteReserve = p.quoteReserve.Add(quote)
	return res, nil
}

// Burn removes liquidity from [lower, upper) and pays out the released
// token amounts.
func (p *MemoryPool) Burn(lower, upper int, liquidity decimal.Decimal) (BurnResult, error) {
	if err := p.checkRange(lower, upper); err != nil {
		return BurnResult{}, err
	}
	if liquidity.LessThanOrEqual(decimal.Zero) {
		return BurnResult{}, ErrZeroLiquidity
	}
	key := rangeKey{lower, upper}
	held := p.positions[key]
	if liquidity.GreaterThan(held) {
		return BurnResult{}, ErrPositionUnderflow
	}

	base, quote, err := fixedpoint.AmountsForLiquidity(
		p.sqrtPrice,
		fixedpoint.SqrtPriceAtTick(lower),
		fixedpoint.SqrtPriceAtTick(upper),
		liquidity,
	)
	if err != nil {
		return BurnResult{}, err
	}

	res := BurnResult{
		Base:         base,
		Quote:        quote,
		LowerCleared: p.updateTick(lower, liquidity.Neg(), false),
		UpperCleared: p.updateTick(upper, liquidity.Neg(), true),
	}
	if lower <= p.tick && p.tick < upper {
		p.liquidity = p.liquidity.Sub(liquidity)
	}
	remaining := held.Sub(liquidity)
	if remaining.IsZero() {
		delete(p.positions, key)
	} else {
		p.positions[key] = remaining
	}
	p.baseReserve = p.baseReserve.Sub(base)
	p.quoteReserve = p.quoteReserve.Sub(quote)
	return res, nil
}

// updateTick applies a liquidity delta to a tick and reports whether the
// tick flipped between initialized and uninitialized.
func (p *MemoryPool) updateTick(tick int, delta decimal.Decimal, isUpper bool) bool {
	ts, ok := p.ticks[tick]
	if !ok {
		ts = &tickState{}
	}
	grossBefore := ts.liquidityGross
	ts.liquidityGross = ts.liquidityGross.Add(delta)
	if isUpper {
		ts.liquidityNet = ts.liquidityNet.Sub(delta)
	} else {
		ts.liquidityNet = ts.liquidityNet.Add(delta)
	}

	flipped := grossBefore.IsZero() != ts.liquidityGross.IsZero()
	if ts.liquidityGross.IsZero() {
		delete(p.ticks, tick)
		p.removeSorted(tick)
	} else {
		if !ok {
			p.ticks[tick] = ts
		}
		if grossBefore.IsZero() {
			p.insertSorted(tick)
		}
	}
	return flipped
}

func (p *MemoryPool) insertSorted(tick int) {
	i := sort.SearchInts(p.sorted, tick)
	if i < len(p.sorted) && p.sorted[i] == tick {
		return
	}
	p.sorted = append(p.sorted, 0)
	copy(p.sorted[i+1:], p.sorted[i:])
	p.sorted[i] = tick
}

func (p *MemoryPool) removeSorted(tick int) {
	i := sort.SearchInts(p.sorted, tick)
	if i < len(p.sorted) && p.sorted[i] == tick {
		p.sorted = append(p.sorted[:i], p.sorted[i+1:]...)
	}
}

// State is a deep copy of the pool used for rollback.
type State struct {
	sqrtPrice decimal.Decimal
	tick      int
	liquidity decimal.Decimal
	ticks     map[int]tickState
	sorted    []int
	positions map[rangeKey]decimal.Decimal
	baseRes   decimal.Decimal
	quoteRes  decimal.Decimal
}

// Snapshot deep-copies the mutable pool state.
func (p *MemoryPool) Snapshot() *State {
	s := &State{
		sqrtPrice: p.sqrtPrice,
		tick:      p.tick,
		liquidity: p.liquidity,
		ticks:     make(map[int]tickState, len(p.ticks)),
		sorted:    append([]int(nil), p.sorted...),
		positions: make(map[rangeKey]decimal.Decimal, len(p.positions)),
		baseRes:   p.baseReserve,
		quoteRes:  p.quoteReserve,
	}
	for t, ts := range p.ticks {
		s.ticks[t] = *ts
	}
	for k, v := range p.positions {
		s.positions[k] = v
	}
	return s
}

// Restore rewinds the pool to a snapshot.
func (p *MemoryPool) Restore(s *State) {
	p.sqrtPrice = s.sqrtPrice
	p.tick = s.tick
	p.liquidity = s.liquidity
	p.ticks = make(map[int]*tickState, len(s.ticks))
	for t, ts := range s.ticks {
		cp := ts
		p.ticks[t] = &cp
	}
	p.sorted = append([]int(nil), s.sorted...)
	p.positions = make(map[rangeKey]decimal.Decimal, len(s.positions))
	for k, v := range s.positions {
		p.positions[k] = v
	}
	p.baseReserve = s.baseRes
	p.quoteReserve = s.quoteRes
}
