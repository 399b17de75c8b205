// Package model defines the core domain types shared across the clearing
// engine. All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TokenBalance is a trader's synthetic balance in one token, together with
// the debt that backs it. Both legs are always non-negative; debt can only
// be reduced by burning an equal amount of available.
type TokenBalance struct {
	Available decimal.Decimal `json:"available"`
	Debt      decimal.Decimal `json:"debt"`
}

// OpenOrder is a maker's concentrated-liquidity range in one market.
// FeeGrowthInsideLast is the fee-growth snapshot taken on the last touch,
// used to compute newly owed maker fees on the next touch.
type OpenOrder struct {
	ID                  string          `json:"id"`
	Liquidity           decimal.Decimal `json:"liquidity"`
	LowerTick           int             `json:"lower_tick"`
	UpperTick           int             `json:"upper_tick"`
	FeeGrowthInsideLast decimal.Decimal `json:"fee_growth_inside_last"`
}

// FundingEntry is one settled funding period in a market's history.
// MarkSqrtPrice is the mark sqrt price recorded at settlement time; a
// trader's funding obligation for this entry is computed against the
// position size implied by this price, not their current size.
type FundingEntry struct {
	PremiumFraction decimal.Decimal `json:"premium_fraction"`
	MarkSqrtPrice   decimal.Decimal `json:"mark_sqrt_price"`
	SettledAt       time.Time       `json:"settled_at"`
}

// SwapResult is the coherent outcome of one swap through the clearing
// engine. Sign convention: positive size/notional corresponds to buying
// base / paying quote.
type SwapResult struct {
	ExchangedPositionSize     decimal.Decimal `json:"exchanged_position_size"`
	ExchangedPositionNotional decimal.Decimal `json:"exchanged_position_notional"`
	Fee                       decimal.Decimal `json:"fee"`
	DeltaAvailableBase        decimal.Decimal `json:"delta_available_base"`
	DeltaAvailableQuote       decimal.Decimal `json:"delta_available_quote"`
}

// Operation kinds recorded in the journal.
const (
	OpMint            = "MINT"
	OpBurn            = "BURN"
	OpSwap            = "SWAP"
	OpAddLiquidity    = "ADD_LIQUIDITY"
	OpRemoveLiquidity = "REMOVE_LIQUIDITY"
	OpLiquidate       = "LIQUIDATE"
	OpFundingUpdate   = "FUNDING_UPDATE"
	OpCancelOrders    = "CANCEL_ORDERS"
)

// JournalEntry is an immutable record of one executed clearing operation.
// Once created, these are never modified or deleted.
type JournalEntry struct {
	ID        string          `json:"id" db:"id"`
	Trader    string          `json:"trader" db:"trader"`
	Market    string          `json:"market" db:"market"`
	Kind      string          `json:"kind" db:"kind"`
	Size      decimal.Decimal `json:"size" db:"size"`         // signed base delta
	Notional  decimal.Decimal `json:"notional" db:"notional"` // signed quote delta
	Fee       decimal.Decimal `json:"fee" db:"fee"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// MarketRecord is the persisted view of one perpetual market, kept in sync
// with the in-memory engine state after every mutating operation.
type MarketRecord struct {
	Symbol           string          `json:"symbol" db:"symbol"`
	BaseToken        string          `json:"base_token" db:"base_token"`
	QuoteToken       string          `json:"quote_token" db:"quote_token"`
	Tick             int             `json:"tick" db:"tick"`
	SqrtPrice        decimal.Decimal `json:"sqrt_price" db:"sqrt_price"`
	FeeGrowthGlobal  decimal.Decimal `json:"fee_growth_global" db:"fee_growth_global"`
	PoolFeeRatio     decimal.Decimal `json:"pool_fee_ratio" db:"pool_fee_ratio"`
	ProtocolFeeRatio decimal.Decimal `json:"protocol_fee_ratio" db:"protocol_fee_ratio"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}
