// Package store defines the persistence interface for the clearing
// engine. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing).
package store

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/model"
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer. The in-memory engine state
// remains authoritative during an action; the store is written after the
// action commits.
type Store interface {
	// --- Market operations ---

	// CreateMarket persists a new market.
	CreateMarket(ctx context.Context, market *model.MarketRecord) error

	// GetMarket retrieves a market by symbol.
	GetMarket(ctx context.Context, symbol string) (*model.MarketRecord, error)

	// ListMarkets returns all markets.
	ListMarkets(ctx context.Context) ([]model.MarketRecord, error)

	// UpdateMarketSnapshot records the post-action pool state.
	UpdateMarketSnapshot(ctx context.Context, symbol string, tick int, sqrtPrice, feeGrowthGlobal decimal.Decimal) error

	// --- Immutable journal ---

	// InsertJournalEntry appends an immutable operation record.
	InsertJournalEntry(ctx context.Context, entry *model.JournalEntry) error

	// GetJournalByMarket returns all operations for a market.
	GetJournalByMarket(ctx context.Context, symbol string) ([]model.JournalEntry, error)

	// GetJournalByTrader returns all operations for a trader.
	GetJournalByTrader(ctx context.Context, trader string) ([]model.JournalEntry, error)
}
