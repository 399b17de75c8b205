package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateMarket(ctx context.Context, m *model.MarketRecord) error {
	if err := s.primary.CreateMarket(ctx, m); err != nil {
		return err
	}
	s.cacheMarket(ctx, m)
	return nil
}

func (s *CachedStore) UpdateMarketSnapshot(ctx context.Context, symbol string, tick int, sqrtPrice, feeGrowthGlobal decimal.Decimal) error {
	if err := s.primary.UpdateMarketSnapshot(ctx, symbol, tick, sqrtPrice, feeGrowthGlobal); err != nil {
		return err
	}
	// Invalidate cache; next read will re-populate.
	s.rdb.Del(ctx, marketKey(symbol))
	return nil
}

func (s *CachedStore) InsertJournalEntry(ctx context.Context, entry *model.JournalEntry) error {
	if err := s.primary.InsertJournalEntry(ctx, entry); err != nil {
		return err
	}
	// Invalidate journal caches touched by this entry.
	s.rdb.Del(ctx, journalKey(entry.Trader))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetMarket(ctx context.Context, symbol string) (*model.MarketRecord, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, marketKey(symbol)).Bytes()
	if err == nil {
		var m model.MarketRecord
		if json.Unmarshal(data, &m) == nil {
			return &m, nil
		}
	}

	// Cache miss: read from primary.
	m, err := s.primary.GetMarket(ctx, symbol)
	if err != nil {
		return nil, err
	}

	s.cacheMarket(ctx, m)
	return m, nil
}

func (s *CachedStore) GetJournalByTrader(ctx context.Context, trader string) ([]model.JournalEntry, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, journalKey(trader)).Bytes()
	if err == nil {
		var entries []model.JournalEntry
		if json.Unmarshal(data, &entries) == nil {
			return entries, nil
		}
	}

	// Cache miss.
	entries, err := s.primary.GetJournalByTrader(ctx, trader)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(entries); err == nil {
		s.rdb.Set(ctx, journalKey(trader), data, s.ttl)
	}
	return entries, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListMarkets(ctx context.Context) ([]model.MarketRecord, error) {
	return s.primary.ListMarkets(ctx)
}

func (s *CachedStore) GetJournalByMarket(ctx context.Context, symbol string) ([]model.JournalEntry, error) {
	return s.primary.GetJournalByMarket(ctx, symbol)
}

// --- Cache helpers ---

func (s *CachedStore) cacheMarket(ctx context.Context, m *model.MarketRecord) {
	if data, err := json.Marshal(m); err == nil {
		s.rdb.Set(ctx, marketKey(m.Symbol), data, s.ttl)
	}
}

func marketKey(symbol string) string    { return fmt.Sprintf("market:%s", symbol) }
func journalKey(trader string) string   { return fmt.Sprintf("journal:%s", trader) }
