package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu      sync.RWMutex
	markets map[string]*model.MarketRecord
	journal []model.JournalEntry
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		markets: make(map[string]*model.MarketRecord),
	}
}

func (s *MemoryStore) CreateMarket(_ context.Context, m *model.MarketRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.markets[m.Symbol]; ok {
		return fmt.Errorf("market %s already exists", m.Symbol)
	}

	// Store a copy to avoid external mutation.
	copy := *m
	s.markets[m.Symbol] = &copy
	return nil
}

func (s *MemoryStore) GetMarket(_ context.Context, symbol string) (*model.MarketRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[symbol]
	if !ok {
		return nil, fmt.Errorf("market %s not found", symbol)
	}
	copy := *m
	return &copy, nil
}

func (s *MemoryStore) ListMarkets(_ context.Context) ([]model.MarketRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	markets := make([]model.MarketRecord, 0, len(s.markets))
	for _, m := range s.markets {
		markets = append(markets, *m)
	}
	return markets, nil
}

func (s *MemoryStore) UpdateMarketSnapshot(_ context.Context, symbol string, tick int, sqrtPrice, feeGrowthGlobal decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[symbol]
	if !ok {
		return fmt.Errorf("market %s not found", symbol)
	}
	m.Tick = tick
	m.SqrtPrice = sqrtPrice
	m.FeeGrowthGlobal = feeGrowthGlobal
	return nil
}

func (s *MemoryStore) InsertJournalEntry(_ context.Context, entry *model.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.journal = append(s.journal, *entry)
	return nil
}

func (s *MemoryStore) GetJournalByMarket(_ context.Context, symbol string) ([]model.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.JournalEntry
	for _, e := range s.journal {
		if e.Market == symbol {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryStore) GetJournalByTrader(_ context.Context, trader string) ([]model.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.JournalEntry
	for _, e := range s.journal {
		if e.Trader == trader {
			result = append(result, e)
		}
	}
	return result, nil
}
