package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateMarket(ctx context.Context, m *model.MarketRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO markets (symbol, base_token, quote_token, tick, sqrt_price, fee_growth_global, pool_fee_ratio, protocol_fee_ratio, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9)`,
		m.Symbol, m.BaseToken, m.QuoteToken, m.Tick,
		m.SqrtPrice.String(), m.FeeGrowthGlobal.String(),
		m.PoolFeeRatio.String(), m.ProtocolFeeRatio.String(),
		m.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetMarket(ctx context.Context, symbol string) (*model.MarketRecord, error) {
	var m model.MarketRecord
	var sqrtPrice, feeGrowth, poolFee, protocolFee string

	err := s.pool.QueryRow(ctx,
		`SELECT symbol, base_token, quote_token, tick,
		        sqrt_price::TEXT, fee_growth_global::TEXT,
		        pool_fee_ratio::TEXT, protocol_fee_ratio::TEXT,
		        created_at
		 FROM markets WHERE symbol = $1`, symbol).
		Scan(&m.Symbol, &m.BaseToken, &m.QuoteToken, &m.Tick,
			&sqrtPrice, &feeGrowth,
			&poolFee, &protocolFee,
			&m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get market %s: %w", symbol, err)
	}

	m.SqrtPrice, _ = decimal.NewFromString(sqrtPrice)
	m.FeeGrowthGlobal, _ = decimal.NewFromString(feeGrowth)
	m.PoolFeeRatio, _ = decimal.NewFromString(poolFee)
	m.ProtocolFeeRatio, _ = decimal.NewFromString(protocolFee)

	return &m, nil
}

func (s *PostgresStore) ListMarkets(ctx context.Context) ([]model.MarketRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT symbol, base_token, quote_token, tick,
		        sqrt_price::TEXT, fee_growth_global::TEXT,
		        pool_fee_ratio::TEXT, protocol_fee_ratio::TEXT,
		        created_at
		 FROM markets ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []model.MarketRecord
	for rows.Next() {
		var m model.MarketRecord
		var sqrtPrice, feeGrowth, poolFee, protocolFee string
		if err := rows.Scan(&m.Symbol, &m.BaseToken, &m.QuoteToken, &m.Tick,
			&sqrtPrice, &feeGrowth,
			&poolFee, &protocolFee,
			&m.CreatedAt); err != nil {
			return nil, err
		}
		m.SqrtPrice, _ = decimal.NewFromString(sqrtPrice)
		m.FeeGrowthGlobal, _ = decimal.NewFromString(feeGrowth)
		m.PoolFeeRatio, _ = decimal.NewFromString(poolFee)
		m.ProtocolFeeRatio, _ = decimal.NewFromString(protocolFee)
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

func (s *PostgresStore) UpdateMarketSnapshot(ctx context.Context, symbol string, tick int, sqrtPrice, feeGrowthGlobal decimal.Decimal) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE markets
		 SET tick = $2, sqrt_price = $3::NUMERIC, fee_growth_global = $4::NUMERIC
		 WHERE symbol = $1`,
		symbol, tick, sqrtPrice.String(), feeGrowthGlobal.String(),
	)
	return err
}

func (s *PostgresStore) InsertJournalEntry(ctx context.Context, e *model.JournalEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO journal_entries (id, trader, market, kind, size, notional, fee, timestamp)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8)`,
		e.ID, e.Trader, e.Market, e.Kind,
		e.Size.String(), e.Notional.String(), e.Fee.String(),
		e.Timestamp,
	)
	return err
}

func (s *PostgresStore) GetJournalByMarket(ctx context.Context, symbol string) ([]model.JournalEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, trader, market, kind,
		        size::TEXT, notional::TEXT, fee::TEXT, timestamp
		 FROM journal_entries WHERE market = $1 ORDER BY timestamp`, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJournalEntries(rows)
}

func (s *PostgresStore) GetJournalByTrader(ctx context.Context, trader string) ([]model.JournalEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, trader, market, kind,
		        size::TEXT, notional::TEXT, fee::TEXT, timestamp
		 FROM journal_entries WHERE trader = $1 ORDER BY timestamp`, trader)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJournalEntries(rows)
}

// scanJournalEntries reads pgx rows into JournalEntry slices.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanJournalEntries(rows pgxRows) ([]model.JournalEntry, error) {
	var entries []model.JournalEntry
	for rows.Next() {
		var e model.JournalEntry
		var sizeS, notionalS, feeS string

		if err := rows.Scan(&e.ID, &e.Trader, &e.Market, &e.Kind,
			&sizeS, &notionalS, &feeS, &e.Timestamp); err != nil {
			return nil, err
		}

		e.Size, _ = decimal.NewFromString(sizeS)
		e.Notional, _ = decimal.NewFromString(notionalS)
		e.Fee, _ = decimal.NewFromString(feeS)

		entries = append(entries, e)
	}
	return entries, nil
}
