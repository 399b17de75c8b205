package clearing

import (
	"github.com/shopspring/decimal"

	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/ledger"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/pool"
	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/registry"
)

// txn captures the state an action may mutate so a failure can restore
// it wholesale. Actions either fully commit or fully abort; partial
// mutation is never observable.
type txn struct {
	svc      *Service
	market   *registry.Market
	pool     *pool.State
	ticks    map[int]decimal.Decimal
	feeGrow  decimal.Decimal
	accounts []ledger.AccountSnapshot
}

// beginTxn snapshots one market's pool/fee state and the named trader
// accounts. Callers must name every account the action can touch,
// insurance fund included when fees can accrue.
func (s *Service) beginTxn(m *registry.Market, traders ...string) *txn {
	t := &txn{svc: s, market: m}
	if m != nil {
		t.pool = m.Pool.Snapshot()
		t.ticks = m.Ticks.Snapshot()
		t.feeGrow = m.FeeGrowthGlobal
	}
	seen := make(map[string]bool, len(traders))
	for _, trader := range traders {
		if trader == "" || seen[trader] {
			continue
		}
		seen[trader] = true
		t.accounts = append(t.accounts, s.ledger.SnapshotAccount(trader))
	}
	return t
}

// rollback restores everything captured at beginTxn. Safe to call only
// once.
func (t *txn) rollback() {
	if t.market != nil {
		t.market.Pool.Restore(t.pool)
		t.market.Ticks.Restore(t.ticks)
		t.market.FeeGrowthGlobal = t.feeGrow
	}
	for _, snap := range t.accounts {
		t.svc.ledger.RestoreAccount(snap)
	}
}
