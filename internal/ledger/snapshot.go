package ledger

// AccountSnapshot is a deep copy of one trader's record, used by the
// clearing service to roll back failed actions atomically.
type AccountSnapshot struct {
	trader string
	state  *account
	absent bool
}

// SnapshotAccount deep-copies a trader's record.
func (l *AccountLedger) SnapshotAccount(trader string) AccountSnapshot {
	a, ok := l.accounts[trader]
	if !ok {
		return AccountSnapshot{trader: trader, absent: true}
	}

	cp := newAccount()
	cp.owedRealizedPnl = a.owedRealizedPnl
	cp.tokens = append([]string(nil), a.tokens...)
	for t := range a.tokenSet {
		cp.tokenSet[t] = struct{}{}
	}
	for t, b := range a.balances {
		bc := *b
		cp.balances[t] = &bc
	}
	for m, v := range a.openNotionalFraction {
		cp.openNotionalFraction[m] = v
	}
	for m, idx := range a.nextFundingIndex {
		cp.nextFundingIndex[m] = idx
	}
	for m, book := range a.maker {
		bc := newMakerBook()
		bc.orderIDs = append([]string(nil), book.orderIDs...)
		for id, o := range book.orders {
			oc := *o
			bc.orders[id] = &oc
			bc.byRange[rangeKey{o.LowerTick, o.UpperTick}] = id
		}
		cp.maker[m] = bc
	}

	return AccountSnapshot{trader: trader, state: cp}
}

// RestoreAccount rewinds a trader's record to a snapshot.
func (l *AccountLedger) RestoreAccount(snap AccountSnapshot) {
	if snap.absent {
		delete(l.accounts, snap.trader)
		return
	}
	l.accounts[snap.trader] = snap.state
}
