package ledger

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/model"
)

// ErrOrderNotFound is returned when an order lookup by ID or range misses.
var ErrOrderNotFound = errors.New("ledger: maker order not found")

// OrderByRange returns the trader's open order over the exact tick range,
// or nil if none exists. Add/remove operations touching the same range
// always mutate the same order.
func (l *AccountLedger) OrderByRange(trader, market string, lower, upper int) *model.OpenOrder {
	book, ok := l.acct(trader).maker[market]
	if !ok {
		return nil
	}
	id, ok := book.byRange[rangeKey{lower, upper}]
	if !ok {
		return nil
	}
	return book.orders[id]
}

// OrderByID returns the trader's open order with the given ID.
func (l *AccountLedger) OrderByID(trader, market, id string) (*model.OpenOrder, error) {
	book, ok := l.acct(trader).maker[market]
	if !ok {
		return nil, ErrOrderNotFound
	}
	o, ok := book.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

// PutOrder registers a brand-new maker order in the trader's order set.
func (l *AccountLedger) PutOrder(trader, market string, order *model.OpenOrder) {
	a := l.acct(trader)
	book, ok := a.maker[market]
	if !ok {
		book = newMakerBook()
		a.maker[market] = book
	}
	book.orders[order.ID] = order
	book.byRange[rangeKey{order.LowerTick, order.UpperTick}] = order.ID
	book.orderIDs = append(book.orderIDs, order.ID)
}

// RemoveOrder deletes an order whose liquidity has returned to zero and
// clears its storage.
func (l *AccountLedger) RemoveOrder(trader, market, id string) {
	a := l.acct(trader)
	book, ok := a.maker[market]
	if !ok {
		return
	}
	o, ok := book.orders[id]
	if !ok {
		return
	}
	delete(book.orders, id)
	delete(book.byRange, rangeKey{o.LowerTick, o.UpperTick})
	for i, oid := range book.orderIDs {
		if oid == id {
			book.orderIDs = append(book.orderIDs[:i], book.orderIDs[i+1:]...)
			break
		}
	}
	if len(book.orderIDs) == 0 {
		delete(a.maker, market)
	}
	l.maybeDeregister(trader, market)
}

// Orders returns copies of the trader's open orders in one market, in
// creation order.
func (l *AccountLedger) Orders(trader, market string) []model.OpenOrder {
	book, ok := l.acct(trader).maker[market]
	if !ok {
		return nil
	}
	out := make([]model.OpenOrder, 0, len(book.orderIDs))
	for _, id := range book.orderIDs {
		out = append(out, *book.orders[id])
	}
	return out
}

// HasOrders reports whether the trader holds any maker liquidity in the
// market.
func (l *AccountLedger) HasOrders(trader, market string) bool {
	book, ok := l.acct(trader).maker[market]
	return ok && len(book.orderIDs) > 0
}

// TotalOrderLiquidity sums the liquidity units across the trader's open
// orders in one market.
func (l *AccountLedger) TotalOrderLiquidity(trader, market string) decimal.Decimal {
	book, ok := l.acct(trader).maker[market]
	if !ok {
		return decimal.Zero
	}
	total := decimal.Zero
	for _, o := range book.orders {
		total = total.Add(o.Liquidity)
	}
	return total
}
