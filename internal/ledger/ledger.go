// Package ledger maintains the per-trader accounting state of the clearing
// engine: token available/debt balances, realized PnL, the registered-token
// set that bounds every aggregate scan, open-notional reconciliation values,
// maker order books and funding watermarks.
//
// The ledger performs no margin or market logic of its own; it enforces the
// balance invariants (available, debt >= 0; debt reducible only by burning
// equal available) and leaves orchestration to the clearing service.
//
// All monetary values use shopspring/decimal — never float64 for money.
package ledger

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/model"
)

var (
	// ErrInsufficientBalance is returned when a burn or debit exceeds what
	// the trader holds. No partial execution occurs.
	ErrInsufficientBalance = errors.New("ledger: amount exceeds available balance or debt")

	// ErrNonPositiveAmount is returned for zero or negative mint/burn sizes.
	ErrNonPositiveAmount = errors.New("ledger: amount must be positive")

	// ErrSettleAlreadyGranted is returned when a second component asks for
	// the settlement capability. Only the custody vault may settle accounts.
	ErrSettleAlreadyGranted = errors.New("ledger: settlement capability already granted")
)

type rangeKey struct{ lower, upper int }

// makerBook holds a trader's open maker orders in one market.
type makerBook struct {
	orderIDs []string
	orders   map[string]*model.OpenOrder
	byRange  map[rangeKey]string
}

func newMakerBook() *makerBook {
	return &makerBook{
		orders:  make(map[string]*model.OpenOrder),
		byRange: make(map[rangeKey]string),
	}
}

// account is one trader's record in the arena.
type account struct {
	owedRealizedPnl      decimal.Decimal
	tokens               []string
	tokenSet             map[string]struct{}
	balances             map[string]*model.TokenBalance
	openNotionalFraction map[string]decimal.Decimal
	maker                map[string]*makerBook
	nextFundingIndex     map[string]int
}

func newAccount() *account {
	return &account{
		tokenSet:             make(map[string]struct{}),
		balances:             make(map[string]*model.TokenBalance),
		openNotionalFraction: make(map[string]decimal.Decimal),
		maker:                make(map[string]*makerBook),
		nextFundingIndex:     make(map[string]int),
	}
}

// AccountLedger is the arena of trader records, indexed by a stable
// identity key.
type AccountLedger struct {
	quoteToken    string
	accounts      map[string]*account
	settleGranted bool
}

// New creates an empty ledger. quoteToken names the common
// settlement-denominated leg shared by all markets.
func New(quoteToken string) *AccountLedger {
	return &AccountLedger{
		quoteToken: quoteToken,
		accounts:   make(map[string]*account),
	}
}

// QuoteToken returns the settlement token identifier.
func (l *AccountLedger) QuoteToken() string { return l.quoteToken }

func (l *AccountLedger) acct(trader string) *account {
	a, ok := l.accounts[trader]
	if !ok {
		a = newAccount()
		l.accounts[trader] = a
	}
	return a
}

// Traders returns every trader with a record, sorted for determinism.
func (l *AccountLedger) Traders() []string {
	out := make([]string, 0, len(l.accounts))
	for t := range l.accounts {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// --- Token registry ---

// RegisterToken adds a token to the trader's active set. Membership is
// O(1)-checkable; every aggregate computation scans only this set.
func (l *AccountLedger) RegisterToken(trader, token string) {
	a := l.acct(trader)
	if _, ok := a.tokenSet[token]; ok {
		return
	}
	a.tokenSet[token] = struct{}{}
	a.tokens = append(a.tokens, token)
}

// DeregisterToken removes a token from the trader's active set.
func (l *AccountLedger) DeregisterToken(trader, token string) {
	a := l.acct(trader)
	if _, ok := a.tokenSet[token]; !ok {
		return
	}
	delete(a.tokenSet, token)
	for i, t := range a.tokens {
		if t == token {
			a.tokens = append(a.tokens[:i], a.tokens[i+1:]...)
			break
		}
	}
	delete(a.balances, token)
	delete(a.openNotionalFraction, token)
}

// RegisteredTokens returns the trader's active token set in insertion order.
func (l *AccountLedger) RegisteredTokens(trader string) []string {
	return append([]string(nil), l.acct(trader).tokens...)
}

// HasToken reports membership in the active-token set.
func (l *AccountLedger) HasToken(trader, token string) bool {
	_, ok := l.acct(trader).tokenSet[token]
	return ok
}

// --- Balances ---

// Balance returns a copy of the trader's balance in one token.
func (l *AccountLedger) Balance(trader, token string) model.TokenBalance {
	if b, ok := l.acct(trader).balances[token]; ok {
		return *b
	}
	return model.TokenBalance{Available: decimal.Zero, Debt: decimal.Zero}
}

func (l *AccountLedger) balanceRef(trader, token string) *model.TokenBalance {
	a := l.acct(trader)
	b, ok := a.balances[token]
	if !ok {
		b = &model.TokenBalance{Available: decimal.Zero, Debt: decimal.Zero}
		a.balances[token] = b
	}
	return b
}

// Mint increases both available and debt by amount, backing new synthetic
// exposure with equal debt, and registers the token.
func (l *AccountLedger) Mint(trader, token string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrNonPositiveAmount
	}
	b := l.balanceRef(trader, token)
	b.Available = b.Available.Add(amount)
	b.Debt = b.Debt.Add(amount)
	l.RegisterToken(trader, token)
	return nil
}

// Burn decreases both available and debt by amount. Fails unless
// amount <= min(available, debt). The token is deregistered once both
// legs reach zero and the trader holds no maker orders in that market.
func (l *AccountLedger) Burn(trader, token string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrNonPositiveAmount
	}
	b := l.balanceRef(trader, token)
	if amount.GreaterThan(b.Available) || amount.GreaterThan(b.Debt) {
		return ErrInsufficientBalance
	}
	b.Available = b.Available.Sub(amount)
	b.Debt = b.Debt.Sub(amount)
	l.maybeDeregister(trader, token)
	return nil
}

// BurnMax burns min(available, debt) and returns the burned amount.
func (l *AccountLedger) BurnMax(trader, token string) decimal.Decimal {
	b := l.balanceRef(trader, token)
	amount := decimal.Min(b.Available, b.Debt)
	if amount.IsPositive() {
		b.Available = b.Available.Sub(amount)
		b.Debt = b.Debt.Sub(amount)
	}
	l.maybeDeregister(trader, token)
	return amount
}

// AdjustAvailable applies a signed delta to the trader's available balance,
// rejecting any adjustment that would drive it negative.
func (l *AccountLedger) AdjustAvailable(trader, token string, delta decimal.Decimal) error {
	b := l.balanceRef(trader, token)
	next := b.Available.Add(delta)
	if next.IsNegative() {
		return ErrInsufficientBalance
	}
	b.Available = next
	l.RegisterToken(trader, token)
	return nil
}

// AdjustDebt applies a signed delta to the trader's debt leg, rejecting
// any adjustment that would drive it negative. Used when realized PnL
// cancels quote debt without an available-side counterpart.
func (l *AccountLedger) AdjustDebt(trader, token string, delta decimal.Decimal) error {
	b := l.balanceRef(trader, token)
	next := b.Debt.Add(delta)
	if next.IsNegative() {
		return ErrInsufficientBalance
	}
	b.Debt = next
	l.maybeDeregister(trader, token)
	return nil
}

func (l *AccountLedger) maybeDeregister(trader, token string) {
	a := l.acct(trader)
	b, ok := a.balances[token]
	if !ok {
		return
	}
	if !b.Available.IsZero() || !b.Debt.IsZero() {
		return
	}
	if book, ok := a.maker[token]; ok && len(book.orderIDs) > 0 {
		return
	}
	if !a.openNotionalFraction[token].IsZero() {
		return
	}
	l.DeregisterToken(trader, token)
}

// --- Realized PnL ---

// OwedRealizedPnl returns realized profit/loss not yet reflected in
// custodied collateral.
func (l *AccountLedger) OwedRealizedPnl(trader string) decimal.Decimal {
	return l.acct(trader).owedRealizedPnl
}

// AddOwedRealizedPnl accrues a signed realized PnL delta.
func (l *AccountLedger) AddOwedRealizedPnl(trader string, delta decimal.Decimal) {
	a := l.acct(trader)
	a.owedRealizedPnl = a.owedRealizedPnl.Add(delta)
}

// --- Open-notional fraction ---

// OpenNotionalFraction returns the per-market running reconciliation value
// used to derive open notional without revaluing every prior trade.
func (l *AccountLedger) OpenNotionalFraction(trader, market string) decimal.Decimal {
	return l.acct(trader).openNotionalFraction[market]
}

// AddOpenNotionalFraction accrues a signed delta to the reconciliation value.
func (l *AccountLedger) AddOpenNotionalFraction(trader, market string, delta decimal.Decimal) {
	a := l.acct(trader)
	a.openNotionalFraction[market] = a.openNotionalFraction[market].Add(delta)
}

// SetOpenNotionalFraction overwrites the reconciliation value.
func (l *AccountLedger) SetOpenNotionalFraction(trader, market string, v decimal.Decimal) {
	l.acct(trader).openNotionalFraction[market] = v
}

// --- Funding watermarks ---

// NextFundingIndex returns the first unsettled funding-history index for
// the trader/market pair.
func (l *AccountLedger) NextFundingIndex(trader, market string) int {
	return l.acct(trader).nextFundingIndex[market]
}

// SetNextFundingIndex advances the watermark. It never moves backward.
func (l *AccountLedger) SetNextFundingIndex(trader, market string, idx int) {
	a := l.acct(trader)
	if idx > a.nextFundingIndex[market] {
		a.nextFundingIndex[market] = idx
	}
}

// --- Settlement ---

// SettleFunc clears and returns a trader's owed realized PnL. When the
// trader holds no open base markets, residual quote available/debt is
// first netted into the realized amount and burned.
type SettleFunc func(trader string) decimal.Decimal

// GrantSettle hands out the settlement capability exactly once, to the
// custody component during wiring. Any later caller is rejected.
func (l *AccountLedger) GrantSettle() (SettleFunc, error) {
	if l.settleGranted {
		return nil, ErrSettleAlreadyGranted
	}
	l.settleGranted = true
	return l.settle, nil
}

func (l *AccountLedger) settle(trader string) decimal.Decimal {
	a := l.acct(trader)

	hasBaseMarket := false
	for _, token := range a.tokens {
		if token != l.quoteToken {
			hasBaseMarket = true
			break
		}
	}

	if !hasBaseMarket {
		// Net residual quote into realized PnL and burn the settled amount.
		if b, ok := a.balances[l.quoteToken]; ok {
			net := b.Available.Sub(b.Debt)
			a.owedRealizedPnl = a.owedRealizedPnl.Add(net)
			b.Available = decimal.Zero
			b.Debt = decimal.Zero
			l.maybeDeregister(trader, l.quoteToken)
		}
	}

	pnl := a.owedRealizedPnl
	a.owedRealizedPnl = decimal.Zero
	return pnl
}
