package clearing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/model"
)

// PositionSize returns the trader's directional base exposure including
// pool-resident maker amounts, at the current mark price.
func (s *Service) PositionSize(trader, market string) (decimal.Decimal, error) {
	if err := s.enter(); err != nil {
		return decimal.Zero, err
	}
	defer s.exit()
	m, err := s.markets.Get(market)
	if err != nil {
		return decimal.Zero, err
	}
	return s.margin.MarkPositionSize(trader, m), nil
}

// OpenNotional returns the settlement-token cost basis of the trader's
// position in a market.
func (s *Service) OpenNotional(trader, market string) (decimal.Decimal, error) {
	if err := s.enter(); err != nil {
		return decimal.Zero, err
	}
	defer s.exit()
	if _, err := s.markets.Get(market); err != nil {
		return decimal.Zero, err
	}
	return s.ledger.OpenNotionalFraction(trader, market), nil
}

// AccountValue returns the trader's index-valued account worth.
func (s *Service) AccountValue(trader string) (decimal.Decimal, error) {
	if err := s.enter(); err != nil {
		return decimal.Zero, err
	}
	defer s.exit()
	return s.margin.AccountValue(trader)
}

// FreeCollateral returns what the trader may currently withdraw.
func (s *Service) FreeCollateral(trader string) (decimal.Decimal, error) {
	if err := s.enter(); err != nil {
		return decimal.Zero, err
	}
	defer s.exit()
	return s.margin.FreeCollateral(trader)
}

// PendingFundingPayment returns the trader's unsettled funding in one
// market. Positive means the trader owes.
func (s *Service) PendingFundingPayment(trader, market string) (decimal.Decimal, error) {
	if err := s.enter(); err != nil {
		return decimal.Zero, err
	}
	defer s.exit()
	m, err := s.markets.Get(market)
	if err != nil {
		return decimal.Zero, err
	}
	payment, _ := m.Funding.PendingPayment(
		s.ledger.NextFundingIndex(trader, market),
		func(markSqrtPrice decimal.Decimal) decimal.Decimal {
			return s.margin.PositionSize(trader, m, markSqrtPrice)
		},
	)
	return payment, nil
}

// OpenOrders enumerates the trader's maker orders in a market.
func (s *Service) OpenOrders(trader, market string) ([]model.OpenOrder, error) {
	if err := s.enter(); err != nil {
		return nil, err
	}
	defer s.exit()
	if _, err := s.markets.Get(market); err != nil {
		return nil, err
	}
	return s.ledger.Orders(trader, market), nil
}

// MarkPrice returns a market's current pool price.
func (s *Service) MarkPrice(market string) (decimal.Decimal, error) {
	if err := s.enter(); err != nil {
		return decimal.Zero, err
	}
	defer s.exit()
	m, err := s.markets.Get(market)
	if err != nil {
		return decimal.Zero, err
	}
	return m.MarkPrice(), nil
}

// Deposit credits settlement-token collateral for a trader.
func (s *Service) Deposit(trader string, amount decimal.Decimal) error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.exit()
	return s.vault.Deposit(trader, amount)
}

// Withdraw releases free collateral to the trader.
func (s *Service) Withdraw(trader string, amount decimal.Decimal, deadline time.Time) error {
	if err := s.enter(); err != nil {
		return err
	}
	defer s.exit()
	if err := s.checkDeadline(deadline); err != nil {
		return err
	}
	return s.vault.Withdraw(trader, amount)
}
