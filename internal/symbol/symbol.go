// Package symbol handles perpetual market symbol parsing and validation,
// and derives pool parameters from the configured fee tier.
package symbol

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

// symbolRegex matches: {BASE}-{QUOTE}-PERP
// Example: BTC-USDC-PERP
var symbolRegex = regexp.MustCompile(`^([A-Z0-9]{2,10})-([A-Z0-9]{2,10})-PERP$`)

var (
	ErrInvalidSymbol = errors.New("symbol: invalid market symbol format")
	ErrInvalidFee    = errors.New("symbol: fee ratio outside supported tiers")
)

// Market is a parsed perpetual market symbol.
type Market struct {
	Symbol     string `json:"symbol"`
	BaseToken  string `json:"base_token"`
	QuoteToken string `json:"quote_token"`
}

// Parse parses and validates a market symbol string.
// Format: {BASE}-{QUOTE}-PERP
func Parse(s string) (*Market, error) {
	matches := symbolRegex.FindStringSubmatch(s)
	if matches == nil {
		return nil, fmt.Errorf("%w: %s (expected {BASE}-{QUOTE}-PERP)", ErrInvalidSymbol, s)
	}
	return &Market{
		Symbol:     s,
		BaseToken:  matches[1],
		QuoteToken: matches[2],
	}, nil
}

// feeTierSpacing maps pool fee ratios to tick spacings. Wider fees quote
// over coarser grids; the tiers mirror the common AMM fee schedule.
var feeTierSpacing = []struct {
	fee     decimal.Decimal
	spacing int
}{
	{decimal.NewFromFloat(0.0001), 1},
	{decimal.NewFromFloat(0.0005), 10},
	{decimal.NewFromFloat(0.003), 60},
	{decimal.NewFromFloat(0.01), 200},
}

// TickSpacingForFee returns the tick spacing for a supported pool fee tier.
func TickSpacingForFee(feeRatio decimal.Decimal) (int, error) {
	for _, tier := range feeTierSpacing {
		if feeRatio.Equal(tier.fee) {
			return tier.spacing, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrInvalidFee, feeRatio)
}
