// Package oracle defines the index-price boundary consumed by the margin
// and funding engines. The clearing engine never owns price discovery; it
// reads fixed-point prices from this interface.
package oracle

import (
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNoPrice is returned when no price has been published for a market.
var ErrNoPrice = errors.New("oracle: no index price available")

// PriceFeed supplies index prices. twapInterval = 0 means the most recent
// price only.
type PriceFeed interface {
	IndexPrice(market string, twapInterval time.Duration) (decimal.Decimal, error)
}

// StaticFeed is an in-memory feed with operator-set prices, used in tests
// and development. It records a short observation history so nonzero TWAP
// intervals return a time-weighted value.
type StaticFeed struct {
	mu      sync.RWMutex
	history map[string][]observation
}

type observation struct {
	price decimal.Decimal
	at    time.Time
}

// NewStaticFeed creates an empty feed.
func NewStaticFeed() *StaticFeed {
	return &StaticFeed{history: make(map[string][]observation)}
}

// SetPrice publishes a spot index price for a market.
func (f *StaticFeed) SetPrice(market string, price decimal.Decimal, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history[market] = append(f.history[market], observation{price: price, at: at})
}

// IndexPrice returns the latest price, or the time-weighted average over
// the trailing interval when twapInterval > 0.
func (f *StaticFeed) IndexPrice(market string, twapInterval time.Duration) (decimal.Decimal, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	obs := f.history[market]
	if len(obs) == 0 {
		return decimal.Zero, ErrNoPrice
	}
	last := obs[len(obs)-1]
	if twapInterval <= 0 {
		return last.price, nil
	}

	end := last.at
	start := end.Add(-twapInterval)
	weighted := decimal.Zero
	covered := decimal.Zero

	for i := len(obs) - 1; i >= 0; i-- {
		segEnd := end
		if i+1 < len(obs) {
			segEnd = obs[i+1].at
		}
		segStart := obs[i].at
		if segStart.Before(start) {
			segStart = start
		}
		if !segEnd.After(segStart) {
			continue
		}
		w := decimal.NewFromFloat(segEnd.Sub(segStart).Seconds())
		weighted = weighted.Add(obs[i].price.Mul(w))
		covered = covered.Add(w)
		if !obs[i].at.After(start) {
			break
		}
	}

	if covered.IsZero() {
		return last.price, nil
	}
	return weighted.Div(covered), nil
}
