// Package funding implements per-market periodic funding registration and
// per-trader lazy settlement against a running premium history.
//
// Funding flows between longs and shorts in proportion to the deviation of
// the AMM's time-weighted mark price from the external index price. A
// trader's obligation for a past period uses their position size at the
// time funding accrued, reconstructed from the mark sqrt price recorded
// with each history entry.
package funding

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/0xk0nf/curie-v2-perpetual-contracts/internal/model"
)

// ErrPeriodNotElapsed is returned when updateFunding is called before the
// market's next funding time. Retrying after the period elapses is a
// keeper-level concern.
var ErrPeriodNotElapsed = errors.New("funding: period has not elapsed")

var secondsPerDay = decimal.NewFromInt(86400)

type markObservation struct {
	price decimal.Decimal
	at    time.Time
}

// State is one market's funding bookkeeping: the settled premium history,
// the next allowed settlement time and a mark-price observation window for
// the mark TWAP.
type State struct {
	history  []model.FundingEntry
	nextTime time.Time
	obs      []markObservation
}

// NewState creates funding state whose first settlement may happen one
// period after start.
func NewState(start time.Time, period time.Duration) *State {
	return &State{nextTime: start.Add(period)}
}

// History returns the settled entries. The returned slice is read-only.
func (s *State) History() []model.FundingEntry { return s.history }

// NextFundingTime returns the earliest time the next update is allowed.
func (s *State) NextFundingTime() time.Time { return s.nextTime }

// RecordMarkPrice appends a mark-price observation. Called after every
// price-moving operation so the mark TWAP tracks the pool.
func (s *State) RecordMarkPrice(price decimal.Decimal, at time.Time) {
	s.obs = append(s.obs, markObservation{price: price, at: at})

	// Drop observations that can no longer influence any TWAP window.
	cutoff := at.Add(-24 * time.Hour)
	trim := 0
	for trim < len(s.obs)-1 && s.obs[trim+1].at.Before(cutoff) {
		trim++
	}
	s.obs = s.obs[trim:]
}

// MarkTwap returns the time-weighted mark price over the trailing interval
// ending at now. With no observations it returns zero.
func (s *State) MarkTwap(interval time.Duration, now time.Time) decimal.Decimal {
	if len(s.obs) == 0 {
		return decimal.Zero
	}
	if interval <= 0 {
		return s.obs[len(s.obs)-1].price
	}

	start := now.Add(-interval)
	weighted := decimal.Zero
	covered := decimal.Zero

	for i := len(s.obs) - 1; i >= 0; i-- {
		segEnd := now
		if i+1 < len(s.obs) {
			segEnd = s.obs[i+1].at
		}
		segStart := s.obs[i].at
		if segStart.Before(start) {
			segStart = start
		}
		if !segEnd.After(segStart) {
			if !s.obs[i].at.After(start) {
				break
			}
			continue
		}
		w := decimal.NewFromFloat(segEnd.Sub(segStart).Seconds())
		weighted = weighted.Add(s.obs[i].price.Mul(w))
		covered = covered.Add(w)
		if !s.obs[i].at.After(start) {
			break
		}
	}

	if covered.IsZero() {
		return s.obs[len(s.obs)-1].price
	}
	return weighted.Div(covered)
}

// Update registers one funding period: premiumFraction scales the
// mark/index premium by period/1day, and the current mark sqrt price is
// recorded so later settlement can reconstruct position sizes. The next
// funding time advances to at least now + period/2, rounded up to the next
// period boundary to absorb scheduling jitter.
func (s *State) Update(markTwap, indexTwap, markSqrtPrice decimal.Decimal, now time.Time, period time.Duration) (model.FundingEntry, error) {
	if now.Before(s.nextTime) {
		return model.FundingEntry{}, ErrPeriodNotElapsed
	}

	premium := markTwap.Sub(indexTwap)
	fraction := premium.Mul(decimal.NewFromFloat(period.Seconds())).Div(secondsPerDay)

	entry := model.FundingEntry{
		PremiumFraction: fraction,
		MarkSqrtPrice:   markSqrtPrice,
		SettledAt:       now,
	}
	s.history = append(s.history, entry)

	periodSec := int64(period.Seconds())
	earliest := now.Add(period / 2).Unix()
	next := (earliest + periodSec - 1) / periodSec * periodSec
	s.nextTime = time.Unix(next, 0).UTC()

	return entry, nil
}

// PendingPayment sums premiumFraction[i] × positionSize(i) over the
// unsettled history suffix starting at fromIndex. sizeAt reconstructs the
// trader's position size at the entry's recorded mark sqrt price. The
// returned index is the new watermark (the current history length).
func (s *State) PendingPayment(fromIndex int, sizeAt func(markSqrtPrice decimal.Decimal) decimal.Decimal) (decimal.Decimal, int) {
	payment := decimal.Zero
	for i := fromIndex; i < len(s.history); i++ {
		size := sizeAt(s.history[i].MarkSqrtPrice)
		if size.IsZero() {
			continue
		}
		payment = payment.Add(s.history[i].PremiumFraction.Mul(size))
	}
	return payment, len(s.history)
}
