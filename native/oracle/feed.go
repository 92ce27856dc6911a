package oracle

import (
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"
)

var (
	// ErrUnknownAsset indicates no price has ever been posted for the asset.
	ErrUnknownAsset = errors.New("oracle: unknown asset")
	// ErrStaleQuote indicates the latest posted price is older than the
	// configured freshness window.
	ErrStaleQuote = errors.New("oracle: stale quote")
	// ErrFeedPaused indicates the feed has been halted by the risk admin.
	ErrFeedPaused = errors.New("oracle: feed paused")
	// ErrPriceDeviation indicates a posted price moved beyond the accepted
	// deviation band relative to the previous quote.
	ErrPriceDeviation = errors.New("oracle: price deviation out of bounds")
	// ErrInvalidPrice indicates a non-positive price submission.
	ErrInvalidPrice = errors.New("oracle: price must be positive")
)

// Quote captures the latest accepted exchange rate for an asset together with
// the time the feeder posted it.
type Quote struct {
	PriceWad  *big.Int
	UpdatedAt time.Time
}

// Clone returns a deep copy of the quote to prevent accidental mutation.
func (q Quote) Clone() Quote {
	clone := Quote{UpdatedAt: q.UpdatedAt}
	if q.PriceWad != nil {
		clone.PriceWad = new(big.Int).Set(q.PriceWad)
	}
	return clone
}

// Feed is a posted-price oracle with staleness and deviation guards. GetPrice
// fails rather than returning a stale or out-of-bounds value, so downstream
// engines never consume a silently defaulted price.
type Feed struct {
	mu              sync.RWMutex
	quotes          map[string]Quote
	maxAge          time.Duration
	maxDeviationBps uint64
	paused          bool
	nowFn           func() time.Time
}

// NewFeed constructs a feed with the provided freshness window and deviation
// band. A zero deviation band disables the deviation check.
func NewFeed(maxAge time.Duration, maxDeviationBps uint64) *Feed {
	return &Feed{
		quotes:          make(map[string]Quote),
		maxAge:          maxAge,
		maxDeviationBps: maxDeviationBps,
		nowFn:           time.Now,
	}
}

// SetNowFunc overrides the time source, primarily used in tests.
func (f *Feed) SetNowFunc(now func() time.Time) {
	if f == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if now == nil {
		f.nowFn = time.Now
		return
	}
	f.nowFn = now
}

// Pause halts the feed; GetPrice fails until Resume is called.
func (f *Feed) Pause() {
	f.mu.Lock()
	f.paused = true
	f.mu.Unlock()
}

// Resume re-enables the feed after a pause.
func (f *Feed) Resume() {
	f.mu.Lock()
	f.paused = false
	f.mu.Unlock()
}

// SetPrice records a new quote for the asset. The submission is rejected when
// non-positive or when it deviates from the previous accepted quote by more
// than the configured band.
func (f *Feed) SetPrice(asset string, priceWad *big.Int) error {
	if priceWad == nil || priceWad.Sign() <= 0 {
		return ErrInvalidPrice
	}
	key := normalizeAsset(asset)
	if key == "" {
		return ErrUnknownAsset
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if prev, ok := f.quotes[key]; ok && f.maxDeviationBps > 0 && prev.PriceWad != nil && prev.PriceWad.Sign() > 0 {
		diff := new(big.Int).Sub(priceWad, prev.PriceWad)
		diff.Abs(diff)
		// diff * 10000 > prev * maxDeviationBps  =>  out of band.
		lhs := new(big.Int).Mul(diff, big.NewInt(10_000))
		rhs := new(big.Int).Mul(prev.PriceWad, new(big.Int).SetUint64(f.maxDeviationBps))
		if lhs.Cmp(rhs) > 0 {
			return ErrPriceDeviation
		}
	}
	f.quotes[key] = Quote{PriceWad: new(big.Int).Set(priceWad), UpdatedAt: f.nowFn()}
	return nil
}

// GetPrice returns the latest accepted price for the asset along with its
// update timestamp. The call fails when the feed is paused, the asset is
// unknown, or the quote is older than the freshness window.
func (f *Feed) GetPrice(asset string) (*big.Int, time.Time, error) {
	key := normalizeAsset(asset)
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.paused {
		return nil, time.Time{}, ErrFeedPaused
	}
	quote, ok := f.quotes[key]
	if !ok || quote.PriceWad == nil {
		return nil, time.Time{}, ErrUnknownAsset
	}
	if f.maxAge > 0 && f.nowFn().Sub(quote.UpdatedAt) > f.maxAge {
		return nil, quote.UpdatedAt, ErrStaleQuote
	}
	return new(big.Int).Set(quote.PriceWad), quote.UpdatedAt, nil
}

func normalizeAsset(asset string) string {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return ""
	}
	return strings.ToUpper(trimmed)
}
