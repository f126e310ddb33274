// Package fiat provides the exchange-rate source consulted when payment
// metadata is first persisted.
package fiat

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Rate is a fiat price for one bitcoin at a point in time.
type Rate struct {
	Currency string
	Price    decimal.Decimal
}

// RateProvider supplies the current exchange rate in the user's preferred
// fiat currency. Ok is false when no rate is known; metadata is then stored
// without an original-fiat stamp.
type RateProvider interface {
	OriginalFiat() (rate Rate, ok bool)
}

// StaticProvider is a mutable in-memory rate source. The embedding
// application feeds it from whatever price feed it uses.
type StaticProvider struct {
	mu   sync.RWMutex
	rate Rate
	set  bool
}

// NewStaticProvider creates a provider with no known rate.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{}
}

// Set replaces the current rate.
func (p *StaticProvider) Set(rate Rate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rate = rate
	p.set = true
}

// OriginalFiat implements RateProvider.
func (p *StaticProvider) OriginalFiat() (Rate, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rate, p.set
}

// NopProvider never knows a rate.
type NopProvider struct{}

func (NopProvider) OriginalFiat() (Rate, bool) { return Rate{}, false }
