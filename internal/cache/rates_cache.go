package cache

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// RatesCache кеш курсов валют к доллару
type RatesCache struct {
	rates  map[string]decimal.Decimal
	mu     sync.RWMutex
	ttl    time.Duration
	lastUp time.Time
	now    func() time.Time
}

// NewRatesCache создает новый кеш
func NewRatesCache(ttl time.Duration) *RatesCache {
	return &RatesCache{
		rates: make(map[string]decimal.Decimal),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Set сохраняет курсы в кеш
func (c *RatesCache) Set(rates map[string]decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rates = make(map[string]decimal.Decimal, len(rates))
	for k, v := range rates {
		c.rates[k] = v
	}
	c.lastUp = c.now()
}

// Get возвращает курсы из кеша, если они актуальны
func (c *RatesCache) Get() (map[string]decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.freshLocked() {
		return nil, false
	}

	// Копия, чтобы вызывающий не менял внутреннее состояние
	ratesCopy := make(map[string]decimal.Decimal, len(c.rates))
	for k, v := range c.rates {
		ratesCopy[k] = v
	}

	return ratesCopy, true
}

// GetRate возвращает курс валюты к доллару из кеша
func (c *RatesCache) GetRate(currency string) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.freshLocked() {
		return decimal.Zero, false
	}

	rate, exists := c.rates[currency]
	return rate, exists
}

// Clear очищает кеш
func (c *RatesCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rates = make(map[string]decimal.Decimal)
	c.lastUp = time.Time{}
}

// IsValid проверяет, актуален ли кеш
func (c *RatesCache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.freshLocked() && len(c.rates) > 0
}

func (c *RatesCache) freshLocked() bool {
	return !c.lastUp.IsZero() && c.now().Sub(c.lastUp) <= c.ttl
}
