package cache

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestRatesCacheTTL(t *testing.T) {
	c := NewRatesCache(time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	if _, ok := c.Get(); ok {
		t.Fatal("Expected empty cache to miss")
	}

	c.Set(map[string]decimal.Decimal{"EUR": decimal.RequireFromString("1.08")})

	rate, ok := c.GetRate("EUR")
	if !ok || !rate.Equal(decimal.RequireFromString("1.08")) {
		t.Fatalf("Expected EUR 1.08, got %s (ok=%t)", rate, ok)
	}
	if _, ok := c.GetRate("GBP"); ok {
		t.Fatal("Expected miss for unknown currency")
	}

	now = now.Add(2 * time.Minute)
	if c.IsValid() {
		t.Fatal("Expected cache to expire")
	}
	if _, ok := c.GetRate("EUR"); ok {
		t.Fatal("Expected expired cache to miss")
	}
}

func TestRatesCacheReturnsCopy(t *testing.T) {
	c := NewRatesCache(time.Minute)
	c.Set(map[string]decimal.Decimal{"USD": decimal.NewFromInt(1)})

	rates, ok := c.Get()
	if !ok {
		t.Fatal("Expected cache hit")
	}
	rates["USD"] = decimal.NewFromInt(100)

	if rate, _ := c.GetRate("USD"); !rate.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("Expected cached USD to stay 1, got %s", rate)
	}

	c.Clear()
	if c.IsValid() {
		t.Fatal("Expected cleared cache to be invalid")
	}
}
