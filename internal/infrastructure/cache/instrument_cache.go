// Package cache holds process-local expiring caches.
package cache

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"brokerlink/internal/infrastructure/provider"
)

const (
	DefaultSize = 256
	DefaultTTL  = 4 * time.Hour
)

// InstrumentCache is an expiring, size-bounded map of symbol to reference data.
// Concurrent writers overwrite idempotently.
type InstrumentCache struct {
	lru *expirable.LRU[string, provider.Instrument]
}

// NewInstrumentCache creates a cache. Non-positive arguments use the defaults.
func NewInstrumentCache(size int, ttl time.Duration) *InstrumentCache {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &InstrumentCache{lru: expirable.NewLRU[string, provider.Instrument](size, nil, ttl)}
}

func key(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Get returns a live entry.
func (c *InstrumentCache) Get(symbol string) (provider.Instrument, bool) {
	return c.lru.Get(key(symbol))
}

// Set stores or replaces an entry.
func (c *InstrumentCache) Set(symbol string, inst provider.Instrument) {
	c.lru.Add(key(symbol), inst)
}

// Len counts entries that have not yet expired.
func (c *InstrumentCache) Len() int {
	return c.lru.Len()
}
