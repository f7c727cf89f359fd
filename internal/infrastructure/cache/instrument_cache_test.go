package cache

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brokerlink/internal/infrastructure/provider"
)

func TestInstrumentCache_SetGet(t *testing.T) {
	c := NewInstrumentCache(0, 0)

	c.Set("spy", provider.Instrument{Symbol: "SPY", Price: decimal.NewFromInt(500)})

	got, ok := c.Get(" SPY ")
	require.True(t, ok)
	assert.Equal(t, "SPY", got.Symbol)
	assert.Equal(t, 1, c.Len())

	_, ok = c.Get("QQQ")
	assert.False(t, ok)
}

func TestInstrumentCache_Overwrite(t *testing.T) {
	c := NewInstrumentCache(4, time.Hour)

	c.Set("AAPL", provider.Instrument{Symbol: "AAPL", Price: decimal.NewFromInt(1)})
	c.Set("AAPL", provider.Instrument{Symbol: "AAPL", Price: decimal.NewFromInt(2)})

	got, ok := c.Get("AAPL")
	require.True(t, ok)
	assert.True(t, got.Price.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, 1, c.Len())
}

func TestInstrumentCache_Expiry(t *testing.T) {
	c := NewInstrumentCache(4, 20*time.Millisecond)
	c.Set("VTI", provider.Instrument{Symbol: "VTI"})

	assert.Eventually(t, func() bool {
		_, ok := c.Get("VTI")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestInstrumentCache_SizeBound(t *testing.T) {
	c := NewInstrumentCache(2, time.Hour)
	c.Set("A", provider.Instrument{Symbol: "A"})
	c.Set("B", provider.Instrument{Symbol: "B"})
	c.Set("C", provider.Instrument{Symbol: "C"})

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("A")
	assert.False(t, ok, "oldest entry evicted")
}
