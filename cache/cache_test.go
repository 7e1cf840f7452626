package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/offerscrape/models"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestCache(size int) (*Cache, *clock) {
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	c := New(size, 0)
	c.now = clk.now
	return c, clk
}

func sample(v string) models.ProductData {
	return models.ProductData{models.URLTypeRetail: {GlobalData: map[string]any{"v": v}}}
}

func TestGet_MaxAge(t *testing.T) {
	c, clk := newTestCache(10)
	k := Key("https://detail.1688.com/offer", "1")
	c.Set(k, sample("a"))

	_, ok := c.Get(k, 0)
	assert.False(t, ok, "max_age 0 disables lookup")

	got, ok := c.Get(k, 1000)
	require.True(t, ok)
	assert.Equal(t, sample("a"), got)

	clk.t = clk.t.Add(1500 * time.Millisecond)
	_, ok = c.Get(k, 1000)
	assert.False(t, ok)
	_, ok = c.Get(k, 2000)
	assert.True(t, ok)
}

func TestSet_EvictsOldest(t *testing.T) {
	c, clk := newTestCache(2)
	c.Set("a", sample("a"))
	clk.t = clk.t.Add(time.Second)
	c.Set("b", sample("b"))
	clk.t = clk.t.Add(time.Second)
	c.Set("c", sample("c"))

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("a", 60_000)
	assert.False(t, ok)
	_, ok = c.Get("c", 60_000)
	assert.True(t, ok)

	// Overwriting an existing key does not evict.
	c.Set("b", sample("b2"))
	assert.Equal(t, 2, c.Len())
}

func TestSweep(t *testing.T) {
	c, clk := newTestCache(10)
	c.ttl = time.Hour
	c.Set("old", sample("old"))
	clk.t = clk.t.Add(2 * time.Hour)
	c.Set("new", sample("new"))

	c.sweep()
	assert.Equal(t, 1, c.Len())
}

func TestKey(t *testing.T) {
	assert.Equal(t, Key("b", "1"), Key("b", "1"))
	assert.NotEqual(t, Key("b", "1"), Key("b", "2"))
	assert.NotEqual(t, Key("b1", "1"), Key("b", "11"))
}

func TestClose_Idempotent(t *testing.T) {
	c := New(1, time.Minute)
	assert.NotPanics(t, func() {
		c.Close()
		c.Close()
	})
}
