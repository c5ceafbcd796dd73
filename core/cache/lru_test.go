package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLRU_Eviction(t *testing.T) {
	c := NewLRU(2)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3) // evicts a

	_, ok := c.Get("a")
	assert.False(t, ok)

	v, ok := c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, c.Len())
}

func TestLRU_RecentUseProtects(t *testing.T) {
	c := NewLRU(2)
	c.Put("a", 1)
	c.Put("b", 2)
	_, _ = c.Get("a") // a becomes most recent
	c.Put("c", 3)     // evicts b

	_, ok := c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
}

func TestLRU_Remove(t *testing.T) {
	c := NewLRU(4)
	c.Put("a", 1)
	c.Remove("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}
