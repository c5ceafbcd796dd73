package cache

import (
	"container/list"
	"sync"
)

type lruEntry struct {
	key string
	val any
}

// LRU is a fixed-size least-recently-used cache.
type LRU struct {
	mu    sync.Mutex
	size  int
	ll    *list.List
	items map[string]*list.Element
}

// NewLRU creates an LRU holding at most size entries. size <= 0 falls back
// to 128.
func NewLRU(size int) *LRU {
	if size <= 0 {
		size = 128
	}
	return &LRU{
		size:  size,
		ll:    list.New(),
		items: make(map[string]*list.Element, size),
	}
}

func (c *LRU) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*lruEntry).val, true
}

func (c *LRU) Put(key string, val any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		el.Value.(*lruEntry).val = val
		return
	}

	el := c.ll.PushFront(&lruEntry{key: key, val: val})
	c.items[key] = el

	if c.ll.Len() > c.size {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*lruEntry).key)
		}
	}
}

func (c *LRU) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.ll.Remove(el)
		delete(c.items, key)
	}
}

func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

var _ Cache = (*LRU)(nil)
