package app

import (
	"container/list"
	"sync"
	"time"

	"chat_sync_service/pkg/metrics"
)

type cacheEntry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// viewCache 帶 TTL 的有界快取
// 依寫入順序淘汰 (不是 LRU), 更新既有 key 不會改變順序; maxEntries <= 0 表示不限數量
type viewCache[K comparable, V any] struct {
	mu         sync.Mutex
	name       string
	ttl        time.Duration
	maxEntries int
	clock      func() time.Time

	order *list.List
	index map[K]*list.Element
}

func newViewCache[K comparable, V any](name string, ttl time.Duration, maxEntries int, clock func() time.Time) *viewCache[K, V] {
	return &viewCache[K, V]{
		name:       name,
		ttl:        ttl,
		maxEntries: maxEntries,
		clock:      clock,
		order:      list.New(),
		index:      make(map[K]*list.Element),
	}
}

func (c *viewCache[K, V]) get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.index[key]
	if !ok {
		metrics.CacheMiss(c.name)
		return zero, false
	}
	entry := el.Value.(*cacheEntry[K, V])
	if c.ttl > 0 && !c.clock().Before(entry.expiresAt) {
		c.removeLocked(el)
		metrics.CacheMiss(c.name)
		return zero, false
	}
	metrics.CacheHit(c.name)
	return entry.value, true
}

func (c *viewCache[K, V]) set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.clock().Add(c.ttl)
	if el, ok := c.index[key]; ok {
		entry := el.Value.(*cacheEntry[K, V])
		entry.value = value
		entry.expiresAt = expiresAt
		return
	}

	c.index[key] = c.order.PushBack(&cacheEntry[K, V]{key: key, value: value, expiresAt: expiresAt})
	c.trimLocked()
}

// trimLocked 超過上限時一次淘汰最舊的項目
func (c *viewCache[K, V]) trimLocked() {
	if c.maxEntries <= 0 {
		return
	}
	for c.order.Len() > c.maxEntries {
		c.removeLocked(c.order.Front())
	}
}

func (c *viewCache[K, V]) removeLocked(el *list.Element) {
	entry := el.Value.(*cacheEntry[K, V])
	delete(c.index, entry.key)
	c.order.Remove(el)
}

func (c *viewCache[K, V]) deleteFunc(match func(K) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if match(el.Value.(*cacheEntry[K, V]).key) {
			c.removeLocked(el)
			removed++
		}
		el = next
	}
	return removed
}

func (c *viewCache[K, V]) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.index = make(map[K]*list.Element)
}

func (c *viewCache[K, V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
