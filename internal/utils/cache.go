package utils

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cacheEntry[T any] struct {
	value     T
	expiresAt time.Time
}

// SearchCache 带过期时间的 LRU 缓存，并发安全
type SearchCache[T any] struct {
	storage *lru.Cache[string, cacheEntry[T]]
	ttl     time.Duration
	now     func() time.Time
}

// NewSearchCache size 为最大条数，ttl 为有效期
func NewSearchCache[T any](size int, ttl time.Duration) *SearchCache[T] {
	if size <= 0 {
		size = 1
	}
	c, _ := lru.New[string, cacheEntry[T]](size)
	return &SearchCache[T]{
		storage: c,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Set 写入或覆盖
func (c *SearchCache[T]) Set(key string, value T) {
	c.storage.Add(key, cacheEntry[T]{value: value, expiresAt: c.now().Add(c.ttl)})
}

// Get 读取，过期条目会被移除
func (c *SearchCache[T]) Get(key string) (T, bool) {
	var zero T
	item, ok := c.storage.Get(key)
	if !ok {
		return zero, false
	}
	if c.now().After(item.expiresAt) {
		c.storage.Remove(key)
		return zero, false
	}
	return item.value, true
}

// Purge 清空
func (c *SearchCache[T]) Purge() {
	c.storage.Purge()
}

// Len 当前条数
func (c *SearchCache[T]) Len() int {
	return c.storage.Len()
}
