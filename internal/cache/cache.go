package cache

import (
	"errors"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// DefaultCapacity 与历史部署保持一致的默认条目上限。
const DefaultCapacity = 96

// ErrInvalidCapacity 表示容量非正数。
var ErrInvalidCapacity = errors.New("cache capacity must be positive")

// Cache 是线程安全的定长 LRU：Get 命中会刷新最近使用顺序，Set 超出容量时
// 仅淘汰一个最久未使用的条目。所有读写与重排都在同一把互斥锁内完成。
type Cache struct {
	mu       sync.Mutex
	capacity int
	entries  *simplelru.LRU[string, []byte]
}

// New 按固定容量创建缓存，容量在生命周期内不可变。
func New(capacity int) (*Cache, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	entries, err := simplelru.NewLRU[string, []byte](capacity, nil)
	if err != nil {
		return nil, err
	}
	return &Cache{capacity: capacity, entries: entries}, nil
}

// Get 返回 key 对应值的副本，命中时把 key 移到最近使用端。
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	value, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	return cloneBytes(value), true
}

// Set 插入或覆盖 key；新 key 导致超出容量时淘汰最久未使用的一个条目。
func (c *Cache) Set(key string, value []byte) {
	stored := cloneBytes(value)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(key, stored)
}

// Len 返回当前条目数量。
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Capacity 返回创建时指定的容量。
func (c *Cache) Capacity() int {
	return c.capacity
}

// Keys 按最久未使用到最近使用的顺序返回所有 key，仅供诊断使用，不会影响顺序。
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Keys()
}

func cloneBytes(src []byte) []byte {
	if src == nil {
		return nil
	}
	dst := make([]byte, len(src))
	copy(dst, src)
	return dst
}
