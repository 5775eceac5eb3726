package server

import (
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// resultIndex 记录缓存键到已存储结果 ID 的映射。缓存命中时复用同一份存储对象，
// 容量与结果缓存一致。
type resultIndex struct {
	mu  sync.Mutex
	lru *simplelru.LRU[string, string]
}

func newResultIndex(size int) (*resultIndex, error) {
	lru, err := simplelru.NewLRU[string, string](size, nil)
	if err != nil {
		return nil, err
	}
	return &resultIndex{lru: lru}, nil
}

func (x *resultIndex) lookup(cacheKey string) (string, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.lru.Get(cacheKey)
}

func (x *resultIndex) remember(cacheKey, id string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.lru.Add(cacheKey, id)
}

// forget 删除所有指向 id 的条目。
func (x *resultIndex) forget(id string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, key := range x.lru.Keys() {
		if stored, ok := x.lru.Peek(key); ok && stored == id {
			x.lru.Remove(key)
		}
	}
}
