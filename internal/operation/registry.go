package operation

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var globalRegistry = newRegistry()

type registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

func newRegistry() *registry {
	return &registry{defs: make(map[string]Definition)}
}

// Register 将操作加入全局注册表，重复键会返回错误。
func Register(def Definition) error {
	return globalRegistry.register(def)
}

// MustRegister 在注册失败时 panic，适合操作包的 init() 中调用。
func MustRegister(def Definition) {
	if err := Register(def); err != nil {
		panic(err)
	}
}

// Resolve 返回指定键的操作定义。
func Resolve(key string) (Definition, bool) {
	return globalRegistry.resolve(key)
}

// List 返回按键排序的操作定义列表。
func List() []Definition {
	return globalRegistry.list()
}

// Keys 返回所有已注册操作的键值。
func Keys() []string {
	items := List()
	result := make([]string, len(items))
	for i, def := range items {
		result[i] = def.Key
	}
	return result
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func (r *registry) register(def Definition) error {
	key := normalizeKey(def.Key)
	if key == "" {
		return errors.New("operation key is required")
	}
	if len(def.ImageSlots) == 0 {
		return fmt.Errorf("operation %s must declare at least one image slot", key)
	}
	if def.Build == nil {
		return fmt.Errorf("operation %s has no prompt builder", key)
	}
	def.Key = key

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[key]; exists {
		return fmt.Errorf("operation %s already registered", key)
	}
	r.defs[key] = def
	return nil
}

func (r *registry) resolve(key string) (Definition, bool) {
	normalized := normalizeKey(key)
	if normalized == "" {
		return Definition{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[normalized]
	return def, ok
}

func (r *registry) list() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.defs) == 0 {
		return nil
	}

	keys := make([]string, 0, len(r.defs))
	for key := range r.defs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := make([]Definition, 0, len(keys))
	for _, key := range keys {
		result = append(result, r.defs[key])
	}
	return result
}
