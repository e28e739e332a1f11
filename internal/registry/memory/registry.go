// Package memory 提供内存收件人集合，用于开发验证与测试。
package memory

import (
	"context"
	"sort"
	"sync"
)

// Registry 将收件人集合保存在内存中。
type Registry struct {
	mu        sync.RWMutex
	addresses map[string]struct{}
}

// NewRegistry 创建一个内存收件人集合。
func NewRegistry() *Registry {
	return &Registry{addresses: make(map[string]struct{})}
}

// Admit 将地址加入集合。
func (r *Registry) Admit(ctx context.Context, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.addresses[address] = struct{}{}
	return nil
}

// Revoke 将地址移出集合。
func (r *Registry) Revoke(ctx context.Context, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.addresses, address)
	return nil
}

// Contains 判断地址是否在集合中。
func (r *Registry) Contains(ctx context.Context, address string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.addresses[address]
	return ok, nil
}

// List 返回集合内全部地址的快照。
func (r *Registry) List(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, 0, len(r.addresses))
	for address := range r.addresses {
		result = append(result, address)
	}
	sort.Strings(result)
	return result, nil
}

// Health 健康检查。内存集合总是健康的。
func (r *Registry) Health() error {
	return nil
}
