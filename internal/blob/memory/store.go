// Package memory 提供内存正文存储，用于开发验证与测试。
package memory

import (
	"context"
	"sync"

	"driftmail/backend/internal/blob"
)

// Store 将正文对象保存在内存中。
type Store struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewStore 创建一个内存正文存储。
func NewStore() *Store {
	return &Store{objects: make(map[string][]byte)}
}

// Put 写入对象，同键覆盖。
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]byte, len(data))
	copy(copied, data)
	s.objects[key] = copied
	return nil
}

// Get 读取对象内容。
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.objects[key]
	if !ok {
		return nil, blob.ErrNotFound
	}

	copied := make([]byte, len(data))
	copy(copied, data)
	return copied, nil
}

// Delete 删除对象，不存在时静默成功。
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.objects, key)
	return nil
}
