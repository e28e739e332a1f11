package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"driftmail/backend/internal/domain"
	"driftmail/backend/internal/storage"
)

// removalBuffer 清扫事件通道的缓冲大小。
const removalBuffer = 256

// Store 使用内存保存邮箱记录，主要用于开发验证与测试。
type Store struct {
	mu       sync.RWMutex
	records  map[string]map[string]*domain.Record // address -> recordID -> record
	removals chan storage.Removal
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		records:  make(map[string]map[string]*domain.Record),
		removals: make(chan storage.Removal, removalBuffer),
	}
}

// InsertSessionNX 仅当地址不存在存活会话记录时写入会话记录。
func (s *Store) InsertSessionNX(ctx context.Context, record *domain.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if existing, ok := s.records[record.Address][domain.SessionRecordID]; ok && !existing.Expired(now) {
		return false, nil
	}

	s.putLocked(record)
	return true, nil
}

// SaveMessage 写入一条邮件记录。
func (s *Store) SaveMessage(ctx context.Context, record *domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.putLocked(record)
	return nil
}

// GetRecord 按 (address, id) 读取单条记录；已过期视同不存在。
func (s *Store) GetRecord(ctx context.Context, address, id string) (*domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[address][id]
	if !ok || record.Expired(time.Now()) {
		return nil, domain.ErrRecordNotFound
	}

	copied := *record
	return &copied, nil
}

// ExistsLive 判断地址是否存在任何存活记录。
func (s *Store) ExistsLive(ctx context.Context, address string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	for _, record := range s.records[address] {
		if !record.Expired(now) {
			return true, nil
		}
	}
	return false, nil
}

// ListRecords 返回地址下全部存活记录。
func (s *Store) ListRecords(ctx context.Context, address string) ([]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	result := make([]domain.Record, 0, len(s.records[address]))
	for _, record := range s.records[address] {
		if record.Expired(now) {
			continue
		}
		result = append(result, *record)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// SweepExpired 删除所有已过期记录并逐条投递删除事件。
func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()

	expired := make([]domain.Record, 0)
	for address, byID := range s.records {
		for id, record := range byID {
			if record.Expired(now) {
				expired = append(expired, *record)
				delete(byID, id)
			}
		}
		if len(byID) == 0 {
			delete(s.records, address)
		}
	}
	s.mu.Unlock()

	for _, record := range expired {
		select {
		case s.removals <- storage.Removal{Event: storage.EventRemove, Record: record}:
		case <-ctx.Done():
			return len(expired), ctx.Err()
		}
	}
	return len(expired), nil
}

// Removals 返回清扫删除事件流。
func (s *Store) Removals() <-chan storage.Removal {
	return s.removals
}

// Close 关闭存储。
func (s *Store) Close() error {
	close(s.removals)
	return nil
}

// Health 健康检查。内存存储总是健康的。
func (s *Store) Health() error {
	return nil
}

func (s *Store) putLocked(record *domain.Record) {
	byID, ok := s.records[record.Address]
	if !ok {
		byID = make(map[string]*domain.Record)
		s.records[record.Address] = byID
	}
	copied := *record
	byID[record.ID] = &copied
}
