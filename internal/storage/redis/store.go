package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"driftmail/backend/internal/domain"
	"driftmail/backend/internal/storage"
)

const (
	// keyPrefix 邮箱记录哈希键的前缀，每个地址一个哈希。
	keyPrefix = "driftmail:box:"

	// maxTxRetries 乐观事务的最大重试次数。
	maxTxRetries = 5

	// removalBuffer 清扫事件通道的缓冲大小。
	removalBuffer = 256
)

// Config Redis 连接配置。
type Config struct {
	Address  string
	Password string
	DB       int
}

// Store 基于 Redis 哈希保存邮箱记录。
//
// 每个地址对应一个哈希键，字段为记录 ID，值为记录的 JSON 序列化。
// 记录不使用 Redis 原生 TTL：过期记录保留到清扫删除为止，
// 这样删除事件才能携带完整的旧记录快照。
type Store struct {
	rdb      *goredis.Client
	log      *zap.Logger
	removals chan storage.Removal
}

// New 创建 Redis 存储并验证连接。
func New(cfg Config, log *zap.Logger) (*Store, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("connected to Redis",
		zap.String("address", cfg.Address),
		zap.Int("db", cfg.DB),
	)

	return NewWithClient(rdb, log), nil
}

// NewWithClient 在已有客户端之上创建存储，测试时配合 miniredis 使用。
func NewWithClient(rdb *goredis.Client, log *zap.Logger) *Store {
	return &Store{
		rdb:      rdb,
		log:      log,
		removals: make(chan storage.Removal, removalBuffer),
	}
}

func boxKey(address string) string {
	return keyPrefix + address
}

// InsertSessionNX 仅当地址不存在存活会话记录时写入会话记录。
//
// 通过 WATCH 保护检查与写入之间的窗口：并发写入触发事务失败时
// 重读重试，两个竞争者至多一个成功。
func (s *Store) InsertSessionNX(ctx context.Context, record *domain.Record) (bool, error) {
	key := boxKey(record.Address)

	payload, err := json.Marshal(record)
	if err != nil {
		return false, fmt.Errorf("failed to marshal session record: %w", err)
	}

	inserted := false
	txn := func(tx *goredis.Tx) error {
		raw, err := tx.HGet(ctx, key, domain.SessionRecordID).Result()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return err
		}
		if err == nil {
			var existing domain.Record
			if json.Unmarshal([]byte(raw), &existing) == nil && !existing.Expired(time.Now()) {
				return nil
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, key, record.ID, payload)
			return nil
		})
		if err == nil {
			inserted = true
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txn, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return false, err
		}
		return inserted, nil
	}
	return false, fmt.Errorf("session insert for %s aborted after %d retries", record.Address, maxTxRetries)
}

// SaveMessage 写入一条邮件记录。
func (s *Store) SaveMessage(ctx context.Context, record *domain.Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal message record: %w", err)
	}
	return s.rdb.HSet(ctx, boxKey(record.Address), record.ID, payload).Err()
}

// GetRecord 按 (address, id) 读取单条记录；已过期视同不存在。
func (s *Store) GetRecord(ctx context.Context, address, id string) (*domain.Record, error) {
	raw, err := s.rdb.HGet(ctx, boxKey(address), id).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	var record domain.Record
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record %s/%s: %w", address, id, err)
	}
	if record.Expired(time.Now()) {
		return nil, domain.ErrRecordNotFound
	}
	return &record, nil
}

// ExistsLive 判断地址是否存在任何存活记录。
func (s *Store) ExistsLive(ctx context.Context, address string) (bool, error) {
	fields, err := s.rdb.HGetAll(ctx, boxKey(address)).Result()
	if err != nil {
		return false, err
	}

	now := time.Now()
	for _, raw := range fields {
		var record domain.Record
		if json.Unmarshal([]byte(raw), &record) != nil {
			continue
		}
		if !record.Expired(now) {
			return true, nil
		}
	}
	return false, nil
}

// ListRecords 返回地址下全部存活记录。
func (s *Store) ListRecords(ctx context.Context, address string) ([]domain.Record, error) {
	fields, err := s.rdb.HGetAll(ctx, boxKey(address)).Result()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	result := make([]domain.Record, 0, len(fields))
	for id, raw := range fields {
		var record domain.Record
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			s.log.Warn("skipping unreadable record",
				zap.String("address", address),
				zap.String("id", id),
				zap.Error(err),
			)
			continue
		}
		if record.Expired(now) {
			continue
		}
		result = append(result, record)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// SweepExpired 扫描全部邮箱哈希，删除过期记录并逐条投递删除事件。
func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	removed := 0

	iter := s.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		fields, err := s.rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return removed, err
		}

		for id, raw := range fields {
			var record domain.Record
			if err := json.Unmarshal([]byte(raw), &record); err != nil {
				// 无法解析的记录直接清除，没有快照可投递。
				s.log.Warn("dropping unreadable record during sweep",
					zap.String("key", key),
					zap.String("id", id),
					zap.Error(err),
				)
				if err := s.rdb.HDel(ctx, key, id).Err(); err != nil {
					return removed, err
				}
				continue
			}
			if !record.Expired(now) {
				continue
			}

			if err := s.rdb.HDel(ctx, key, id).Err(); err != nil {
				return removed, err
			}
			removed++

			select {
			case s.removals <- storage.Removal{Event: storage.EventRemove, Record: record}:
			case <-ctx.Done():
				return removed, ctx.Err()
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, err
	}
	return removed, nil
}

// Removals 返回清扫删除事件流。
func (s *Store) Removals() <-chan storage.Removal {
	return s.removals
}

// Close 关闭 Redis 连接。
func (s *Store) Close() error {
	close(s.removals)
	return s.rdb.Close()
}

// Health 健康检查。
func (s *Store) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.rdb.Ping(ctx).Err()
}
