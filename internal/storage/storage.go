// Package storage 定义邮箱记录的存取契约。
//
// 会话记录与邮件记录存在同一命名空间下，按 (address, id) 定位。
// 记录带绝对过期时间；后台清扫是过期删除的唯一权威来源，
// 读取路径只做被动过滤，不产生删除事件。
package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"driftmail/backend/internal/domain"
	"driftmail/backend/internal/monitoring"
)

// EventRemove 清扫删除事件的类型标记。
const EventRemove = "REMOVE"

// Removal 描述一次清扫删除，携带删除前的完整记录快照。
type Removal struct {
	Event  string
	Record domain.Record
}

// Store 定义邮箱记录存储的完整接口。
type Store interface {
	// InsertSessionNX 仅当地址不存在存活会话记录时写入会话记录。
	// 返回 false 表示地址已被占用，记录未写入。
	InsertSessionNX(ctx context.Context, record *domain.Record) (bool, error)

	// SaveMessage 写入一条邮件记录。
	SaveMessage(ctx context.Context, record *domain.Record) error

	// GetRecord 按 (address, id) 读取单条记录；已过期视同不存在。
	GetRecord(ctx context.Context, address, id string) (*domain.Record, error)

	// ExistsLive 判断地址是否存在任何存活记录。
	ExistsLive(ctx context.Context, address string) (bool, error)

	// ListRecords 返回地址下全部存活记录（含会话记录）。
	ListRecords(ctx context.Context, address string) ([]domain.Record, error)

	// SweepExpired 删除所有已过期记录并逐条投递 Removal，返回删除数量。
	SweepExpired(ctx context.Context, now time.Time) (int, error)

	// Removals 返回清扫删除事件流。每条被删除的记录恰好产生一个事件。
	Removals() <-chan Removal

	Close() error
	Health() error
}

// RunJanitor 周期性触发过期清扫，直到上下文取消。
func RunJanitor(ctx context.Context, store Store, interval time.Duration, log *zap.Logger, metrics *monitoring.Metrics) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			removed, err := store.SweepExpired(ctx, now)
			if err != nil {
				log.Error("expired record sweep failed", zap.Error(err))
				continue
			}
			metrics.RecordSweep(removed)
			if removed > 0 {
				log.Info("expired records removed", zap.Int("count", removed))
			}
		}
	}
}
