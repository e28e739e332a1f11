// Package redisreg 提供基于 Redis 的收件人集合。
//
// 整个集合存为单个键下的 JSON 数组，读改写之间用 WATCH 保护，
// 冲突时重读重试。集合规模与存活邮箱数同阶，单键足够。
package redisreg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	// recipientsKey 收件人集合的存储键。
	recipientsKey = "driftmail:recipients"

	// maxTxRetries 乐观事务的最大重试次数。
	maxTxRetries = 5
)

// Registry 将收件人集合保存在 Redis 中。
type Registry struct {
	rdb *goredis.Client
}

// New 在已有客户端之上创建收件人集合。
func New(rdb *goredis.Client) *Registry {
	return &Registry{rdb: rdb}
}

// Admit 将地址加入集合；已存在时静默成功。
func (r *Registry) Admit(ctx context.Context, address string) error {
	return r.mutate(ctx, func(addresses []string) ([]string, bool) {
		for _, existing := range addresses {
			if existing == address {
				return addresses, false
			}
		}
		return append(addresses, address), true
	})
}

// Revoke 将地址移出集合；不存在时静默成功。
func (r *Registry) Revoke(ctx context.Context, address string) error {
	return r.mutate(ctx, func(addresses []string) ([]string, bool) {
		for i, existing := range addresses {
			if existing == address {
				return append(addresses[:i], addresses[i+1:]...), true
			}
		}
		return addresses, false
	})
}

// Contains 判断地址是否在集合中。
func (r *Registry) Contains(ctx context.Context, address string) (bool, error) {
	addresses, err := r.load(ctx, r.rdb)
	if err != nil {
		return false, err
	}
	for _, existing := range addresses {
		if existing == address {
			return true, nil
		}
	}
	return false, nil
}

// List 返回集合内全部地址的快照。
func (r *Registry) List(ctx context.Context) ([]string, error) {
	addresses, err := r.load(ctx, r.rdb)
	if err != nil {
		return nil, err
	}
	sort.Strings(addresses)
	return addresses, nil
}

// Health 健康检查。
func (r *Registry) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return r.rdb.Ping(ctx).Err()
}

// mutate 在 WATCH 保护下对集合做一次读改写。
// apply 返回变更后的集合与是否需要写回。
func (r *Registry) mutate(ctx context.Context, apply func([]string) ([]string, bool)) error {
	txn := func(tx *goredis.Tx) error {
		addresses, err := r.load(ctx, tx)
		if err != nil {
			return err
		}

		updated, changed := apply(addresses)
		if !changed {
			return nil
		}

		payload, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("failed to marshal recipient list: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, recipientsKey, payload, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.rdb.Watch(ctx, txn, recipientsKey)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("recipient list update aborted after %d retries", maxTxRetries)
}

// load 读取并反序列化集合；键缺失视为空集合。
func (r *Registry) load(ctx context.Context, cmd goredis.Cmdable) ([]string, error) {
	raw, err := cmd.Get(ctx, recipientsKey).Result()
	if errors.Is(err, goredis.Nil) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	var addresses []string
	if err := json.Unmarshal([]byte(raw), &addresses); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recipient list: %w", err)
	}
	return addresses, nil
}
