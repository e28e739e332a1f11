// Package service 实现邮箱分配与邮件读取的业务逻辑。
package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"

	"driftmail/backend/internal/domain"
	"driftmail/backend/internal/monitoring"
	"driftmail/backend/internal/registry"
	"driftmail/backend/internal/storage"
)

const (
	// maxAllocateAttempts 地址分配的尝试上限。
	maxAllocateAttempts = 10

	// localPartLength 地址本地部分的长度。
	localPartLength = 8

	// addressAlphabet 本地部分的字符表。
	addressAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// SessionService 负责分配一次性邮箱地址并登记会话。
type SessionService struct {
	store    storage.Store
	registry registry.Registry
	domains  []string
	ttl      time.Duration
	log      *zap.Logger
	metrics  *monitoring.Metrics
}

// NewSessionService 创建分配服务。
func NewSessionService(store storage.Store, reg registry.Registry, domains []string, ttl time.Duration, log *zap.Logger, metrics *monitoring.Metrics) *SessionService {
	return &SessionService{
		store:    store,
		registry: reg,
		domains:  domains,
		ttl:      ttl,
		log:      log,
		metrics:  metrics,
	}
}

// Allocate 分配一个当前未被占用的邮箱地址并写入会话记录。
//
// 每次尝试：随机选域名、生成本地部分、先把地址准入收件人集合，
// 再做条件写入。条件写入失败说明地址已被并发占用，换地址重试；
// 准入是幂等的，失败方不做吊销，地址仍归成功方所有。
// 尝试上限内未成功返回 domain.ErrAllocationExhausted。
func (s *SessionService) Allocate(ctx context.Context) (string, error) {
	if len(s.domains) == 0 {
		s.metrics.RecordAllocationFailed(false)
		return "", domain.ErrNotConfigured
	}

	for attempt := 1; attempt <= maxAllocateAttempts; attempt++ {
		address, err := s.randomAddress()
		if err != nil {
			s.metrics.RecordAllocationFailed(false)
			return "", err
		}

		if err := s.registry.Admit(ctx, address); err != nil {
			s.metrics.RecordAllocationFailed(false)
			return "", fmt.Errorf("failed to admit recipient: %w", err)
		}

		record := domain.NewSessionRecord(address, time.Now(), s.ttl)
		inserted, err := s.store.InsertSessionNX(ctx, record)
		if err != nil {
			s.metrics.RecordAllocationFailed(false)
			return "", fmt.Errorf("failed to insert session record: %w", err)
		}
		if !inserted {
			s.log.Debug("address already taken, retrying",
				zap.String("address", address),
				zap.Int("attempt", attempt),
			)
			continue
		}

		s.metrics.RecordAllocation(attempt)
		s.log.Info("mailbox allocated",
			zap.String("address", address),
			zap.Time("expiresAt", record.ExpiresAt),
		)
		return address, nil
	}

	s.metrics.RecordAllocationFailed(true)
	s.log.Warn("address allocation exhausted", zap.Int("attempts", maxAllocateAttempts))
	return "", domain.ErrAllocationExhausted
}

// SessionTTL 返回会话有效期。
func (s *SessionService) SessionTTL() time.Duration {
	return s.ttl
}

// randomAddress 生成一个候选地址：均匀选域名加均匀随机本地部分。
// 返回前统一转小写，SMTP 在 RCPT 阶段也按小写比对收件人，
// 注册、存储与投递使用同一个键。
func (s *SessionService) randomAddress() (string, error) {
	domainIdx, err := rand.Int(rand.Reader, big.NewInt(int64(len(s.domains))))
	if err != nil {
		return "", fmt.Errorf("failed to read random source: %w", err)
	}

	local := make([]byte, localPartLength)
	for i := range local {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(addressAlphabet))))
		if err != nil {
			return "", fmt.Errorf("failed to read random source: %w", err)
		}
		local[i] = addressAlphabet[idx.Int64()]
	}

	return strings.ToLower(string(local)) + "@" + s.domains[domainIdx.Int64()], nil
}
