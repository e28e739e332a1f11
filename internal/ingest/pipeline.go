// Package ingest 将入站邮件转换为正文对象加邮件记录。
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"driftmail/backend/internal/blob"
	"driftmail/backend/internal/domain"
	"driftmail/backend/internal/mime"
	"driftmail/backend/internal/monitoring"
	"driftmail/backend/internal/storage"
)

// 元数据缺失时的占位值。
const (
	defaultSubject = "(No Subject)"
	defaultSender  = "unknown@sender"
)

// Event 一封入站邮件：原始 MIME 内容加投递元数据。
type Event struct {
	Recipient string
	Sender    string
	Subject   string
	Date      string
	RawMIME   []byte
}

// Pipeline 邮件入库管线。
type Pipeline struct {
	store   storage.Store
	blobs   blob.Store
	ttl     time.Duration
	log     *zap.Logger
	metrics *monitoring.Metrics
}

// NewPipeline 创建入库管线。
func NewPipeline(store storage.Store, blobs blob.Store, ttl time.Duration, log *zap.Logger, metrics *monitoring.Metrics) *Pipeline {
	return &Pipeline{
		store:   store,
		blobs:   blobs,
		ttl:     ttl,
		log:     log,
		metrics: metrics,
	}
}

// Ingest 处理一封入站邮件：提取正文、写正文对象、写邮件记录。
//
// 正文对象写失败时不写记录，避免记录指向不存在的对象。
// 记录写失败时已写入的对象成为孤儿，留给外部清理，这里只记日志。
func (p *Pipeline) Ingest(ctx context.Context, event *Event) (*domain.Record, error) {
	start := time.Now()

	html := mime.Extract(event.RawMIME)

	messageID := uuid.New().String()
	blobKey := domain.BodyBlobKey(messageID)

	if err := p.blobs.Put(ctx, blobKey, []byte(html)); err != nil {
		p.metrics.RecordError("blob_put", "ingest")
		return nil, fmt.Errorf("failed to store message body: %w", err)
	}

	now := time.Now()
	record := &domain.Record{
		Address:   event.Recipient,
		ID:        messageID,
		Kind:      domain.KindMessage,
		Subject:   orDefault(event.Subject, defaultSubject),
		Sender:    orDefault(event.Sender, defaultSender),
		Date:      orDefault(event.Date, now.UTC().Format(time.RFC3339)),
		BlobKey:   blobKey,
		CreatedAt: now,
		ExpiresAt: now.Add(p.ttl),
	}

	if err := p.store.SaveMessage(ctx, record); err != nil {
		p.metrics.RecordError("record_put", "ingest")
		p.log.Warn("message record write failed, body blob orphaned",
			zap.String("address", event.Recipient),
			zap.String("blobKey", blobKey),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to store message record: %w", err)
	}

	p.metrics.RecordMessageIngested(time.Since(start))
	p.log.Info("message ingested",
		zap.String("address", event.Recipient),
		zap.String("messageId", messageID),
		zap.String("sender", record.Sender),
	)
	return record, nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
