package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"driftmail/backend/internal/blob"
	"driftmail/backend/internal/domain"
	"driftmail/backend/internal/storage"
)

// MessageService 负责读取邮箱内容与邮件正文。
type MessageService struct {
	store storage.Store
	blobs blob.Store
	log   *zap.Logger
}

// NewMessageService 创建邮件读取服务。
func NewMessageService(store storage.Store, blobs blob.Store, log *zap.Logger) *MessageService {
	return &MessageService{
		store: store,
		blobs: blobs,
		log:   log,
	}
}

// List 返回地址下的全部邮件记录，按入库顺序排列。
// 会话标记记录不出现在结果中。
func (s *MessageService) List(ctx context.Context, address string) ([]domain.Record, error) {
	records, err := s.store.ListRecords(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	messages := make([]domain.Record, 0, len(records))
	for _, record := range records {
		if record.Kind == domain.KindSession {
			continue
		}
		messages = append(messages, record)
	}
	return messages, nil
}

// Body 读取一封邮件的渲染正文。
// 记录不存在、已过期或不是邮件记录时返回 domain.ErrRecordNotFound。
func (s *MessageService) Body(ctx context.Context, address, messageID string) ([]byte, error) {
	record, err := s.store.GetRecord(ctx, address, messageID)
	if err != nil {
		return nil, err
	}
	if record.Kind != domain.KindMessage {
		return nil, domain.ErrRecordNotFound
	}

	body, err := s.blobs.Get(ctx, record.BlobKey)
	if err != nil {
		s.log.Error("failed to read body blob",
			zap.String("address", address),
			zap.String("messageId", messageID),
			zap.String("blobKey", record.BlobKey),
			zap.Error(err),
		)
		return nil, err
	}
	return body, nil
}
