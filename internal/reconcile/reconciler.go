// Package reconcile 消费存储的删除事件流，回收记录的外部关联资源。
package reconcile

import (
	"context"

	"go.uber.org/zap"

	"driftmail/backend/internal/blob"
	"driftmail/backend/internal/domain"
	"driftmail/backend/internal/monitoring"
	"driftmail/backend/internal/registry"
	"driftmail/backend/internal/storage"
)

// Reconciler 对每条删除事件做一次独立回收：
// 邮件记录删正文对象，会话记录吊销收件人。
//
// 回收失败只记日志，不重试也不向外传播；事件之间互不影响。
// 正文删除与收件人吊销都幂等，事件至少一次投递是安全的。
type Reconciler struct {
	removals <-chan storage.Removal
	blobs    blob.Store
	registry registry.Registry
	log      *zap.Logger
	metrics  *monitoring.Metrics
}

// New 创建回收器。
func New(removals <-chan storage.Removal, blobs blob.Store, reg registry.Registry, log *zap.Logger, metrics *monitoring.Metrics) *Reconciler {
	return &Reconciler{
		removals: removals,
		blobs:    blobs,
		registry: reg,
		log:      log,
		metrics:  metrics,
	}
}

// Run 消费事件流直到上下文取消或通道关闭。
func (r *Reconciler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case removal, ok := <-r.removals:
			if !ok {
				return nil
			}
			r.Handle(ctx, removal)
		}
	}
}

// Handle 处理一条删除事件。只对 REMOVE 事件动作。
func (r *Reconciler) Handle(ctx context.Context, removal storage.Removal) {
	if removal.Event != storage.EventRemove {
		return
	}
	r.metrics.RecordReconcileNotification()

	record := removal.Record
	switch record.Kind {
	case domain.KindMessage:
		if err := r.blobs.Delete(ctx, record.BlobKey); err != nil {
			r.metrics.RecordReconcileFailure("blob_delete")
			r.log.Error("failed to delete body blob for expired message",
				zap.String("address", record.Address),
				zap.String("messageId", record.ID),
				zap.String("blobKey", record.BlobKey),
				zap.Error(err),
			)
			return
		}
		r.metrics.RecordBodyBlobDeletion()
		r.log.Debug("body blob deleted",
			zap.String("address", record.Address),
			zap.String("messageId", record.ID),
		)

	case domain.KindSession:
		if err := r.registry.Revoke(ctx, record.Address); err != nil {
			r.metrics.RecordReconcileFailure("registry_revoke")
			r.log.Error("failed to revoke expired address",
				zap.String("address", record.Address),
				zap.Error(err),
			)
			return
		}
		r.metrics.RecordRegistryRevocation()
		r.log.Info("address revoked", zap.String("address", record.Address))

	default:
		r.log.Warn("removal event with unknown record kind",
			zap.String("address", record.Address),
			zap.String("id", record.ID),
			zap.String("kind", string(record.Kind)),
		)
	}
}
