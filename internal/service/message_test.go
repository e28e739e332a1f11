package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	blobmemory "driftmail/backend/internal/blob/memory"
	"driftmail/backend/internal/domain"
	"driftmail/backend/internal/storage/memory"
)

func TestList_ExcludesSessionRecord(t *testing.T) {
	store := memory.NewStore()
	svc := NewMessageService(store, blobmemory.NewStore(), zap.NewNop())
	ctx := context.Background()

	_, err := store.InsertSessionNX(ctx, domain.NewSessionRecord("a@x.test", time.Now(), 20*time.Minute))
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, store.SaveMessage(ctx, &domain.Record{
		Address:   "a@x.test",
		ID:        "m1",
		Kind:      domain.KindMessage,
		Subject:   "first",
		CreatedAt: now,
		ExpiresAt: now.Add(15 * time.Minute),
	}))
	require.NoError(t, store.SaveMessage(ctx, &domain.Record{
		Address:   "a@x.test",
		ID:        "m2",
		Kind:      domain.KindMessage,
		Subject:   "second",
		CreatedAt: now.Add(time.Second),
		ExpiresAt: now.Add(15 * time.Minute),
	}))

	messages, err := svc.List(ctx, "a@x.test")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "m1", messages[0].ID)
	assert.Equal(t, "m2", messages[1].ID)
}

func TestList_EmptyMailbox(t *testing.T) {
	svc := NewMessageService(memory.NewStore(), blobmemory.NewStore(), zap.NewNop())

	messages, err := svc.List(context.Background(), "nobody@x.test")
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestBody(t *testing.T) {
	store := memory.NewStore()
	blobs := blobmemory.NewStore()
	svc := NewMessageService(store, blobs, zap.NewNop())
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, blobs.Put(ctx, domain.BodyBlobKey("m1"), []byte("<b>hi</b>")))
	require.NoError(t, store.SaveMessage(ctx, &domain.Record{
		Address:   "a@x.test",
		ID:        "m1",
		Kind:      domain.KindMessage,
		BlobKey:   domain.BodyBlobKey("m1"),
		CreatedAt: now,
		ExpiresAt: now.Add(15 * time.Minute),
	}))

	body, err := svc.Body(ctx, "a@x.test", "m1")
	require.NoError(t, err)
	assert.Equal(t, "<b>hi</b>", string(body))
}

func TestBody_NotFound(t *testing.T) {
	store := memory.NewStore()
	svc := NewMessageService(store, blobmemory.NewStore(), zap.NewNop())
	ctx := context.Background()

	_, err := svc.Body(ctx, "a@x.test", "missing")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)

	// 会话标记记录不是可读邮件。
	_, err = store.InsertSessionNX(ctx, domain.NewSessionRecord("a@x.test", time.Now(), 20*time.Minute))
	require.NoError(t, err)

	_, err = svc.Body(ctx, "a@x.test", domain.SessionRecordID)
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestBody_ExpiredRecord(t *testing.T) {
	store := memory.NewStore()
	blobs := blobmemory.NewStore()
	svc := NewMessageService(store, blobs, zap.NewNop())
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, blobs.Put(ctx, domain.BodyBlobKey("m1"), []byte("<b>hi</b>")))
	require.NoError(t, store.SaveMessage(ctx, &domain.Record{
		Address:   "a@x.test",
		ID:        "m1",
		Kind:      domain.KindMessage,
		BlobKey:   domain.BodyBlobKey("m1"),
		CreatedAt: now.Add(-16 * time.Minute),
		ExpiresAt: now.Add(-time.Minute),
	}))

	_, err := svc.Body(ctx, "a@x.test", "m1")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}
