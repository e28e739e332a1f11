package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	blobmemory "driftmail/backend/internal/blob/memory"
	"driftmail/backend/internal/domain"
	"driftmail/backend/internal/storage/memory"
)

const rawMultipart = "Content-Type: multipart/alternative; boundary=\"b1\"\r\n\r\n" +
	"--b1\r\n" +
	"Content-Type: text/html\r\n\r\n<b>hi</b>\r\n" +
	"--b1--\r\n"

func TestIngest(t *testing.T) {
	store := memory.NewStore()
	blobs := blobmemory.NewStore()
	pipeline := NewPipeline(store, blobs, 15*time.Minute, zap.NewNop(), nil)
	ctx := context.Background()

	record, err := pipeline.Ingest(ctx, &Event{
		Recipient: "a@x.test",
		Sender:    "sender@example.com",
		Subject:   "greetings",
		Date:      "2026-09-01T10:00:00Z",
		RawMIME:   []byte(rawMultipart),
	})
	require.NoError(t, err)

	assert.Equal(t, "a@x.test", record.Address)
	assert.Equal(t, domain.KindMessage, record.Kind)
	assert.Equal(t, "greetings", record.Subject)
	assert.Equal(t, "sender@example.com", record.Sender)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), record.ExpiresAt, 5*time.Second)

	// 记录可查，正文可读。
	stored, err := store.GetRecord(ctx, "a@x.test", record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.BlobKey, stored.BlobKey)

	body, err := blobs.Get(ctx, record.BlobKey)
	require.NoError(t, err)
	assert.Equal(t, "<b>hi</b>", string(body))
}

func TestIngest_MetadataDefaults(t *testing.T) {
	pipeline := NewPipeline(memory.NewStore(), blobmemory.NewStore(), 15*time.Minute, zap.NewNop(), nil)

	record, err := pipeline.Ingest(context.Background(), &Event{
		Recipient: "a@x.test",
		RawMIME:   []byte(rawMultipart),
	})
	require.NoError(t, err)

	assert.Equal(t, "(No Subject)", record.Subject)
	assert.Equal(t, "unknown@sender", record.Sender)

	_, parseErr := time.Parse(time.RFC3339, record.Date)
	assert.NoError(t, parseErr)
}

func TestIngest_MalformedMIMEStillIngested(t *testing.T) {
	blobs := blobmemory.NewStore()
	pipeline := NewPipeline(memory.NewStore(), blobs, 15*time.Minute, zap.NewNop(), nil)

	record, err := pipeline.Ingest(context.Background(), &Event{
		Recipient: "a@x.test",
		RawMIME:   []byte("no mime structure at all"),
	})
	require.NoError(t, err)

	body, err := blobs.Get(context.Background(), record.BlobKey)
	require.NoError(t, err)
	assert.Contains(t, string(body), "[Email format not recognized: no boundary]")
}

// failingBlobs 的写入总是失败。
type failingBlobs struct{}

func (failingBlobs) Put(ctx context.Context, key string, data []byte) error {
	return errors.New("blob backend down")
}

func (failingBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("blob backend down")
}

func (failingBlobs) Delete(ctx context.Context, key string) error {
	return errors.New("blob backend down")
}

func TestIngest_BlobFailureWritesNoRecord(t *testing.T) {
	store := memory.NewStore()
	pipeline := NewPipeline(store, failingBlobs{}, 15*time.Minute, zap.NewNop(), nil)
	ctx := context.Background()

	_, err := pipeline.Ingest(ctx, &Event{
		Recipient: "a@x.test",
		RawMIME:   []byte(rawMultipart),
	})
	require.Error(t, err)

	// 正文写失败时不得留下指向空对象的记录。
	records, err := store.ListRecords(ctx, "a@x.test")
	require.NoError(t, err)
	assert.Empty(t, records)
}
