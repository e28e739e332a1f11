package smtp

import (
	"context"
	"strings"
	"testing"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	blobmemory "driftmail/backend/internal/blob/memory"
	"driftmail/backend/internal/domain"
	"driftmail/backend/internal/ingest"
	regmemory "driftmail/backend/internal/registry/memory"
	"driftmail/backend/internal/service"
	"driftmail/backend/internal/storage/memory"
)

const rawMessage = "From: Alice <alice@example.com>\r\n" +
	"To: a@x.test\r\n" +
	"Subject: =?UTF-8?B?Z3LDvMOfZQ==?=\r\n" +
	"Date: Mon, 01 Sep 2026 10:00:00 +0000\r\n" +
	"Content-Type: multipart/alternative; boundary=\"b1\"\r\n" +
	"\r\n" +
	"--b1\r\n" +
	"Content-Type: text/html\r\n\r\n<b>hi</b>\r\n" +
	"--b1--\r\n"

type fixture struct {
	backend *Backend
	store   *memory.Store
	reg     *regmemory.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	reg := regmemory.NewRegistry()
	pipeline := ingest.NewPipeline(store, blobmemory.NewStore(), 15*time.Minute, zap.NewNop(), nil)
	backend := NewBackend(reg, pipeline, NewConnectionLimiter(10, 10), zap.NewNop(), nil)
	return &fixture{backend: backend, store: store, reg: reg}
}

func TestRcpt_UnknownRecipientRejected(t *testing.T) {
	f := newFixture(t)
	sess, err := f.backend.NewSession(nil)
	require.NoError(t, err)

	err = sess.Rcpt("<stranger@x.test>", nil)
	require.Error(t, err)

	var smtpErr *gosmtp.SMTPError
	require.ErrorAs(t, err, &smtpErr)
	assert.Equal(t, 550, smtpErr.Code)
}

func TestRcpt_AdmittedRecipientAccepted(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.reg.Admit(context.Background(), "a@x.test"))

	sess, err := f.backend.NewSession(nil)
	require.NoError(t, err)

	assert.NoError(t, sess.Rcpt("<A@X.TEST>", nil))
}

func TestRcpt_AllocatedAddressReceivesMail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 走真实分配流程拿地址，原样投递必须能收到。
	sessions := service.NewSessionService(f.store, f.reg, []string{"x.test"}, 20*time.Minute, zap.NewNop(), nil)
	address, err := sessions.Allocate(ctx)
	require.NoError(t, err)

	sess, err := f.backend.NewSession(nil)
	require.NoError(t, err)
	require.NoError(t, sess.Mail("<alice@example.com>", nil))
	require.NoError(t, sess.Rcpt("<"+address+">", nil))
	require.NoError(t, sess.Data(strings.NewReader(rawMessage)))

	// 邮件落在分配返回的地址下，会话查询能看到。
	records, err := f.store.ListRecords(ctx, address)
	require.NoError(t, err)

	var messages []string
	for _, record := range records {
		if record.Kind == domain.KindMessage {
			messages = append(messages, record.ID)
		}
	}
	assert.Len(t, messages, 1)
}

func TestRcpt_MalformedAddress(t *testing.T) {
	f := newFixture(t)
	sess, err := f.backend.NewSession(nil)
	require.NoError(t, err)

	err = sess.Rcpt("not-an-address", nil)
	var smtpErr *gosmtp.SMTPError
	require.ErrorAs(t, err, &smtpErr)
	assert.Equal(t, 501, smtpErr.Code)
}

func TestData_IngestsPerRecipient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.reg.Admit(ctx, "a@x.test"))
	require.NoError(t, f.reg.Admit(ctx, "b@x.test"))

	sess, err := f.backend.NewSession(nil)
	require.NoError(t, err)
	require.NoError(t, sess.Mail("<alice@example.com>", nil))
	require.NoError(t, sess.Rcpt("<a@x.test>", nil))
	require.NoError(t, sess.Rcpt("<b@x.test>", nil))

	require.NoError(t, sess.Data(strings.NewReader(rawMessage)))

	for _, address := range []string{"a@x.test", "b@x.test"} {
		records, err := f.store.ListRecords(ctx, address)
		require.NoError(t, err)
		require.Len(t, records, 1, "address %s", address)
		assert.Equal(t, "grüße", records[0].Subject)
		assert.Equal(t, "alice@example.com", records[0].Sender)
		assert.Equal(t, "2026-09-01T10:00:00Z", records[0].Date)
	}
}

func TestHeaderMetadata_Unparseable(t *testing.T) {
	subject, sender, date := headerMetadata([]byte("garbage without headers"))
	assert.Empty(t, subject)
	assert.Empty(t, sender)
	assert.Empty(t, date)
}

func TestConnectionLimiter(t *testing.T) {
	limiter := NewConnectionLimiter(2, 100)

	assert.True(t, limiter.Acquire())
	assert.True(t, limiter.Acquire())
	assert.False(t, limiter.Acquire())

	limiter.Release()
	assert.True(t, limiter.Acquire())
	assert.Equal(t, 2, limiter.Current())
}
