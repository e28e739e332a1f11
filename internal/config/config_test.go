package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validSecret = "test-secret-key-at-least-32-bytes!!"

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DRIFTMAIL_MAILBOX_DOMAINS", "x.test")
	t.Setenv("DRIFTMAIL_JWT_SECRET", validSecret)
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"x.test"}, cfg.Mailbox.Domains)
	assert.Equal(t, 20*time.Minute, cfg.Mailbox.SessionTTL)
	assert.Equal(t, 15*time.Minute, cfg.Mailbox.MessageTTL)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 30*time.Second, cfg.Store.SweepInterval)
	assert.Equal(t, "memory", cfg.Blob.Backend)
	assert.Equal(t, ":25", cfg.SMTP.BindAddr)
	assert.Equal(t, "x.test", cfg.SMTP.Hostname)
	assert.Equal(t, "driftmail", cfg.JWT.Issuer)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("DRIFTMAIL_MAILBOX_DOMAINS", "X.Test, y.test")
	t.Setenv("DRIFTMAIL_MAILBOX_SESSION_TTL", "10m")
	t.Setenv("DRIFTMAIL_STORE_BACKEND", "redis")
	t.Setenv("DRIFTMAIL_BLOB_BACKEND", "filesystem")
	t.Setenv("DRIFTMAIL_BLOB_DIR", "/tmp/blobs")
	t.Setenv("DRIFTMAIL_SMTP_HOSTNAME", "mx.x.test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"x.test", "y.test"}, cfg.Mailbox.Domains)
	assert.Equal(t, 10*time.Minute, cfg.Mailbox.SessionTTL)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "filesystem", cfg.Blob.Backend)
	assert.Equal(t, "/tmp/blobs", cfg.Blob.Dir)
	assert.Equal(t, "mx.x.test", cfg.SMTP.Hostname)
}

func TestLoad_DomainsRequired(t *testing.T) {
	t.Setenv("DRIFTMAIL_JWT_SECRET", validSecret)
	t.Setenv("DRIFTMAIL_MAILBOX_DOMAINS", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mailbox.domains")
}

func TestLoad_JWTSecretRequired(t *testing.T) {
	t.Setenv("DRIFTMAIL_MAILBOX_DOMAINS", "x.test")
	t.Setenv("DRIFTMAIL_JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("DRIFTMAIL_JWT_SECRET", "too-short")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32 characters")
}

func TestLoad_InvalidBackends(t *testing.T) {
	setRequired(t)

	t.Setenv("DRIFTMAIL_STORE_BACKEND", "cassandra")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("DRIFTMAIL_STORE_BACKEND", "memory")
	t.Setenv("DRIFTMAIL_BLOB_BACKEND", "s3")
	_, err = Load()
	require.Error(t, err, "s3 backend without bucket must fail")

	t.Setenv("DRIFTMAIL_BLOB_BUCKET", "driftmail-bodies")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "driftmail-bodies", cfg.Blob.Bucket)
}
