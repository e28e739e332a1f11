package redisreg

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client)
}

func TestAdmitAndContains(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	ok, err := reg.Contains(ctx, "a@x.test")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, reg.Admit(ctx, "a@x.test"))

	ok, err = reg.Contains(ctx, "a@x.test")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAdmitIsIdempotent(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Admit(ctx, "a@x.test"))
	require.NoError(t, reg.Admit(ctx, "a@x.test"))

	addresses, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.test"}, addresses)
}

func TestRevoke(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Admit(ctx, "a@x.test"))
	require.NoError(t, reg.Admit(ctx, "b@x.test"))

	require.NoError(t, reg.Revoke(ctx, "a@x.test"))

	addresses, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b@x.test"}, addresses)

	// 吊销不存在的地址静默成功。
	require.NoError(t, reg.Revoke(ctx, "a@x.test"))
	require.NoError(t, reg.Revoke(ctx, "never-admitted@x.test"))
}

func TestListEmpty(t *testing.T) {
	reg := newTestRegistry(t)

	addresses, err := reg.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, addresses)
}
