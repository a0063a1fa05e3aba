package local

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suntomi/deplo/pkg/module/cache"
)

func TestBackend_WriteReadDelete(t *testing.T) {
	b, err := NewBackend(map[string]string{"path": t.TempDir()})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, b.Write(ctx, "acme/terraform.tar.gz", bytes.NewBufferString("blob")))

	exists, err := b.Exists(ctx, "acme/terraform.tar.gz")
	require.NoError(t, err)
	assert.True(t, exists)

	r, err := b.Read(ctx, "acme/terraform.tar.gz")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "blob", string(data))

	require.NoError(t, b.Delete(ctx, "acme/terraform.tar.gz"))
	exists, err = b.Exists(ctx, "acme/terraform.tar.gz")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestBackend_Read_NotFound(t *testing.T) {
	b, err := NewBackend(map[string]string{"path": t.TempDir()})
	require.NoError(t, err)

	_, err = b.Read(context.Background(), "missing.tar.gz")
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestBackend_Lock_RejectsSecondHolder(t *testing.T) {
	b, err := NewBackend(map[string]string{"path": t.TempDir()})
	require.NoError(t, err)

	ctx := context.Background()
	lock, err := b.Lock(ctx, "acme/terraform", cache.LockInfo{Holder: "runner-a"})
	require.NoError(t, err)
	assert.NotEmpty(t, lock.ID())

	_, err = b.Lock(ctx, "acme/terraform", cache.LockInfo{Holder: "runner-b"})
	var lockErr *cache.LockError
	require.ErrorAs(t, err, &lockErr)
	assert.Equal(t, "runner-a", lockErr.Info.Holder)

	require.NoError(t, lock.Unlock(ctx))
	lock2, err := b.Lock(ctx, "acme/terraform", cache.LockInfo{Holder: "runner-b"})
	require.NoError(t, err)
	assert.Equal(t, "runner-b", lock2.Info().Holder)
}
