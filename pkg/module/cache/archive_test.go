package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackUnpack_RoundTrips(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "Deplo.Module.toml"), []byte("name = \"x\"\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "nested", "file.txt"), []byte("hello"), 0o644))

	packed, err := Pack(src)
	require.NoError(t, err)

	dest := t.TempDir()
	require.NoError(t, Unpack(packed, dest))

	manifest, err := os.ReadFile(filepath.Join(dest, "Deplo.Module.toml"))
	require.NoError(t, err)
	assert.Equal(t, "name = \"x\"\n", string(manifest))

	nested, err := os.ReadFile(filepath.Join(dest, "nested", "file.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(nested))
}
