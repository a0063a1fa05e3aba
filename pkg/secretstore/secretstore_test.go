package secretstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_EnvBackend(t *testing.T) {
	os.Setenv("DEPLO_TEST_SECRET", "shh")
	defer os.Unsetenv("DEPLO_TEST_SECRET")

	s := New(t.TempDir(), "", false)
	v, err := s.Resolve("API_KEY", Declaration{Backend: BackendEnv, Env: "DEPLO_TEST_SECRET"})
	require.NoError(t, err)
	assert.Equal(t, "shh", v)
}

func TestStore_EnvBackend_DefaultsToDeclaredName(t *testing.T) {
	os.Setenv("API_KEY", "direct")
	defer os.Unsetenv("API_KEY")

	s := New(t.TempDir(), "", false)
	v, err := s.Resolve("API_KEY", Declaration{Backend: BackendEnv})
	require.NoError(t, err)
	assert.Equal(t, "direct", v)
}

func TestStore_EnvBackend_Missing(t *testing.T) {
	s := New(t.TempDir(), "", false)
	_, err := s.Resolve("MISSING", Declaration{Backend: BackendEnv})
	assert.Error(t, err)
}

func TestStore_FileBackend_OffCI(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.txt"), []byte("fromfile\n"), 0o644))

	s := New(dir, "", false)
	v, err := s.Resolve("DB_PASSWORD", Declaration{Backend: BackendFile, Path: "secret.txt"})
	require.NoError(t, err)
	assert.Equal(t, "fromfile", v)
}

func TestStore_FileBackend_OnCIUsesEnv(t *testing.T) {
	os.Setenv("DB_PASSWORD", "from-ci-env")
	defer os.Unsetenv("DB_PASSWORD")

	s := New(t.TempDir(), "", true)
	v, err := s.Resolve("DB_PASSWORD", Declaration{Backend: BackendFile, Path: "secret.txt"})
	require.NoError(t, err)
	assert.Equal(t, "from-ci-env", v)
}

func TestStore_DotenvBackend_Chain(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TOKEN=base-token\n"), 0o644))

	s := New(dir, "", false)
	v, err := s.Resolve("TOKEN", Declaration{Backend: BackendDotenv})
	require.NoError(t, err)
	assert.Equal(t, "base-token", v)
}

func TestStore_DotenvBackend_ExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.env")
	require.NoError(t, os.WriteFile(path, []byte("TOKEN=custom-token\n"), 0o644))

	s := New(dir, "", false)
	v, err := s.Resolve("TOKEN", Declaration{Backend: BackendDotenv, DotenvPath: "custom.env"})
	require.NoError(t, err)
	assert.Equal(t, "custom-token", v)
}

func TestStore_Accessor_UnknownIdentMisses(t *testing.T) {
	s := New(t.TempDir(), "", false)
	accessor := s.Accessor(map[string]Declaration{
		"KNOWN": {Backend: BackendEnv, Env: "DEPLO_TEST_KNOWN"},
	})

	os.Setenv("DEPLO_TEST_KNOWN", "value")
	defer os.Unsetenv("DEPLO_TEST_KNOWN")

	v, ok := accessor("KNOWN")
	assert.True(t, ok)
	assert.Equal(t, "value", v)

	_, ok = accessor("UNKNOWN")
	assert.False(t, ok)
}
