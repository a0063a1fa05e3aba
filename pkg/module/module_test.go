package module

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suntomi/deplo/pkg/config"
	"github.com/suntomi/deplo/pkg/module/cache"
	"github.com/suntomi/deplo/pkg/shell"
	"github.com/suntomi/deplo/pkg/value"
)

func TestParseReference(t *testing.T) {
	cases := []struct {
		ref  string
		kind config.ModuleSourceKind
	}{
		{"acme/terraform@v1", config.ModuleSourceStd},
		{"git::https://example.com/x.git?tag=v2", config.ModuleSourceGit},
		{"git::https://example.com/x.git?rev=abcdef", config.ModuleSourceGit},
		{"./local/module", config.ModuleSourceLocal},
		{"pkg::https://example.com/x.tgz", config.ModuleSourcePackage},
	}
	for _, c := range cases {
		src := ParseReference(c.ref)
		assert.Equal(t, c.kind, src.Kind, c.ref)
	}

	git := ParseReference("git::https://example.com/x.git?tag=v2")
	assert.Equal(t, "https://example.com/x.git", git.Git)
	assert.Equal(t, "v2", git.Tag)
}

func TestRepository_GetSource_Local(t *testing.T) {
	dir := t.TempDir()
	manifest := `
config_version = "1"
name = "local-module"
author = "test"
option_format = "json"

[entrypoints.step]
linux = ["./run.sh"]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifestFile), []byte(manifest), 0o644))

	repo := New(t.TempDir())
	resolved, err := repo.GetSource(context.Background(), config.ModuleSource{Kind: config.ModuleSourceLocal, Path: dir})
	require.NoError(t, err)
	assert.Equal(t, "local-module", resolved.Manifest.Name)
	assert.Equal(t, []string{"./run.sh"}, resolved.Manifest.Entrypoints[EntryPointStep]["linux"])
}

func TestRepository_GetSource_PackageUnsupported(t *testing.T) {
	repo := New(t.TempDir())
	_, err := repo.GetSource(context.Background(), config.ModuleSource{Kind: config.ModuleSourcePackage, URL: "https://example.com/x.tgz"})
	assert.Error(t, err)
}

// fakeFetcher records whether it ran and writes a minimal manifest, used to
// prove a remote cache hit short-circuits the local fetcher entirely, and
// that a miss still falls back to it.
type fakeFetcher struct{ called bool }

func (f *fakeFetcher) fetch(ctx context.Context, src config.ModuleSource, dest string) error {
	f.called = true
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dest, manifestFile), []byte("name = \"fetched-module\"\n"), 0o644)
}

// memCache is a minimal in-memory cache.Backend stub for exercising
// Repository's remote-cache-before-fetcher path without a real backend.
type memCache struct{ blobs map[string][]byte }

func (m *memCache) Type() string { return "mem" }
func (m *memCache) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	b, ok := m.blobs[path]
	if !ok {
		return nil, cache.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}
func (m *memCache) Write(ctx context.Context, path string, data io.Reader) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.blobs[path] = b
	return nil
}
func (m *memCache) Delete(ctx context.Context, path string) error { delete(m.blobs, path); return nil }
func (m *memCache) List(ctx context.Context, prefix string) ([]string, error)  { return nil, nil }
func (m *memCache) Exists(ctx context.Context, path string) (bool, error) {
	_, ok := m.blobs[path]
	return ok, nil
}
func (m *memCache) Lock(ctx context.Context, path string, info cache.LockInfo) (cache.Lock, error) {
	return nil, nil
}

func TestRepository_GetSource_RemoteCacheHitSkipsFetch(t *testing.T) {
	preseed := t.TempDir()
	manifest := `
config_version = "1"
name = "cached-module"
author = "test"
option_format = "json"

[entrypoints.step]
linux = ["./run.sh"]
`
	require.NoError(t, os.WriteFile(filepath.Join(preseed, manifestFile), []byte(manifest), 0o644))
	packed, err := cache.Pack(preseed)
	require.NoError(t, err)
	blob, err := io.ReadAll(packed)
	require.NoError(t, err)

	src := config.ModuleSource{Kind: config.ModuleSourceGit, Git: "https://example.com/cached.git", Tag: "v1"}
	canon := src.Canonical()
	key := cacheKeySanitizer.ReplaceAllString(canon, "_")

	remote := &memCache{blobs: map[string][]byte{key + ".tar.gz": blob}}
	fetcher := &fakeFetcher{}
	repo := &Repository{dataDir: t.TempDir(), fetcher: fetcher, remote: remote}

	resolved, err := repo.GetSource(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, "cached-module", resolved.Manifest.Name)
	assert.False(t, fetcher.called, "remote cache hit should skip the local fetcher")
}

func TestRepository_GetSource_RemoteCacheMissFallsBackAndPopulates(t *testing.T) {
	src := config.ModuleSource{Kind: config.ModuleSourceGit, Git: "https://example.com/miss.git", Tag: "v1"}
	remote := &memCache{blobs: map[string][]byte{}}
	fetcher := &fakeFetcher{}
	repo := &Repository{dataDir: t.TempDir(), fetcher: fetcher, remote: remote}

	canon := src.Canonical()
	key := cacheKeySanitizer.ReplaceAllString(canon, "_")

	resolved, err := repo.GetSource(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, "fetched-module", resolved.Manifest.Name)
	assert.True(t, fetcher.called, "a remote cache miss should fall back to the local fetcher")
	assert.NotEmpty(t, remote.blobs[key+".tar.gz"], "a successful fetch should populate the remote cache")
}

func TestResolved_Run_DispatchesEntrypoint(t *testing.T) {
	dir := t.TempDir()
	resolved := &Resolved{
		Dir: dir,
		Manifest: Manifest{
			Name:         "echo-module",
			OptionFormat: OptionFormatJSON,
			Entrypoints: map[EntryPointType]map[string][]string{
				EntryPointStep: {"linux": {"sh", "-c", "echo $DEPLO_MODULE_OPTION_STRING"}},
			},
		},
	}
	driver := shell.New(dir)
	res, err := resolved.Run(context.Background(), driver, EntryPointStep, shell.Linux, nil,
		map[string]value.AnyValue{"path": value.NewAny("dist/")}, nil, shell.Settings{CaptureStdout: true})
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, `"path":"dist/"`)
}

func TestResolved_Run_UnknownEntrypoint(t *testing.T) {
	resolved := &Resolved{Manifest: Manifest{Entrypoints: map[EntryPointType]map[string][]string{}}}
	_, err := resolved.Run(context.Background(), shell.New(t.TempDir()), EntryPointStep, shell.Linux, nil, nil, nil, shell.Settings{})
	assert.Error(t, err)
}
