package module

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/suntomi/deplo/pkg/config"
	derrors "github.com/suntomi/deplo/pkg/errors"
	"github.com/suntomi/deplo/pkg/module/cache"
)

// manifestFile is the filename every module directory must carry.
const manifestFile = "Deplo.Module.toml"

var cacheKeySanitizer = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// fetcher downloads a non-local module source into dest.
type fetcher interface {
	fetch(ctx context.Context, src config.ModuleSource, dest string) error
}

// Repository resolves module references to local manifests, caching each
// fetch under dataDir/modules/<canonical-key> so a reference is only ever
// downloaded once per process lifetime (spec.md §4.4, §5 "module cache
// directories are effectively immutable after first fetch"). A remote
// cache.Backend is optional: when set, a miss in the local on-disk cache is
// checked against the remote backend before falling back to fetcher, and a
// freshly-fetched directory is pushed to the backend for the next runner
// that needs it.
type Repository struct {
	dataDir string
	fetcher fetcher
	remote  cache.Backend
}

// New builds a Repository rooted at dataDir (Store.DataDir), with no remote
// cache backend.
func New(dataDir string) *Repository {
	return &Repository{dataDir: dataDir, fetcher: gitFetcher{}}
}

// NewWithCache builds a Repository backed by the given remote cache.Backend
// in addition to the local on-disk cache, per [module_cache] config.
func NewWithCache(dataDir string, remote cache.Backend) *Repository {
	return &Repository{dataDir: dataDir, fetcher: gitFetcher{}, remote: remote}
}

// Get resolves ref to a local manifest, fetching it if not already cached.
func (r *Repository) Get(ctx context.Context, ref string) (*Resolved, error) {
	return r.GetSource(ctx, ParseReference(ref))
}

// GetSource resolves an already-parsed module source, e.g. one declared in
// the config's [modules.<name>] table rather than inline on a `uses` field.
func (r *Repository) GetSource(ctx context.Context, src config.ModuleSource) (*Resolved, error) {
	canon := src.Canonical()

	dir, err := r.resolveDir(ctx, src, canon)
	if err != nil {
		return nil, err
	}

	manifest, err := loadManifest(dir)
	if err != nil {
		return nil, err
	}
	return &Resolved{Manifest: manifest, Dir: dir}, nil
}

func (r *Repository) resolveDir(ctx context.Context, src config.ModuleSource, canon string) (string, error) {
	switch src.Kind {
	case config.ModuleSourceLocal:
		return src.Path, nil
	case config.ModuleSourcePackage:
		return "", derrors.ModuleError(canon, "fetch", fmt.Errorf("package module sources are not yet supported"))
	default:
		key := cacheKeySanitizer.ReplaceAllString(canon, "_")
		cacheDir := filepath.Join(r.dataDir, "modules", key)
		if manifestExists(cacheDir) {
			return cacheDir, nil
		}
		if err := os.MkdirAll(filepath.Dir(cacheDir), 0o755); err != nil {
			return "", derrors.ModuleError(canon, "fetch", err)
		}

		if r.remote != nil {
			if ok, err := r.fetchFromRemote(ctx, key, cacheDir); err == nil && ok {
				return cacheDir, nil
			}
		}

		if err := r.fetcher.fetch(ctx, src, cacheDir); err != nil {
			return "", derrors.ModuleError(canon, "fetch", err)
		}

		if r.remote != nil {
			r.pushToRemote(ctx, key, cacheDir)
		}
		return cacheDir, nil
	}
}

// fetchFromRemote pulls key's packed manifest from the remote backend into
// cacheDir, returning ok=false (not an error) on a plain cache miss so the
// caller falls through to fetcher.
func (r *Repository) fetchFromRemote(ctx context.Context, key, cacheDir string) (bool, error) {
	blob, err := r.remote.Read(ctx, key+".tar.gz")
	if err != nil {
		if err == cache.ErrNotFound {
			return false, nil
		}
		return false, err
	}
	defer blob.Close()
	if err := cache.Unpack(blob, cacheDir); err != nil {
		return false, err
	}
	return true, nil
}

// pushToRemote best-effort uploads a freshly-fetched cacheDir to the remote
// backend so another runner can skip the fetch. Failures are not fatal --
// the local fetch already succeeded.
func (r *Repository) pushToRemote(ctx context.Context, key, cacheDir string) {
	packed, err := cache.Pack(cacheDir)
	if err != nil {
		return
	}
	_ = r.remote.Write(ctx, key+".tar.gz", packed)
}

func manifestExists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, manifestFile))
	return err == nil
}

func loadManifest(dir string) (Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return Manifest{}, derrors.ModuleError(dir, "load manifest", err)
	}
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return Manifest{}, derrors.ModuleError(dir, "parse manifest", err)
	}
	return m, nil
}
