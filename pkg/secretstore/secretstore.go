// Package secretstore implements the secret/var backends that sit behind
// pkg/value's resolver registry: env, file, and dotenv. A ConfigStore builds
// one Declaration per name declared in a config's secrets: or vars: section
// and hands the resulting accessor to value.RegisterAccessor -- the same
// three backend kinds serve both sections, matching the original config
// model where secrets and vars differ only by which section declared them
// and whether a secret additionally names CI seal targets.
package secretstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	derrors "github.com/suntomi/deplo/pkg/errors"
	"github.com/suntomi/deplo/pkg/value"
)

// BackendKind identifies which backend resolves a declared name.
type BackendKind string

const (
	BackendEnv    BackendKind = "env"
	BackendFile   BackendKind = "file"
	BackendDotenv BackendKind = "dotenv"
)

// Declaration is one secrets:/vars: entry from a loaded config.
type Declaration struct {
	Backend BackendKind

	// Env backend: source environment variable name. Defaults to the
	// declared name itself when empty.
	Env string

	// File backend: path to the secret file, relative to the workdir. On
	// CI the value instead comes from an environment variable named
	// exactly the declared name -- CI platforms inject secrets as env
	// vars, never as files checked into the runner.
	Path string

	// Dotenv backend: explicit path to a single dotenv file. When empty,
	// the store loads the workdir's .env chain instead (.env,
	// .env.<environment>, .env.local, .env.<environment>.local).
	DotenvPath string

	// Targets restricts which CI accounts/providers this name is sealed
	// for when it is a secret (ignored for vars). Empty means all.
	Targets []string
}

// Store resolves Declarations against the process environment, the
// filesystem, and dotenv files rooted at a working directory.
type Store struct {
	workdir     string
	environment string
	onCI        bool

	mu          sync.Mutex
	dotenvCache map[string]map[string]string
}

// New builds a Store rooted at workdir. environment selects which
// environment-specific dotenv files apply (e.g. "staging"); onCI switches
// the file backend to read from an env var instead of disk.
func New(workdir, environment string, onCI bool) *Store {
	return &Store{
		workdir:     workdir,
		environment: environment,
		onCI:        onCI,
		dotenvCache: map[string]map[string]string{},
	}
}

// Resolve returns the value for name per decl, or an error describing which
// backend failed and why.
func (s *Store) Resolve(name string, decl Declaration) (string, error) {
	switch decl.Backend {
	case BackendEnv:
		return s.resolveEnv(name, decl)
	case BackendFile:
		return s.resolveFile(name, decl)
	case BackendDotenv:
		return s.resolveDotenv(name, decl)
	default:
		return "", derrors.SecretError(fmt.Sprintf("unknown secret backend %q for %q", decl.Backend, name), nil)
	}
}

func (s *Store) resolveEnv(name string, decl Declaration) (string, error) {
	key := decl.Env
	if key == "" {
		key = name
	}
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", derrors.SecretError(fmt.Sprintf("env var %q not found for %q", key, name), nil)
	}
	return v, nil
}

func (s *Store) resolveFile(name string, decl Declaration) (string, error) {
	if s.onCI {
		v, ok := os.LookupEnv(name)
		if !ok {
			return "", derrors.SecretError(fmt.Sprintf("env var %q not found for %q", name, name), nil)
		}
		return v, nil
	}
	path := decl.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.workdir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", derrors.SecretError(fmt.Sprintf("file load error for %q at %s", name, path), err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

func (s *Store) resolveDotenv(name string, decl Declaration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cacheKey := decl.DotenvPath
	vars, ok := s.dotenvCache[cacheKey]
	if !ok {
		var err error
		if decl.DotenvPath != "" {
			path := decl.DotenvPath
			if !filepath.IsAbs(path) {
				path = filepath.Join(s.workdir, path)
			}
			vars, err = parseSingleFile(path)
		} else {
			vars, err = loadChain(s.workdir, s.environment)
		}
		if err != nil {
			return "", derrors.SecretError(fmt.Sprintf("dotenv load failed for %q", name), err)
		}
		s.dotenvCache[cacheKey] = vars
	}

	v, ok := vars[name]
	if !ok {
		return "", derrors.SecretError(fmt.Sprintf("dotenv key %q not found", name), nil)
	}
	return v, nil
}

// Accessor adapts the Store into a value.Accessor bound to a fixed set of
// declarations -- the shape value.RegisterAccessor expects. A miss against
// decls (an identifier never declared in this section) reports ok=false
// rather than erroring so the other registered kind gets a chance to answer.
func (s *Store) Accessor(decls map[string]Declaration) value.Accessor {
	return func(ident string) (string, bool) {
		decl, ok := decls[ident]
		if !ok {
			return "", false
		}
		v, err := s.Resolve(ident, decl)
		if err != nil {
			return "", false
		}
		return v, true
	}
}
