package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/suntomi/deplo/pkg/ci"
	"github.com/suntomi/deplo/pkg/config"
	derrors "github.com/suntomi/deplo/pkg/errors"
	"github.com/suntomi/deplo/pkg/job"
	"github.com/suntomi/deplo/pkg/logging"
	"github.com/suntomi/deplo/pkg/module"
	"github.com/suntomi/deplo/pkg/module/cache"
	_ "github.com/suntomi/deplo/pkg/module/cache/azurerm"
	_ "github.com/suntomi/deplo/pkg/module/cache/gcs"
	_ "github.com/suntomi/deplo/pkg/module/cache/local"
	_ "github.com/suntomi/deplo/pkg/module/cache/s3"
	"github.com/suntomi/deplo/pkg/shell"
	"github.com/suntomi/deplo/pkg/step"
	"github.com/suntomi/deplo/pkg/vcs"
	"github.com/suntomi/deplo/pkg/workflow"
)

// runtime bundles every component a command needs, built once per process
// from the loaded ConfigStore plus ambient CI/host detection state.
type runtime struct {
	Store         *config.Store
	Driver        *shell.Driver
	VCS           *vcs.Git
	Provider      ci.Provider
	Modules       *module.Repository
	Sequencer     *step.Sequencer
	Runner        *job.Runner
	ReleaseTarget workflow.ReleaseTargetResolver
	OnCI          bool
	CurrentOS     shell.OS
}

func ciType() string {
	switch {
	case os.Getenv("GITHUB_ACTIONS") == "true":
		return "ghaction"
	case os.Getenv("CIRCLECI") == "true":
		return "circleci"
	default:
		return ""
	}
}

func releaseTargetPatterns(store *config.Store) map[string][]string {
	patterns := make(map[string][]string, len(store.ReleaseTargets))
	for name, rt := range store.ReleaseTargets {
		for _, p := range rt.Patterns {
			patterns[name] = append(patterns[name], fmt.Sprintf("%v", p.Resolve()))
		}
	}
	return patterns
}

// newRuntime loads the config tree rooted at workdir and wires every
// component together: ShellDriver, the git-backed VCS collaborator, the
// CIProvider account matching the current CI environment (or "default"),
// ModuleRepository, StepSequencer, and JobRunner.
func newRuntime(configPath, dotenv, workdir string) (*runtime, error) {
	if workdir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		workdir = wd
	}
	if configPath == "" {
		configPath = filepath.Join(workdir, "deplo.toml")
	}

	store, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if store.Workdir == "" {
		store.Workdir = workdir
	}

	driver := shell.New(store.Workdir)
	currentOS, err := shell.DetectOS(context.Background())
	if err != nil {
		return nil, err
	}
	onCI := os.Getenv("CI") != ""

	vcsAuthorName, vcsAuthorEmail := "deplo", "deplo@users.noreply.github.com"
	if store.VCS != nil && store.VCS.Email != "" {
		vcsAuthorEmail = store.VCS.Email
	}
	gitVCS, err := vcs.Open(store.Workdir, vcsAuthorName, vcsAuthorEmail, releaseTargetPatterns(store))
	if err != nil {
		return nil, err
	}

	owner, repo, err := gitVCS.RemoteOwnerRepo("origin")
	if err != nil {
		// A repository with no "origin" remote (e.g. a fresh local init)
		// can still run everything except remote dispatch/secrets.
		owner, repo = "", ""
	}

	releaseTargetResolver := func() (string, bool) {
		target, ok, rerr := gitVCS.ReleaseTarget(context.Background())
		if rerr != nil {
			return "", false
		}
		return target, ok
	}

	account := selectCIAccount(store)
	provider := newProvider(store, account, owner, repo, store.Workdir, releaseTargetResolver)

	modules := newModuleRepository(store)
	sequencer := &step.Sequencer{Driver: driver, Modules: modules, CurrentOS: currentOS}
	runner := &job.Runner{
		Driver:      driver,
		VCS:         gitVCS,
		Dispatcher:  provider,
		Steps:       sequencer,
		CurrentOS:   currentOS,
		OnCI:        onCI,
		ProjectName: store.ProjectName,
		DataDir:     store.DataDir,
		CLIVersion:  cliVersion,
	}
	if raw, ok := debugCLIBinPaths(); ok {
		runner.DebugCLIBins = raw
	}

	return &runtime{
		Store:         store,
		Driver:        driver,
		VCS:           gitVCS,
		Provider:      provider,
		Modules:       modules,
		Sequencer:     sequencer,
		Runner:        runner,
		ReleaseTarget: releaseTargetResolver,
		OnCI:          onCI,
		CurrentOS:     currentOS,
	}, nil
}

func selectCIAccount(store *config.Store) *config.CIAccount {
	if a, ok := store.CIByEnv(ciType()); ok {
		return a
	}
	return nil
}

func newProvider(store *config.Store, account *config.CIAccount, owner, repo, workdir string, releaseTarget workflow.ReleaseTargetResolver) ci.Provider {
	if account != nil && account.Kind == config.CIAccountCircleCI {
		return ci.NewCircleCI(store, account, owner, repo, workdir, releaseTarget)
	}
	return ci.NewGhAction(store, account, owner, repo, workdir, releaseTarget)
}

// debugCLIBinPaths parses the DEPLO_DEBUG_CLI_BIN_PATHS environment variable
// as comma-separated <os>=<path> pairs, letting local dev and tests skip the
// CLI binary download/bootstrap step.
func debugCLIBinPaths() (map[string]string, bool) {
	raw := os.Getenv("DEPLO_DEBUG_CLI_BIN_PATHS")
	if raw == "" {
		return nil, false
	}
	out := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		out[kv[0]] = kv[1]
	}
	return out, true
}

var errNoAccount = derrors.New(derrors.ErrCodeConfig, "no CI account configured")

// newModuleRepository builds the module.Repository for store, wiring in a
// remote cache.Backend when [module_cache] names one. A misconfigured or
// unreachable remote backend degrades to the local-only cache rather than
// failing runtime construction, since the remote layer is purely an
// optimization for shared hosted-runner fleets (spec.md §5).
func newModuleRepository(store *config.Store) *module.Repository {
	if store.ModuleCache.Backend == "" {
		return module.New(store.DataDir)
	}
	backend, err := cache.New(store.ModuleCache.Backend, store.ModuleCache.Config)
	if err != nil {
		logging.Logger().WithError(err).WithField("backend", store.ModuleCache.Backend).
			Warn("module cache backend unavailable, falling back to local-only cache")
		return module.New(store.DataDir)
	}
	return module.NewWithCache(store.DataDir, backend)
}
