// Package config implements the parsed, validated configuration tree (C3 in
// the design): TOML load, ${ENV} pre-parse substitution, and the typed
// workflow/job/release-target/account maps every other component reads
// from. The store is built once at process start and never mutated
// afterward except for resolver registration performed during Load.
package config

import (
	"github.com/suntomi/deplo/pkg/value"
)

// RunnerKind distinguishes the two Runner variants a Job can declare.
type RunnerKind string

const (
	RunnerMachine   RunnerKind = "machine"
	RunnerContainer RunnerKind = "container"
)

// Runner is the tagged union job.runner: either a bare machine (optionally
// falling back to a container when the host OS doesn't match) or a
// container that always runs inside Docker.
type Runner struct {
	Kind RunnerKind

	// Machine fields.
	OS            string
	Image         value.Value
	Class         string
	LocalFallback *LocalFallback

	// Container fields (Kind == RunnerContainer).
	ContainerImage value.Value
}

// LocalFallback lets a machine job whose declared OS differs from the host
// still run locally, inside a container built or pulled for the occasion.
type LocalFallback struct {
	Image      value.Value // set when the fallback source is an image reference
	Dockerfile string      // set when the fallback source is a Dockerfile path
	RepoName   string
	BuildArgs  map[string]value.Value
	Shell      string
}

// Cache names a directory the job wants preserved/restored across runs.
type Cache struct {
	Path string
	Key  string
}

// CommitMethodKind distinguishes the four auto-commit aggregation shapes.
type CommitMethodKind string

const (
	CommitPushSquashed  CommitMethodKind = "push_squashed"
	CommitPushIndividual CommitMethodKind = "push_individual"
	CommitPRAggregated  CommitMethodKind = "pr_aggregated"
	CommitPRSeparated   CommitMethodKind = "pr_separated"
)

// Commit describes one auto-commit the job produces plus how the final
// cleanup job should fold it into the upstream branch/PR.
type Commit struct {
	Files     []string
	LogFormat string // default "[deplo] update by job <job_name>"
	Method    CommitMethodKind
	Labels    []string // PR variants only
	Assignees []string // PR variants only
	Squash    bool     // Push variants only
	Aggregate bool     // PR variants only
}

// EvalStep runs code through a shell.
type EvalStep struct {
	Shell   string
	Workdir string
	Command string
}

// ExecStep runs argv directly, no shell interpretation.
type ExecStep struct {
	Argv    []string
	Workdir string
}

// StepKind distinguishes the Step tagged union.
type StepKind string

const (
	StepEval   StepKind = "eval"
	StepExec   StepKind = "exec"
	StepModule StepKind = "module"
)

// Step is one entry in a job's multi-step form.
type Step struct {
	Kind StepKind
	Name string
	Env  map[string]value.Value

	Eval *EvalStep
	Exec *ExecStep

	// Module fields (Kind == StepModule).
	Uses string
	With map[string]value.AnyValue
}

// Task is a named argv override selectable via --task at invocation time.
type Task struct {
	Name string
	Args []string
}

// Job is one entry in the flat job map (spec.md §3 Job). Exactly one of
// Command, Steps, or the runtime-provided "sh" entry point is used per
// invocation -- callers of Job, not this package, enforce that invariant
// since it depends on CLI-provided runtime args.
type Job struct {
	Name    string
	Account string // selects a CIProvider account by name

	Runner Runner

	// On names the workflows (by name) this job runs as part of.
	On []string

	Env     map[string]value.Value
	Workdir string
	Shell   string // default shell for eval steps that don't set their own
	Checkout bool

	Caches  []Cache
	Depends []string
	Commits []Commit
	Tasks   map[string]Task

	// Single-command form.
	Command []string

	// Multi-step form.
	Steps []Step

	// Options are passed through to module steps as the default `with` map
	// merged under each step's own.
	Options map[string]value.AnyValue
}

// WorkflowKind distinguishes the six Workflow tagged-union variants.
type WorkflowKind string

const (
	WorkflowDeploy     WorkflowKind = "deploy"
	WorkflowIntegrate  WorkflowKind = "integrate"
	WorkflowCron       WorkflowKind = "cron"
	WorkflowRepository WorkflowKind = "repository"
	WorkflowDispatch   WorkflowKind = "dispatch"
	WorkflowModule     WorkflowKind = "module"
)

// Workflow is the tagged union described in spec.md §3. Deploy and Integrate
// carry no extra fields beyond their reserved name; the other four each
// carry their own variant-specific fields.
type Workflow struct {
	Name string
	Kind WorkflowKind

	// Cron fields.
	Schedules map[string]string // schedule name -> cron expression

	// Repository fields.
	Events map[string][]string // event name -> allowed actions

	// Dispatch fields.
	Manual bool
	Inputs map[string]value.AnyValue

	// Module fields.
	Uses string
	With map[string]value.AnyValue
}

// ExecOptions carries per-invocation runtime options (spec.md §3), the
// payload field every WorkflowRun embeds.
type ExecOptions struct {
	Envs             map[string]value.Value `json:"envs,omitempty"`
	Revision         string                 `json:"revision,omitempty"`
	ReleaseTarget    string                 `json:"release_target,omitempty"`
	Verbosity        int                    `json:"verbosity"`
	Remote           bool                   `json:"remote"`
	FollowDependency bool                   `json:"follow_dependency"`
	Silent           bool                   `json:"silent"`
	Timeout          int                    `json:"timeout,omitempty"`
}

// ReleaseTarget is one entry of the release_targets map.
type ReleaseTarget struct {
	Name     string
	Tag      *bool
	Patterns []value.AnyValue
}

// CIAccountKind distinguishes the three CI account variants.
type CIAccountKind string

const (
	CIAccountGhAction CIAccountKind = "ghaction"
	CIAccountCircleCI CIAccountKind = "circleci"
	CIAccountModule   CIAccountKind = "module"
)

// CIAccount is one entry of the ci accounts map.
type CIAccount struct {
	Name    string
	Kind    CIAccountKind
	Account string
	Key     value.Value

	// Module fields.
	Uses string
	With map[string]value.AnyValue
}

// VCSAccountKind distinguishes the four VCS account variants.
type VCSAccountKind string

const (
	VCSAccountGithub    VCSAccountKind = "github"
	VCSAccountGithubApp VCSAccountKind = "github_app"
	VCSAccountGitlab    VCSAccountKind = "gitlab"
	VCSAccountModule    VCSAccountKind = "module"
)

// VCSAccount is the single configured VCS collaborator account.
type VCSAccount struct {
	Kind    VCSAccountKind
	Email   string
	Account string
	Key     value.Value

	// GithubApp fields.
	AppID      string
	PrivateKey value.Value

	// Module fields.
	Uses string
	With map[string]value.AnyValue
}

// ModuleSourceKind distinguishes the four module reference variants.
type ModuleSourceKind string

const (
	ModuleSourceStd     ModuleSourceKind = "std"
	ModuleSourceGit     ModuleSourceKind = "git"
	ModuleSourcePackage ModuleSourceKind = "package"
	ModuleSourceLocal   ModuleSourceKind = "local"
)

// ModuleCache configures an optional remote cache backend (pkg/module/cache)
// that hosted runners share ahead of the per-process local fetch cache --
// since every Deplo job is its own process (spec.md §5), a remote backend
// lets a fleet of runners skip re-fetching a module one of them already
// resolved.
type ModuleCache struct {
	// Backend names a registered pkg/module/cache backend: "local", "s3",
	// "gcs", or "azurerm". Empty means no remote cache -- the local on-disk cache
	// directory under data_dir is the only layer.
	Backend string
	Config  map[string]string
}

// ModuleSource names where a module reference resolves from.
type ModuleSource struct {
	Kind ModuleSourceKind

	Std string // "<user>/<name>@<version>"

	Git string
	Rev string
	Tag string

	URL string // Package (reserved)

	Path string // Local
}

// Canonical returns the string form used as the module cache key.
func (m ModuleSource) Canonical() string {
	switch m.Kind {
	case ModuleSourceStd:
		return "std:" + m.Std
	case ModuleSourceGit:
		if m.Tag != "" {
			return "git:" + m.Git + "@tag:" + m.Tag
		}
		return "git:" + m.Git + "@rev:" + m.Rev
	case ModuleSourcePackage:
		return "package:" + m.URL
	case ModuleSourceLocal:
		return "local:" + m.Path
	default:
		return ""
	}
}
