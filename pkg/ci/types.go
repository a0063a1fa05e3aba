// Package ci implements the CIProvider (C5): generates provider-specific
// pipeline YAML from a ConfigStore, dispatches and polls remote jobs,
// reads/writes job outputs, and lists/sets secrets. GhAction and CircleCI
// are the two concrete implementations; both share the workflow-matching
// and output-bus plumbing from pkg/workflow and pkg/output.
package ci

import (
	"context"
	"time"

	"github.com/suntomi/deplo/pkg/output"
	"github.com/suntomi/deplo/pkg/workflow"
)

// TokenKind distinguishes the two ways a CIProvider mints an API token.
type TokenKind string

const (
	TokenUser TokenKind = "user"
	TokenApp  TokenKind = "app"
)

// TokenConfig describes how to mint an API token for the provider's REST
// calls (spec.md §4.5 "Token minting").
type TokenConfig struct {
	Kind       TokenKind
	AppID      string
	PrivateKey []byte // PEM-encoded RSA private key, Kind == TokenApp only
	Owner      string
	Repo       string
}

// RunStatus is the state of a dispatched remote job.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Provider is the CIProvider interface (C5), spec.md §4.5.
type Provider interface {
	// Prepare performs any one-time setup (e.g. verifying repo settings).
	// reinit forces re-running setup that would otherwise be skipped once done.
	Prepare(ctx context.Context, reinit bool) error

	// GenerateConfig writes the provider's pipeline file(s) to disk.
	GenerateConfig(ctx context.Context, reinit bool) error

	// FilterWorkflows turns an event payload (or the provider's own env var
	// convention, when trigger is empty) into matching WorkflowRuns.
	FilterWorkflows(ctx context.Context, trigger string) ([]workflow.WorkflowRun, error)

	// RunJob dispatches a WorkflowRun to the provider and returns a run id
	// that CheckJobFinished can poll.
	RunJob(ctx context.Context, run workflow.WorkflowRun) (string, error)

	// CheckJobFinished polls a dispatched run id. A nil RunStatus pointer
	// means "still running, not yet complete."
	CheckJobFinished(ctx context.Context, runID string) (*RunStatus, error)

	// CancelJob best-effort cancels any in-progress remote run dispatched
	// for jobName. Used by `deplo stop`.
	CancelJob(ctx context.Context, jobName string) error

	// ScheduleJob marks a job as eligible to run in the current workflow
	// invocation. Both built-in providers implement it as a no-op.
	ScheduleJob(name string) error

	// MarkNeedCleanup records that name's job requires the cleanup job to run.
	MarkNeedCleanup(name string) error

	// SetSecret uploads key=value as a provider-native secret.
	SetSecret(ctx context.Context, key, value string) error

	// ListSecretNames returns the names (not values) of configured secrets.
	ListSecretNames(ctx context.Context) ([]string, error)

	// JobOutput reads an output key published by job.
	JobOutput(job, key string, kind output.Kind) (string, error)

	// SetJobOutput records an output key for the current job.
	SetJobOutput(key, value string) error

	// PublishOutput flushes the current job's scratch-file outputs of kind
	// to the channel a sibling job reads from (C9's Publish, spec.md §4.9):
	// on a hosted runner that means writing a step output
	// (`$GITHUB_OUTPUT`/`::set-output`) that the generated YAML's
	// `outputs:` block re-exposes to dependents; off the runner it means
	// setting the `DEPLO_JOB_<KIND>_OUTPUT_<job>` env var a sibling process
	// reads. Called once per Kind at the end of a job's run.
	PublishOutput(kind output.Kind) error

	// ProcessEnv returns the provider-specific env vars useful for debugging
	// (CI type, run id, job name, etc).
	ProcessEnv() map[string]string

	// OverwriteCommit returns the commit-author identity this provider's
	// bot account should use, if any.
	OverwriteCommit() (name, email string, ok bool)

	// PRURLFromEnv extracts a pull-request URL from the provider's own
	// ambient env vars, when running inside a PR-triggered job.
	PRURLFromEnv() (string, bool)

	// GenerateToken mints (and caches) an API token per cfg.
	GenerateToken(ctx context.Context, cfg TokenConfig) (string, error)

	// RunsOnService reports whether the current process is executing inside
	// this provider's hosted runner (vs. a developer's laptop).
	RunsOnService() bool
}

// pollInterval and pollMaxAttempts implement the remote-dispatch poll loop:
// "Timeout after 12 one-second polls" (spec.md §4.5). Variables, not
// constants, so tests can shrink the interval instead of taking 12 real
// seconds per exercised timeout path.
var (
	pollInterval    = 1 * time.Second
	pollMaxAttempts = 12
)
