package job

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/suntomi/deplo/pkg/config"
	derrors "github.com/suntomi/deplo/pkg/errors"
	"github.com/suntomi/deplo/pkg/logging"
	"github.com/suntomi/deplo/pkg/shell"
	"github.com/suntomi/deplo/pkg/step"
	"github.com/suntomi/deplo/pkg/vcs"
	"github.com/suntomi/deplo/pkg/workflow"
)

// RemoteDispatcher is the subset of the CIProvider interface JobRunner
// needs (C5), injected so pkg/job doesn't depend on pkg/ci directly.
type RemoteDispatcher interface {
	RunJob(ctx context.Context, run workflow.WorkflowRun) (string, error)
}

// StepRunner is the subset of the StepSequencer (C8) JobRunner needs to
// drive a job's multi-step form when the venue resolves to the local host.
type StepRunner interface {
	Run(ctx context.Context, j *config.Job, taskName string, settings shell.Settings) ([]step.Outcome, error)
}

// Runner drives one job invocation through the venue-selection state
// machine (spec.md §4.7).
type Runner struct {
	Driver       *shell.Driver
	VCS          vcs.VCS
	Dispatcher   RemoteDispatcher
	Steps        StepRunner
	CurrentOS    shell.OS
	OnCI         bool
	ProjectName  string
	DataDir      string
	CLIVersion   string
	DebugCLIBins map[string]string
}

// Outcome reports what happened for a job invocation.
type Outcome struct {
	Venue  Venue
	Result *shell.Result
	RunID  string // set when Venue == VenueRemote
}

// Run executes job according to the venue precedence rules. command is the
// job's effective argv for the single-command form, or nil when the job
// uses multi-step form -- in which case the local venue delegates to Steps
// and the container venue re-enters via `deplo job run-steps` with run
// serialized as its -p argument. task is the --task override; it is passed
// to Steps on the multi-step/local path, where the sequencer ignores it (the
// single-command form has already baked any --task override into command
// by the time Run is called).
func (r *Runner) Run(ctx context.Context, j *config.Job, command []string, task string, run workflow.WorkflowRun, settings shell.Settings) (*Outcome, error) {
	venue := SelectVenue(j, r.CurrentOS, run.Exec.Remote, settings.Dryrun, r.OnCI)

	restore, err := CheckoutRevision(ctx, r.VCS, run.Exec.Revision, r.OnCI)
	if err != nil {
		return nil, err
	}
	defer restore(ctx)

	switch venue {
	case VenueDryrun:
		logging.Logger().WithField("dryrun", true).Infof("job %s: dryrun, not executed", j.Name)
		return &Outcome{Venue: venue, Result: &shell.Result{}}, nil

	case VenueRemote:
		if r.Dispatcher == nil {
			return nil, derrors.New(derrors.ErrCodeCIProvider, "remote dispatch requested but no CIProvider is configured")
		}
		runID, err := r.Dispatcher.RunJob(ctx, run)
		if err != nil {
			return nil, err
		}
		return &Outcome{Venue: venue, RunID: runID}, nil

	case VenueLocal:
		res, err := r.runLocal(ctx, j, command, task, settings)
		if err != nil {
			return nil, err
		}
		return &Outcome{Venue: venue, Result: res}, nil

	case VenueContainer:
		res, err := r.runInContainer(ctx, j, command, run, settings)
		if err != nil {
			return nil, err
		}
		return &Outcome{Venue: venue, Result: res}, nil

	default:
		return nil, derrors.New(derrors.ErrCodeValidation, fmt.Sprintf("unknown venue %q", venue))
	}
}

func (r *Runner) runLocal(ctx context.Context, j *config.Job, command []string, task string, settings shell.Settings) (*shell.Result, error) {
	if len(j.Steps) > 0 {
		if r.Steps == nil {
			return nil, derrors.New(derrors.ErrCodeValidation, "job uses multi-step form but no StepSequencer is configured")
		}
		outcomes, err := r.Steps.Run(ctx, j, task, settings)
		if err != nil {
			return nil, err
		}
		if len(outcomes) == 0 {
			return &shell.Result{}, nil
		}
		return outcomes[len(outcomes)-1].Result, nil
	}
	if len(command) == 0 {
		return nil, derrors.New(derrors.ErrCodeValidation, "job has no command for local execution")
	}
	return r.Driver.Exec(ctx, command, nil, "", settings)
}

func (r *Runner) runInContainer(ctx context.Context, j *config.Job, command []string, run workflow.WorkflowRun, settings shell.Settings) (*shell.Result, error) {
	var dockerImage string
	switch {
	case j.Runner.Kind == config.RunnerContainer:
		dockerImage = j.Runner.ContainerImage.Resolve()
	case j.Runner.LocalFallback != nil && j.Runner.LocalFallback.Dockerfile != "":
		tag, err := BuildFallbackImage(ctx, r.Driver, r.ProjectName, j.Name, j.Runner.LocalFallback.Dockerfile,
			j.Runner.LocalFallback.RepoName, j.Runner.LocalFallback.BuildArgs, j.Workdir, settings)
		if err != nil {
			return nil, err
		}
		dockerImage = tag
	case j.Runner.LocalFallback != nil:
		dockerImage = j.Runner.LocalFallback.Image.Resolve()
	default:
		return nil, derrors.New(derrors.ErrCodeValidation, "container venue selected but job has no image source")
	}

	cliPath, err := BootstrapCLIBinary(ctx, r.DataDir, r.CLIVersion, r.CurrentOS, r.DebugCLIBins)
	if err != nil {
		return nil, err
	}
	mounts := []shell.Mount{{Source: cliPath, Target: "/usr/local/bin/deplo"}}

	argv := command
	if len(argv) == 0 {
		payload, err := json.Marshal(run)
		if err != nil {
			return nil, derrors.Wrap(derrors.ErrCodeValidation, "failed to encode WorkflowRun for container re-entry", err)
		}
		argv = multiStepContainerCommand(j.Name, string(payload))
	}

	shellBin := "sh"
	if j.Runner.LocalFallback != nil && j.Runner.LocalFallback.Shell != "" {
		shellBin = j.Runner.LocalFallback.Shell
	}
	return r.Driver.EvalOnContainer(ctx, dockerImage, joinArgv(argv), shellBin, j.Env, j.Workdir, mounts, settings)
}

func joinArgv(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = "'" + strings.ReplaceAll(a, "'", `'"'"'`) + "'"
	}
	return strings.Join(quoted, " ")
}
