package cli

import (
	"github.com/spf13/cobra"

	"github.com/suntomi/deplo/pkg/ci"
	"github.com/suntomi/deplo/pkg/config"
	"github.com/suntomi/deplo/pkg/output"
)

// execFlags are the run-time override flags shared by `start` and `run`
// (spec.md §6: "same flags" for both).
type execFlags struct {
	revision         string
	releaseTarget    string
	timeout          int
	envs             []string
	remote           bool
	followDependency bool
	silent           bool
}

func (f *execFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.revision, "revision", "", "commit hash to run at instead of the current checkout")
	cmd.Flags().StringVar(&f.releaseTarget, "release-target", "", "override the detected release target")
	cmd.Flags().IntVar(&f.timeout, "timeout", 0, "job timeout in seconds, recorded in the run's exec options (deplo itself does not enforce it)")
	cmd.Flags().StringArrayVar(&f.envs, "env", nil, "additional K=V env vars, repeatable")
	cmd.Flags().BoolVar(&f.remote, "remote", false, "force dispatch to the remote CI provider")
	cmd.Flags().BoolVar(&f.followDependency, "follow-dependency", false, "recorded in the run's exec options; dependency jobs are not run by this flag")
	cmd.Flags().BoolVar(&f.silent, "silent", false, "suppress the auto-commit/cleanup step")
}

// mergeExecOptions layers CLI-flag overrides onto a workflow-matched
// ExecOptions, letting unset flags (zero values) fall through to whatever
// the matcher already computed (e.g. release_target from the VCS branch).
func mergeExecOptions(base, override config.ExecOptions) config.ExecOptions {
	merged := base
	if override.Revision != "" {
		merged.Revision = override.Revision
	}
	if override.ReleaseTarget != "" {
		merged.ReleaseTarget = override.ReleaseTarget
	}
	if override.Timeout != 0 {
		merged.Timeout = override.Timeout
	}
	if len(override.Envs) > 0 {
		merged.Envs = mergeEnvMaps(base.Envs, override.Envs)
	}
	merged.Verbosity = override.Verbosity
	merged.Remote = merged.Remote || override.Remote
	merged.FollowDependency = merged.FollowDependency || override.FollowDependency
	merged.Silent = merged.Silent || override.Silent
	return merged
}

func outputBusFor(rt *runtime, jobName string) *output.Bus {
	return output.New(rt.Store.Workdir, jobName)
}

// publishJobOutputs flushes the just-finished job's scratch-file outputs
// (user-set via `deplo job set-output` and system-set by RecordJobCommit)
// to whatever channel sibling jobs read from -- CI step outputs on a hosted
// runner, the DEPLO_JOB_<KIND>_OUTPUT_<job> env var off of one (spec.md
// §4.9). Called once per job run, after its steps and any auto-commit have
// completed.
func publishJobOutputs(provider ci.Provider) error {
	if err := provider.PublishOutput(output.KindUser); err != nil {
		return err
	}
	return provider.PublishOutput(output.KindSystem)
}

func (f *execFlags) execOptions() config.ExecOptions {
	return config.ExecOptions{
		Envs:             parseEnvFlags(f.envs),
		Revision:         f.revision,
		ReleaseTarget:    f.releaseTarget,
		Verbosity:        verbosity,
		Remote:           f.remote,
		FollowDependency: f.followDependency,
		Silent:           f.silent,
		Timeout:          f.timeout,
	}
}
