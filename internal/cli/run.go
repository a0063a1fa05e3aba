package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/suntomi/deplo/pkg/commit"
	"github.com/suntomi/deplo/pkg/config"
	"github.com/suntomi/deplo/pkg/shell"
	"github.com/suntomi/deplo/pkg/workflow"
)

func newRunCmd() *cobra.Command {
	var (
		flags execFlags
		task  string
	)
	cmd := &cobra.Command{
		Use:   "run JOB [-- ARGS...]",
		Short: "Run a single job by name",
		Long: `run invokes one job directly, bypassing workflow matching -- useful for
local iteration ("deplo run build --task lint") or for a CI pipeline step
that already knows which job it wants.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobName := args[0]
			extra := args[1:]

			rt, err := newRuntime(cfgFile, dotenv, workdir)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			j, ok := rt.Store.Jobs[jobName]
			if !ok {
				return fmt.Errorf("no job named %s", jobName)
			}

			run := workflow.WorkflowRun{
				Name: jobName,
				Job:  &workflow.JobRef{Name: jobName},
				Exec: flags.execOptions(),
			}

			command := effectiveCommand(j, task)
			if len(extra) > 0 {
				command = append(append([]string{}, command...), extra...)
			}

			os.Setenv("DEPLO_JOB_CURRENT_NAME", jobName)
			settings := shell.Settings{Dryrun: dryrun, CaptureStdout: true, CaptureStderr: true}
			outcome, err := rt.Runner.Run(context.Background(), j, command, task, run, settings)
			if err != nil {
				return fmt.Errorf("job %s: %w", jobName, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", jobName, outcome.Venue)

			if !run.Exec.Silent && len(j.Commits) > 0 {
				ciID := os.Getenv("DEPLO_CI_ID")
				if err := commit.RecordJobCommit(context.Background(), rt.VCS, outputBusFor(rt, jobName), rt.Provider, ciID, jobName, j.Commits); err != nil {
					return err
				}
			}
			return publishJobOutputs(rt.Provider)
		},
	}
	cmd.Flags().StringVar(&task, "task", "", "run this named task's args instead of the job's default command")
	flags.register(cmd)
	return cmd
}

// effectiveCommand applies a --task override to a job's single-command
// form, mirroring pkg/step's own task-substitution rule.
func effectiveCommand(j *config.Job, task string) []string {
	if task == "" {
		return j.Command
	}
	t, ok := j.Tasks[task]
	if !ok {
		return j.Command
	}
	return t.Args
}
