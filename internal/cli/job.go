package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/suntomi/deplo/pkg/commit"
	"github.com/suntomi/deplo/pkg/config"
	"github.com/suntomi/deplo/pkg/output"
	"github.com/suntomi/deplo/pkg/shell"
	"github.com/suntomi/deplo/pkg/workflow"
)

func newJobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Read/write job output and drive a job's steps",
	}
	cmd.AddCommand(newJobOutputCmd())
	cmd.AddCommand(newJobSetOutputCmd())
	cmd.AddCommand(newJobRunStepsCmd())
	cmd.AddCommand(newJobRunCleanupCmd())
	return cmd
}

func newJobOutputCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "output JOB KEY",
		Short: "Read a user output key published by another job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cfgFile, dotenv, workdir)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			v, err := rt.Provider.JobOutput(args[0], args[1], output.KindUser)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

func newJobSetOutputCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-output KEY VALUE",
		Short: "Record a user output key for the current job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cfgFile, dotenv, workdir)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return rt.Provider.SetJobOutput(args[0], args[1])
		},
	}
}

func newJobRunStepsCmd() *cobra.Command {
	var (
		payload string
		task    string
	)
	cmd := &cobra.Command{
		Use:   "run-steps JOB",
		Short: "Drive a job's steps from a serialized WorkflowRun",
		Long: `run-steps is how the container venue re-enters the CLI binary
(spec.md §4.7): the job runner bind-mounts this same binary into the
container and invokes "deplo job run-steps <job> -p '<json>'" so the
StepSequencer drives the job's steps from inside the container it was
built to isolate, using the same WorkflowRun the host process matched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobName := args[0]
			rt, err := newRuntime(cfgFile, dotenv, workdir)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			j, ok := rt.Store.Jobs[jobName]
			if !ok {
				return fmt.Errorf("no job named %s", jobName)
			}

			var run workflow.WorkflowRun
			if payload != "" {
				if err := json.Unmarshal([]byte(payload), &run); err != nil {
					return fmt.Errorf("decode -p payload: %w", err)
				}
			}

			os.Setenv("DEPLO_JOB_CURRENT_NAME", jobName)
			settings := shell.Settings{Dryrun: dryrun, CaptureStdout: true, CaptureStderr: true}
			outcomes, err := rt.Sequencer.Run(context.Background(), j, task, settings)
			if err != nil {
				return fmt.Errorf("job %s: %w", jobName, err)
			}
			for _, o := range outcomes {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", o.StepName)
			}

			if !run.Exec.Silent && len(j.Commits) > 0 {
				ciID := os.Getenv("DEPLO_CI_ID")
				if err := commit.RecordJobCommit(context.Background(), rt.VCS, outputBusFor(rt, jobName), rt.Provider, ciID, jobName, j.Commits); err != nil {
					return err
				}
			}
			return publishJobOutputs(rt.Provider)
		},
	}
	cmd.Flags().StringVarP(&payload, "payload", "p", "", "JSON-encoded WorkflowRun this job was dispatched with")
	cmd.Flags().StringVar(&task, "task", "", "run this named task's args instead of the job's default command")
	return cmd
}

// newJobRunCleanupCmd is the generated cleanup job's entry point
// (pkg/ci's generateGhActionYAML/generateCircleCIYAML wire "deplo job
// run-cleanup" as a trailing job after every other job; the GitHub Actions
// one runs only when some job's "need-cleanup" output is true): it harvests each upstream job's auto-commit branch and folds them
// in via the configured commit method (spec.md §4.10).
func newJobRunCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-cleanup",
		Short: "Fold in every upstream job's auto-commit branch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cfgFile, dotenv, workdir)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			var branches []commit.UpstreamBranch
			for _, name := range sortedJobNames(rt.Store.Jobs) {
				j := rt.Store.Jobs[name]
				if len(j.Commits) == 0 {
					continue
				}
				branch, err := rt.Provider.JobOutput(name, commit.SystemOutputKey, output.KindSystem)
				if err != nil || branch == "" {
					continue
				}
				branches = append(branches, commit.UpstreamBranch{JobName: name, Branch: branch, Commit: j.Commits[0]})
			}

			if err := commit.Aggregate(context.Background(), rt.VCS, branches); err != nil {
				return fmt.Errorf("aggregate commits: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "folded in %d upstream branch(es)\n", len(branches))
			return nil
		},
	}
}

// sortedJobNames returns job names in deterministic order, mirroring the
// same helper pkg/ci's YAML generators use for reproducible output.
func sortedJobNames(jobs map[string]*config.Job) []string {
	names := make([]string, 0, len(jobs))
	for n := range jobs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

