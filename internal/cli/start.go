package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/suntomi/deplo/pkg/commit"
	"github.com/suntomi/deplo/pkg/shell"
	"github.com/suntomi/deplo/pkg/workflow"
)

func newStartCmd() *cobra.Command {
	var (
		workflowName  string
		eventPayload  string
		flags         execFlags
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run every job attached to a workflow",
		Long: `start resolves a workflow -- either named directly with --workflow, or
matched from an inbound CI event payload with --workflow-event-payload -- and
runs each of its attached jobs in dependency order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cfgFile, dotenv, workdir)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			matcher := workflow.New(rt.Store, rt.ReleaseTarget)

			var runs []workflow.WorkflowRun
			switch {
			case eventPayload != "":
				payload, err := readPayloadArg(eventPayload)
				if err != nil {
					return err
				}
				runs, err = matcher.Match(payload)
				if err != nil {
					return fmt.Errorf("match workflow event: %w", err)
				}
			case workflowName != "":
				run, err := matcher.ByName(workflowName)
				if err != nil {
					return fmt.Errorf("resolve workflow %s: %w", workflowName, err)
				}
				runs = []workflow.WorkflowRun{run}
			default:
				return fmt.Errorf("one of --workflow or --workflow-event-payload is required")
			}

			overrides := flags.execOptions()
			for i := range runs {
				runs[i].Exec = mergeExecOptions(runs[i].Exec, overrides)
			}

			settings := shell.Settings{Dryrun: dryrun, CaptureStdout: true, CaptureStderr: true}
			for _, run := range runs {
				if err := runWorkflow(cmd, rt, run, settings); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&workflowName, "workflow", "", "run this workflow by name")
	cmd.Flags().StringVar(&eventPayload, "workflow-event-payload", "", "match a workflow from this JSON payload or file")
	flags.register(cmd)
	return cmd
}

func runWorkflow(cmd *cobra.Command, rt *runtime, run workflow.WorkflowRun, settings shell.Settings) error {
	ctx := context.Background()
	for _, j := range rt.Store.JobsForWorkflow(run.Name) {
		jobRun := run
		jobRun.Job = &workflow.JobRef{Name: j.Name}

		os.Setenv("DEPLO_JOB_CURRENT_NAME", j.Name)
		outcome, err := rt.Runner.Run(ctx, j, j.Command, "", jobRun, settings)
		if err != nil {
			return fmt.Errorf("job %s: %w", j.Name, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", j.Name, outcome.Venue)

		if !run.Exec.Silent && len(j.Commits) > 0 {
			ciID := os.Getenv("DEPLO_CI_ID")
			if err := commit.RecordJobCommit(ctx, rt.VCS, outputBusFor(rt, j.Name), rt.Provider, ciID, j.Name, j.Commits); err != nil {
				return fmt.Errorf("job %s: record commit: %w", j.Name, err)
			}
		}
		if err := publishJobOutputs(rt.Provider); err != nil {
			return fmt.Errorf("job %s: publish outputs: %w", j.Name, err)
		}
	}
	return nil
}

// readPayloadArg accepts either a path to a file containing the JSON
// payload or the JSON text itself, per spec.md's `JSON|FILE` CLI grammar.
func readPayloadArg(arg string) (string, error) {
	if data, err := os.ReadFile(arg); err == nil {
		return string(data), nil
	}
	var probe interface{}
	if json.Unmarshal([]byte(arg), &probe) == nil {
		return arg, nil
	}
	return "", fmt.Errorf("--workflow-event-payload is neither a readable file nor valid JSON")
}
