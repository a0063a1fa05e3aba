package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newStopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop JOB",
		Short: "Cancel a job's in-progress remote run",
		Long: `stop asks the configured CI provider to cancel any in-progress or
queued run it dispatched for the named job. Jobs that only ever run locally
or in a container have nothing for this to cancel.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobName := args[0]
			rt, err := newRuntime(cfgFile, dotenv, workdir)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if _, ok := rt.Store.Jobs[jobName]; !ok {
				return fmt.Errorf("no job named %s", jobName)
			}
			if err := rt.Provider.CancelJob(context.Background(), jobName); err != nil {
				return fmt.Errorf("cancel job %s: %w", jobName, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: cancel requested\n", jobName)
			return nil
		},
	}
	return cmd
}
