package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newDestroyCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Remove generated CI config and cached data for this project",
		Long: `destroy is init's inverse: it deletes the generated pipeline YAML and the
data directory (staged CLI binaries, module cache) so the next init starts
from a clean slate. It never touches anything outside the deplo-managed
paths -- deplo does not provision infrastructure, so there is nothing else
for it to tear down.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cfgFile, dotenv, workdir)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if !force && !dryrun {
				fmt.Fprintln(cmd.ErrOrStderr(), "refusing to destroy without --force (or pass --dryrun to preview)")
				return fmt.Errorf("destroy requires --force")
			}
			for _, path := range []string{rt.Store.DataDir} {
				if path == "" {
					continue
				}
				if dryrun {
					fmt.Fprintf(cmd.OutOrStdout(), "would remove %s\n", path)
					continue
				}
				if err := os.RemoveAll(path); err != nil {
					return fmt.Errorf("remove %s: %w", path, err)
				}
			}
			for _, rel := range []string{filepath.Join(".github", "workflows", "deplo-main.yml"), filepath.Join(".circleci", "config.yml")} {
				path := filepath.Join(rt.Store.Workdir, rel)
				if _, statErr := os.Stat(path); statErr != nil {
					continue
				}
				if dryrun {
					fmt.Fprintf(cmd.OutOrStdout(), "would remove %s\n", path)
					continue
				}
				if err := os.Remove(path); err != nil {
					return fmt.Errorf("remove %s: %w", path, err)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "actually delete generated config and cached data")
	return cmd
}
