package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate the CI provider pipeline config for this project",
		Long: `init writes the provider-specific pipeline file(s) (e.g. GitHub Actions
workflow YAML) derived from the deplo config, after calling the provider's
Prepare hook. An existing pipeline file is kept unless --reinit names ci
(or all). Neither built-in provider does any other setup in Prepare.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cfgFile, dotenv, workdir)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ctx := context.Background()
			targets := reinitTargets()
			force := targets["ci"] || targets["all"]
			if err := rt.Provider.Prepare(ctx, force); err != nil {
				return fmt.Errorf("prepare CI provider: %w", err)
			}
			if err := rt.Provider.GenerateConfig(ctx, force); err != nil {
				return fmt.Errorf("generate CI config: %w", err)
			}
			return nil
		},
	}
	return cmd
}
