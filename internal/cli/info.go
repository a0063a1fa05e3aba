package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print information about this deplo installation",
	}
	cmd.AddCommand(newInfoVersionCmd())
	return cmd
}

func newInfoVersionCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch output {
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				return enc.Encode(map[string]string{"version": cliVersion})
			case "plain", "":
				fmt.Fprintln(cmd.OutOrStdout(), cliVersion)
				return nil
			default:
				return fmt.Errorf("unknown -o format %q, want plain or json", output)
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "plain", "output format: plain or json")
	return cmd
}
