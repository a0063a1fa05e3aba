// Package cli implements the deplo command-line surface: a thin cobra/viper
// layer over the core packages (pkg/config, pkg/job, pkg/step, pkg/ci,
// pkg/commit, pkg/vcs) described in spec.md §6.
package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/suntomi/deplo/pkg/logging"
)

// cliVersion is the release version baked into the CLI binary. Overridden
// at build time with -ldflags "-X github.com/suntomi/deplo/internal/cli.cliVersion=...".
var cliVersion = "dev"

var (
	cfgFile   string
	dotenv    string
	workdir   string
	verbosity int
	debugFlag string
	reinit    string
	dryrun    bool
)

var rootCmd = &cobra.Command{
	Use:   "deplo",
	Short: "Write-once, run-anywhere CI/CD orchestration",
	Long: `deplo runs the same job definitions locally, inside a container, or
dispatched to a remote CI runner, depending on what the current environment
and the job's declared runner allow.

Command Structure:
  deplo <command> [arguments] [flags]

Examples:
  deplo init
  deplo start --workflow deploy
  deplo run build --task lint
  deplo ci setenv`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to the deplo config file (default deplo.toml in the workdir)")
	rootCmd.PersistentFlags().StringVar(&dotenv, "dotenv", "", "dotenv file path, or inline K=V\\nK=V text (accepted but not read by any command)")
	rootCmd.PersistentFlags().StringVar(&workdir, "workdir", "", "project root (default the current directory)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity, repeatable")
	rootCmd.PersistentFlags().StringVar(&debugFlag, "debug", "", "comma-separated K[=V] debug flags (recorded only; the CLI binary path map is read from DEPLO_DEBUG_CLI_BIN_PATHS)")
	rootCmd.PersistentFlags().StringVar(&reinit, "reinit", "", "force re-running setup: tf,cloud,ci,vcs,all")
	rootCmd.PersistentFlags().BoolVar(&dryrun, "dryrun", false, "log commands instead of executing them")

	_ = viper.BindPFlag("workdir", rootCmd.PersistentFlags().Lookup("workdir"))
	viper.SetEnvPrefix("DEPLO")
	viper.AutomaticEnv()

	rootCmd.AddCommand(newInfoCmd())
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newDestroyCmd())
	rootCmd.AddCommand(newCICmd())
	rootCmd.AddCommand(newStartCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newStopCmd())
	rootCmd.AddCommand(newJobCmd())
}

func initConfig() {
	logging.SetVerbosity(verbosity)
	logging.SetDebugFlags(debugFlag)
	viper.AutomaticEnv()
}

// reinitTargets splits --reinit into the named targets it should apply to.
// The empty string (nothing passed) yields no targets, and "all" expands to
// every known target, so callers only need to ask "was target named".
func reinitTargets() map[string]bool {
	targets := map[string]bool{}
	if reinit == "" {
		return targets
	}
	if reinit == "all" {
		for _, t := range []string{"tf", "cloud", "ci", "vcs"} {
			targets[t] = true
		}
		return targets
	}
	for _, t := range splitCommaList(reinit) {
		targets[t] = true
	}
	return targets
}
