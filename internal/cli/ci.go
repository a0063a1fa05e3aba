package cli

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/suntomi/deplo/pkg/ci"
	"github.com/suntomi/deplo/pkg/shell"
)

func newCICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ci",
		Short: "Interact with the configured CI provider",
	}
	cmd.AddCommand(newCIKickCmd())
	cmd.AddCommand(newCISetenvCmd())
	cmd.AddCommand(newCIGetenvCmd())
	cmd.AddCommand(newCITokenCmd())
	cmd.AddCommand(newCIRestoreCacheCmd())
	return cmd
}

// newCIKickCmd prints the provider's ambient env vars (ProcessEnv: the
// GITHUB_*/CIRCLE_* run, job, ref and commit variables that are set) as
// sorted shell export statements.
func newCIKickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kick",
		Short: "Print the provider's ambient env vars as shell exports",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cfgFile, dotenv, workdir)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			names := make([]string, 0)
			env := rt.Provider.ProcessEnv()
			for k := range env {
				names = append(names, k)
			}
			sort.Strings(names)
			for _, k := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "export %s=%q\n", k, env[k])
			}
			return nil
		},
	}
}

func newCISetenvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setenv",
		Short: "Upload every declared secret to the CI provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cfgFile, dotenv, workdir)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ctx := context.Background()
			for name := range rt.Store.Secrets {
				v, err := rt.Store.ResolveSecret(name)
				if err != nil {
					return fmt.Errorf("resolve secret %s: %w", name, err)
				}
				if err := rt.Provider.SetSecret(ctx, name, v); err != nil {
					return fmt.Errorf("set secret %s: %w", name, err)
				}
			}
			return nil
		},
	}
}

func newCIGetenvCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "getenv",
		Short: "List the secret names currently configured on the CI provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cfgFile, dotenv, workdir)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			names, err := rt.Provider.ListSecretNames(context.Background())
			if err != nil {
				return fmt.Errorf("list secrets: %w", err)
			}
			out := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("open %s: %w", output, err)
				}
				defer f.Close()
				out = f
			}
			for _, n := range names {
				fmt.Fprintln(out, n)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the names to this file instead of stdout")
	return cmd
}

func newCITokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API token",
	}
	cmd.AddCommand(newCITokenOIDCCmd())
	return cmd
}

func newCITokenOIDCCmd() *cobra.Command {
	var (
		audience string
		output   string
	)
	cmd := &cobra.Command{
		Use:   "oidc",
		Short: "Mint an OIDC token for cloud-auth use inside a job",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cfgFile, dotenv, workdir)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			token, err := rt.Provider.GenerateToken(context.Background(), ci.TokenConfig{Kind: ci.TokenUser})
			if err != nil {
				return fmt.Errorf("generate token: %w", err)
			}
			_ = audience // accepted but not used: the token printed is the provider's user token
			out := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("open %s: %w", output, err)
				}
				defer f.Close()
				out = f
			}
			fmt.Fprintln(out, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&audience, "audience", "", "OIDC token audience")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the token to this file instead of stdout")
	return cmd
}

func newCIRestoreCacheCmd() *cobra.Command {
	var submodules bool
	cmd := &cobra.Command{
		Use:   "restore-cache",
		Short: "Pre-fetch declared module sources and optionally update git submodules",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cfgFile, dotenv, workdir)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			settings := shell.Settings{Dryrun: dryrun}
			return rt.Modules.RestoreCache(context.Background(), rt.Store.Modules, submodules, rt.Driver, settings)
		},
	}
	cmd.Flags().BoolVar(&submodules, "submodules", false, "also run git submodule update --init --recursive")
	return cmd
}
