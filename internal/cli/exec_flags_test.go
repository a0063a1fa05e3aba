package cli

import (
	"testing"

	"github.com/spf13/cobra"

	"github.com/suntomi/deplo/pkg/config"
)

func TestExecFlags_Register(t *testing.T) {
	var f execFlags
	cmd := &cobra.Command{Use: "x"}
	f.register(cmd)

	expected := []string{"revision", "release-target", "timeout", "env", "remote", "follow-dependency", "silent"}
	for _, name := range expected {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected --%s flag registered", name)
		}
	}
}

func TestExecFlags_ExecOptions(t *testing.T) {
	f := execFlags{
		revision:         "abc123",
		releaseTarget:    "prod",
		timeout:          30,
		envs:             []string{"A=1"},
		remote:           true,
		followDependency: true,
		silent:           true,
	}
	opts := f.execOptions()
	if opts.Revision != "abc123" {
		t.Errorf("expected revision abc123, got %s", opts.Revision)
	}
	if opts.ReleaseTarget != "prod" {
		t.Errorf("expected release target prod, got %s", opts.ReleaseTarget)
	}
	if opts.Timeout != 30 {
		t.Errorf("expected timeout 30, got %d", opts.Timeout)
	}
	if !opts.Remote || !opts.FollowDependency || !opts.Silent {
		t.Error("expected remote/follow-dependency/silent all true")
	}
	if opts.Envs["A"].Resolve() != "1" {
		t.Errorf("expected A=1 in envs, got %v", opts.Envs["A"].Resolve())
	}
}

func TestMergeExecOptions_OverridesSetFields(t *testing.T) {
	base := config.ExecOptions{Revision: "base-rev", Timeout: 10, Remote: false}
	override := config.ExecOptions{ReleaseTarget: "staging", Timeout: 20, Remote: true}

	merged := mergeExecOptions(base, override)
	if merged.Revision != "base-rev" {
		t.Errorf("expected base revision to survive unset override, got %s", merged.Revision)
	}
	if merged.ReleaseTarget != "staging" {
		t.Errorf("expected override release target, got %s", merged.ReleaseTarget)
	}
	if merged.Timeout != 20 {
		t.Errorf("expected override timeout to win, got %d", merged.Timeout)
	}
	if !merged.Remote {
		t.Error("expected remote true once either side sets it")
	}
}

func TestMergeExecOptions_ZeroOverrideLeavesBase(t *testing.T) {
	base := config.ExecOptions{Timeout: 10}
	override := config.ExecOptions{}

	merged := mergeExecOptions(base, override)
	if merged.Timeout != 10 {
		t.Errorf("expected base timeout preserved when override is zero, got %d", merged.Timeout)
	}
}
