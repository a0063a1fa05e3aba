package cli

import "testing"

func TestReinitTargets_Empty(t *testing.T) {
	old := reinit
	defer func() { reinit = old }()

	reinit = ""
	got := reinitTargets()
	if len(got) != 0 {
		t.Errorf("expected no targets for empty --reinit, got %v", got)
	}
}

func TestReinitTargets_All(t *testing.T) {
	old := reinit
	defer func() { reinit = old }()

	reinit = "all"
	got := reinitTargets()
	for _, want := range []string{"tf", "cloud", "ci", "vcs"} {
		if !got[want] {
			t.Errorf("expected %q set by --reinit=all", want)
		}
	}
}

func TestReinitTargets_List(t *testing.T) {
	old := reinit
	defer func() { reinit = old }()

	reinit = "ci,vcs"
	got := reinitTargets()
	if !got["ci"] || !got["vcs"] {
		t.Errorf("expected ci and vcs set, got %v", got)
	}
	if got["tf"] || got["cloud"] {
		t.Errorf("expected only the named targets set, got %v", got)
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, sub := range rootCmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"info", "init", "destroy", "ci", "start", "run", "stop", "job"} {
		if !names[want] {
			t.Errorf("expected %q registered on the root command", want)
		}
	}
}
