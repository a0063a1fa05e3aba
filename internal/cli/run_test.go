package cli

import (
	"reflect"
	"testing"

	"github.com/suntomi/deplo/pkg/config"
)

func TestEffectiveCommand_NoTask(t *testing.T) {
	j := &config.Job{Command: []string{"make", "build"}}
	got := effectiveCommand(j, "")
	if !reflect.DeepEqual(got, j.Command) {
		t.Errorf("expected job command, got %v", got)
	}
}

func TestEffectiveCommand_KnownTask(t *testing.T) {
	j := &config.Job{
		Command: []string{"make", "build"},
		Tasks: map[string]config.Task{
			"lint": {Args: []string{"make", "lint"}},
		},
	}
	got := effectiveCommand(j, "lint")
	if !reflect.DeepEqual(got, []string{"make", "lint"}) {
		t.Errorf("expected task args, got %v", got)
	}
}

func TestEffectiveCommand_UnknownTaskFallsBack(t *testing.T) {
	j := &config.Job{Command: []string{"make", "build"}}
	got := effectiveCommand(j, "missing")
	if !reflect.DeepEqual(got, j.Command) {
		t.Errorf("expected fallback to job command, got %v", got)
	}
}

func TestNewRunCmd_Flags(t *testing.T) {
	cmd := newRunCmd()
	if cmd.Use != "run JOB [-- ARGS...]" {
		t.Errorf("unexpected use: %s", cmd.Use)
	}
	if cmd.Flags().Lookup("task") == nil {
		t.Error("expected --task flag")
	}
	if cmd.Flags().Lookup("revision") == nil {
		t.Error("expected shared exec flags registered, missing --revision")
	}
}
