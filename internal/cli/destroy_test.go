package cli

import "testing"

func TestNewDestroyCmd_Flags(t *testing.T) {
	cmd := newDestroyCmd()
	if cmd.Use != "destroy" {
		t.Errorf("expected use 'destroy', got %s", cmd.Use)
	}
	if cmd.Flags().Lookup("force") == nil {
		t.Error("expected --force flag")
	}
}
