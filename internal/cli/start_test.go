package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadPayloadArg_InlineJSON(t *testing.T) {
	got, err := readPayloadArg(`{"ref":"refs/heads/main"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `{"ref":"refs/heads/main"}` {
		t.Errorf("expected the JSON text back verbatim, got %q", got)
	}
}

func TestReadPayloadArg_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payload.json")
	contents := `{"ref":"refs/heads/dev"}`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := readPayloadArg(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != contents {
		t.Errorf("expected file contents %q, got %q", contents, got)
	}
}

func TestReadPayloadArg_Invalid(t *testing.T) {
	_, err := readPayloadArg("not json and not a file")
	if err == nil {
		t.Fatal("expected error for invalid payload arg")
	}
}

func TestNewStartCmd_Flags(t *testing.T) {
	cmd := newStartCmd()
	if cmd.Use != "start" {
		t.Errorf("expected use 'start', got %s", cmd.Use)
	}
	for _, name := range []string{"workflow", "workflow-event-payload", "revision"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected --%s flag", name)
		}
	}
}
