package job

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suntomi/deplo/pkg/shell"
)

func TestBootstrapCLIBinary_DebugPathOverride(t *testing.T) {
	debug := map[string]string{string(shell.Linux): "/tmp/deplo-debug-bin"}
	path, err := BootstrapCLIBinary(context.Background(), t.TempDir(), "v1.0.0", shell.Linux, debug)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/deplo-debug-bin", path)
}

func TestUnameFor(t *testing.T) {
	cases := []struct {
		os      shell.OS
		wantOS  string
		wantExt string
	}{
		{shell.Windows, "Windows", ".exe"},
		{shell.MacOS, "Darwin", ""},
		{shell.Linux, "Linux", ""},
	}
	for _, c := range cases {
		uname, ext := unameFor(c.os)
		assert.Equal(t, c.wantOS, uname)
		assert.Equal(t, c.wantExt, ext)
	}
}

func TestMultiStepContainerCommand(t *testing.T) {
	got := multiStepContainerCommand("deploy", `{"name":"deploy"}`)
	assert.Equal(t, []string{"deplo", "job", "run-steps", "deploy", "-p", `{"name":"deploy"}`}, got)
}
