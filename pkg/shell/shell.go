// Package shell implements the process-execution facade (exec/eval/
// eval_on_container/output_of) every job and step ultimately runs through.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	derrors "github.com/suntomi/deplo/pkg/errors"
	"github.com/suntomi/deplo/pkg/logging"
	"github.com/suntomi/deplo/pkg/value"
)

// OS identifies the host operating system a job or step is targeting.
type OS string

const (
	MacOS   OS = "macos"
	Linux   OS = "linux"
	Windows OS = "windows"
)

// Settings controls how a single exec/eval/eval_on_container call behaves.
type Settings struct {
	CaptureStdout bool
	CaptureStderr bool
	Interactive   bool // connect the child to the controlling tty
	Dryrun        bool // log the command, never fork
	Paths         []string
}

// Mount is a bind mount appended to a containerized eval, beyond the
// driver's own repo-root and docker-socket mounts.
type Mount struct {
	Source string
	Target string
	ReadOnly bool
}

// Result is what exec/eval/eval_on_container return on (and only on)
// success -- a non-zero exit is always an error (ExitStatusError), never a
// Result with a nonzero code.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// ExitStatusError is returned when the child exits with a non-zero status.
// ignore_exit_status swallows exactly this error type.
type ExitStatusError struct {
	Code   int
	Stderr string
}

func (e *ExitStatusError) Error() string {
	return fmt.Sprintf("exit status %d: %s", e.Code, strings.TrimSpace(e.Stderr))
}

// SpawnError wraps a failure to start the child process at all.
type SpawnError struct{ Cause error }

func (e *SpawnError) Error() string { return fmt.Sprintf("spawn failed: %v", e.Cause) }
func (e *SpawnError) Unwrap() error { return e.Cause }

// IOStreamError wraps a failure reading the child's stdout/stderr streams.
type IOStreamError struct{ Cause error }

func (e *IOStreamError) Error() string { return fmt.Sprintf("io error: %v", e.Cause) }
func (e *IOStreamError) Unwrap() error { return e.Cause }

// SignalError is returned when the child was terminated by a signal rather
// than exiting normally.
type SignalError struct{ Signal string }

func (e *SignalError) Error() string { return fmt.Sprintf("terminated by signal %s", e.Signal) }

// IgnoreExitStatus swallows exactly an *ExitStatusError, passing every other
// error (including nil) through unchanged.
func IgnoreExitStatus(err error) error {
	if _, ok := err.(*ExitStatusError); ok {
		return nil
	}
	return err
}

// Driver is the process-execution facade. repoRoot anchors eval_on_container
// workdir/bind-mount resolution; dockerSocket is bind-mounted into every
// container so containerized steps can themselves drive Docker.
type Driver struct {
	repoRoot     string
	dockerSocket string
}

// New builds a Driver rooted at repoRoot, the repository's working copy
// root -- eval_on_container mounts it at the same absolute path inside the
// container.
func New(repoRoot string) *Driver {
	return &Driver{
		repoRoot:     repoRoot,
		dockerSocket: "/var/run/docker.sock",
	}
}

// DetectOS runs `uname` and classifies its output per spec: "Darwin" ->
// MacOS, "Linux" -> Linux, anything containing "Windows"/"MINGW"/"MSYS"/
// "CYGWIN" -> Windows. Anything else is UnsupportedOS.
func DetectOS(ctx context.Context) (OS, error) {
	cmd := exec.CommandContext(ctx, "uname")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", derrors.Wrap(derrors.ErrCodeShell, "uname failed", err)
	}
	s := strings.TrimSpace(out.String())
	switch {
	case s == "Darwin":
		return MacOS, nil
	case s == "Linux":
		return Linux, nil
	case strings.Contains(s, "Windows"), strings.Contains(s, "MINGW"), strings.Contains(s, "MSYS"), strings.Contains(s, "CYGWIN"):
		return Windows, nil
	default:
		return "", derrors.New(derrors.ErrCodeUnsupported, fmt.Sprintf("unsupported OS reported by uname: %q", s))
	}
}

// resolveEnv turns a map of lazily-resolved Values into plain K=V pairs,
// resolving each at this single call site -- the only point in the system
// a secret is ever turned into plaintext.
func resolveEnv(env map[string]value.Value) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%s", k, v.Resolve()))
	}
	return out
}

func logCommand(ctx context.Context, label string, argv []string, dryrun bool) {
	log := logging.Logger()
	if dryrun {
		log.WithField("dryrun", true).Infof("%s: %s", label, strings.Join(argv, " "))
		return
	}
	log.Debugf("%s: %s", label, strings.Join(argv, " "))
}
