package shell

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/suntomi/deplo/pkg/value"
)

// Exec runs argv[0] with argv[1:] as arguments -- no shell interpretation.
func (d *Driver) Exec(ctx context.Context, argv []string, env map[string]value.Value, cwd string, settings Settings) (*Result, error) {
	logCommand(ctx, "exec", argv, settings.Dryrun)
	if settings.Dryrun {
		return &Result{}, nil
	}
	if len(argv) == 0 {
		return nil, &SpawnError{Cause: errNoCommand}
	}
	return d.run(ctx, argv[0], argv[1:], env, cwd, settings)
}

// Eval runs code through a shell (defaulting to "sh" when shell is empty).
func (d *Driver) Eval(ctx context.Context, code string, shellBin string, env map[string]value.Value, cwd string, settings Settings) (*Result, error) {
	if shellBin == "" {
		shellBin = "sh"
	}
	argv := []string{shellBin, "-c", code}
	logCommand(ctx, "eval", argv, settings.Dryrun)
	if settings.Dryrun {
		return &Result{}, nil
	}
	return d.run(ctx, shellBin, []string{"-c", code}, env, cwd, settings)
}

// OutputOf runs argv and returns its trimmed stdout -- a thin Exec wrapper
// that always captures stdout regardless of the caller's settings.
func (d *Driver) OutputOf(ctx context.Context, argv []string, env map[string]value.Value, cwd string) (string, error) {
	settings := Settings{CaptureStdout: true, CaptureStderr: true}
	res, err := d.Exec(ctx, argv, env, cwd, settings)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

func (d *Driver) run(ctx context.Context, name string, args []string, env map[string]value.Value, cwd string, settings Settings) (*Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = cwd

	procEnv := os.Environ()
	if len(settings.Paths) > 0 {
		procEnv = prependPath(procEnv, settings.Paths)
	}
	procEnv = append(procEnv, resolveEnv(env)...)
	cmd.Env = procEnv

	var stdout, stderr bytes.Buffer
	if settings.Interactive {
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	} else {
		if settings.CaptureStdout {
			cmd.Stdout = &stdout
		}
		if settings.CaptureStderr {
			cmd.Stderr = &stderr
		}
	}

	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Cause: err}
	}

	err := cmd.Wait()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			// On Unix, ExitCode() reports -1 when the process was
			// terminated by a signal rather than exiting normally.
			if exitErr.ExitCode() == -1 {
				return nil, &SignalError{Signal: exitErr.String()}
			}
			return nil, &ExitStatusError{Code: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return nil, &IOStreamError{Cause: err}
	}

	return &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}, nil
}

func prependPath(env []string, extra []string) []string {
	prefix := strings.Join(extra, string(os.PathListSeparator))
	out := make([]string, 0, len(env))
	found := false
	for _, e := range env {
		if strings.HasPrefix(e, "PATH=") {
			found = true
			out = append(out, "PATH="+prefix+string(os.PathListSeparator)+e[len("PATH="):])
			continue
		}
		out = append(out, e)
	}
	if !found {
		out = append(out, "PATH="+prefix)
	}
	return out
}

var errNoCommand = &emptyCommandError{}

type emptyCommandError struct{}

func (e *emptyCommandError) Error() string { return "command is required" }
