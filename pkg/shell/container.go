package shell

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"

	derrors "github.com/suntomi/deplo/pkg/errors"
	"github.com/suntomi/deplo/pkg/value"
)

// EvalOnContainer runs code inside a one-shot `docker run --rm` container.
// The workdir is the repository root (or cwd resolved relative to it); the
// host docker socket and the repository root are always bind-mounted at
// their own paths, with the caller's mounts appended; env is forwarded as
// -e K=V; the command becomes "<shellBin> -c <code>".
func (d *Driver) EvalOnContainer(ctx context.Context, image_ string, code string, shellBin string, env map[string]value.Value, cwd string, mounts []Mount, settings Settings) (*Result, error) {
	if shellBin == "" {
		shellBin = "sh"
	}
	workdir := d.containerWorkdir(cwd)
	argv := []string{"docker", "run", "--rm", image_, shellBin, "-c", code}
	logCommand(ctx, "eval_on_container", argv, settings.Dryrun)
	if settings.Dryrun {
		return &Result{}, nil
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, derrors.Wrap(derrors.ErrCodeShell, "failed to create docker client", err)
	}
	defer cli.Close()

	if err := d.pullIfMissing(ctx, cli, image_); err != nil {
		return nil, err
	}

	binds := d.binds(cwd, mounts)
	cfg := &container.Config{
		Image:        image_,
		Cmd:          []string{shellBin, "-c", code},
		Env:          resolveEnv(env),
		WorkingDir:   workdir,
		AttachStdout: true,
		AttachStderr: true,
	}
	hostCfg := &container.HostConfig{Binds: binds}

	resp, err := cli.ContainerCreate(ctx, cfg, hostCfg, &network.NetworkingConfig{}, nil, "")
	if err != nil {
		return nil, derrors.Wrap(derrors.ErrCodeShell, "failed to create container", err)
	}
	defer cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})

	if err := cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, derrors.Wrap(derrors.ErrCodeShell, "failed to start container", err)
	}

	statusCh, errCh := cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	var exitCode int
	select {
	case err := <-errCh:
		if err != nil {
			return nil, &IOStreamError{Cause: err}
		}
	case status := <-statusCh:
		exitCode = int(status.StatusCode)
	case <-ctx.Done():
		return nil, &IOStreamError{Cause: ctx.Err()}
	}

	var stdout, stderr bytes.Buffer
	if settings.CaptureStdout || settings.CaptureStderr || exitCode != 0 {
		logs, err := cli.ContainerLogs(ctx, resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
		if err == nil {
			defer logs.Close()
			data, _ := io.ReadAll(logs)
			// Container logs are combined; the exit-status path needs
			// something to show the caller, stdout capture is best-effort.
			stdout.Write(data)
			stderr.Write(data)
		}
	}

	if exitCode != 0 {
		return nil, &ExitStatusError{Code: exitCode, Stderr: stderr.String()}
	}

	return &Result{Stdout: stdout.String(), Stderr: "", ExitCode: 0}, nil
}

func (d *Driver) containerWorkdir(cwd string) string {
	if cwd == "" {
		return d.repoRoot
	}
	if filepath.IsAbs(cwd) {
		return cwd
	}
	return filepath.Join(d.repoRoot, cwd)
}

func (d *Driver) binds(cwd string, mounts []Mount) []string {
	binds := []string{
		fmt.Sprintf("%s:%s", d.dockerSocket, d.dockerSocket),
		fmt.Sprintf("%s:%s", d.repoRoot, d.repoRoot),
	}
	for _, m := range mounts {
		b := fmt.Sprintf("%s:%s", m.Source, m.Target)
		if m.ReadOnly {
			b += ":ro"
		}
		binds = append(binds, b)
	}
	return binds
}

func (d *Driver) pullIfMissing(ctx context.Context, cli *client.Client, imageName string) error {
	if _, _, err := cli.ImageInspectWithRaw(ctx, imageName); err == nil {
		return nil
	}
	reader, err := cli.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return derrors.Wrap(derrors.ErrCodeShell, fmt.Sprintf("failed to pull image %s", imageName), err)
	}
	defer reader.Close()
	_, _ = io.Copy(io.Discard, reader)
	return nil
}
