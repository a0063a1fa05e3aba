package job

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	derrors "github.com/suntomi/deplo/pkg/errors"
	"github.com/suntomi/deplo/pkg/shell"
	"github.com/suntomi/deplo/pkg/value"
)

// releaseBase is the host serving Deplo CLI release binaries, matching the
// convention spec.md §4.7 names: "https://<release-base>/<version>/deplo-<uname>[.exe]".
const releaseBase = "get.deplo.dev"

// BuildFallbackImage runs `docker build` for a job's local_fallback source,
// tagging it `repo_name:job_name` when repo_name is set, else
// `<project>-deplo-local-fallback:<job_name>` (spec.md §4.7).
func BuildFallbackImage(ctx context.Context, driver *shell.Driver, projectName, jobName, dockerfile, repoName string, buildArgs map[string]value.Value, contextDir string, settings shell.Settings) (string, error) {
	tag := fmt.Sprintf("%s-deplo-local-fallback:%s", projectName, jobName)
	if repoName != "" {
		tag = fmt.Sprintf("%s:%s", repoName, jobName)
	}

	argv := []string{"docker", "build", "-t", tag, "-f", dockerfile}
	for k, v := range buildArgs {
		argv = append(argv, "--build-arg", fmt.Sprintf("%s=%s", k, v.Resolve()))
	}
	argv = append(argv, contextDir)

	if _, err := driver.Exec(ctx, argv, nil, contextDir, settings); err != nil {
		return "", derrors.Wrap(derrors.ErrCodeShell, "failed to build local fallback image", err)
	}
	return tag, nil
}

// BootstrapCLIBinary stages the Deplo CLI for targetOS in
// <dataDir>/cli/<version>/<UNAME>/deplo[.exe] and returns that host path for
// the caller to bind-mount at /usr/local/bin/deplo inside the container.
// debugPaths (DEPLO_DEBUG_CLI_BIN_PATHS) lets a test or local dev override
// the download with a precomputed binary path.
func BootstrapCLIBinary(ctx context.Context, dataDir, version string, targetOS shell.OS, debugPaths map[string]string) (string, error) {
	uname, ext := unameFor(targetOS)
	if path, ok := debugPaths[string(targetOS)]; ok {
		return path, nil
	}

	dest := filepath.Join(dataDir, "cli", version, uname, "deplo"+ext)
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	url := fmt.Sprintf("https://%s/%s/deplo-%s%s", releaseBase, version, uname, ext)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", derrors.Wrap(derrors.ErrCodeShell, "failed to download deplo CLI binary", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", derrors.New(derrors.ErrCodeShell, fmt.Sprintf("deplo CLI download failed with status %d", resp.StatusCode))
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", derrors.Wrap(derrors.ErrCodeShell, "failed to create CLI bootstrap dir", err)
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return "", derrors.Wrap(derrors.ErrCodeShell, "failed to create CLI bootstrap file", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return "", derrors.Wrap(derrors.ErrCodeShell, "failed to write CLI bootstrap file", err)
	}
	return dest, nil
}

func unameFor(os_ shell.OS) (uname, ext string) {
	switch os_ {
	case shell.Windows:
		return "Windows", ".exe"
	case shell.MacOS:
		return "Darwin", ""
	default:
		return "Linux", ""
	}
}

// multiStepContainerCommand is what a multi-step job's container venue runs
// instead of the job's own command, letting StepSequencer drive the steps
// from inside the container against the same serialized WorkflowRun (§4.7
// "the container runs `deplo job run-steps <job-name> -p '<json>'`").
func multiStepContainerCommand(jobName, runJSON string) []string {
	return []string{"deplo", "job", "run-steps", jobName, "-p", runJSON}
}
