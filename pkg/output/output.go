// Package output implements the OutputBus (C9): per-job user/system output
// persisted to a scratch file during execution, published to the CI
// provider (or a process env var, off-CI) at job end, and read back by
// sibling jobs via that same env-var path.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	derrors "github.com/suntomi/deplo/pkg/errors"
)

// Kind distinguishes user-set outputs from runner-recorded metadata.
type Kind string

const (
	// KindUser is set by a job's own steps via `deplo job set-output`.
	KindUser Kind = "USER"
	// KindSystem is set by the runner itself (e.g. COMMIT_BRANCH).
	KindSystem Kind = "SYSTEM"
)

const scratchFileName = "deplo-tmp-job-output.json"

// Bus is the per-process OutputBus. One Bus exists per job invocation; its
// scratch file is a single-writer-per-process artifact (spec.md §5).
type Bus struct {
	workdir     string
	currentJob  string
	mu          sync.Mutex
}

// New builds a Bus for the job named currentJob, scoped to workdir.
func New(workdir, currentJob string) *Bus {
	return &Bus{workdir: workdir, currentJob: currentJob}
}

func (b *Bus) scratchPath() string {
	return filepath.Join(b.workdir, scratchFileName)
}

// SetOutput records k=v for the current job in the scratch file, read-
// modify-write per call.
func (b *Bus) SetOutput(k, v string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := b.readScratch()
	if err != nil {
		return err
	}
	data[k] = v
	return b.writeScratch(data)
}

// GetOutput reads key k for job. If job equals the current job, reads from
// the scratch file; otherwise it reads the sibling job's published env var.
func GetOutput(workdir, requestingJob, job, key string, kind Kind) (string, error) {
	if job == requestingJob {
		b := New(workdir, requestingJob)
		data, err := b.readScratch()
		if err != nil {
			return "", err
		}
		return data[key], nil
	}
	envVar := envVarName(kind, job)
	raw, ok := os.LookupEnv(envVar)
	if !ok {
		return "", nil
	}
	var data map[string]string
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return "", derrors.OutputError(fmt.Sprintf("malformed output env var %s", envVar), err)
	}
	return data[key], nil
}

// Publish is called at post-run time: on CI it's the caller's job to invoke
// the provider's stdio protocol per entry; off-CI, Publish sets the process
// env var DEPLO_JOB_<KIND>_OUTPUT_<JOB> so sibling-local jobs in the same
// invocation see it.
func (b *Bus) Publish(onCI bool, kind Kind, setCI func(k, v string)) error {
	b.mu.Lock()
	data, err := b.readScratch()
	b.mu.Unlock()
	if err != nil {
		return err
	}
	if onCI {
		if setCI != nil {
			for k, v := range data {
				setCI(k, v)
			}
		}
		return nil
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return derrors.OutputError("failed to encode outputs", err)
	}
	os.Setenv(envVarName(kind, b.currentJob), string(encoded))
	return nil
}

func (b *Bus) readScratch() (map[string]string, error) {
	raw, err := os.ReadFile(b.scratchPath())
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		// A read failure is treated as empty, per spec.md §7 OutputError.
		return map[string]string{}, nil
	}
	var data map[string]string
	if err := json.Unmarshal(raw, &data); err != nil {
		return map[string]string{}, nil
	}
	return data, nil
}

func (b *Bus) writeScratch(data map[string]string) error {
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return derrors.OutputError("failed to encode scratch output", err)
	}
	if err := os.WriteFile(b.scratchPath(), encoded, 0o644); err != nil {
		return derrors.OutputError("failed to write scratch output", err)
	}
	return nil
}

// envVarName builds DEPLO_JOB_<KIND>_OUTPUT_<JOBNAME> -- job name upper-
// cased, dashes replaced with underscores.
func envVarName(kind Kind, job string) string {
	name := strings.ToUpper(strings.ReplaceAll(job, "-", "_"))
	return fmt.Sprintf("DEPLO_JOB_%s_OUTPUT_%s", kind, name)
}
