package ci

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/suntomi/deplo/pkg/config"
	derrors "github.com/suntomi/deplo/pkg/errors"
	"github.com/suntomi/deplo/pkg/output"
	"github.com/suntomi/deplo/pkg/workflow"
)

const circleCIYAMLPath = ".circleci/config.yml"
const circleCIAPIBase = "https://circleci.com/api/v2"

// CircleCI is the CircleCI CIProvider implementation. Remote dispatch isn't
// implemented by the upstream original either (spec.md §4.5: "run_job not
// yet implemented (returns empty run-id)") -- CircleCI jobs always run
// where CircleCI itself schedules them, so Deplo only ever drives them
// locally or lets CircleCI's own `requires` DAG do the scheduling.
type CircleCI struct {
	Store      *config.Store
	Account    *config.CIAccount
	Owner      string
	Repo       string
	Workdir    string
	HTTPClient *http.Client

	matcher *workflow.Matcher
	bus     *output.Bus
}

func NewCircleCI(store *config.Store, account *config.CIAccount, owner, repo, workdir string, releaseTarget workflow.ReleaseTargetResolver) *CircleCI {
	return &CircleCI{
		Store:      store,
		Account:    account,
		Owner:      owner,
		Repo:       repo,
		Workdir:    workdir,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		matcher:    workflow.New(store, releaseTarget),
		bus:        output.New(workdir, os.Getenv("DEPLO_JOB_CURRENT_NAME")),
	}
}

func (c *CircleCI) Prepare(ctx context.Context, reinit bool) error { return nil }

func (c *CircleCI) GenerateConfig(ctx context.Context, reinit bool) error {
	path := filepath.Join(c.Workdir, circleCIYAMLPath)
	if !reinit {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return derrors.Wrap(derrors.ErrCodeCIProvider, "failed to create .circleci directory", err)
	}
	data := generateCircleCIYAML(c.Store)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return derrors.Wrap(derrors.ErrCodeCIProvider, "failed to write config.yml", err)
	}
	return nil
}

func (c *CircleCI) FilterWorkflows(ctx context.Context, trigger string) ([]workflow.WorkflowRun, error) {
	return c.matcher.Match(trigger)
}

// RunJob is not implemented for CircleCI -- returns an empty run id, matching
// the upstream behavior spec.md §4.5 calls out explicitly.
func (c *CircleCI) RunJob(ctx context.Context, run workflow.WorkflowRun) (string, error) {
	return "", nil
}

func (c *CircleCI) CheckJobFinished(ctx context.Context, runID string) (*RunStatus, error) {
	if runID == "" {
		status := RunSucceeded
		return &status, nil
	}
	return nil, derrors.New(derrors.ErrCodeUnsupported, "circleci run correlation is not implemented")
}

// CancelJob is not implemented for CircleCI, matching RunJob's unimplemented
// remote-dispatch story -- there is no Deplo-dispatched run id to cancel.
func (c *CircleCI) CancelJob(ctx context.Context, jobName string) error {
	return derrors.New(derrors.ErrCodeUnsupported, "circleci job cancellation is not implemented")
}

func (c *CircleCI) ScheduleJob(name string) error { return nil }

func (c *CircleCI) MarkNeedCleanup(name string) error {
	return c.bus.SetOutput("need-cleanup", "true")
}

// SetSecret uses POST /api/v2/project/gh/{o}/{r}/envvar (spec.md §4.5).
func (c *CircleCI) SetSecret(ctx context.Context, key, value string) error {
	body := map[string]string{"name": key, "value": value}
	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/project/gh/%s/%s/envvar", circleCIAPIBase, c.Owner, c.Repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Circle-Token", c.token())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return derrors.CIProviderError("circleci", "set secret", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return derrors.CIProviderError("circleci", "set secret", fmt.Errorf("status %d: %s", resp.StatusCode, string(data)))
	}
	return nil
}

func (c *CircleCI) ListSecretNames(ctx context.Context) ([]string, error) {
	url := fmt.Sprintf("%s/project/gh/%s/%s/envvar", circleCIAPIBase, c.Owner, c.Repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Circle-Token", c.token())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, derrors.CIProviderError("circleci", "list secrets", err)
	}
	defer resp.Body.Close()

	var decoded struct {
		Items []struct {
			Name string `json:"name"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, derrors.CIProviderError("circleci", "list secrets", err)
	}
	names := make([]string, len(decoded.Items))
	for i, item := range decoded.Items {
		names[i] = item.Name
	}
	return names, nil
}

func (c *CircleCI) JobOutput(job, key string, kind output.Kind) (string, error) {
	return output.GetOutput(c.Workdir, os.Getenv("DEPLO_JOB_CURRENT_NAME"), job, key, kind)
}

func (c *CircleCI) SetJobOutput(key, value string) error {
	return c.bus.SetOutput(key, value)
}

// PublishOutput always publishes through the off-CI env-var channel.
// CircleCI config.yml has no per-step "outputs:" declaration like GitHub
// Actions -- cross-job data there goes through persist_to_workspace, which
// is out of scope -- so there is no onCI wire to write to even when
// RunsOnService is true. Re-reads DEPLO_JOB_CURRENT_NAME for the same reason
// GhAction.PublishOutput does: one process can run every job of a workflow.
func (c *CircleCI) PublishOutput(kind output.Kind) error {
	bus := output.New(c.Workdir, os.Getenv("DEPLO_JOB_CURRENT_NAME"))
	return bus.Publish(false, kind, nil)
}

func (c *CircleCI) ProcessEnv() map[string]string {
	env := map[string]string{}
	for _, k := range []string{"CIRCLE_BUILD_NUM", "CIRCLE_JOB", "CIRCLE_BRANCH", "CIRCLE_SHA1"} {
		if v, ok := os.LookupEnv(k); ok {
			env[k] = v
		}
	}
	return env
}

func (c *CircleCI) OverwriteCommit() (string, string, bool) {
	return "", "", false
}

func (c *CircleCI) PRURLFromEnv() (string, bool) {
	if v, ok := os.LookupEnv("CIRCLE_PULL_REQUEST"); ok {
		return v, true
	}
	return "", false
}

// GenerateToken is a pass-through: CircleCI has no GitHub-App-style token
// minting, only a single project API token.
func (c *CircleCI) GenerateToken(ctx context.Context, cfg TokenConfig) (string, error) {
	return c.token(), nil
}

func (c *CircleCI) RunsOnService() bool {
	return os.Getenv("CIRCLECI") == "true"
}

func (c *CircleCI) token() string {
	if c.Account == nil {
		return ""
	}
	return c.Account.Key.Resolve()
}
