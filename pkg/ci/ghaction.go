package ci

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/suntomi/deplo/pkg/config"
	derrors "github.com/suntomi/deplo/pkg/errors"
	"github.com/suntomi/deplo/pkg/output"
	"github.com/suntomi/deplo/pkg/workflow"
)

const ghActionYAMLPath = ".github/workflows/deplo-main.yml"

// GhAction is the GitHub Actions CIProvider implementation.
type GhAction struct {
	Store      *config.Store
	Account    *config.CIAccount
	Owner      string
	Repo       string
	Workdir    string
	HTTPClient *http.Client

	// APIBase overrides the GitHub API host; empty means ghAPIBase. Exposed
	// for tests that point at an httptest server instead of api.github.com.
	APIBase string

	matcher *workflow.Matcher
	bus     *output.Bus
	token   cachedToken
}

// NewGhAction builds a GhAction provider. releaseTarget resolves the active
// release target for Deploy/Integrate matches (delegated to pkg/vcs,
// injected by the caller so this package stays free of a VCS dependency).
func NewGhAction(store *config.Store, account *config.CIAccount, owner, repo, workdir string, releaseTarget workflow.ReleaseTargetResolver) *GhAction {
	return &GhAction{
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

func (g *GhAction) Prepare(ctx context.Context, reinit bool) error {
	return nil
}

func (g *GhAction) GenerateConfig(ctx context.Context, reinit bool) error {
	path := filepath.Join(g.Workdir, ghActionYAMLPath)
	if !reinit {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return derrors.Wrap(derrors.ErrCodeCIProvider, "failed to create workflow directory", err)
	}
	data := generateGhActionYAML(g.Store)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return derrors.Wrap(derrors.ErrCodeCIProvider, "failed to write deplo-main.yml", err)
	}
	return nil
}

func (g *GhAction) FilterWorkflows(ctx context.Context, trigger string) ([]workflow.WorkflowRun, error) {
	return g.matcher.Match(trigger)
}

// RunJob implements the remote-dispatch protocol (spec.md §4.5):
// POST dispatches, then polls recent repository_dispatch runs until the
// first job's name contains job_id, or 12 one-second polls elapse.
func (g *GhAction) RunJob(ctx context.Context, run workflow.WorkflowRun) (string, error) {
	jobID, err := randomHex16()
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(run)
	if err != nil {
		return "", derrors.Wrap(derrors.ErrCodeCIProvider, "failed to encode dispatch payload", err)
	}
	var rawPayload json.RawMessage = payload

	body := map[string]interface{}{
		"event_type": "deplo-run-remote-job",
		"client_payload": map[string]interface{}{
			"job_id":     jobID,
			"job_config": rawPayload,
		},
	}
	if err := g.post(ctx, fmt.Sprintf("/repos/%s/%s/dispatches", g.Owner, g.Repo), body, nil); err != nil {
		return "", derrors.CIProviderError("github-actions", "dispatch", err)
	}

	runID, err := g.pollForDispatchedRun(ctx, jobID)
	if err != nil {
		return "", err
	}
	return runID, nil
}

func (g *GhAction) pollForDispatchedRun(ctx context.Context, jobID string) (string, error) {
	since := time.Now().Add(-1 * time.Minute).UTC().Format(time.RFC3339)
	url := fmt.Sprintf("/repos/%s/%s/actions/runs?event=repository_dispatch&created=%%3E%s", g.Owner, g.Repo, since)

	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(pollInterval), pollMaxAttempts-1)
	var found string

	operation := func() error {
		var resp struct {
			WorkflowRuns []struct {
				ID      int64  `json:"id"`
				JobsURL string `json:"jobs_url"`
			} `json:"workflow_runs"`
		}
		if err := g.get(ctx, url, &resp); err != nil {
			return backoff.Permanent(derrors.CIProviderError("github-actions", "poll runs", err))
		}
		for _, run := range resp.WorkflowRuns {
			var jobsResp struct {
				Jobs []struct {
					Name string `json:"name"`
				} `json:"jobs"`
			}
			if err := g.get(ctx, run.JobsURL, &jobsResp); err != nil {
				continue
			}
			if len(jobsResp.Jobs) > 0 && strings.Contains(jobsResp.Jobs[0].Name, jobID) {
				found = fmt.Sprintf("%d", run.ID)
				return nil
			}
		}
		return fmt.Errorf("no matching run yet for job_id %s", jobID)
	}

	if err := backoff.Retry(operation, bo); err != nil {
		return "", derrors.CIProviderError("github-actions", "correlate dispatched run", err)
	}
	return found, nil
}

// CancelJob lists repository_dispatch runs created in the last hour (the
// same listing pollForDispatchedRun uses, over a wider window than its one
// minute) and POSTs a cancel for every in-progress or queued run whose first
// job name contains jobName.
func (g *GhAction) CancelJob(ctx context.Context, jobName string) error {
	since := time.Now().Add(-1 * time.Hour).UTC().Format(time.RFC3339)
	url := fmt.Sprintf("/repos/%s/%s/actions/runs?event=repository_dispatch&created=%%3E%s", g.Owner, g.Repo, since)

	var resp struct {
		WorkflowRuns []struct {
			ID      int64  `json:"id"`
			Status  string `json:"status"`
			JobsURL string `json:"jobs_url"`
		} `json:"workflow_runs"`
	}
	if err := g.get(ctx, url, &resp); err != nil {
		return derrors.CIProviderError("github-actions", "list runs for cancel", err)
	}

	for _, run := range resp.WorkflowRuns {
		if run.Status != "in_progress" && run.Status != "queued" {
			continue
		}
		var jobsResp struct {
			Jobs []struct {
				Name string `json:"name"`
			} `json:"jobs"`
		}
		if err := g.get(ctx, run.JobsURL, &jobsResp); err != nil {
			continue
		}
		if len(jobsResp.Jobs) == 0 || !strings.Contains(jobsResp.Jobs[0].Name, jobName) {
			continue
		}
		cancelPath := fmt.Sprintf("/repos/%s/%s/actions/runs/%d/cancel", g.Owner, g.Repo, run.ID)
		if err := g.post(ctx, cancelPath, nil, nil); err != nil {
			return derrors.CIProviderError("github-actions", "cancel run", err)
		}
	}
	return nil
}

func (g *GhAction) CheckJobFinished(ctx context.Context, runID string) (*RunStatus, error) {
	var resp struct {
		Status     string `json:"status"`
		Conclusion string `json:"conclusion"`
	}
	if err := g.get(ctx, fmt.Sprintf("/repos/%s/%s/actions/runs/%s", g.Owner, g.Repo, runID), &resp); err != nil {
		return nil, derrors.CIProviderError("github-actions", "check run status", err)
	}
	if resp.Status != "completed" {
		return nil, nil
	}
	status := RunFailed
	if resp.Conclusion == "success" {
		status = RunSucceeded
	}
	return &status, nil
}

func (g *GhAction) ScheduleJob(name string) error {
	return nil
}

func (g *GhAction) MarkNeedCleanup(name string) error {
	return g.bus.SetOutput("need-cleanup", "true")
}

func (g *GhAction) SetSecret(ctx context.Context, key, value string) error {
	var pubKey struct {
		KeyID string `json:"key_id"`
		Key   string `json:"key"`
	}
	if err := g.get(ctx, fmt.Sprintf("/repos/%s/%s/actions/secrets/public-key", g.Owner, g.Repo), &pubKey); err != nil {
		return derrors.CIProviderError("github-actions", "fetch secrets public key", err)
	}

	decoded, err := decodeBase64(pubKey.Key)
	if err != nil {
		return derrors.Wrap(derrors.ErrCodeCIProvider, "invalid secrets public key", err)
	}
	var rawKey [32]byte
	copy(rawKey[:], decoded)

	sealed, err := sealSecret(rawKey, value)
	if err != nil {
		return err
	}

	body := map[string]interface{}{
		"encrypted_value": encodeBase64(sealed),
		"key_id":          pubKey.KeyID,
	}
	if err := g.put(ctx, fmt.Sprintf("/repos/%s/%s/actions/secrets/%s", g.Owner, g.Repo, key), body); err != nil {
		return derrors.CIProviderError("github-actions", "set secret", err)
	}
	return nil
}

func (g *GhAction) ListSecretNames(ctx context.Context) ([]string, error) {
	var resp struct {
		Secrets []struct {
			Name string `json:"name"`
		} `json:"secrets"`
	}
	if err := g.get(ctx, fmt.Sprintf("/repos/%s/%s/actions/secrets", g.Owner, g.Repo), &resp); err != nil {
		return nil, derrors.CIProviderError("github-actions", "list secrets", err)
	}
	names := make([]string, len(resp.Secrets))
	for i, s := range resp.Secrets {
		names[i] = s.Name
	}
	return names, nil
}

func (g *GhAction) JobOutput(job, key string, kind output.Kind) (string, error) {
	return output.GetOutput(g.Workdir, os.Getenv("DEPLO_JOB_CURRENT_NAME"), job, key, kind)
}

func (g *GhAction) SetJobOutput(key, value string) error {
	return g.bus.SetOutput(key, value)
}

// PublishOutput flushes the scratch-file outputs of kind for the current
// job. On a hosted runner it writes step outputs through setGhActionOutput
// (picked up by the `outputs:` block of the generated job YAML); off the
// runner it sets the DEPLO_JOB_<KIND>_OUTPUT_<job> env var a sibling
// process's JobOutput call reads. Re-reads DEPLO_JOB_CURRENT_NAME rather than
// g.bus's value cached at provider construction, since a single `deplo
// start` process runs every job of a workflow in turn and sets that env var
// fresh before each one.
func (g *GhAction) PublishOutput(kind output.Kind) error {
	bus := output.New(g.Workdir, os.Getenv("DEPLO_JOB_CURRENT_NAME"))
	return bus.Publish(g.RunsOnService(), kind, setGhActionOutput)
}

// setGhActionOutput writes a single step output. $GITHUB_OUTPUT is the
// current GitHub Actions mechanism (append a "key<<DEPLO_EOF\nvalue\nDEPLO_EOF\n"
// block to the file named by that env var); `::set-output` is the deprecated workflow command kept
// as a fallback for runners that still only support it.
func setGhActionOutput(key, value string) {
	if path := os.Getenv("GITHUB_OUTPUT"); path != "" {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%s<<DEPLO_EOF\n%s\nDEPLO_EOF\n", key, value)
			f.Close()
			return
		}
	}
	fmt.Printf("::set-output name=%s::%s\n", key, value)
}

func (g *GhAction) ProcessEnv() map[string]string {
	env := map[string]string{}
	for _, k := range []string{"GITHUB_RUN_ID", "GITHUB_JOB", "GITHUB_REF", "GITHUB_SHA", "GITHUB_EVENT_NAME"} {
		if v, ok := os.LookupEnv(k); ok {
			env[k] = v
		}
	}
	return env
}

func (g *GhAction) OverwriteCommit() (string, string, bool) {
	if g.Account == nil {
		return "", "", false
	}
	return "deplo-bot", "deplo-bot@users.noreply.github.com", true
}

func (g *GhAction) PRURLFromEnv() (string, bool) {
	ref := os.Getenv("GITHUB_REF")
	if !strings.HasPrefix(ref, "refs/pull/") {
		return "", false
	}
	number := strings.TrimSuffix(strings.TrimPrefix(ref, "refs/pull/"), "/merge")
	return fmt.Sprintf("https://github.com/%s/%s/pull/%s", g.Owner, g.Repo, number), true
}

func (g *GhAction) GenerateToken(ctx context.Context, cfg TokenConfig) (string, error) {
	if cfg.Kind == TokenUser {
		if g.Account != nil {
			return g.Account.Key.Resolve(), nil
		}
		return "", derrors.New(derrors.ErrCodeCIProvider, "no PAT configured")
	}

	if tok, ok := g.token.get(); ok {
		return tok, nil
	}

	appJWT, err := mintAppJWT(cfg.AppID, cfg.PrivateKey)
	if err != nil {
		return "", err
	}

	var installation struct {
		ID int64 `json:"id"`
	}
	if err := g.getWithAuth(ctx, fmt.Sprintf("/repos/%s/%s/installation", cfg.Owner, cfg.Repo), "Bearer "+appJWT, &installation); err != nil {
		return "", derrors.CIProviderError("github-actions", "resolve app installation", err)
	}

	var minted struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := g.postWithAuth(ctx, fmt.Sprintf("/app/installations/%d/access_tokens", installation.ID), "Bearer "+appJWT, nil, &minted); err != nil {
		return "", derrors.CIProviderError("github-actions", "mint installation token", err)
	}

	g.token.set(minted.Token, minted.ExpiresAt)
	return minted.Token, nil
}

func (g *GhAction) RunsOnService() bool {
	return os.Getenv("GITHUB_ACTIONS") == "true"
}

const ghAPIBase = "https://api.github.com"

func (g *GhAction) authHeader() string {
	if g.Account == nil {
		return ""
	}
	return "token " + g.Account.Key.Resolve()
}

func (g *GhAction) get(ctx context.Context, path string, out interface{}) error {
	return g.getWithAuth(ctx, path, g.authHeader(), out)
}

func (g *GhAction) getWithAuth(ctx context.Context, path, auth string, out interface{}) error {
	return g.do(ctx, http.MethodGet, path, auth, nil, out)
}

func (g *GhAction) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	return g.postWithAuth(ctx, path, g.authHeader(), body, out)
}

func (g *GhAction) postWithAuth(ctx context.Context, path, auth string, body interface{}, out interface{}) error {
	return g.do(ctx, http.MethodPost, path, auth, body, out)
}

func (g *GhAction) put(ctx context.Context, path string, body interface{}) error {
	return g.do(ctx, http.MethodPut, path, g.authHeader(), body, nil)
}

func (g *GhAction) do(ctx context.Context, method, path, auth string, body interface{}, out interface{}) error {
	url := path
	if !strings.HasPrefix(path, "http") {
		base := g.APIBase
		if base == "" {
			base = ghAPIBase
		}
		url = base + path
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(data))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func randomHex16() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", derrors.Wrap(derrors.ErrCodeCIProvider, "failed to generate job id", err)
	}
	return hex.EncodeToString(buf), nil
}
