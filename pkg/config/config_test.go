package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suntomi/deplo/pkg/value"
)

func writeConfig(t *testing.T, dir, toml string) string {
	t.Helper()
	path := filepath.Join(dir, "deplo.toml")
	require.NoError(t, os.WriteFile(path, []byte(toml), 0o644))
	return path
}

func TestLoad_MinimalConfig(t *testing.T) {
	defer value.Reset()
	dir := t.TempDir()
	path := writeConfig(t, dir, `
project_name = "demo"

[jobs.hello]
command = ["echo", "hi"]
[jobs.hello.runner.container]
image = "alpine"
`)
	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "demo", s.ProjectName)

	job, ok := s.Jobs["hello"]
	require.True(t, ok)
	assert.Equal(t, []string{"echo", "hi"}, job.Command)
	assert.Equal(t, RunnerContainer, job.Runner.Kind)
	assert.Equal(t, "alpine", job.Runner.ContainerImage.Resolve())

	// deploy/integrate are reserved and auto-inserted.
	assert.Contains(t, s.Workflows, "deploy")
	assert.Contains(t, s.Workflows, "integrate")
	assert.Equal(t, WorkflowDeploy, s.Workflows["deploy"].Kind)
	assert.Equal(t, WorkflowIntegrate, s.Workflows["integrate"].Kind)
}

func TestLoad_EnvSubstitution(t *testing.T) {
	defer value.Reset()
	os.Setenv("DEPLO_TEST_REGION", "us-east-1")
	defer os.Unsetenv("DEPLO_TEST_REGION")

	dir := t.TempDir()
	path := writeConfig(t, dir, `
project_name = "demo"

[jobs.hello]
command = ["echo", "${DEPLO_TEST_REGION}"]
[jobs.hello.runner.container]
image = "alpine"
`)
	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"echo", "us-east-1"}, s.Jobs["hello"].Command)
}

func TestLoad_UndeclaredEnvLeftForSecretResolution(t *testing.T) {
	defer value.Reset()
	dir := t.TempDir()
	path := writeConfig(t, dir, `
project_name = "demo"

[secrets]
API_KEY = "DEPLO_TEST_API_KEY"

[jobs.hello]
[jobs.hello.runner.container]
image = "alpine"
[jobs.hello.env]
KEY = "${API_KEY}"
`)
	os.Setenv("DEPLO_TEST_API_KEY", "sekret")
	defer os.Unsetenv("DEPLO_TEST_API_KEY")

	s, err := Load(path)
	require.NoError(t, err)

	v := s.Jobs["hello"].Env["KEY"]
	assert.True(t, v.IsReference())
	assert.Equal(t, "<secret:API_KEY>", v.String())
	assert.Equal(t, "sekret", v.Resolve())
}

func TestLoad_Workflows(t *testing.T) {
	defer value.Reset()
	dir := t.TempDir()
	path := writeConfig(t, dir, `
project_name = "demo"

[workflows.nightly]
[workflows.nightly.schedules]
daily = "0 0 * * *"

[workflows.on_issue]
[workflows.on_issue.events]
issues = ["opened"]
`)
	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, WorkflowCron, s.Workflows["nightly"].Kind)
	assert.Equal(t, "0 0 * * *", s.Workflows["nightly"].Schedules["daily"])
	assert.Equal(t, WorkflowRepository, s.Workflows["on_issue"].Kind)
	assert.Equal(t, []string{"opened"}, s.Workflows["on_issue"].Events["issues"])
}

func TestLoad_WorkflowCardinalityViolation(t *testing.T) {
	defer value.Reset()
	dir := t.TempDir()
	path := writeConfig(t, dir, `
project_name = "demo"

[workflows.a]
[workflows.a.schedules]
x = "0 0 * * *"

[workflows.b]
[workflows.b.schedules]
y = "0 1 * * *"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_CIAndVCSAccounts(t *testing.T) {
	defer value.Reset()
	dir := t.TempDir()
	path := writeConfig(t, dir, `
project_name = "demo"

[ci.default]
type = "ghaction"
account = "my-org"

[vcs]
type = "github"
account = "my-org"
email = "ci@example.com"
`)
	s, err := Load(path)
	require.NoError(t, err)

	acc, ok := s.CIByDefault()
	require.True(t, ok)
	assert.Equal(t, CIAccountGhAction, acc.Kind)

	byEnv, ok := s.CIByEnv("ghaction")
	require.True(t, ok)
	assert.Same(t, acc, byEnv)

	require.NotNil(t, s.VCS)
	assert.Equal(t, VCSAccountGithub, s.VCS.Kind)
	assert.Equal(t, "ci@example.com", s.VCS.Email)
}

func TestLoad_ModuleSources(t *testing.T) {
	defer value.Reset()
	dir := t.TempDir()
	path := writeConfig(t, dir, `
project_name = "demo"

[modules.terraform]
std = "deplo/terraform@v1"

[modules.custom]
git = "https://example.com/custom.git"
tag = "v2"
`)
	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ModuleSourceStd, s.Modules["terraform"].Kind)
	assert.Equal(t, "std:deplo/terraform@v1", s.Modules["terraform"].Canonical())
	assert.Equal(t, ModuleSourceGit, s.Modules["custom"].Kind)
	assert.Equal(t, "git:https://example.com/custom.git@tag:v2", s.Modules["custom"].Canonical())
}

func TestLoad_MultiStepJob(t *testing.T) {
	defer value.Reset()
	dir := t.TempDir()
	path := writeConfig(t, dir, `
project_name = "demo"

[jobs.build]
[jobs.build.runner.machine]
os = "linux"

[[jobs.build.steps]]
name = "compile"
eval = "make build"

[[jobs.build.steps]]
name = "publish"
uses = "deplo/publish@v1"
[jobs.build.steps.with]
path = "dist/"
`)
	s, err := Load(path)
	require.NoError(t, err)

	steps := s.Jobs["build"].Steps
	require.Len(t, steps, 2)
	assert.Equal(t, StepEval, steps[0].Kind)
	assert.Equal(t, "make build", steps[0].Eval.Command)
	assert.Equal(t, StepModule, steps[1].Kind)
	assert.Equal(t, "deplo/publish@v1", steps[1].Uses)
}
