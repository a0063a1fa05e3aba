package config

import (
	"fmt"

	derrors "github.com/suntomi/deplo/pkg/errors"
	"github.com/suntomi/deplo/pkg/secretstore"
	"github.com/suntomi/deplo/pkg/value"
)

func stringField(tbl map[string]interface{}, key, def string) string {
	if v, ok := tbl[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

func boolField(tbl map[string]interface{}, key string, def bool) bool {
	if v, ok := tbl[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

func valueField(tbl map[string]interface{}, key string) value.Value {
	if v, ok := tbl[key]; ok {
		if s, ok := v.(string); ok {
			return value.New(s)
		}
	}
	return value.NewLiteral("")
}

func stringSlice(v interface{}) []string {
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func anyValueMap(v interface{}) map[string]value.AnyValue {
	tbl, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	out := make(map[string]value.AnyValue, len(tbl))
	for k, e := range tbl {
		out[k] = value.NewAny(e)
	}
	return out
}

func valueMap(v interface{}) map[string]value.Value {
	tbl, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	out := make(map[string]value.Value, len(tbl))
	for k, e := range tbl {
		if s, ok := e.(string); ok {
			out[k] = value.New(s)
		} else {
			out[k] = value.New(fmt.Sprintf("%v", e))
		}
	}
	return out
}

// parseDeclaration decodes a secrets/vars entry into its backend
// declaration. A bare string is shorthand for an env backend sourced from
// that name; a table lets the author pick file/dotenv backends and (for
// secrets) restrict CI sealing targets.
func parseDeclaration(v interface{}) (secretstore.Declaration, []string) {
	if s, ok := v.(string); ok {
		return secretstore.Declaration{Backend: secretstore.BackendEnv, Env: s}, nil
	}
	tbl, ok := v.(map[string]interface{})
	if !ok {
		return secretstore.Declaration{Backend: secretstore.BackendEnv}, nil
	}
	decl := secretstore.Declaration{
		Env:        stringField(tbl, "env", ""),
		Path:       stringField(tbl, "path", ""),
		DotenvPath: stringField(tbl, "dotenv", ""),
	}
	switch stringField(tbl, "backend", "env") {
	case "file":
		decl.Backend = secretstore.BackendFile
	case "dotenv":
		decl.Backend = secretstore.BackendDotenv
	default:
		decl.Backend = secretstore.BackendEnv
	}
	targets := stringSlice(tbl["targets"])
	return decl, targets
}

func parseJob(name string, tbl map[string]interface{}) (*Job, error) {
	job := &Job{
		Name:     name,
		Account:  stringField(tbl, "account", ""),
		Workdir:  stringField(tbl, "workdir", ""),
		Shell:    stringField(tbl, "shell", ""),
		Checkout: boolField(tbl, "checkout", true),
		On:       stringSlice(tbl["on"]),
		Depends:  stringSlice(tbl["depends"]),
		Env:      valueMap(tbl["env"]),
		Options:  anyValueMap(tbl["options"]),
	}

	runner, err := parseRunner(tbl["runner"])
	if err != nil {
		return nil, derrors.Wrap(derrors.ErrCodeConfig, fmt.Sprintf("jobs.%s.runner", name), err)
	}
	job.Runner = runner

	if caches, ok := tbl["caches"].([]interface{}); ok {
		for _, c := range caches {
			ctbl, _ := c.(map[string]interface{})
			job.Caches = append(job.Caches, Cache{
				Path: stringField(ctbl, "path", ""),
				Key:  stringField(ctbl, "key", ""),
			})
		}
	}

	if commits, ok := tbl["commits"].([]interface{}); ok {
		for _, c := range commits {
			ctbl, _ := c.(map[string]interface{})
			job.Commits = append(job.Commits, parseCommit(ctbl))
		}
	}

	if tasks, ok := tbl["tasks"].(map[string]interface{}); ok {
		job.Tasks = map[string]Task{}
		for tname, targv := range tasks {
			job.Tasks[tname] = Task{Name: tname, Args: stringSlice(targv)}
		}
	}

	if cmd, ok := tbl["command"]; ok {
		job.Command = stringSlice(cmd)
		if job.Command == nil {
			if s, ok := cmd.(string); ok {
				job.Command = []string{"sh", "-c", s}
			}
		}
	}

	if steps, ok := tbl["steps"].([]interface{}); ok {
		for _, raw := range steps {
			stbl, _ := raw.(map[string]interface{})
			step, err := parseStep(stbl)
			if err != nil {
				return nil, derrors.Wrap(derrors.ErrCodeConfig, fmt.Sprintf("jobs.%s.steps", name), err)
			}
			job.Steps = append(job.Steps, step)
		}
	}

	return job, nil
}

func parseRunner(v interface{}) (Runner, error) {
	tbl, ok := v.(map[string]interface{})
	if !ok {
		return Runner{}, derrors.ConfigError("runner must be a table with exactly one of machine/container", nil)
	}
	if m, ok := tbl["machine"].(map[string]interface{}); ok {
		r := Runner{
			Kind:  RunnerMachine,
			OS:    stringField(m, "os", ""),
			Image: valueField(m, "image"),
			Class: stringField(m, "class", ""),
		}
		if fb, ok := m["local_fallback"].(map[string]interface{}); ok {
			lf := &LocalFallback{
				Image:      valueField(fb, "image"),
				Dockerfile: stringField(fb, "dockerfile", ""),
				RepoName:   stringField(fb, "repo_name", ""),
				Shell:      stringField(fb, "shell", ""),
				BuildArgs:  valueMap(fb["args"]),
			}
			r.LocalFallback = lf
		}
		return r, nil
	}
	if c, ok := tbl["container"].(map[string]interface{}); ok {
		return Runner{Kind: RunnerContainer, ContainerImage: valueField(c, "image")}, nil
	}
	return Runner{}, derrors.ConfigError("runner must declare either machine or container", nil)
}

func parseCommit(tbl map[string]interface{}) Commit {
	c := Commit{
		Files:     stringSlice(tbl["files"]),
		LogFormat: stringField(tbl, "log_format", ""),
		Labels:    stringSlice(tbl["labels"]),
		Assignees: stringSlice(tbl["assignees"]),
		Squash:    boolField(tbl, "squash", false),
		Aggregate: boolField(tbl, "aggregate", false),
	}
	switch stringField(tbl, "method", "push") {
	case "pull_request":
		if c.Aggregate {
			c.Method = CommitPRAggregated
		} else {
			c.Method = CommitPRSeparated
		}
	default:
		if c.Squash {
			c.Method = CommitPushSquashed
		} else {
			c.Method = CommitPushIndividual
		}
	}
	return c
}

func parseStep(tbl map[string]interface{}) (Step, error) {
	if tbl == nil {
		return Step{}, derrors.ConfigError("step must be a table", nil)
	}
	step := Step{
		Name: stringField(tbl, "name", ""),
		Env:  valueMap(tbl["env"]),
	}
	if uses, ok := tbl["uses"].(string); ok {
		step.Kind = StepModule
		step.Uses = uses
		step.With = anyValueMap(tbl["with"])
		return step, nil
	}
	if argv, ok := tbl["exec"]; ok {
		step.Kind = StepExec
		step.Exec = &ExecStep{Argv: stringSlice(argv), Workdir: stringField(tbl, "workdir", "")}
		return step, nil
	}
	if cmd, ok := tbl["eval"].(string); ok {
		step.Kind = StepEval
		step.Eval = &EvalStep{Command: cmd, Shell: stringField(tbl, "shell", ""), Workdir: stringField(tbl, "workdir", "")}
		return step, nil
	}
	return Step{}, derrors.ConfigError("step must declare exactly one of eval/exec/uses", nil)
}

func parseWorkflow(name string, tbl map[string]interface{}) (*Workflow, error) {
	wf := &Workflow{Name: name}
	switch name {
	case "deploy":
		wf.Kind = WorkflowDeploy
		return wf, nil
	case "integrate":
		wf.Kind = WorkflowIntegrate
		return wf, nil
	}
	if tbl == nil {
		return nil, derrors.ConfigError(fmt.Sprintf("workflows.%s must be a table", name), nil)
	}
	if schedules, ok := tbl["schedules"].(map[string]interface{}); ok {
		wf.Kind = WorkflowCron
		wf.Schedules = map[string]string{}
		for k, v := range schedules {
			if s, ok := v.(string); ok {
				wf.Schedules[k] = s
			}
		}
		return wf, nil
	}
	if events, ok := tbl["events"].(map[string]interface{}); ok {
		wf.Kind = WorkflowRepository
		wf.Events = map[string][]string{}
		for k, v := range events {
			wf.Events[k] = stringSlice(v)
		}
		return wf, nil
	}
	if uses, ok := tbl["uses"].(string); ok {
		wf.Kind = WorkflowModule
		wf.Uses = uses
		wf.With = anyValueMap(tbl["with"])
		return wf, nil
	}
	wf.Kind = WorkflowDispatch
	wf.Manual = boolField(tbl, "manual", true)
	wf.Inputs = anyValueMap(tbl["inputs"])
	return wf, nil
}

func parseReleaseTarget(name string, tbl map[string]interface{}) *ReleaseTarget {
	rt := &ReleaseTarget{Name: name}
	if v, ok := tbl["tag"].(bool); ok {
		rt.Tag = &v
	}
	if patterns, ok := tbl["patterns"].([]interface{}); ok {
		for _, p := range patterns {
			rt.Patterns = append(rt.Patterns, value.NewAny(p))
		}
	}
	return rt
}

func parseCIAccount(name string, tbl map[string]interface{}) (*CIAccount, error) {
	acc := &CIAccount{Name: name}
	if uses, ok := tbl["uses"].(string); ok {
		acc.Kind = CIAccountModule
		acc.Uses = uses
		acc.With = anyValueMap(tbl["with"])
		return acc, nil
	}
	switch stringField(tbl, "type", "ghaction") {
	case "circleci":
		acc.Kind = CIAccountCircleCI
	case "ghaction":
		acc.Kind = CIAccountGhAction
	default:
		return nil, derrors.ConfigError(fmt.Sprintf("ci.%s: unknown type", name), nil)
	}
	acc.Account = stringField(tbl, "account", "")
	acc.Key = valueField(tbl, "key")
	return acc, nil
}

func parseVCSAccount(tbl map[string]interface{}) (*VCSAccount, error) {
	acc := &VCSAccount{}
	if uses, ok := tbl["uses"].(string); ok {
		acc.Kind = VCSAccountModule
		acc.Uses = uses
		acc.With = anyValueMap(tbl["with"])
		return acc, nil
	}
	switch stringField(tbl, "type", "github") {
	case "github":
		acc.Kind = VCSAccountGithub
	case "github_app":
		acc.Kind = VCSAccountGithubApp
		acc.AppID = stringField(tbl, "app_id", "")
		acc.PrivateKey = valueField(tbl, "private_key")
	case "gitlab":
		acc.Kind = VCSAccountGitlab
	default:
		return nil, derrors.ConfigError("vcs: unknown type", nil)
	}
	acc.Email = stringField(tbl, "email", "")
	acc.Account = stringField(tbl, "account", "")
	acc.Key = valueField(tbl, "key")
	return acc, nil
}

func parseModuleSource(tbl map[string]interface{}) (*ModuleSource, error) {
	if std, ok := tbl["std"].(string); ok {
		return &ModuleSource{Kind: ModuleSourceStd, Std: std}, nil
	}
	if git, ok := tbl["git"].(string); ok {
		src := &ModuleSource{Kind: ModuleSourceGit, Git: git, Rev: stringField(tbl, "rev", ""), Tag: stringField(tbl, "tag", "")}
		if src.Rev == "" && src.Tag == "" {
			return nil, derrors.ConfigError("module git source requires rev or tag", nil)
		}
		return src, nil
	}
	if url, ok := tbl["url"].(string); ok {
		return &ModuleSource{Kind: ModuleSourcePackage, URL: url}, nil
	}
	if path, ok := tbl["path"].(string); ok {
		return &ModuleSource{Kind: ModuleSourceLocal, Path: path}, nil
	}
	return nil, derrors.ConfigError("module source must declare std/git/url/path", nil)
}
