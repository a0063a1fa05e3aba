// Package step implements the StepSequencer (C8): it walks a job's steps in
// declaration order, layers env/workdir/shell per step over the job's
// defaults, and dispatches each to ShellDriver (eval/exec) or ModuleRepository
// (module) per spec.md §4.8. A step failure aborts the sequence -- there is
// no intrinsic retry.
package step

import (
	"context"

	"github.com/suntomi/deplo/pkg/config"
	derrors "github.com/suntomi/deplo/pkg/errors"
	"github.com/suntomi/deplo/pkg/module"
	"github.com/suntomi/deplo/pkg/shell"
	"github.com/suntomi/deplo/pkg/value"
)

// ModuleResolver is the subset of module.Repository the sequencer needs,
// narrowed so pkg/step doesn't have to depend on module.Repository's
// fetch/caching mechanics.
type ModuleResolver interface {
	Get(ctx context.Context, ref string) (*module.Resolved, error)
}

// Sequencer drives one job's steps.
type Sequencer struct {
	Driver   *shell.Driver
	Modules  ModuleResolver
	CurrentOS shell.OS
}

// Outcome is one step's dispatch result, in execution order.
type Outcome struct {
	StepName string
	Result   *shell.Result
}

// Run executes every step of j in order, applying the --task override (if
// taskName is non-empty and j.Tasks has a matching entry) to the
// single-command form only -- multi-step jobs ignore task overrides since
// there is no single `command.args` to replace.
func (s *Sequencer) Run(ctx context.Context, j *config.Job, taskName string, settings shell.Settings) ([]Outcome, error) {
	if len(j.Steps) == 0 {
		argv := effectiveCommand(j, taskName)
		res, err := s.Driver.Exec(ctx, argv, j.Env, j.Workdir, settings)
		if err != nil {
			return nil, err
		}
		return []Outcome{{StepName: j.Name, Result: res}}, nil
	}

	outcomes := make([]Outcome, 0, len(j.Steps))
	for _, st := range j.Steps {
		res, err := s.runStep(ctx, j, st, settings)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, Outcome{StepName: st.Name, Result: res})
	}
	return outcomes, nil
}

func (s *Sequencer) runStep(ctx context.Context, j *config.Job, st config.Step, settings shell.Settings) (*shell.Result, error) {
	env := mergeEnv(j.Env, st.Env)

	switch st.Kind {
	case config.StepEval:
		workdir := firstNonEmpty(st.Eval.Workdir, j.Workdir)
		shellBin := firstNonEmpty(st.Eval.Shell, j.Shell)
		return s.Driver.Eval(ctx, st.Eval.Command, shellBin, env, workdir, settings)

	case config.StepExec:
		workdir := firstNonEmpty(st.Exec.Workdir, j.Workdir)
		return s.Driver.Exec(ctx, st.Exec.Argv, env, workdir, settings)

	case config.StepModule:
		if s.Modules == nil {
			return nil, derrors.New(derrors.ErrCodeValidation, "step uses a module but no ModuleRepository is configured")
		}
		resolved, err := s.Modules.Get(ctx, st.Uses)
		if err != nil {
			return nil, err
		}
		with := mergeWith(j.Options, st.With)
		return resolved.Run(ctx, s.Driver, module.EntryPointStep, s.CurrentOS, env, with, nil, settings)

	default:
		return nil, derrors.New(derrors.ErrCodeValidation, "step has unknown kind "+string(st.Kind))
	}
}

// effectiveCommand applies a --task override to the job's single command
// form: the task's argv replaces command.args for this invocation only.
func effectiveCommand(j *config.Job, taskName string) []string {
	if taskName == "" {
		return j.Command
	}
	task, ok := j.Tasks[taskName]
	if !ok {
		return j.Command
	}
	return task.Args
}

// mergeEnv computes job_env ∪ step.env, step winning on key collision.
func mergeEnv(jobEnv, stepEnv map[string]value.Value) map[string]value.Value {
	if len(jobEnv) == 0 && len(stepEnv) == 0 {
		return nil
	}
	merged := make(map[string]value.Value, len(jobEnv)+len(stepEnv))
	for k, v := range jobEnv {
		merged[k] = v
	}
	for k, v := range stepEnv {
		merged[k] = v
	}
	return merged
}

// mergeWith layers a job's default module options under a step's own `with`
// map, the step's entries winning on key collision.
func mergeWith(jobOptions map[string]value.AnyValue, stepWith map[string]value.AnyValue) map[string]value.AnyValue {
	if len(jobOptions) == 0 && len(stepWith) == 0 {
		return nil
	}
	merged := make(map[string]value.AnyValue, len(jobOptions)+len(stepWith))
	for k, v := range jobOptions {
		merged[k] = v
	}
	for k, v := range stepWith {
		merged[k] = v
	}
	return merged
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
