package workflow

import (
	"encoding/json"
	"os"

	"github.com/suntomi/deplo/pkg/config"
	derrors "github.com/suntomi/deplo/pkg/errors"
	"github.com/suntomi/deplo/pkg/value"
)

// eventPayload is the shape of the inbound CI event, per spec.md §4.6:
// "parse payload (keys event_name, event)".
type eventPayload struct {
	EventName string                 `json:"event_name"`
	Event     map[string]interface{} `json:"event"`
	Schedule  string                 `json:"schedule"`
}

// ReleaseTargetResolver computes the active release target for a
// Deploy/Integrate match -- delegated to the VCS collaborator, out of
// scope for this package (spec.md §1).
type ReleaseTargetResolver func() (string, bool)

// Matcher is the WorkflowMatcher (C6).
type Matcher struct {
	store         *config.Store
	releaseTarget ReleaseTargetResolver
}

// New builds a Matcher over a ConfigStore's configured workflows.
func New(store *config.Store, releaseTarget ReleaseTargetResolver) *Matcher {
	return &Matcher{store: store, releaseTarget: releaseTarget}
}

// Match turns an event payload into zero or more WorkflowRun descriptors.
// An empty payload falls back to the DEPLO_GHACTION_EVENT_DATA env var.
func (m *Matcher) Match(payload string) ([]WorkflowRun, error) {
	if payload == "" {
		payload = os.Getenv("DEPLO_GHACTION_EVENT_DATA")
	}
	if payload == "" {
		return nil, nil
	}

	var p eventPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, derrors.Wrap(derrors.ErrCodeValidation, "failed to parse event payload", err)
	}

	switch p.EventName {
	case "push":
		return m.matchNamed(config.WorkflowDeploy)
	case "pull_request":
		return m.matchNamed(config.WorkflowIntegrate)
	case "schedule":
		return m.matchCron(p.Schedule)
	case "repository_dispatch":
		action, _ := p.Event["action"].(string)
		switch action {
		case "deplo-run-remote-job":
			return m.bypassRemoteJob(p.Event["client_payload"])
		case "deplo-module-invoke":
			return m.matchModule()
		default:
			return m.matchRepository(action, p.Event)
		}
	default:
		action, _ := p.Event["action"].(string)
		return m.matchRepositoryEvent(p.EventName, action, p.Event)
	}
}

func (m *Matcher) matchNamed(kind config.WorkflowKind) ([]WorkflowRun, error) {
	for _, wf := range m.store.Workflows {
		if wf.Kind != kind {
			continue
		}
		return []WorkflowRun{m.runFor(wf)}, nil
	}
	return nil, nil
}

// ByName builds the WorkflowRun for the named workflow directly, without
// going through an event payload -- used by the CLI's `start --workflow N`.
func (m *Matcher) ByName(name string) (WorkflowRun, error) {
	wf, ok := m.store.Workflows[name]
	if !ok {
		return WorkflowRun{}, derrors.New(derrors.ErrCodeNotFound, "no workflow named "+name)
	}
	return m.runFor(wf), nil
}

func (m *Matcher) runFor(wf *config.Workflow) WorkflowRun {
	ctx := map[string]value.AnyValue{}
	if m.releaseTarget != nil {
		if rt, ok := m.releaseTarget(); ok {
			ctx["release_target"] = value.NewAny(rt)
		} else {
			ctx["release_target"] = value.NewAny(nil)
		}
	} else {
		ctx["release_target"] = value.NewAny(nil)
	}
	return WorkflowRun{Name: wf.Name, Context: ctx, Exec: config.ExecOptions{}}
}

func (m *Matcher) matchCron(schedule string) ([]WorkflowRun, error) {
	var runs []WorkflowRun
	for _, wf := range m.store.Workflows {
		if wf.Kind != config.WorkflowCron {
			continue
		}
		for _, cron := range wf.Schedules {
			if cron == schedule {
				runs = append(runs, WorkflowRun{
					Name:    wf.Name,
					Context: map[string]value.AnyValue{"schedule": value.NewAny(schedule)},
					Exec:    config.ExecOptions{},
				})
				break
			}
		}
	}
	return runs, nil
}

func (m *Matcher) matchRepository(action string, event map[string]interface{}) ([]WorkflowRun, error) {
	return m.matchRepositoryEvent("", action, event)
}

func (m *Matcher) matchRepositoryEvent(eventName, action string, event map[string]interface{}) ([]WorkflowRun, error) {
	var runs []WorkflowRun
	for _, wf := range m.store.Workflows {
		if wf.Kind != config.WorkflowRepository {
			continue
		}
		allowed, ok := wf.Events[eventName]
		if !ok {
			continue
		}
		if !containsOrWildcard(allowed, action) {
			continue
		}
		runs = append(runs, WorkflowRun{
			Name:    wf.Name,
			Context: map[string]value.AnyValue{"event": value.NewAny(event)},
			Exec:    config.ExecOptions{},
		})
	}
	return runs, nil
}

func (m *Matcher) matchModule() ([]WorkflowRun, error) {
	var runs []WorkflowRun
	for _, wf := range m.store.Workflows {
		if wf.Kind == config.WorkflowModule {
			runs = append(runs, WorkflowRun{Name: wf.Name, Context: map[string]value.AnyValue{}, Exec: config.ExecOptions{}})
		}
	}
	return runs, nil
}

// bypassRemoteJob reconstructs a WorkflowRun directly from the
// repository_dispatch client_payload -- the one case spec.md §4.6 says
// bypasses matching entirely.
func (m *Matcher) bypassRemoteJob(clientPayload interface{}) ([]WorkflowRun, error) {
	data, err := json.Marshal(clientPayload)
	if err != nil {
		return nil, derrors.Wrap(derrors.ErrCodeValidation, "failed to re-encode client_payload", err)
	}
	var run WorkflowRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, derrors.Wrap(derrors.ErrCodeValidation, "failed to decode client_payload as WorkflowRun", err)
	}
	return []WorkflowRun{run}, nil
}

func containsOrWildcard(allowed []string, action string) bool {
	for _, a := range allowed {
		if a == action || a == "*" {
			return true
		}
	}
	return false
}
