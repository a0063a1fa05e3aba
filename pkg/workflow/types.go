// Package workflow implements the runtime WorkflowRun model and the
// WorkflowMatcher (C6): turning an inbound CI event payload into zero or
// more concrete WorkflowRun descriptors.
package workflow

import (
	"github.com/suntomi/deplo/pkg/config"
	"github.com/suntomi/deplo/pkg/value"
)

// CommandRef overrides a job's declared command for this one run.
type CommandRef struct {
	Args []string `json:"args,omitempty"`
}

// JobRef narrows a WorkflowRun to a single job invocation.
type JobRef struct {
	Name    string      `json:"name"`
	Command *CommandRef `json:"command,omitempty"`
}

// WorkflowRun is the runtime descriptor created by the matcher and consumed
// by JobRunner -- JSON-serializable so it round-trips as a remote-dispatch
// payload or as the `-p` argument to a child `deplo job run-steps`
// invocation (spec.md §3).
type WorkflowRun struct {
	Name    string                    `json:"name"`
	Context map[string]value.AnyValue `json:"context"`
	Job     *JobRef                   `json:"job,omitempty"`
	Exec    config.ExecOptions        `json:"exec"`
}
