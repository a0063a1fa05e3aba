package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suntomi/deplo/pkg/config"
)

func newStore() *config.Store {
	return &config.Store{
		Workflows: map[string]*config.Workflow{
			"deploy":    {Name: "deploy", Kind: config.WorkflowDeploy},
			"integrate": {Name: "integrate", Kind: config.WorkflowIntegrate},
			"nightly": {
				Name:      "nightly",
				Kind:      config.WorkflowCron,
				Schedules: map[string]string{"a": "0 0 * * *"},
			},
			"on_issue": {
				Name:   "on_issue",
				Kind:   config.WorkflowRepository,
				Events: map[string][]string{"issues": {"opened"}},
			},
		},
	}
}

func TestMatch_Push(t *testing.T) {
	m := New(newStore(), nil)
	runs, err := m.Match(`{"event_name":"push"}`)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "deploy", runs[0].Name)
}

func TestMatch_PullRequest(t *testing.T) {
	m := New(newStore(), nil)
	runs, err := m.Match(`{"event_name":"pull_request"}`)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "integrate", runs[0].Name)
}

func TestMatch_Schedule(t *testing.T) {
	m := New(newStore(), nil)
	runs, err := m.Match(`{"event_name":"schedule","schedule":"0 0 * * *"}`)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "nightly", runs[0].Name)
}

func TestMatch_RepositoryEvent(t *testing.T) {
	m := New(newStore(), nil)
	runs, err := m.Match(`{"event_name":"issues","event":{"action":"opened"}}`)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "on_issue", runs[0].Name)
}

func TestMatch_NoMatchForUnrelatedEvent(t *testing.T) {
	m := New(newStore(), nil)
	runs, err := m.Match(`{"event_name":"issues","event":{"action":"closed"}}`)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestMatch_RemoteDispatchBypass(t *testing.T) {
	m := New(newStore(), nil)
	payload := `{"event_name":"repository_dispatch","event":{"action":"deplo-run-remote-job","client_payload":{"name":"x","exec":{"verbosity":0,"remote":false,"follow_dependency":false,"silent":false},"context":{}}}}`
	runs, err := m.Match(payload)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "x", runs[0].Name)
}
