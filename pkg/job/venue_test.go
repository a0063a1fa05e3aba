package job

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/suntomi/deplo/pkg/config"
	"github.com/suntomi/deplo/pkg/shell"
	"github.com/suntomi/deplo/pkg/value"
)

func TestSelectVenue_RemoteFlagWins(t *testing.T) {
	j := &config.Job{Runner: config.Runner{Kind: config.RunnerMachine, OS: "linux"}}
	assert.Equal(t, VenueRemote, SelectVenue(j, shell.Linux, true, false, false))
}

func TestSelectVenue_RemoteWinsOverDryrun(t *testing.T) {
	j := &config.Job{Runner: config.Runner{Kind: config.RunnerMachine, OS: "linux"}}
	assert.Equal(t, VenueRemote, SelectVenue(j, shell.Linux, true, true, false))
}

func TestSelectVenue_DryrunShortCircuits(t *testing.T) {
	j := &config.Job{Runner: config.Runner{Kind: config.RunnerMachine, OS: "linux"}}
	assert.Equal(t, VenueDryrun, SelectVenue(j, shell.Linux, false, true, false))
}

func TestSelectVenue_MachineMatch(t *testing.T) {
	j := &config.Job{Runner: config.Runner{Kind: config.RunnerMachine, OS: "linux"}}
	assert.Equal(t, VenueLocal, SelectVenue(j, shell.Linux, false, false, false))
}

func TestSelectVenue_MachineMismatchWithFallback(t *testing.T) {
	j := &config.Job{Runner: config.Runner{
		Kind:          config.RunnerMachine,
		OS:            "linux",
		LocalFallback: &config.LocalFallback{Image: value.New("alpine:3.19")},
	}}
	assert.Equal(t, VenueContainer, SelectVenue(j, shell.MacOS, false, false, false))
}

func TestSelectVenue_MachineMismatchWithoutFallback(t *testing.T) {
	j := &config.Job{Runner: config.Runner{Kind: config.RunnerMachine, OS: "linux"}}
	assert.Equal(t, VenueRemote, SelectVenue(j, shell.MacOS, false, false, false))
}

func TestSelectVenue_ContainerOnCI(t *testing.T) {
	j := &config.Job{Runner: config.Runner{Kind: config.RunnerContainer, ContainerImage: value.New("alpine:3.19")}}
	assert.Equal(t, VenueLocal, SelectVenue(j, shell.Linux, false, false, true))
}

func TestSelectVenue_ContainerOffCI(t *testing.T) {
	j := &config.Job{Runner: config.Runner{Kind: config.RunnerContainer, ContainerImage: value.New("alpine:3.19")}}
	assert.Equal(t, VenueContainer, SelectVenue(j, shell.Linux, false, false, false))
}
