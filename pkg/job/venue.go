// Package job implements the JobRunner (C7): the venue-selection state
// machine that decides whether a job invocation runs on the local host, in
// a container, or gets dispatched to a remote CI runner, plus the
// commit-hash checkout/restore and CLI-bootstrap-into-container mechanics
// that support it.
package job

import (
	"github.com/suntomi/deplo/pkg/config"
	"github.com/suntomi/deplo/pkg/shell"
)

// Venue is the chosen execution location for one job invocation, per the
// precedence rules in spec.md §4.7.
type Venue string

const (
	VenueDryrun    Venue = "dryrun"
	VenueRemote    Venue = "remote"
	VenueLocal     Venue = "local"
	VenueContainer Venue = "container"
)

// SelectVenue implements the seven precedence rules verbatim:
//  1. exec.remote forces DISPATCH_REMOTE.
//  2. dryrun short-circuits to a no-op (caller logs and returns).
//  3. machine/OS match -> local.
//  4. machine/OS mismatch with fallback image -> container.
//  5. machine/OS mismatch without fallback -> remote.
//  6. container runner + on-CI -> local (we are the container).
//  7. container runner + off-CI -> run the declared image locally via docker.
func SelectVenue(j *config.Job, currentOS shell.OS, remoteFlag, dryrun, onCI bool) Venue {
	if remoteFlag {
		return VenueRemote
	}
	if dryrun {
		return VenueDryrun
	}

	switch j.Runner.Kind {
	case config.RunnerMachine:
		if string(currentOS) == j.Runner.OS {
			return VenueLocal
		}
		if j.Runner.LocalFallback != nil {
			return VenueContainer
		}
		return VenueRemote
	case config.RunnerContainer:
		if onCI {
			return VenueLocal
		}
		return VenueContainer
	default:
		return VenueRemote
	}
}
