// Package vcs is the out-of-scope VCS collaborator interface (spec.md §1):
// branching, checkout, diff, PR, release, and token minting for GitHub
// Apps. The core (pkg/job, pkg/commit) depends on this interface but does
// not specify its implementation; a git-backed implementation is provided
// here as the concrete collaborator Deplo ships with.
package vcs

import "context"

// RefType is one of the five forms of "where HEAD points" (spec.md §3).
type RefType string

const (
	RefBranch RefType = "branch"
	RefRemote RefType = "remote"
	RefTag    RefType = "tag"
	RefPull   RefType = "pull"
	RefCommit RefType = "commit"
)

// Ref identifies the current checkout position.
type Ref struct {
	Type RefType
	Name string
}

// VCS is the collaborator interface pkg/job and pkg/commit depend on.
type VCS interface {
	// CurrentRef reports where HEAD currently points.
	CurrentRef(ctx context.Context) (Ref, error)

	// Checkout moves HEAD to rev on a temporary branch named tmpBranch,
	// returning a restore function that moves HEAD back to whatever ref
	// was current before the call.
	Checkout(ctx context.Context, rev, tmpBranch string) (restore func(context.Context) error, err error)

	// PushDiff pushes a commit containing only the given files/paths to
	// branch, using message as the commit log.
	PushDiff(ctx context.Context, branch string, files []string, message string) error

	// CreatePullRequest opens a PR from branch against the repository's
	// default branch, returning the PR URL.
	CreatePullRequest(ctx context.Context, branch, title string, labels, assignees []string) (string, error)

	// ReleaseTarget resolves the active release target for the current
	// ref, e.g. by matching the branch name against configured patterns.
	ReleaseTarget(ctx context.Context) (string, bool, error)
}
