// Package commit implements the CommitAggregator (C10): per-job auto-commit
// branch pushes and the final cleanup job's four-way aggregation
// (push/squashed, push/individual, PR/aggregated, PR/separated), spec.md
// §4.10. Both halves delegate the actual git/PR work to the VCS
// collaborator; this package only guarantees predictable branch naming,
// output harvesting, and exactly-once cleanup.
package commit

import (
	"context"
	"fmt"
	"strings"

	"github.com/suntomi/deplo/pkg/config"
	derrors "github.com/suntomi/deplo/pkg/errors"
	"github.com/suntomi/deplo/pkg/output"
	"github.com/suntomi/deplo/pkg/vcs"
)

// CleanupMarker is the narrow slice of the CIProvider (C5) the aggregator
// needs to flag that a cleanup job run is required.
type CleanupMarker interface {
	MarkNeedCleanup(name string) error
}

// SystemOutputKey is the output key a job's auto-commit branch is published
// under for the cleanup job to harvest.
const SystemOutputKey = "COMMIT_BRANCH"

const defaultLogFormat = "[deplo] update by job %s"

// AutoCommitBranch names the per-job branch an auto-commit is pushed to,
// guaranteed distinct across parallel CI jobs by embedding the CI run id.
func AutoCommitBranch(ciID, jobName string) string {
	return fmt.Sprintf("deplo-auto-commits-%s-tmp-%s", ciID, jobName)
}

// RecordJobCommit runs after a job's steps succeed: for each of the job's
// commit entries (every entry passed in is used; entries are not filtered
// by release target), iff the current ref is a Branch or
// Pull, push a diff limited to commit.Files to the job's auto-commit
// branch and publish it as a System output.
func RecordJobCommit(ctx context.Context, collaborator vcs.VCS, bus *output.Bus, marker CleanupMarker, ciID, jobName string, commits []config.Commit) error {
	ref, err := collaborator.CurrentRef(ctx)
	if err != nil {
		return err
	}
	if ref.Type != vcs.RefBranch && ref.Type != vcs.RefPull {
		return nil
	}

	for _, c := range commits {
		branch := AutoCommitBranch(ciID, jobName)
		logFormat := c.LogFormat
		if logFormat == "" {
			logFormat = defaultLogFormat
		}
		message := formatLog(logFormat, jobName)

		if err := collaborator.PushDiff(ctx, branch, c.Files, message); err != nil {
			return derrors.VCSError("push auto-commit diff", err)
		}
		if err := bus.SetOutput(SystemOutputKey, branch); err != nil {
			return err
		}
		if marker != nil {
			if err := marker.MarkNeedCleanup(jobName); err != nil {
				return err
			}
		}
	}
	return nil
}

func formatLog(format, jobName string) string {
	if strings.Contains(format, "%s") {
		return fmt.Sprintf(format, jobName)
	}
	return format
}

// UpstreamBranch is one upstream job's harvested auto-commit branch, ready
// for the cleanup job to fold in.
type UpstreamBranch struct {
	JobName string
	Branch  string
	Commit  config.Commit
}

// Aggregate performs the cleanup job's fold-in, dispatching to one of the
// four method variants. It is the cleanup job's responsibility to call this
// exactly once per workflow invocation (spec.md §4.10, §5).
func Aggregate(ctx context.Context, collaborator vcs.VCS, branches []UpstreamBranch) error {
	if len(branches) == 0 {
		return nil
	}

	method := branches[0].Commit.Method
	switch method {
	case config.CommitPushSquashed:
		return aggregatePushSquashed(ctx, collaborator, branches)
	case config.CommitPushIndividual:
		return aggregatePushIndividual(ctx, collaborator, branches)
	case config.CommitPRAggregated:
		return aggregatePRAggregated(ctx, collaborator, branches)
	case config.CommitPRSeparated:
		return aggregatePRSeparated(ctx, collaborator, branches)
	default:
		return derrors.New(derrors.ErrCodeValidation, fmt.Sprintf("unknown commit method %q", method))
	}
}

// aggregatePushSquashed folds every upstream branch's files into one commit
// on the release branch, pushed directly.
func aggregatePushSquashed(ctx context.Context, collaborator vcs.VCS, branches []UpstreamBranch) error {
	var files []string
	var jobNames []string
	for _, b := range branches {
		files = append(files, b.Commit.Files...)
		jobNames = append(jobNames, b.JobName)
	}
	message := fmt.Sprintf("[deplo] squashed update by jobs %s", strings.Join(jobNames, ", "))
	releaseBranch, err := currentBranchName(ctx, collaborator)
	if err != nil {
		return err
	}
	return collaborator.PushDiff(ctx, releaseBranch, dedupe(files), message)
}

// aggregatePushIndividual pushes each upstream branch's diff separately to
// the release branch, preserving one commit per job.
func aggregatePushIndividual(ctx context.Context, collaborator vcs.VCS, branches []UpstreamBranch) error {
	releaseBranch, err := currentBranchName(ctx, collaborator)
	if err != nil {
		return err
	}
	for _, b := range branches {
		message := formatLog(logFormatOrDefault(b.Commit), b.JobName)
		if err := collaborator.PushDiff(ctx, releaseBranch, b.Commit.Files, message); err != nil {
			return derrors.VCSError("push individual auto-commit", err)
		}
	}
	return nil
}

// aggregatePRAggregated opens a single PR containing every upstream job's
// changes.
func aggregatePRAggregated(ctx context.Context, collaborator vcs.VCS, branches []UpstreamBranch) error {
	var files []string
	var jobNames []string
	var labels, assignees []string
	for _, b := range branches {
		files = append(files, b.Commit.Files...)
		jobNames = append(jobNames, b.JobName)
		labels = append(labels, b.Commit.Labels...)
		assignees = append(assignees, b.Commit.Assignees...)
	}
	branch := fmt.Sprintf("deplo-auto-commits-pr-%s", strings.Join(jobNames, "-"))
	message := fmt.Sprintf("[deplo] aggregated update by jobs %s", strings.Join(jobNames, ", "))
	if err := collaborator.PushDiff(ctx, branch, dedupe(files), message); err != nil {
		return derrors.VCSError("push aggregated PR branch", err)
	}
	_, err := collaborator.CreatePullRequest(ctx, branch, message, dedupe(labels), dedupe(assignees))
	return err
}

// aggregatePRSeparated opens one PR per upstream job.
func aggregatePRSeparated(ctx context.Context, collaborator vcs.VCS, branches []UpstreamBranch) error {
	for _, b := range branches {
		message := formatLog(logFormatOrDefault(b.Commit), b.JobName)
		if err := collaborator.PushDiff(ctx, b.Branch, b.Commit.Files, message); err != nil {
			return derrors.VCSError("push separated PR branch", err)
		}
		if _, err := collaborator.CreatePullRequest(ctx, b.Branch, message, b.Commit.Labels, b.Commit.Assignees); err != nil {
			return err
		}
	}
	return nil
}

func logFormatOrDefault(c config.Commit) string {
	if c.LogFormat == "" {
		return defaultLogFormat
	}
	return c.LogFormat
}

func currentBranchName(ctx context.Context, collaborator vcs.VCS) (string, error) {
	ref, err := collaborator.CurrentRef(ctx)
	if err != nil {
		return "", err
	}
	return ref.Name, nil
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it == "" || seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out
}
