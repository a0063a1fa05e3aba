package commit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suntomi/deplo/pkg/config"
	"github.com/suntomi/deplo/pkg/output"
	"github.com/suntomi/deplo/pkg/vcs"
)

type fakeVCS struct {
	current     vcs.Ref
	pushedDiffs []pushCall
	createdPRs  []prCall
}

type pushCall struct {
	branch  string
	files   []string
	message string
}

type prCall struct {
	branch string
	title  string
}

func (f *fakeVCS) CurrentRef(ctx context.Context) (vcs.Ref, error) { return f.current, nil }

func (f *fakeVCS) Checkout(ctx context.Context, rev, tmpBranch string) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}

func (f *fakeVCS) PushDiff(ctx context.Context, branch string, files []string, message string) error {
	f.pushedDiffs = append(f.pushedDiffs, pushCall{branch, files, message})
	return nil
}

func (f *fakeVCS) CreatePullRequest(ctx context.Context, branch, title string, labels, assignees []string) (string, error) {
	f.createdPRs = append(f.createdPRs, prCall{branch, title})
	return "https://example.com/pr/1", nil
}

func (f *fakeVCS) ReleaseTarget(ctx context.Context) (string, bool, error) { return "", false, nil }

type fakeMarker struct{ marked []string }

func (m *fakeMarker) MarkNeedCleanup(name string) error {
	m.marked = append(m.marked, name)
	return nil
}

func TestRecordJobCommit_PushesOnBranchRef(t *testing.T) {
	v := &fakeVCS{current: vcs.Ref{Type: vcs.RefBranch, Name: "main"}}
	bus := output.New(t.TempDir(), "build")
	marker := &fakeMarker{}
	commits := []config.Commit{{Files: []string{"go.mod"}, Method: config.CommitPushSquashed}}

	err := RecordJobCommit(context.Background(), v, bus, marker, "ci-42", "build", commits)
	require.NoError(t, err)
	require.Len(t, v.pushedDiffs, 1)
	assert.Equal(t, "deplo-auto-commits-ci-42-tmp-build", v.pushedDiffs[0].branch)
	assert.Equal(t, "[deplo] update by job build", v.pushedDiffs[0].message)
	assert.Equal(t, []string{"build"}, marker.marked)
}

func TestRecordJobCommit_SkipsOnCommitRef(t *testing.T) {
	v := &fakeVCS{current: vcs.Ref{Type: vcs.RefCommit, Name: "abc123"}}
	bus := output.New(t.TempDir(), "build")
	err := RecordJobCommit(context.Background(), v, bus, nil, "ci-42", "build",
		[]config.Commit{{Files: []string{"go.mod"}}})
	require.NoError(t, err)
	assert.Empty(t, v.pushedDiffs)
}

func TestAggregate_PushSquashedDedupesFiles(t *testing.T) {
	v := &fakeVCS{current: vcs.Ref{Type: vcs.RefBranch, Name: "main"}}
	branches := []UpstreamBranch{
		{JobName: "a", Branch: "deplo-auto-commits-ci-1-tmp-a", Commit: config.Commit{Files: []string{"x"}, Method: config.CommitPushSquashed}},
		{JobName: "b", Branch: "deplo-auto-commits-ci-1-tmp-b", Commit: config.Commit{Files: []string{"x", "y"}, Method: config.CommitPushSquashed}},
	}
	require.NoError(t, Aggregate(context.Background(), v, branches))
	require.Len(t, v.pushedDiffs, 1)
	assert.Equal(t, "main", v.pushedDiffs[0].branch)
	assert.ElementsMatch(t, []string{"x", "y"}, v.pushedDiffs[0].files)
}

func TestAggregate_PushIndividualOnePerJob(t *testing.T) {
	v := &fakeVCS{current: vcs.Ref{Type: vcs.RefBranch, Name: "main"}}
	branches := []UpstreamBranch{
		{JobName: "a", Commit: config.Commit{Files: []string{"x"}, Method: config.CommitPushIndividual}},
		{JobName: "b", Commit: config.Commit{Files: []string{"y"}, Method: config.CommitPushIndividual}},
	}
	require.NoError(t, Aggregate(context.Background(), v, branches))
	require.Len(t, v.pushedDiffs, 2)
}

func TestAggregate_PRAggregatedOpensSinglePR(t *testing.T) {
	v := &fakeVCS{}
	branches := []UpstreamBranch{
		{JobName: "a", Commit: config.Commit{Files: []string{"x"}, Method: config.CommitPRAggregated}},
		{JobName: "b", Commit: config.Commit{Files: []string{"y"}, Method: config.CommitPRAggregated}},
	}
	require.NoError(t, Aggregate(context.Background(), v, branches))
	require.Len(t, v.pushedDiffs, 1)
	require.Len(t, v.createdPRs, 1)
}

func TestAggregate_PRSeparatedOpensOnePerJob(t *testing.T) {
	v := &fakeVCS{}
	branches := []UpstreamBranch{
		{JobName: "a", Branch: "deplo-auto-commits-ci-1-tmp-a", Commit: config.Commit{Files: []string{"x"}, Method: config.CommitPRSeparated}},
		{JobName: "b", Branch: "deplo-auto-commits-ci-1-tmp-b", Commit: config.Commit{Files: []string{"y"}, Method: config.CommitPRSeparated}},
	}
	require.NoError(t, Aggregate(context.Background(), v, branches))
	require.Len(t, v.pushedDiffs, 2)
	require.Len(t, v.createdPRs, 2)
}

func TestAggregate_EmptyIsNoop(t *testing.T) {
	v := &fakeVCS{}
	require.NoError(t, Aggregate(context.Background(), v, nil))
	assert.Empty(t, v.pushedDiffs)
}
