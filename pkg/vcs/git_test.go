package vcs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) (dir string, repo *git.Repository, headHash string) {
	t.Helper()
	dir = t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)

	path := filepath.Join(dir, "README.md")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))
	_, err = wt.Add("README.md")
	require.NoError(t, err)

	sig := &object.Signature{Name: "tester", Email: "tester@example.com", When: time.Unix(0, 0)}
	hash, err := wt.Commit("initial commit", &git.CommitOptions{Author: sig})
	require.NoError(t, err)
	return dir, repo, hash.String()
}

func TestGit_CurrentRef_Branch(t *testing.T) {
	dir, _, _ := initRepo(t)
	g, err := Open(dir, "tester", "tester@example.com", nil)
	require.NoError(t, err)

	ref, err := g.CurrentRef(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RefBranch, ref.Type)
}

func TestGit_Checkout_RestoresPreviousBranch(t *testing.T) {
	dir, _, headHash := initRepo(t)
	g, err := Open(dir, "tester", "tester@example.com", nil)
	require.NoError(t, err)

	before, err := g.CurrentRef(context.Background())
	require.NoError(t, err)

	restore, err := g.Checkout(context.Background(), headHash, "deplo-tmp-checkout")
	require.NoError(t, err)

	during, err := g.CurrentRef(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RefBranch, during.Type)
	assert.Equal(t, "deplo-tmp-checkout", during.Name)

	require.NoError(t, restore(context.Background()))

	after, err := g.CurrentRef(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before.Name, after.Name)
}

func TestGit_ReleaseTarget_MatchesPattern(t *testing.T) {
	dir, repo, headHash := initRepo(t)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	g, err := Open(dir, "tester", "tester@example.com", map[string][]string{
		"production": {"release/*"},
	})
	require.NoError(t, err)

	_, err = g.Checkout(context.Background(), headHash, "release/v1")
	require.NoError(t, err)
	_ = wt

	target, ok, err := g.ReleaseTarget(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "production", target)
}

func TestGit_ReleaseTarget_NoMatch(t *testing.T) {
	dir, _, _ := initRepo(t)
	g, err := Open(dir, "tester", "tester@example.com", map[string][]string{
		"production": {"release/*"},
	})
	require.NoError(t, err)

	_, ok, err := g.ReleaseTarget(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGit_RemoteOwnerRepo_HTTPS(t *testing.T) {
	dir, repo, _ := initRepo(t)
	_, err := repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{"https://github.com/suntomi/deplo.git"},
	})
	require.NoError(t, err)

	g, err := Open(dir, "tester", "tester@example.com", nil)
	require.NoError(t, err)

	owner, repoName, err := g.RemoteOwnerRepo("origin")
	require.NoError(t, err)
	assert.Equal(t, "suntomi", owner)
	assert.Equal(t, "deplo", repoName)
}

func TestGit_RemoteOwnerRepo_SSH(t *testing.T) {
	dir, repo, _ := initRepo(t)
	_, err := repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{"git@github.com:suntomi/deplo.git"},
	})
	require.NoError(t, err)

	g, err := Open(dir, "tester", "tester@example.com", nil)
	require.NoError(t, err)

	owner, repoName, err := g.RemoteOwnerRepo("origin")
	require.NoError(t, err)
	assert.Equal(t, "suntomi", owner)
	assert.Equal(t, "deplo", repoName)
}

func TestGit_CreatePullRequest_Unsupported(t *testing.T) {
	dir, _, _ := initRepo(t)
	g, err := Open(dir, "tester", "tester@example.com", nil)
	require.NoError(t, err)

	_, err = g.CreatePullRequest(context.Background(), "branch", "title", nil, nil)
	assert.Error(t, err)
}
