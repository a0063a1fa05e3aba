package vcs

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	derrors "github.com/suntomi/deplo/pkg/errors"
)

// Git is a go-git-backed VCS implementation, grounded on the same clone/
// checkout primitives pkg/module uses for module fetching.
type Git struct {
	repo            *git.Repository
	authorName      string
	authorEmail     string
	releasePatterns map[string][]string // release target name -> glob patterns
}

// Open opens the git repository rooted at path.
func Open(path, authorName, authorEmail string, releasePatterns map[string][]string) (*Git, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, derrors.VCSError("open repository", err)
	}
	return &Git{repo: repo, authorName: authorName, authorEmail: authorEmail, releasePatterns: releasePatterns}, nil
}

func (g *Git) CurrentRef(ctx context.Context) (Ref, error) {
	head, err := g.repo.Head()
	if err != nil {
		return Ref{}, derrors.VCSError("read HEAD", err)
	}
	name := head.Name()
	switch {
	case name.IsBranch():
		return Ref{Type: RefBranch, Name: name.Short()}, nil
	case name.IsTag():
		return Ref{Type: RefTag, Name: name.Short()}, nil
	case strings.HasPrefix(string(name), "refs/pull/"):
		return Ref{Type: RefPull, Name: name.Short()}, nil
	default:
		return Ref{Type: RefCommit, Name: head.Hash().String()}, nil
	}
}

func (g *Git) Checkout(ctx context.Context, rev, tmpBranch string) (func(context.Context) error, error) {
	previous, err := g.CurrentRef(ctx)
	if err != nil {
		return nil, err
	}

	wt, err := g.repo.Worktree()
	if err != nil {
		return nil, derrors.VCSError("open worktree", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{
		Hash:   plumbing.NewHash(rev),
		Branch: plumbing.NewBranchReferenceName(tmpBranch),
		Create: true,
	}); err != nil {
		return nil, derrors.VCSError(fmt.Sprintf("checkout %s", rev), err)
	}

	restore := func(ctx context.Context) error {
		cur, err := g.CurrentRef(ctx)
		if err != nil {
			return err
		}
		// Only restore if we're still sitting on the temp branch we created
		// -- avoids clobbering a checkout the caller already moved on from.
		if cur.Type != RefBranch || cur.Name != tmpBranch {
			return nil
		}
		wt, err := g.repo.Worktree()
		if err != nil {
			return derrors.VCSError("open worktree", err)
		}
		var opts git.CheckoutOptions
		switch previous.Type {
		case RefBranch:
			opts = git.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(previous.Name)}
		case RefTag:
			opts = git.CheckoutOptions{Branch: plumbing.NewTagReferenceName(previous.Name)}
		default:
			opts = git.CheckoutOptions{Hash: plumbing.NewHash(previous.Name)}
		}
		if err := wt.Checkout(&opts); err != nil {
			return derrors.VCSError("restore previous branch", err)
		}
		return nil
	}
	return restore, nil
}

func (g *Git) PushDiff(ctx context.Context, branch string, files []string, message string) error {
	wt, err := g.repo.Worktree()
	if err != nil {
		return derrors.VCSError("open worktree", err)
	}

	ref := plumbing.NewBranchReferenceName(branch)
	if err := wt.Checkout(&git.CheckoutOptions{Branch: ref, Create: true}); err != nil {
		return derrors.VCSError(fmt.Sprintf("create branch %s", branch), err)
	}

	for _, f := range files {
		if _, err := wt.Add(f); err != nil {
			return derrors.VCSError(fmt.Sprintf("stage %s", f), err)
		}
	}

	if _, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: g.authorName, Email: g.authorEmail},
	}); err != nil {
		return derrors.VCSError("commit", err)
	}

	if err := g.repo.PushContext(ctx, &git.PushOptions{
		RefSpecs: []gitconfig.RefSpec{gitconfig.RefSpec(fmt.Sprintf("%s:%s", ref, ref))},
	}); err != nil {
		return derrors.VCSError(fmt.Sprintf("push %s", branch), err)
	}
	return nil
}

// CreatePullRequest is not implemented by the bare git collaborator -- it
// requires the hosting API (GitHub/GitLab), which lives in a provider-
// specific VCS module, not this generic git backend.
func (g *Git) CreatePullRequest(ctx context.Context, branch, title string, labels, assignees []string) (string, error) {
	return "", derrors.New(derrors.ErrCodeUnsupported, "pull request creation requires a hosting-API-backed VCS collaborator")
}

// RemoteOwnerRepo extracts "owner", "repo" from the named remote's URL,
// handling both the SSH (git@host:owner/repo.git) and HTTPS
// (https://host/owner/repo.git) forms GitHub/GitLab remotes use.
func (g *Git) RemoteOwnerRepo(name string) (owner, repo string, err error) {
	remote, rerr := g.repo.Remote(name)
	if rerr != nil {
		return "", "", derrors.VCSError(fmt.Sprintf("read remote %s", name), rerr)
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", "", derrors.New(derrors.ErrCodeVCS, fmt.Sprintf("remote %s has no URL", name))
	}
	url := strings.TrimSuffix(urls[0], ".git")
	url = strings.TrimSuffix(url, "/")

	var path string
	switch {
	case strings.Contains(url, "://"):
		parts := strings.SplitN(url, "://", 2)
		hostAndPath := strings.SplitN(parts[1], "/", 2)
		if len(hostAndPath) != 2 {
			return "", "", derrors.New(derrors.ErrCodeVCS, fmt.Sprintf("cannot parse remote URL %s", urls[0]))
		}
		path = hostAndPath[1]
	case strings.Contains(url, "@") && strings.Contains(url, ":"):
		path = url[strings.Index(url, ":")+1:]
	default:
		return "", "", derrors.New(derrors.ErrCodeVCS, fmt.Sprintf("cannot parse remote URL %s", urls[0]))
	}

	segments := strings.SplitN(path, "/", 2)
	if len(segments) != 2 {
		return "", "", derrors.New(derrors.ErrCodeVCS, fmt.Sprintf("cannot parse owner/repo from %s", urls[0]))
	}
	return segments[0], segments[1], nil
}

func (g *Git) ReleaseTarget(ctx context.Context) (string, bool, error) {
	ref, err := g.CurrentRef(ctx)
	if err != nil {
		return "", false, err
	}
	if ref.Type != RefBranch {
		return "", false, nil
	}
	for target, patterns := range g.releasePatterns {
		for _, pattern := range patterns {
			if matched, _ := filepath.Match(pattern, ref.Name); matched {
				return target, true, nil
			}
		}
	}
	return "", false, nil
}
