package module

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"

	deploconfig "github.com/suntomi/deplo/pkg/config"
	"github.com/suntomi/deplo/pkg/oci"
)

// gitFetcher fetches Std (treated as an OCI artifact by convention) and Git
// module sources, mirroring the teacher's resolveGit/resolveOCI branching in
// pkg/resolver/resolver.go.
type gitFetcher struct{}

func (gitFetcher) fetch(ctx context.Context, src deploconfig.ModuleSource, dest string) error {
	switch src.Kind {
	case deploconfig.ModuleSourceGit:
		return fetchGit(ctx, src, dest)
	case deploconfig.ModuleSourceStd:
		return fetchStd(ctx, src, dest)
	default:
		return fmt.Errorf("unsupported module source kind %q", src.Kind)
	}
}

// fetchGit clones a tag with a shallow branch/tag clone, or a specific
// revision via a pinned refspec fetch -- spec.md §4.4's two clone forms.
func fetchGit(ctx context.Context, src deploconfig.ModuleSource, dest string) error {
	if src.Tag != "" {
		_, err := git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{
			URL:           src.Git,
			Depth:         1,
			SingleBranch:  true,
			ReferenceName: plumbing.NewTagReferenceName(src.Tag),
		})
		return err
	}

	repo, err := git.PlainInit(dest, false)
	if err != nil {
		return err
	}
	remoteRef, err := repo.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{src.Git}})
	if err != nil {
		return err
	}
	refSpec := gitconfig.RefSpec(fmt.Sprintf("+%s:refs/remotes/origin/%s", src.Rev, src.Rev))
	if err := remoteRef.Fetch(&git.FetchOptions{RefSpecs: []gitconfig.RefSpec{refSpec}, Depth: 1}); err != nil {
		return err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	return wt.Checkout(&git.CheckoutOptions{Hash: plumbing.NewHash(src.Rev)})
}

// fetchStd resolves a "<user>/<name>@<version>" reference against the
// well-known module registry host, pulling it as an OCI artifact via
// pkg/oci.Client -- the same client C4's Std module resolution and the
// teacher's component/datacenter artifact push/pull share.
func fetchStd(ctx context.Context, src deploconfig.ModuleSource, dest string) error {
	client := oci.NewClient()
	reference := stdOCIReference(src.Std)
	if err := client.Pull(ctx, reference, dest); err != nil {
		return fmt.Errorf("failed to pull module %q: %w", src.Std, err)
	}
	return nil
}

// stdOCIReference maps "<user>/<name>@<version>" onto the deplo-modules
// registry namespace, e.g. "acme/terraform@v1" -> "ghcr.io/deplo-modules/acme/terraform:v1".
func stdOCIReference(std string) string {
	name, version, _ := strings.Cut(std, "@")
	if version == "" {
		version = "latest"
	}
	return fmt.Sprintf("ghcr.io/deplo-modules/%s:%s", name, version)
}

