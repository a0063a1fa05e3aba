package job

import (
	"context"

	derrors "github.com/suntomi/deplo/pkg/errors"
	"github.com/suntomi/deplo/pkg/vcs"
)

const tmpCheckoutBranch = "deplo-tmp-workspace"

// CheckoutRevision implements the commit-hash handling in spec.md §4.7: off
// CI, checkout <rev> onto a temporary branch and return the restore hook;
// on CI, verify HEAD already equals the requested commit (a CI runner is
// expected to have checked it out itself) and fail loudly if not, since a
// mismatch there means misconfigured CI checkout, not something to silently
// route around.
func CheckoutRevision(ctx context.Context, collaborator vcs.VCS, rev string, onCI bool) (func(context.Context) error, error) {
	if rev == "" {
		return func(context.Context) error { return nil }, nil
	}

	if onCI {
		ref, err := collaborator.CurrentRef(ctx)
		if err != nil {
			return nil, err
		}
		if ref.Type != vcs.RefCommit || ref.Name != rev {
			return nil, derrors.New(derrors.ErrCodeVCS, "CI checkout does not match exec.revision; check the pipeline's checkout step")
		}
		return func(context.Context) error { return nil }, nil
	}

	return collaborator.Checkout(ctx, rev, tmpCheckoutBranch)
}
