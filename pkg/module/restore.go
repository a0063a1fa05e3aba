package module

import (
	"context"

	"github.com/suntomi/deplo/pkg/config"
	"github.com/suntomi/deplo/pkg/shell"
)

// RestoreCache pre-warms the module cache by fetching every declared
// [modules.<name>] source that isn't already cached, and optionally updates
// git submodules. Called by `deplo ci restore-cache` so a job's first
// `uses = "..."` reference doesn't pay the fetch cost mid-job; the generated
// CI YAML does not add a step that runs it.
func (r *Repository) RestoreCache(ctx context.Context, sources map[string]*config.ModuleSource, submodules bool, driver *shell.Driver, settings shell.Settings) error {
	for _, src := range sources {
		if src == nil {
			continue
		}
		if _, err := r.GetSource(ctx, *src); err != nil {
			return err
		}
	}
	if submodules {
		if _, err := driver.Exec(ctx, []string{"git", "submodule", "update", "--init", "--recursive"}, nil, "", settings); err != nil {
			return err
		}
	}
	return nil
}
