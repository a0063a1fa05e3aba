package module

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"

	derrors "github.com/suntomi/deplo/pkg/errors"
	"github.com/suntomi/deplo/pkg/shell"
	"github.com/suntomi/deplo/pkg/value"
)

// Run dispatches resolved's entrypoint for the given role and host OS,
// encoding `with` per the manifest's option_format and injecting it as
// DEPLO_MODULE_OPTION_STRING(_FORMAT) -- spec.md §4.4.
func (r *Resolved) Run(ctx context.Context, driver *shell.Driver, entry EntryPointType, os_ shell.OS, env map[string]value.Value, with map[string]value.AnyValue, extraArgs []string, settings shell.Settings) (*shell.Result, error) {
	byOS, ok := r.Manifest.Entrypoints[entry]
	if !ok {
		return nil, derrors.ModuleError(r.Manifest.Name, "run", fmt.Errorf("module has no %q entrypoint", entry))
	}
	argv, ok := byOS[string(os_)]
	if !ok {
		return nil, derrors.ModuleError(r.Manifest.Name, "run", fmt.Errorf("module has no %q entrypoint for OS %q", entry, os_))
	}
	argv = append(append([]string{}, argv...), extraArgs...)

	optionString, err := encodeOptions(with, r.Manifest.OptionFormat)
	if err != nil {
		return nil, derrors.ModuleError(r.Manifest.Name, "encode options", err)
	}

	moduleEnv := make(map[string]value.Value, len(env)+2)
	for k, v := range env {
		moduleEnv[k] = v
	}
	moduleEnv["DEPLO_MODULE_OPTION_STRING"] = value.NewLiteral(optionString)
	moduleEnv["DEPLO_MODULE_OPTION_STRING_FORMAT"] = value.NewLiteral(string(r.Manifest.OptionFormat))

	cwd := r.Dir
	if r.Manifest.Workdir != "" {
		cwd = filepath.Join(r.Dir, r.Manifest.Workdir)
	}

	return driver.Exec(ctx, argv, moduleEnv, cwd, settings)
}

func encodeOptions(with map[string]value.AnyValue, format OptionFormat) (string, error) {
	resolved := make(map[string]interface{}, len(with))
	for k, v := range with {
		resolved[k] = v.Resolve()
	}
	switch format {
	case OptionFormatTOML:
		data, err := toml.Marshal(resolved)
		return string(data), err
	default:
		data, err := json.Marshal(resolved)
		return string(data), err
	}
}
