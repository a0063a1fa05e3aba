// Package module implements the module reference resolver (C4): turning a
// module reference (std / git+rev / git+tag / local -- package is reserved)
// into a local manifest, fetching at most once per canonical key, and
// dispatching a module's role-specific entrypoint through the ShellDriver.
package module

// EntryPointType is a role a module can supply an entrypoint for.
type EntryPointType string

const (
	EntryPointStep EntryPointType = "step"
	EntryPointCI   EntryPointType = "ci"
	EntryPointVCS  EntryPointType = "vcs"
)

// OptionFormat is the encoding used for a module's injected option string.
type OptionFormat string

const (
	OptionFormatJSON OptionFormat = "json"
	OptionFormatTOML OptionFormat = "toml"
)

// Manifest is a module's Deplo.Module.toml (spec.md §3 "Module entry").
type Manifest struct {
	ConfigVersion string                                `toml:"config_version"`
	Name          string                                `toml:"name"`
	Author        string                                `toml:"author"`
	Entrypoints   map[EntryPointType]map[string][]string `toml:"entrypoints"`
	OptionFormat  OptionFormat                          `toml:"option_format"`
	Workdir       string                                `toml:"workdir"`
}

// Resolved is a module reference resolved to a local directory holding its
// manifest and supporting files.
type Resolved struct {
	Manifest Manifest
	Dir      string
}
