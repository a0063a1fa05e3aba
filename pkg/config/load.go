package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	derrors "github.com/suntomi/deplo/pkg/errors"
	"github.com/suntomi/deplo/pkg/secretstore"
	"github.com/suntomi/deplo/pkg/value"
)

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// substituteEnv performs the pre-parse ${ENV} literal replacement: any
// ${IDENT} whose name is set in the process environment is inlined,
// escaping backslashes and newlines so a multiline value stays valid TOML.
// An ${IDENT} that isn't set in the process environment is left untouched
// -- it is picked up later as a secret/var reference once the config's own
// secrets/vars sections register their accessors, per spec.md §4.3/§4.1.
func substituteEnv(data []byte) []byte {
	return envRefPattern.ReplaceAllFunc(data, func(m []byte) []byte {
		sub := envRefPattern.FindSubmatch(m)
		name := string(sub[1])
		v, ok := os.LookupEnv(name)
		if !ok {
			return m
		}
		v = strings.ReplaceAll(v, `\`, `\\`)
		v = strings.ReplaceAll(v, "\n", `\n`)
		return []byte(v)
	})
}

// Load reads and parses a Deplo config file from disk.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, derrors.Wrap(derrors.ErrCodeConfig, fmt.Sprintf("failed to read %s", path), err)
	}
	return LoadBytes(data, filepath.Dir(path))
}

// LoadBytes parses config source already in memory (Load calls it with the
// file's contents). workdir anchors relative data_dir/module paths.
func LoadBytes(data []byte, workdir string) (*Store, error) {
	data = substituteEnv(data)

	var raw map[string]interface{}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, derrors.Wrap(derrors.ErrCodeConfig, "failed to parse TOML", err)
	}

	s := &Store{
		Workdir:        workdir,
		Jobs:           map[string]*Job{},
		Workflows:      map[string]*Workflow{},
		ReleaseTargets: map[string]*ReleaseTarget{},
		CIAccounts:     map[string]*CIAccount{},
		Modules:        map[string]*ModuleSource{},
		Debug:          map[string]string{},
	}

	s.ProjectName = stringField(raw, "project_name", "")
	s.DataDir = stringField(raw, "data_dir", ".deplo")
	if !filepath.IsAbs(s.DataDir) {
		s.DataDir = filepath.Join(workdir, s.DataDir)
	}

	secretDecls := map[string]secretstore.Declaration{}
	varDecls := map[string]secretstore.Declaration{}

	if secrets, ok := raw["secrets"].(map[string]interface{}); ok {
		for name, v := range secrets {
			decl, targets := parseDeclaration(v)
			decl.Targets = targets
			secretDecls[name] = decl
			value.RegisterIdent(name, value.KindSecret)
		}
	}
	if vars, ok := raw["vars"].(map[string]interface{}); ok {
		for name, v := range vars {
			decl, _ := parseDeclaration(v)
			varDecls[name] = decl
			value.RegisterIdent(name, value.KindVar)
		}
	}

	store := secretstore.New(workdir, os.Getenv("DEPLO_RELEASE_TARGET"), os.Getenv("CI") != "")
	value.RegisterAccessor(value.KindSecret, store.Accessor(secretDecls))
	value.RegisterAccessor(value.KindVar, store.Accessor(varDecls))
	s.Secrets = secretDecls
	s.SecretStore = store

	if jobs, ok := raw["jobs"].(map[string]interface{}); ok {
		for name, v := range jobs {
			tbl, ok := v.(map[string]interface{})
			if !ok {
				return nil, derrors.ConfigError(fmt.Sprintf("jobs.%s must be a table", name), nil)
			}
			job, err := parseJob(name, tbl)
			if err != nil {
				return nil, err
			}
			s.Jobs[name] = job
		}
	}

	if workflows, ok := raw["workflows"].(map[string]interface{}); ok {
		for name, v := range workflows {
			tbl, _ := v.(map[string]interface{})
			wf, err := parseWorkflow(name, tbl)
			if err != nil {
				return nil, err
			}
			s.Workflows[name] = wf
		}
	}
	if err := ensureReservedWorkflows(s); err != nil {
		return nil, err
	}
	if err := validateWorkflowCardinality(s); err != nil {
		return nil, err
	}

	if targets, ok := raw["release_targets"].(map[string]interface{}); ok {
		for name, v := range targets {
			tbl, _ := v.(map[string]interface{})
			s.ReleaseTargets[name] = parseReleaseTarget(name, tbl)
		}
	}

	if ci, ok := raw["ci"].(map[string]interface{}); ok {
		for name, v := range ci {
			tbl, _ := v.(map[string]interface{})
			acc, err := parseCIAccount(name, tbl)
			if err != nil {
				return nil, err
			}
			s.CIAccounts[name] = acc
		}
	}

	if vcs, ok := raw["vcs"].(map[string]interface{}); ok {
		acc, err := parseVCSAccount(vcs)
		if err != nil {
			return nil, err
		}
		s.VCS = acc
	}

	if modules, ok := raw["modules"].(map[string]interface{}); ok {
		for name, v := range modules {
			tbl, _ := v.(map[string]interface{})
			src, err := parseModuleSource(tbl)
			if err != nil {
				return nil, err
			}
			s.Modules[name] = src
		}
	}

	if mc, ok := raw["module_cache"].(map[string]interface{}); ok {
		s.ModuleCache.Backend = stringField(mc, "backend", "")
		cfg := map[string]string{}
		for k, v := range mc {
			if k == "backend" {
				continue
			}
			cfg[k] = fmt.Sprintf("%v", v)
		}
		s.ModuleCache.Config = cfg
	}

	if debug, ok := raw["debug"].(map[string]interface{}); ok {
		for k, v := range debug {
			s.Debug[k] = fmt.Sprintf("%v", v)
		}
	}

	return s, nil
}

func ensureReservedWorkflows(s *Store) error {
	if _, ok := s.Workflows["deploy"]; !ok {
		s.Workflows["deploy"] = &Workflow{Name: "deploy", Kind: WorkflowDeploy}
	}
	if _, ok := s.Workflows["integrate"]; !ok {
		s.Workflows["integrate"] = &Workflow{Name: "integrate", Kind: WorkflowIntegrate}
	}
	return nil
}

func validateWorkflowCardinality(s *Store) error {
	crons, repos := 0, 0
	for _, wf := range s.Workflows {
		switch wf.Kind {
		case WorkflowCron:
			crons++
		case WorkflowRepository:
			repos++
		}
	}
	if crons > 1 {
		return derrors.ConfigError("at most one cron workflow may be defined", nil)
	}
	if repos > 1 {
		return derrors.ConfigError("at most one repository workflow may be defined", nil)
	}
	return nil
}
