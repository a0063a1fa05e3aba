package config

import "github.com/suntomi/deplo/pkg/secretstore"

// Store is the parsed, validated configuration tree (C3): workflows, jobs,
// release targets, CI accounts, the VCS account, module sources, and debug
// flags. It is built once by Load and is immutable afterward -- callers
// share it as a plain pointer, matching spec.md §9's "clean re-architecture"
// note that no interior mutation is needed once setup (resolver
// registration) has run.
type Store struct {
	ProjectName string
	Workdir     string
	DataDir     string

	Jobs          map[string]*Job
	Workflows     map[string]*Workflow
	ReleaseTargets map[string]*ReleaseTarget
	CIAccounts    map[string]*CIAccount
	VCS           *VCSAccount
	Modules       map[string]*ModuleSource
	ModuleCache   ModuleCache
	Debug         map[string]string

	// Secrets holds the declarations parsed from the secrets: section,
	// keyed by name -- the CLI's `ci setenv`/`getenv` commands resolve and
	// push/list these, and ResolveSecret resolves a value via SecretStore.
	Secrets     map[string]secretstore.Declaration
	SecretStore *secretstore.Store
}

// ResolveSecret resolves name's declared value through the secret store.
func (s *Store) ResolveSecret(name string) (string, error) {
	decl, ok := s.Secrets[name]
	if !ok {
		return "", &SecretNotDeclaredError{Name: name}
	}
	return s.SecretStore.Resolve(name, decl)
}

// SecretNotDeclaredError reports a secret name with no secrets: entry.
type SecretNotDeclaredError struct{ Name string }

func (e *SecretNotDeclaredError) Error() string {
	return "secret " + e.Name + " is not declared"
}

// CIByDefault returns the account keyed "default", the fallback used when
// no CI-type match is found.
func (s *Store) CIByDefault() (*CIAccount, bool) {
	a, ok := s.CIAccounts["default"]
	return a, ok
}

// CIByEnv selects the CI account whose kind matches the given CI type
// (typically DEPLO_CI_TYPE or a CI-detected equivalent), falling back to
// the default account when nothing matches.
func (s *Store) CIByEnv(ciType string) (*CIAccount, bool) {
	var want CIAccountKind
	switch ciType {
	case "ghaction", "github-actions", "GitHub Actions":
		want = CIAccountGhAction
	case "circleci", "CircleCI":
		want = CIAccountCircleCI
	default:
		return s.CIByDefault()
	}
	for _, a := range s.CIAccounts {
		if a.Kind == want {
			return a, true
		}
	}
	return s.CIByDefault()
}

// JobsForWorkflow returns the jobs whose `on` list names workflowName, in
// dependency order (a job always appears after everything in its Depends
// list). A dependency cycle breaks the ordering guarantee rather than
// hanging -- cyclic `depends` is a config error callers are expected to
// catch separately, not a case this needs to detect twice.
func (s *Store) JobsForWorkflow(workflowName string) []*Job {
	var selected []*Job
	for _, j := range s.Jobs {
		for _, on := range j.On {
			if on == workflowName {
				selected = append(selected, j)
				break
			}
		}
	}
	return topoSort(selected)
}

func topoSort(jobs []*Job) []*Job {
	byName := make(map[string]*Job, len(jobs))
	for _, j := range jobs {
		byName[j.Name] = j
	}
	visited := map[string]bool{}
	ordered := make([]*Job, 0, len(jobs))
	var visit func(j *Job)
	visit = func(j *Job) {
		if visited[j.Name] {
			return
		}
		visited[j.Name] = true
		for _, dep := range j.Depends {
			if d, ok := byName[dep]; ok {
				visit(d)
			}
		}
		ordered = append(ordered, j)
	}
	for _, j := range jobs {
		visit(j)
	}
	return ordered
}

// ResourceName derives the canonical name for a generated resource (branch
// prefixes, CI workflow file names, etc.) from the project name.
func (s *Store) ResourceName(suffix string) string {
	if suffix == "" {
		return s.ProjectName
	}
	return s.ProjectName + "-" + suffix
}
