package module

import (
	"strings"

	"github.com/suntomi/deplo/pkg/config"
)

// ParseReference turns a `uses = "..."` string (a job step, a workflow
// Module variant, a CI/VCS account's module backend) into the matching
// config.ModuleSource variant. The conventions mirror the teacher's
// DetectReferenceType: an explicit "git::" prefix selects Git, a leading
// path prefix selects Local, an explicit "pkg::" prefix selects the
// reserved Package variant, and everything else is a Std reference of the
// form "<user>/<name>@<version>".
func ParseReference(ref string) config.ModuleSource {
	switch {
	case strings.HasPrefix(ref, "git::"):
		return parseGitRef(ref)
	case strings.HasPrefix(ref, "pkg::"):
		return config.ModuleSource{Kind: config.ModuleSourcePackage, URL: strings.TrimPrefix(ref, "pkg::")}
	case strings.HasPrefix(ref, "./"), strings.HasPrefix(ref, "../"), strings.HasPrefix(ref, "/"):
		return config.ModuleSource{Kind: config.ModuleSourceLocal, Path: ref}
	default:
		return config.ModuleSource{Kind: config.ModuleSourceStd, Std: ref}
	}
}

// parseGitRef parses "git::https://host/org/repo.git?rev=<hash>" or
// "...?tag=<tag>".
func parseGitRef(ref string) config.ModuleSource {
	body := strings.TrimPrefix(ref, "git::")
	url := body
	rev, tag := "", ""
	if idx := strings.Index(body, "?"); idx != -1 {
		url = body[:idx]
		query := body[idx+1:]
		for _, param := range strings.Split(query, "&") {
			kv := strings.SplitN(param, "=", 2)
			if len(kv) != 2 {
				continue
			}
			switch kv[0] {
			case "rev":
				rev = kv[1]
			case "tag":
				tag = kv[1]
			}
		}
	}
	return config.ModuleSource{Kind: config.ModuleSourceGit, Git: url, Rev: rev, Tag: tag}
}
