package ci

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/suntomi/deplo/pkg/commit"
	"github.com/suntomi/deplo/pkg/config"
)

// generateGhActionYAML renders deplo-main.yml: one dispatcher-style workflow
// with a job per configured Deplo job, needs-linked by Depends, plus a
// trailing cleanup job. Mirrors the teacher's buffer-based deterministic
// writer (sorted map keys throughout, so re-generating an unchanged config
// produces byte-identical output).
func generateGhActionYAML(store *config.Store) []byte {
	var buf bytes.Buffer

	buf.WriteString("# Generated by deplo. Do not edit by hand.\n")
	buf.WriteString("name: deplo-main\n")
	buf.WriteString("on:\n")
	buf.WriteString("  push:\n")
	buf.WriteString("  pull_request:\n")
	buf.WriteString("  schedule: []\n")
	buf.WriteString("  repository_dispatch:\n")
	buf.WriteString("    types: [deplo-run-remote-job, deplo-module-invoke]\n")
	buf.WriteString("  workflow_dispatch: {}\n")
	buf.WriteString("\n")
	buf.WriteString("jobs:\n")

	names := sortedJobNames(store.Jobs)
	for _, name := range names {
		job := store.Jobs[name]
		writeGhActionJob(&buf, job)
	}
	writeGhActionCleanupJob(&buf, names)

	return buf.Bytes()
}

func writeGhActionJob(buf *bytes.Buffer, job *config.Job) {
	buf.WriteString(fmt.Sprintf("  %s:\n", sanitizeID(job.Name)))
	buf.WriteString(fmt.Sprintf("    name: %s\n", job.Name))
	if len(job.Depends) > 0 {
		sorted := append([]string{}, job.Depends...)
		sort.Strings(sorted)
		buf.WriteString(fmt.Sprintf("    needs: [%s]\n", strings.Join(sanitizeIDs(sorted), ", ")))
	}
	buf.WriteString(fmt.Sprintf("    runs-on: %s\n", runsOnFor(job)))
	buf.WriteString("    outputs:\n")
	buf.WriteString("      need-cleanup: ${{ steps.deplo-main.outputs.need-cleanup }}\n")
	if len(job.Commits) > 0 {
		buf.WriteString(fmt.Sprintf("      %s: ${{ steps.deplo-main.outputs.%s }}\n", commit.SystemOutputKey, commit.SystemOutputKey))
	}
	buf.WriteString("    steps:\n")
	if job.Checkout {
		buf.WriteString("      - uses: actions/checkout@v4\n")
	}
	buf.WriteString("      - id: deplo-main\n")
	buf.WriteString(fmt.Sprintf("        run: deplo run %s\n", job.Name))
	buf.WriteString("\n")
}

func writeGhActionCleanupJob(buf *bytes.Buffer, jobNames []string) {
	if len(jobNames) == 0 {
		return
	}
	ids := sanitizeIDs(jobNames)
	buf.WriteString("  deplo-cleanup:\n")
	buf.WriteString("    name: deplo cleanup\n")
	buf.WriteString(fmt.Sprintf("    needs: [%s]\n", strings.Join(ids, ", ")))
	buf.WriteString("    if: >-\n")
	conds := make([]string, len(ids))
	for i, id := range ids {
		conds[i] = fmt.Sprintf("needs.%s.outputs.need-cleanup == 'true'", id)
	}
	buf.WriteString(fmt.Sprintf("      %s\n", strings.Join(conds, " || ")))
	buf.WriteString("    runs-on: ubuntu-latest\n")
	buf.WriteString("    steps:\n")
	buf.WriteString("      - uses: actions/checkout@v4\n")
	buf.WriteString("      - run: deplo job run-cleanup\n")
	buf.WriteString("\n")
}

func runsOnFor(job *config.Job) string {
	if job.Runner.Kind == config.RunnerContainer {
		return "ubuntu-latest"
	}
	switch job.Runner.OS {
	case "windows":
		return "windows-latest"
	case "macos", "darwin":
		return "macos-latest"
	default:
		return "ubuntu-latest"
	}
}

func sanitizeID(name string) string {
	r := strings.NewReplacer(" ", "-", "/", "-", ".", "-", "_", "-")
	return strings.ToLower(r.Replace(name))
}

func sanitizeIDs(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = sanitizeID(n)
	}
	return out
}

func sortedJobNames(jobs map[string]*config.Job) []string {
	names := make([]string, 0, len(jobs))
	for n := range jobs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
