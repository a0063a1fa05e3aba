package ci

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/suntomi/deplo/pkg/config"
)

// generateCircleCIYAML renders .circleci/config.yml analogous to
// generateGhActionYAML; CircleCI has no native "needs output" mechanism so
// the cleanup job always runs last, gated by `requires` on every job.
func generateCircleCIYAML(store *config.Store) []byte {
	var buf bytes.Buffer

	buf.WriteString("# Generated by deplo. Do not edit by hand.\n")
	buf.WriteString("version: 2.1\n\n")

	buf.WriteString("jobs:\n")
	names := sortedJobNames(store.Jobs)
	for _, name := range names {
		writeCircleCIJob(&buf, store.Jobs[name])
	}
	buf.WriteString("  deplo-cleanup:\n")
	buf.WriteString("    docker:\n")
	buf.WriteString("      - image: cimg/base:current\n")
	buf.WriteString("    steps:\n")
	buf.WriteString("      - checkout\n")
	buf.WriteString("      - run: deplo job run-cleanup\n")
	buf.WriteString("\n")

	buf.WriteString("workflows:\n")
	buf.WriteString("  deplo-main:\n")
	buf.WriteString("    jobs:\n")
	for _, name := range names {
		writeCircleCIWorkflowEntry(&buf, store.Jobs[name])
	}
	buf.WriteString("      - deplo-cleanup:\n")
	buf.WriteString("          requires:\n")
	for _, name := range names {
		buf.WriteString(fmt.Sprintf("            - %s\n", sanitizeID(name)))
	}

	return buf.Bytes()
}

func writeCircleCIJob(buf *bytes.Buffer, job *config.Job) {
	buf.WriteString(fmt.Sprintf("  %s:\n", sanitizeID(job.Name)))
	buf.WriteString("    docker:\n")
	buf.WriteString(fmt.Sprintf("      - image: %s\n", circleCIImageFor(job)))
	buf.WriteString("    steps:\n")
	if job.Checkout {
		buf.WriteString("      - checkout\n")
	}
	buf.WriteString(fmt.Sprintf("      - run: deplo run %s\n", job.Name))
	buf.WriteString("\n")
}

func writeCircleCIWorkflowEntry(buf *bytes.Buffer, job *config.Job) {
	id := sanitizeID(job.Name)
	if len(job.Depends) == 0 {
		buf.WriteString(fmt.Sprintf("      - %s\n", id))
		return
	}
	buf.WriteString(fmt.Sprintf("      - %s:\n", id))
	buf.WriteString("          requires:\n")
	deps := append([]string{}, job.Depends...)
	for _, dep := range deps {
		buf.WriteString(fmt.Sprintf("            - %s\n", sanitizeID(dep)))
	}
}

func circleCIImageFor(job *config.Job) string {
	if job.Runner.Kind == config.RunnerContainer {
		// ContainerImage is a value.Value -- its literal form is shown here
		// since the config-time image name never carries a secret.
		return strings.TrimSpace(job.Runner.ContainerImage.String())
	}
	return "cimg/base:current"
}
