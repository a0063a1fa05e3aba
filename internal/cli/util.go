package cli

import (
	"strings"

	"github.com/suntomi/deplo/pkg/value"
)

func splitCommaList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseEnvFlags turns repeated --env K=V flags into the map ExecOptions.Envs
// expects, each value wrapped as a literal (already-resolved) value.Value.
func parseEnvFlags(pairs []string) map[string]value.Value {
	if len(pairs) == 0 {
		return nil
	}
	out := make(map[string]value.Value, len(pairs))
	for _, pair := range pairs {
		idx := strings.Index(pair, "=")
		if idx < 0 {
			out[pair] = value.New("")
			continue
		}
		out[pair[:idx]] = value.New(pair[idx+1:])
	}
	return out
}

// mergeEnvMaps layers override on top of base, override winning on collision.
func mergeEnvMaps(base, override map[string]value.Value) map[string]value.Value {
	merged := make(map[string]value.Value, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}
