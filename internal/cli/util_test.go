package cli

import (
	"reflect"
	"testing"

	"github.com/suntomi/deplo/pkg/value"
)

func TestSplitCommaList(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"a", []string{"a"}},
		{"a,b,c", []string{"a", "b", "c"}},
		{"a, b , ,c", []string{"a", "b", "c"}},
	}
	for _, c := range cases {
		got := splitCommaList(c.in)
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("splitCommaList(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParseEnvFlags(t *testing.T) {
	got := parseEnvFlags([]string{"A=1", "B=two", "NOEQUALS"})
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	if got["A"].Resolve() != "1" {
		t.Errorf("expected A=1, got %v", got["A"].Resolve())
	}
	if got["B"].Resolve() != "two" {
		t.Errorf("expected B=two, got %v", got["B"].Resolve())
	}
	if got["NOEQUALS"].Resolve() != "" {
		t.Errorf("expected empty value for bare key, got %v", got["NOEQUALS"].Resolve())
	}
}

func TestParseEnvFlags_Empty(t *testing.T) {
	if got := parseEnvFlags(nil); got != nil {
		t.Errorf("expected nil for no pairs, got %v", got)
	}
}

func TestMergeEnvMaps(t *testing.T) {
	base := map[string]value.Value{"A": value.New("base-a"), "B": value.New("base-b")}
	override := map[string]value.Value{"B": value.New("override-b"), "C": value.New("override-c")}
	merged := mergeEnvMaps(base, override)

	if merged["A"].Resolve() != "base-a" {
		t.Errorf("expected A from base, got %v", merged["A"].Resolve())
	}
	if merged["B"].Resolve() != "override-b" {
		t.Errorf("expected B overridden, got %v", merged["B"].Resolve())
	}
	if merged["C"].Resolve() != "override-c" {
		t.Errorf("expected C from override, got %v", merged["C"].Resolve())
	}
}
