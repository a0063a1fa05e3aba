package value

import (
	"encoding/json"
	"fmt"
	"time"
)

// AnyValue is a heterogeneous scalar -- string, int64, float64, bool,
// time.Time, []AnyValue, or map[string]AnyValue -- mirroring the TOML value
// model (the original implementation's AnyValue was literally a
// toml::value::Value). The same lazy-resolution rule as Value applies when
// the underlying value is a string: resolution is deferred to use, and is
// identity for every non-string alternate other than type-appropriate
// stringification.
type AnyValue struct {
	str   *Value
	inner interface{} // set when not a string alternate
}

// NewAny builds an AnyValue from a decoded scalar. Strings get the
// ${IDENT}-detection treatment via New; every other type is wrapped as-is.
func NewAny(v interface{}) AnyValue {
	switch t := v.(type) {
	case string:
		val := New(t)
		return AnyValue{str: &val}
	case AnyValue:
		return t
	case nil:
		return AnyValue{}
	case []interface{}:
		arr := make([]AnyValue, len(t))
		for i, e := range t {
			arr[i] = NewAny(e)
		}
		return AnyValue{inner: arr}
	case map[string]interface{}:
		tbl := make(map[string]AnyValue, len(t))
		for k, e := range t {
			tbl[k] = NewAny(e)
		}
		return AnyValue{inner: tbl}
	default:
		return AnyValue{inner: v}
	}
}

// IsString reports whether the underlying alternate is a string (and
// therefore subject to ${IDENT} resolution).
func (a AnyValue) IsString() bool {
	return a.str != nil
}

// Resolve returns the resolved scalar: for a string alternate this defers to
// Value.Resolve(); for everything else it's the identity, recursing into
// arrays/tables.
func (a AnyValue) Resolve() interface{} {
	if a.str != nil {
		return a.str.Resolve()
	}
	switch t := a.inner.(type) {
	case []AnyValue:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = e.Resolve()
		}
		return out
	case map[string]AnyValue:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = e.Resolve()
		}
		return out
	default:
		return t
	}
}

// String renders the masked debug form for string alternates (delegating to
// Value.String()) and a type-appropriate stringification otherwise.
func (a AnyValue) String() string {
	if a.str != nil {
		return a.str.String()
	}
	switch t := a.inner.(type) {
	case nil:
		return ""
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// MarshalJSON mirrors Value's: strings serialize their original literal
// form, everything else serializes the underlying scalar directly.
func (a AnyValue) MarshalJSON() ([]byte, error) {
	if a.str != nil {
		return json.Marshal(*a.str)
	}
	return json.Marshal(a.inner)
}

// UnmarshalJSON decodes into the matching alternate, re-running ${IDENT}
// detection for string alternates.
func (a *AnyValue) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = NewAny(raw)
	return nil
}
