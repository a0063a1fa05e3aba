// Package value implements deferred, typed resolution of "${name}"
// references into secrets, variables, or literal strings (C1 in the design).
//
// Resolution is deliberately lazy: a Value parsed from a config file keeps
// carrying its original "${IDENT}" form through in-memory use and JSON
// round-trips, and only calls out to a registered accessor at the point a
// caller asks for the resolved string. That is what lets a WorkflowRun get
// serialized into a remote-dispatch payload without ever writing a secret to
// disk or over the wire.
package value

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
)

// Kind identifies which accessor class resolves a reference.
type Kind string

const (
	// KindNone marks a literal (non-reference) value.
	KindNone Kind = ""
	// KindSecret marks a reference resolved through the secret accessor.
	KindSecret Kind = "secret"
	// KindVar marks a reference resolved through the variable accessor.
	KindVar Kind = "var"
)

var refPattern = regexp.MustCompile(`^\$\{([A-Za-z_][A-Za-z0-9_]*)\}$`)

// Accessor resolves an identifier to a value. It returns ok=false when the
// identifier is unknown to it -- resolution never panics on a dangling
// reference.
type Accessor func(ident string) (string, bool)

// registry is the process-wide, read-mostly resolver registry (§4.1, §5):
// IDENT -> which Kind answers it, plus Kind -> Accessor. Both maps are
// populated once during setup (ConfigStore building secrets/vars sections)
// and read per Resolve() call under a reader lock.
type registryState struct {
	mu        sync.RWMutex
	kindOf    map[string]Kind
	accessors map[Kind]Accessor
}

var global = &registryState{
	kindOf:    map[string]Kind{},
	accessors: map[Kind]Accessor{},
}

// RegisterAccessor installs the accessor function for a resolver kind.
func RegisterAccessor(kind Kind, accessor Accessor) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.accessors[kind] = accessor
}

// RegisterIdent declares that ident resolves through the given kind. Called
// once per declared secret/var name while building the ConfigStore.
func RegisterIdent(ident string, kind Kind) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.kindOf[ident] = kind
}

// Reset clears the registry. Exposed for tests.
func Reset() {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.kindOf = map[string]Kind{}
	global.accessors = map[Kind]Accessor{}
}

// resolve looks up which kind answers for ident, then calls its accessor.
// Falls back to KindSecret when the ident was never declared -- an
// undeclared "${FOO}" is still attempted against the secret backend before
// giving up, matching the original implementation's single secret_resolver
// default.
func resolve(ident string) (string, bool) {
	global.mu.RLock()
	kind, declared := global.kindOf[ident]
	if !declared {
		kind = KindSecret
	}
	accessor, ok := global.accessors[kind]
	global.mu.RUnlock()
	if !ok {
		return "", false
	}
	return accessor(ident)
}

func kindOf(ident string) Kind {
	global.mu.RLock()
	defer global.mu.RUnlock()
	if k, ok := global.kindOf[ident]; ok {
		return k
	}
	return KindSecret
}

// Value is a string with an optional resolver, parsed once at load time.
type Value struct {
	raw   string // original literal, e.g. "${API_KEY}" or "plain-text"
	ident string // IDENT when this is a reference
	ref   bool
}

// New parses s into a Value: if s matches ^\$\{IDENT\}$ it becomes a
// reference carrying IDENT; otherwise it is a literal.
func New(s string) Value {
	if m := refPattern.FindStringSubmatch(s); m != nil {
		return Value{raw: s, ident: m[1], ref: true}
	}
	return Value{raw: s}
}

// NewLiteral builds a Value that never resolves, even if its text happens to
// look like a reference. Used for values already resolved upstream (e.g. a
// module's rendered `with` map after substitution).
func NewLiteral(s string) Value {
	return Value{raw: s}
}

// IsReference reports whether this value is a "${IDENT}" reference.
func (v Value) IsReference() bool {
	return v.ref
}

// Kind returns the resolver kind that currently answers for this reference
// (KindNone for literals).
func (v Value) Kind() Kind {
	if !v.ref {
		return KindNone
	}
	return kindOf(v.ident)
}

// Ident returns the identifier this value references, or "" if it is not a
// reference.
func (v Value) Ident() string {
	return v.ident
}

// Resolve returns the resolved string. If this is not a reference, it
// returns the literal text unchanged. If it is a reference but no accessor
// answers for the identifier, the original "${IDENT}" text is returned
// unchanged -- resolution never errors or panics on a dangling reference.
func (v Value) Resolve() string {
	if !v.ref {
		return v.raw
	}
	if resolved, ok := resolve(v.ident); ok {
		return resolved
	}
	return v.raw
}

// String implements the masked debug/log form: "<secret:IDENT>" or
// "<var:IDENT>" for references, the literal text otherwise. Never prints the
// resolved value.
func (v Value) String() string {
	if v.ref {
		return fmt.Sprintf("<%s:%s>", v.Kind(), v.ident)
	}
	return v.raw
}

// GoString satisfies fmt's %#v/debug formatting with the same masking rule.
func (v Value) GoString() string {
	return v.String()
}

// Equal compares two Values by their resolved form. Two references that
// resolve to the same string are equal even if they carry different idents;
// a dangling reference resolves to its own raw "${IDENT}" text, so it still
// compares equal to a literal spelled the same way.
func (v Value) Equal(other Value) bool {
	return v.Resolve() == other.Resolve()
}

// MarshalJSON serializes the original, unresolved literal -- this is what
// keeps a WorkflowRun dispatched to a remote runner from leaking secrets in
// the payload.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.raw)
}

// UnmarshalJSON reconstructs a Value from its literal form, re-detecting the
// reference exactly as New would.
func (v *Value) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*v = New(s)
	return nil
}
