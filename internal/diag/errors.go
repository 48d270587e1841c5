package diag

import "fmt"

// Kind is the closed taxonomy of compiler error categories (spec §7).
// Kept as a small stdlib-only enum-plus-struct rather than a third-party
// errors package: the taxonomy is fixed at five variants with no
// multi-level wrapping chains, and none of the libraries pulled in
// elsewhere in the pack (zap, cobra, testify) offer typed-error dispatch
// that would improve on a plain switch over Kind — see DESIGN.md.
type Kind int

const (
	// KindSource: unknown identifier, type mismatch, missing field — most
	// should be caught by the checker; the lowerer re-reports only if
	// encountered (spec §7, §4.1).
	KindSource Kind = iota
	// KindInternalInvariant: SSA verifier failure, missing home during
	// regalloc, fixup target not found.
	KindInternalInvariant
	// KindCapacityExhausted: regalloc cannot find a register or spill
	// victim.
	KindCapacityExhausted
	// KindUnsupportedConstruct: an AST form the lowerer isn't built to
	// handle.
	KindUnsupportedConstruct
	// KindIO: writing the object file failed.
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindSource:
		return "SourceError"
	case KindInternalInvariant:
		return "InternalInvariant"
	case KindCapacityExhausted:
		return "CapacityExhausted"
	case KindUnsupportedConstruct:
		return "UnsupportedConstruct"
	case KindIO:
		return "IoError"
	default:
		return "UnknownError"
	}
}

// Fatal is the value panicked by Reporter.Fatalf. Pipeline entry points
// recover it and turn it back into a normal error.
type Fatal struct {
	Kind     Kind
	Phase    string
	Function string
	Message  string
}

func (f *Fatal) Error() string {
	if f.Function != "" {
		return fmt.Sprintf("%s in phase %q (function %q): %s", f.Kind, f.Phase, f.Function, f.Message)
	}
	return fmt.Sprintf("%s in phase %q: %s", f.Kind, f.Phase, f.Message)
}

// Recover turns a recovered panic value into an error if it was a *Fatal,
// re-panicking anything else (a real bug, not a reported compiler error).
func Recover(rec any) error {
	if rec == nil {
		return nil
	}
	if f, ok := rec.(*Fatal); ok {
		return f
	}
	panic(rec)
}
