// Package diag is the process-wide error reporter and phase tracer shared
// by every pipeline component (spec §5, §6, §7). It owns two concerns that
// the teacher kept as a single `[]string` of accumulated messages and an
// ad-hoc `compilerDebug` bool: Report accumulates diagnostics, while Fatalf
// aborts the current compilation immediately with whatever Kind the caller
// passes.
package diag

import (
	"fmt"

	"go.uber.org/zap"
)

// Severity mirrors spec §6's `(severity, position, message)` reporter
// contract.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityNote
)

// Position is a source position, opaque to the core beyond printing it.
type Position struct {
	File string
	Line int
	Col  int
}

func (p Position) String() string {
	if p.File == "" {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Col)
}

// Diagnostic is one reported item.
type Diagnostic struct {
	Severity Severity
	Pos      Position
	Message  string
}

// Reporter accumulates SourceErrors and exposes phase-scoped tracing over
// a zap logger. The first fatal error aborts the pipeline by panicking with
// a *Fatal value; whoever drives the pipeline (in this repository, the
// tests) recovers it with Recover.
type Reporter struct {
	log   *zap.Logger
	diags []Diagnostic
}

// NewReporter wraps a zap logger. Pass zap.NewNop() in tests that don't
// care about trace output.
func NewReporter(log *zap.Logger) *Reporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reporter{log: log}
}

// Report records a non-fatal diagnostic (typically a SourceError).
func (r *Reporter) Report(sev Severity, pos Position, format string, args ...any) {
	r.diags = append(r.diags, Diagnostic{Severity: sev, Pos: pos, Message: fmt.Sprintf(format, args...)})
}

// Diagnostics returns every diagnostic recorded so far.
func (r *Reporter) Diagnostics() []Diagnostic { return r.diags }

// HasErrors reports whether any SeverityError diagnostic was recorded.
// Per §7's propagation policy, the pipeline must stop before codegen if
// this is true, even though compilation "proceeds through the checker".
func (r *Reporter) HasErrors() bool {
	for _, d := range r.diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Phase returns a child logger scoped to one pipeline phase, for
// COT_DEBUG=<phases> style tracing (spec §6). This package does not read
// COT_DEBUG itself.
func (r *Reporter) Phase(name string) *zap.Logger {
	return r.log.Named(name)
}

// Fatalf aborts the current compilation immediately by panicking with a
// *Fatal carrying the kind, the phase and, where known, the function name.
// It does not restrict the kind: besides InternalInvariant and
// CapacityExhausted, the lowerer and the emitters also abort through here
// with UnsupportedConstruct, and the lowerer with SourceError for a
// missing type or an unknown field.
func (r *Reporter) Fatalf(kind Kind, phase, function, format string, args ...any) {
	panic(&Fatal{Kind: kind, Phase: phase, Function: function, Message: fmt.Sprintf(format, args...)})
}
