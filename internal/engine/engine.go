// Package engine defines the surface a script execution engine exposes to
// the debug core.
//
// The core never drives execution. The engine calls into the core at
// checkpoints and diagnostics; the core calls back through these contracts to
// inspect the paused world: the live call stack, each frame's lexical
// environment chain, and expression evaluation.
package engine

import "fmt"

// Location identifies a position in debuggee source. Inside the engine and
// the core, Path is relative to the session's source prefix; it is translated
// to an absolute path only at the front-end boundary.
type Location struct {
	Path   string `json:"path"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// String renders the location as path:line:column.
func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.Path, l.Line, l.Column)
}

// RecordKind classifies a node of an environment chain. The set is closed:
// the core treats any other value as a programming error in the engine.
type RecordKind int

const (
	// RecordGlobal is the outermost, program-wide environment.
	RecordGlobal RecordKind = iota
	// RecordFunctionLocal holds a function invocation's locals.
	RecordFunctionLocal
	// RecordDeclarative holds block-scoped declarations.
	RecordDeclarative
	// RecordDynamic is backed by a runtime object, as created by with-style
	// constructs.
	RecordDynamic
)

// Record is one node of a frame's parent-linked lexical environment chain.
type Record interface {
	// Kind classifies the record.
	Kind() RecordKind
	// FunctionName is the original name of the owning function for
	// RecordFunctionLocal records; empty means the function is anonymous.
	FunctionName() string
	// Parent is the next-outer record, nil at the end of the chain.
	Parent() Record
	// Bindings lists the record's bindings in declaration order.
	Bindings() []Binding
}

// Binding is one named value in a record or inside a structured value.
type Binding struct {
	Name  string
	Value Value
}

// Value is a debuggee value prepared for inspection.
type Value interface {
	// String is the display representation.
	String() string
	// TypeName names the debuggee-level type, empty if unknown.
	TypeName() string
	// Children lists the members of a structured value, nil for scalars.
	Children() []Binding
}

// Frame is one entry of the live call stack.
type Frame interface {
	// FunctionName is the original name of the called value; empty means
	// anonymous.
	FunctionName() string
	// InvocationSite is the source location of the call currently in
	// progress inside this frame. The second result is false when no call
	// is in flight, which is the usual state of the innermost frame.
	InvocationSite() (Location, bool)
	// Environment is the innermost record of the frame's environment chain.
	Environment() Record
}

// Engine is the paused-world surface the core inspects.
type Engine interface {
	// CallStack returns the live stack ordered outermost to innermost.
	CallStack() []Frame
	// Evaluate evaluates an expression in the context of a frame.
	Evaluate(frame Frame, expression string) (Value, error)
}

// Diagnostic is an engine-reported condition routed through the pause
// protocol. Diagnostics are data: the core formats and reports them but
// never treats them as core failures.
type Diagnostic struct {
	Severity Severity  `json:"severity"`
	Code     string    `json:"code"`
	Message  string    `json:"message"`
	Location *Location `json:"location,omitempty"`
}
