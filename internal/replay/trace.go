// Package replay implements the engine contracts from a recorded execution
// trace, standing in for a live interpreter.
//
// A trace is a JSON recording of checkpoints: for every executable unit the
// original run visited, the unit's location, the full call stack with each
// frame's environment chain, and optionally a diagnostic raised there.
// Replaying a trace drives the debug core exactly like a live engine would,
// which is what the shipped server modes and the integration tests run on.
package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mstrand/haltpoint/internal/engine"
	"github.com/mstrand/haltpoint/internal/errors"
)

// Trace is a recorded execution.
type Trace struct {
	Version int         `json:"version"`
	Steps   []TraceStep `json:"steps"`
}

// TraceStep is one recorded checkpoint.
type TraceStep struct {
	Location   TraceLocation    `json:"location"`
	Stack      []TraceFrame     `json:"stack"`
	Diagnostic *TraceDiagnostic `json:"diagnostic,omitempty"`
}

// TraceLocation is a source position, relative to the session's source
// prefix like every location inside the core.
type TraceLocation struct {
	Path   string `json:"path"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// TraceFrame is one recorded stack entry. The stack array is ordered
// outermost first, matching the engine contract.
type TraceFrame struct {
	Function string         `json:"function,omitempty"`
	CallSite *TraceLocation `json:"callSite,omitempty"`
	Scopes   []TraceScope   `json:"scopes"`
}

// TraceScope is one recorded environment record. The scopes array is
// ordered innermost first.
type TraceScope struct {
	Kind     string         `json:"kind"`
	Function string         `json:"function,omitempty"`
	Bindings []TraceBinding `json:"bindings,omitempty"`
}

// TraceBinding is one recorded name/value pair.
type TraceBinding struct {
	Name  string     `json:"name"`
	Value TraceValue `json:"value"`
}

// TraceValue is one recorded value, with children for structured values.
type TraceValue struct {
	Repr     string         `json:"repr"`
	Type     string         `json:"type,omitempty"`
	Children []TraceBinding `json:"children,omitempty"`
}

// TraceDiagnostic is a diagnostic the original run raised at a step.
type TraceDiagnostic struct {
	Severity string `json:"severity"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// LoadTrace reads and validates a trace file.
func LoadTrace(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.TraceInvalid(path, err.Error())
	}
	return ParseTrace(path, data)
}

// ParseTrace validates raw trace contents. path only labels error reports.
func ParseTrace(path string, data []byte) (*Trace, error) {
	var t Trace
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, errors.TraceInvalid(path, err.Error())
	}
	if err := t.validate(); err != nil {
		return nil, errors.TraceInvalid(path, err.Error())
	}
	return &t, nil
}

// validate rejects recordings the replay engine could not faithfully drive
// the core with. Traces are user input: a bad one is an error, never a
// panic.
func (t *Trace) validate() error {
	if t.Version != 1 {
		return fmt.Errorf("unsupported trace version %d", t.Version)
	}

	for i, s := range t.Steps {
		if s.Location.Path == "" {
			return fmt.Errorf("step %d: missing location path", i)
		}
		if len(s.Stack) == 0 {
			return fmt.Errorf("step %d: empty call stack", i)
		}
		for f, frame := range s.Stack {
			if len(frame.Scopes) == 0 {
				return fmt.Errorf("step %d frame %d: missing scopes", i, f)
			}
			for _, sc := range frame.Scopes {
				if _, err := parseRecordKind(sc.Kind); err != nil {
					return fmt.Errorf("step %d frame %d: %v", i, f, err)
				}
			}
		}
		if d := s.Diagnostic; d != nil {
			if _, err := engine.ParseSeverity(d.Severity); err != nil {
				return fmt.Errorf("step %d: %v", i, err)
			}
		}
	}
	return nil
}

// parseRecordKind maps a trace scope kind to the engine's closed enum.
func parseRecordKind(kind string) (engine.RecordKind, error) {
	switch kind {
	case "global":
		return engine.RecordGlobal, nil
	case "local":
		return engine.RecordFunctionLocal, nil
	case "block":
		return engine.RecordDeclarative, nil
	case "with":
		return engine.RecordDynamic, nil
	default:
		return 0, fmt.Errorf("unknown scope kind %q", kind)
	}
}
