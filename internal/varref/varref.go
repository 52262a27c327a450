// Package varref issues the opaque references behind scope and variable
// inspection and resolves them back while execution is paused.
package varref

import (
	"fmt"

	"github.com/mstrand/haltpoint/internal/engine"
	"github.com/mstrand/haltpoint/internal/errors"
	"github.com/mstrand/haltpoint/pkg/protocol"
)

// Registry maps variables references to environment records and structured
// values. References are only valid between one stop and the next resume;
// Reset invalidates them wholesale. Reference values grow monotonically and
// are never reused within a session, so a stale reference fails loudly
// instead of silently resolving to unrelated state.
type Registry struct {
	eng     engine.Engine
	nextRef int
	records map[int]engine.Record
	values  map[int]engine.Value
}

// NewRegistry returns an empty registry bound to the session's engine.
func NewRegistry(eng engine.Engine) *Registry {
	return &Registry{
		eng:     eng,
		nextRef: 1,
		records: make(map[int]engine.Record),
		values:  make(map[int]engine.Value),
	}
}

// RegisterRecord issues a fresh reference for an environment record.
func (r *Registry) RegisterRecord(rec engine.Record) int {
	ref := r.nextRef
	r.nextRef++
	r.records[ref] = rec
	return ref
}

// registerValue issues a fresh reference for a structured value.
func (r *Registry) registerValue(val engine.Value) int {
	ref := r.nextRef
	r.nextRef++
	r.values[ref] = val
	return ref
}

// Reset invalidates every outstanding reference. Called on every resume.
func (r *Registry) Reset() {
	r.records = make(map[int]engine.Record)
	r.values = make(map[int]engine.Value)
}

// Variables resolves a reference to its bindings in declaration order.
// Structured values get child references of their own.
func (r *Registry) Variables(ref int) ([]protocol.Variable, error) {
	var bindings []engine.Binding
	if rec, ok := r.records[ref]; ok {
		bindings = rec.Bindings()
	} else if val, ok := r.values[ref]; ok {
		bindings = val.Children()
	} else {
		return nil, errors.InvalidVariableReference(ref)
	}

	out := make([]protocol.Variable, 0, len(bindings))
	for _, b := range bindings {
		out = append(out, r.variable(b))
	}
	return out, nil
}

func (r *Registry) variable(b engine.Binding) protocol.Variable {
	v := protocol.Variable{Name: b.Name}
	if b.Value == nil {
		return v
	}
	v.Value = b.Value.String()
	v.Type = b.Value.TypeName()
	if len(b.Value.Children()) > 0 {
		v.VariablesReference = r.registerValue(b.Value)
	}
	return v
}

// Evaluate evaluates an expression in the context of the identified frame.
// Frame ids count from 0 at the innermost frame.
func (r *Registry) Evaluate(frameID int, expression string) (protocol.EvaluateResult, error) {
	stack := r.eng.CallStack()
	if frameID < 0 || frameID >= len(stack) {
		return protocol.EvaluateResult{}, errors.InvalidFrameID(frameID, len(stack))
	}

	frame := stack[len(stack)-1-frameID]
	val, err := r.eng.Evaluate(frame, expression)
	if err != nil {
		return protocol.EvaluateResult{}, errors.EvaluationFailed(expression, err)
	}
	if val == nil {
		return protocol.EvaluateResult{}, errors.EvaluationFailed(expression, fmt.Errorf("no result"))
	}

	res := protocol.EvaluateResult{Result: val.String(), Type: val.TypeName()}
	if len(val.Children()) > 0 {
		res.VariablesReference = r.registerValue(val)
	}
	return res, nil
}
