package replay

import "github.com/mstrand/haltpoint/internal/engine"

// frame, record, and value back the engine contracts with recorded state.

type frame struct {
	function string
	callSite *engine.Location
	env      engine.Record
}

func (f *frame) FunctionName() string { return f.function }

func (f *frame) InvocationSite() (engine.Location, bool) {
	if f.callSite == nil {
		return engine.Location{}, false
	}
	return *f.callSite, true
}

func (f *frame) Environment() engine.Record { return f.env }

type record struct {
	kind     engine.RecordKind
	function string
	parent   engine.Record
	bindings []engine.Binding
}

func (r *record) Kind() engine.RecordKind    { return r.kind }
func (r *record) FunctionName() string       { return r.function }
func (r *record) Parent() engine.Record      { return r.parent }
func (r *record) Bindings() []engine.Binding { return r.bindings }

type value struct {
	repr     string
	typeName string
	children []engine.Binding
}

func (v *value) String() string             { return v.repr }
func (v *value) TypeName() string           { return v.typeName }
func (v *value) Children() []engine.Binding { return v.children }

func buildStack(frames []TraceFrame) []engine.Frame {
	out := make([]engine.Frame, 0, len(frames))
	for _, tf := range frames {
		out = append(out, buildFrame(tf))
	}
	return out
}

func buildFrame(tf TraceFrame) engine.Frame {
	f := &frame{function: tf.Function}
	if tf.CallSite != nil {
		f.callSite = &engine.Location{
			Path:   tf.CallSite.Path,
			Line:   tf.CallSite.Line,
			Column: tf.CallSite.Column,
		}
	}

	// Scopes are recorded innermost first; chain them outward so the
	// frame's environment is the innermost record.
	var outer engine.Record
	for i := len(tf.Scopes) - 1; i >= 0; i-- {
		ts := tf.Scopes[i]
		kind, _ := parseRecordKind(ts.Kind) // validated at load
		outer = &record{
			kind:     kind,
			function: ts.Function,
			parent:   outer,
			bindings: buildBindings(ts.Bindings),
		}
	}
	f.env = outer
	return f
}

func buildBindings(tbs []TraceBinding) []engine.Binding {
	if len(tbs) == 0 {
		return nil
	}
	out := make([]engine.Binding, 0, len(tbs))
	for _, tb := range tbs {
		out = append(out, engine.Binding{Name: tb.Name, Value: buildValue(tb.Value)})
	}
	return out
}

func buildValue(tv TraceValue) engine.Value {
	return &value{repr: tv.Repr, typeName: tv.Type, children: buildBindings(tv.Children)}
}
