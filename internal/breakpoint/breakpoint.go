// Package breakpoint tracks the breakpoints registered for one debug
// session.
package breakpoint

import "github.com/mstrand/haltpoint/internal/engine"

// Breakpoint is one registered breakpoint. File is relative to the session's
// source prefix; matching against checkpoint locations is exact.
type Breakpoint struct {
	ID      int
	File    string
	Line    int
	Column  int
	Enabled bool
}

type key struct {
	file   string
	line   int
	column int
}

// Registry holds a session's breakpoints, keyed strictly on
// (file, line, column). It is confined to the session goroutine and needs no
// locking.
type Registry struct {
	nextID int
	byKey  map[key]*Breakpoint
}

// NewRegistry returns an empty registry. Breakpoint ids start at 1 and are
// stable for the life of the session.
func NewRegistry() *Registry {
	return &Registry{nextID: 1, byKey: make(map[key]*Breakpoint)}
}

// Add registers a batch of breakpoints and returns their registered state in
// batch order. Re-adding an existing key keeps its id and updates the
// enabled flag.
func (r *Registry) Add(batch []Breakpoint) []Breakpoint {
	out := make([]Breakpoint, 0, len(batch))
	for _, b := range batch {
		k := key{b.File, b.Line, b.Column}
		bp, ok := r.byKey[k]
		if !ok {
			bp = &Breakpoint{ID: r.nextID, File: b.File, Line: b.Line, Column: b.Column}
			r.nextID++
			r.byKey[k] = bp
		}
		bp.Enabled = b.Enabled
		out = append(out, *bp)
	}
	return out
}

// Remove deletes the batch's keys and returns the breakpoints that were
// actually registered. Unknown keys are ignored.
func (r *Registry) Remove(batch []Breakpoint) []Breakpoint {
	out := make([]Breakpoint, 0, len(batch))
	for _, b := range batch {
		k := key{b.File, b.Line, b.Column}
		if bp, ok := r.byKey[k]; ok {
			delete(r.byKey, k)
			out = append(out, *bp)
		}
	}
	return out
}

// Enable marks the batch's breakpoints enabled and returns the affected ones.
func (r *Registry) Enable(batch []Breakpoint) []Breakpoint {
	return r.setEnabled(batch, true)
}

// Disable marks the batch's breakpoints disabled and returns the affected
// ones.
func (r *Registry) Disable(batch []Breakpoint) []Breakpoint {
	return r.setEnabled(batch, false)
}

func (r *Registry) setEnabled(batch []Breakpoint, enabled bool) []Breakpoint {
	out := make([]Breakpoint, 0, len(batch))
	for _, b := range batch {
		if bp, ok := r.byKey[key{b.File, b.Line, b.Column}]; ok {
			bp.Enabled = enabled
			out = append(out, *bp)
		}
	}
	return out
}

// Lookup returns the enabled breakpoint at loc, if any. Disabled breakpoints
// never match.
func (r *Registry) Lookup(loc engine.Location) (Breakpoint, bool) {
	bp, ok := r.byKey[key{loc.Path, loc.Line, loc.Column}]
	if !ok || !bp.Enabled {
		return Breakpoint{}, false
	}
	return *bp, true
}
