// Package step tracks in-flight step requests and decides when execution has
// satisfied them.
package step

import "github.com/mstrand/haltpoint/internal/engine"

// Direction is the kind of step being performed.
type Direction int

const (
	// DirectionIn stops at the next executable unit anywhere.
	DirectionIn Direction = iota
	// DirectionOver stops at the next unit at the origin depth or shallower.
	DirectionOver
	// DirectionOut stops once the origin frame has returned.
	DirectionOut
)

// String returns the display name of the direction.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "in"
	case DirectionOver:
		return "over"
	case DirectionOut:
		return "out"
	default:
		return "unknown"
	}
}

// Step is one in-flight step request: its direction, the location it started
// from, and the call-stack depth at that moment. Origin is relative to the
// session's source prefix.
type Step struct {
	Direction Direction
	Origin    engine.Location
	Depth     int
}

// satisfiedAt reports whether execution reaching loc at the given depth
// completes the step.
func (s Step) satisfiedAt(loc engine.Location, depth int) bool {
	moved := loc != s.Origin || depth != s.Depth
	switch s.Direction {
	case DirectionIn:
		return moved
	case DirectionOver:
		return moved && depth <= s.Depth
	case DirectionOut:
		return depth < s.Depth
	default:
		return false
	}
}

// Registry holds a session's in-flight steps. Confined to the session
// goroutine.
type Registry struct {
	inflight []Step
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a step starting at origin with the given stack depth.
func (r *Registry) Register(dir Direction, origin engine.Location, depth int) {
	r.inflight = append(r.inflight, Step{Direction: dir, Origin: origin, Depth: depth})
}

// Query removes and returns the steps satisfied at loc and depth. A
// satisfied step fires exactly once; unsatisfied steps stay in flight.
func (r *Registry) Query(loc engine.Location, depth int) []Step {
	var satisfied []Step
	remaining := r.inflight[:0]
	for _, s := range r.inflight {
		if s.satisfiedAt(loc, depth) {
			satisfied = append(satisfied, s)
		} else {
			remaining = append(remaining, s)
		}
	}
	r.inflight = remaining
	return satisfied
}

// Pending reports how many steps are still in flight.
func (r *Registry) Pending() int {
	return len(r.inflight)
}
