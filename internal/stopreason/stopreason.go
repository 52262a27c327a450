// Package stopreason arbitrates between pause candidates that coincide at a
// single checkpoint, so the front end is told exactly one reason per stop.
package stopreason

import (
	"fmt"

	"github.com/mstrand/haltpoint/internal/breakpoint"
	"github.com/mstrand/haltpoint/internal/step"
	"github.com/mstrand/haltpoint/pkg/protocol"
)

// Reason is the single reported cause of a pause.
type Reason struct {
	Kind       protocol.StopReason
	Breakpoint *breakpoint.Breakpoint
	Steps      []step.Step
}

// Description renders the reason for display in a stopped event.
func (r *Reason) Description() string {
	switch r.Kind {
	case protocol.StopReasonBreakpoint:
		return fmt.Sprintf("hit breakpoint %d", r.Breakpoint.ID)
	case protocol.StopReasonStep:
		return fmt.Sprintf("completed step %s", r.Steps[0].Direction)
	default:
		return string(r.Kind)
	}
}

// Arbiter combines the pause candidates of one checkpoint.
type Arbiter struct{}

// NewArbiter returns the session's arbiter.
func NewArbiter() *Arbiter {
	return &Arbiter{}
}

// Combine returns the reason to report, or nil when nothing fired.
// Precedence is fixed: a breakpoint outranks any satisfied step, so the
// reported reason does not depend on registration order. Satisfied steps are
// consumed by the caller either way and are carried on the reason for
// completeness.
func (a *Arbiter) Combine(bp *breakpoint.Breakpoint, steps []step.Step) *Reason {
	if bp != nil {
		return &Reason{Kind: protocol.StopReasonBreakpoint, Breakpoint: bp, Steps: steps}
	}
	if len(steps) > 0 {
		return &Reason{Kind: protocol.StopReasonStep, Steps: steps}
	}
	return nil
}
