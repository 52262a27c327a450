package debugger

import (
	"log"

	"github.com/mstrand/haltpoint/internal/breakpoint"
	"github.com/mstrand/haltpoint/internal/engine"
	"github.com/mstrand/haltpoint/pkg/protocol"
)

// executionMarker identifies the last checkpointed execution state. Two
// consecutive checkpoints with the same marker are one logical unit boundary
// reported twice, not two executions.
type executionMarker struct {
	path   string
	line   int
	column int
	depth  int
}

// Checkpoint is the engine's pre-execution hook, called before each
// executable unit with the unit's location relative to the session's source
// prefix. When a breakpoint or a satisfied step wants a pause, exactly one
// stopped event is emitted and the command loop runs until a resume-class
// command arrives. Duplicate checkpoints are ignored without touching the
// marker, so a run of duplicates collapses into the first.
func (d *Debugger) Checkpoint(loc engine.Location) {
	if d.detached {
		return
	}

	depth := len(d.eng.CallStack())
	marker := executionMarker{path: loc.Path, line: loc.Line, column: loc.Column, depth: depth}
	if d.lastExecuted != nil && *d.lastExecuted == marker {
		return
	}
	d.lastExecuted = &marker

	// Satisfied steps are consumed here even when the breakpoint wins the
	// arbitration below.
	steps := d.steps.Query(loc, depth)
	var bp *breakpoint.Breakpoint
	if hit, ok := d.breakpoints.Lookup(loc); ok {
		bp = &hit
	}

	reason := d.arbiter.Combine(bp, steps)
	if reason == nil {
		return
	}

	abs := engine.Location{
		Path:   d.translator.ToAbsolute(loc.Path),
		Line:   loc.Line,
		Column: loc.Column,
	}

	ev := &protocol.StoppedEvent{
		Reason:  reason.Kind,
		File:    abs.Path,
		Line:    abs.Line,
		Column:  abs.Column,
		Message: reason.Description(),
	}
	if reason.Breakpoint != nil {
		ev.HitBreakpointIDs = []int{reason.Breakpoint.ID}
	}

	log.Printf("Stopped at %s (%s)", abs, reason.Kind)
	d.send(ev)
	d.commandLoop(&abs)
}
