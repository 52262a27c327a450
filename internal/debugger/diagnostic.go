package debugger

import (
	"fmt"

	"github.com/mstrand/haltpoint/internal/engine"
	"github.com/mstrand/haltpoint/pkg/protocol"
)

// ShouldStop reports whether a diagnostic of the given severity crosses the
// session's stop threshold: everything at or above the configured severity
// stops, everything below runs on.
func (d *Debugger) ShouldStop(sev engine.Severity) bool {
	return sev >= d.opts.StopSeverity
}

// HandleDiagnostic pauses execution to report a diagnostic the engine has
// already deemed stop-worthy (see ShouldStop). The diagnostic must carry a
// location. Execution waits in the command loop until resumed; the
// diagnostic itself is data, never a core failure.
func (d *Debugger) HandleDiagnostic(diag engine.Diagnostic) {
	if diag.Location == nil {
		panic("debugger: diagnostic without a location")
	}
	if d.detached {
		return
	}

	abs := engine.Location{
		Path:   d.translator.ToAbsolute(diag.Location.Path),
		Line:   diag.Location.Line,
		Column: diag.Location.Column,
	}

	d.send(&protocol.StoppedEvent{
		Reason:  protocol.StopReasonDiagnostic,
		File:    abs.Path,
		Line:    abs.Line,
		Column:  abs.Column,
		Message: fmt.Sprintf("%s %s: %s", diag.Severity, diag.Code, diag.Message),
	})
	d.commandLoop(&abs)
}
