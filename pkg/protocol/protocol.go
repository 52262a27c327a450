// Package protocol defines the command vocabulary spoken between a debug
// front end and the core command dispatcher.
//
// This package provides type definitions for:
//   - Command: The twelve dispatcher commands (breakpoint batches, resume,
//     stepping, and inspection)
//   - Request: One front-end command with its typed argument payload
//   - Response types: Batch acknowledgments and inspection results, each
//     correlated to the originating request sequence number
//   - StoppedEvent: The single unsolicited message, announcing a pause
//
// Requests travel over the session's request channel; every message the core
// emits in return implements Message. File paths inside the core are relative
// to the session's source prefix, but every path carried by these types has
// already crossed the front-end boundary and is therefore absolute.
package protocol

// Command identifies a dispatcher request.
type Command string

const (
	CommandBreakpointAdd     Command = "breakpointAdd"
	CommandBreakpointRemove  Command = "breakpointRemove"
	CommandBreakpointEnable  Command = "breakpointEnable"
	CommandBreakpointDisable Command = "breakpointDisable"
	CommandRun               Command = "run"
	CommandStepIn            Command = "stepIn"
	CommandStepOver          Command = "stepOver"
	CommandStepOut           Command = "stepOut"
	CommandStackFrames       Command = "stackFrames"
	CommandScopes            Command = "scopes"
	CommandVariables         Command = "variables"
	CommandEvaluate          Command = "evaluate"
)

// AnonymousFunctionName is reported for frames whose called value carries no
// original name.
const AnonymousFunctionName = "<anonymous>"

// Request is one front-end command submitted to the command dispatcher.
type Request struct {
	Seq       int       `json:"seq"`
	Command   Command   `json:"command"`
	Arguments Arguments `json:"arguments,omitempty"`
}

// Arguments is the payload variant of a Request. Kind reports the command the
// payload was built for; the dispatcher treats a mismatch with the enclosing
// request's command as a programming error, not a protocol error.
type Arguments interface {
	Kind() Command
}

// Breakpoint is one element of a breakpoint batch.
type Breakpoint struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Enabled bool   `json:"enabled"`
}

// BreakpointAddArguments registers a batch of breakpoints.
type BreakpointAddArguments struct {
	Breakpoints []Breakpoint `json:"breakpoints"`
}

// Kind implements Arguments.
func (BreakpointAddArguments) Kind() Command { return CommandBreakpointAdd }

// BreakpointRemoveArguments removes a batch of breakpoints.
type BreakpointRemoveArguments struct {
	Breakpoints []Breakpoint `json:"breakpoints"`
}

// Kind implements Arguments.
func (BreakpointRemoveArguments) Kind() Command { return CommandBreakpointRemove }

// BreakpointEnableArguments enables a batch of breakpoints.
type BreakpointEnableArguments struct {
	Breakpoints []Breakpoint `json:"breakpoints"`
}

// Kind implements Arguments.
func (BreakpointEnableArguments) Kind() Command { return CommandBreakpointEnable }

// BreakpointDisableArguments disables a batch of breakpoints.
type BreakpointDisableArguments struct {
	Breakpoints []Breakpoint `json:"breakpoints"`
}

// Kind implements Arguments.
func (BreakpointDisableArguments) Kind() Command { return CommandBreakpointDisable }

// RunArguments resumes execution until the next stop.
type RunArguments struct{}

// Kind implements Arguments.
func (RunArguments) Kind() Command { return CommandRun }

// StepInArguments resumes execution until the next executable unit anywhere.
type StepInArguments struct{}

// Kind implements Arguments.
func (StepInArguments) Kind() Command { return CommandStepIn }

// StepOverArguments resumes execution until the next unit at or above the
// current frame.
type StepOverArguments struct{}

// Kind implements Arguments.
func (StepOverArguments) Kind() Command { return CommandStepOver }

// StepOutArguments resumes execution until the current frame returns.
type StepOutArguments struct{}

// Kind implements Arguments.
func (StepOutArguments) Kind() Command { return CommandStepOut }

// StackFramesArguments requests the full call stack.
type StackFramesArguments struct{}

// Kind implements Arguments.
func (StackFramesArguments) Kind() Command { return CommandStackFrames }

// ScopesArguments requests the scope chain of one frame.
type ScopesArguments struct {
	FrameID int `json:"frameId"`
}

// Kind implements Arguments.
func (ScopesArguments) Kind() Command { return CommandScopes }

// VariablesArguments requests the bindings behind a variables reference.
type VariablesArguments struct {
	VariablesReference int `json:"variablesReference"`
}

// Kind implements Arguments.
func (VariablesArguments) Kind() Command { return CommandVariables }

// EvaluateArguments requests expression evaluation in a frame.
type EvaluateArguments struct {
	FrameID    int    `json:"frameId"`
	Expression string `json:"expression"`
}

// Kind implements Arguments.
func (EvaluateArguments) Kind() Command { return CommandEvaluate }

// Message is any outbound message from the core: a response correlated to a
// request, or an unsolicited StoppedEvent.
type Message interface {
	isMessage()
}

// ResponseMessage is implemented by every direct reply to a request, letting
// front ends correlate responses generically.
type ResponseMessage interface {
	Message
	GetResponse() Response
}

// Response is the header shared by every direct reply to a Request.
type Response struct {
	RequestSeq int     `json:"requestSeq"`
	Command    Command `json:"command"`
}

func (Response) isMessage() {}

// GetResponse implements ResponseMessage.
func (r Response) GetResponse() Response { return r }

// BreakpointState describes one registered breakpoint as acknowledged by the
// breakpoint registry.
type BreakpointState struct {
	ID       int    `json:"id"`
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Enabled  bool   `json:"enabled"`
	Verified bool   `json:"verified"`
}

// BreakpointsResponse acknowledges a breakpoint batch with the affected
// breakpoints.
type BreakpointsResponse struct {
	Response
	Breakpoints []BreakpointState `json:"breakpoints"`
}

// StackFrame is one reported call-stack entry. Frame 0 is the innermost
// frame.
type StackFrame struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// StackFramesResponse carries the whole call stack, innermost frame first.
type StackFramesResponse struct {
	Response
	Frames []StackFrame `json:"frames"`
}

// Scope is one node of a frame's scope chain.
type Scope struct {
	Name               string `json:"name"`
	VariablesReference int    `json:"variablesReference"`
	Expensive          bool   `json:"expensive,omitempty"`
}

// ScopesResponse lists the scope chain of one frame, innermost scope first.
type ScopesResponse struct {
	Response
	Scopes []Scope `json:"scopes"`
}

// Variable is one named binding prepared for display.
type Variable struct {
	Name               string `json:"name"`
	Value              string `json:"value"`
	Type               string `json:"type,omitempty"`
	VariablesReference int    `json:"variablesReference"`
}

// VariablesResponse lists the bindings behind a variables reference in
// declaration order.
type VariablesResponse struct {
	Response
	Variables []Variable `json:"variables"`
}

// EvaluateResult is the outcome of a successful evaluation.
type EvaluateResult struct {
	Result             string `json:"result"`
	Type               string `json:"type,omitempty"`
	VariablesReference int    `json:"variablesReference"`
}

// EvaluateResponse carries an evaluation result.
type EvaluateResponse struct {
	Response
	EvaluateResult
}

// ErrorResponse reports a failed request. Code is short and machine
// readable; Message is for humans.
type ErrorResponse struct {
	Response
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StopReason classifies why execution paused.
type StopReason string

const (
	StopReasonBreakpoint StopReason = "breakpoint"
	StopReasonStep       StopReason = "step"
	StopReasonDiagnostic StopReason = "diagnostic"
)

// StoppedEvent is the single unsolicited core message: execution paused at
// File:Line:Column and the dispatcher is reading commands.
type StoppedEvent struct {
	Reason           StopReason `json:"reason"`
	File             string     `json:"file"`
	Line             int        `json:"line"`
	Column           int        `json:"column"`
	Message          string     `json:"message,omitempty"`
	HitBreakpointIDs []int      `json:"hitBreakpointIds,omitempty"`
}

func (StoppedEvent) isMessage() {}
