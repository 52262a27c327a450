// Package errors provides structured error types for the haltpoint debug
// core and its front ends. These errors include helpful hints that guide a
// caller (human or agent) to correct course when something goes wrong.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a category of error for programmatic handling
type ErrorCode string

const (
	// Session errors
	CodeSessionNotFound     ErrorCode = "SESSION_NOT_FOUND"
	CodeSessionLimitReached ErrorCode = "SESSION_LIMIT_REACHED"
	CodeSessionTerminated   ErrorCode = "SESSION_TERMINATED"

	// Command protocol errors
	CodeUnknownCommand           ErrorCode = "UNKNOWN_COMMAND"
	CodeInvalidFrameID           ErrorCode = "INVALID_FRAME_ID"
	CodeInvalidVariableReference ErrorCode = "INVALID_VARIABLE_REFERENCE"
	CodeEvaluationFailed         ErrorCode = "EVALUATION_FAILED"
	CodeWaitTimeout              ErrorCode = "WAIT_TIMEOUT"

	// Parameter errors
	CodeMissingParameter ErrorCode = "MISSING_PARAMETER"
	CodeInvalidParameter ErrorCode = "INVALID_PARAMETER"
	CodeInvalidJSON      ErrorCode = "INVALID_JSON"

	// Permission errors
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	// Configuration and input errors
	CodeConfigInvalid    ErrorCode = "CONFIG_INVALID"
	CodeSourceMapInvalid ErrorCode = "SOURCEMAP_INVALID"
	CodeTraceInvalid     ErrorCode = "TRACE_INVALID"
)

// DebugError is a structured error type that includes helpful information
// for the caller to understand what went wrong and how to fix it.
type DebugError struct {
	// Code is a machine-readable error category
	Code ErrorCode `json:"code"`

	// Message is a human-readable description of what went wrong
	Message string `json:"message"`

	// Hint provides actionable guidance on how to fix the error
	Hint string `json:"hint,omitempty"`

	// Details contains additional context (e.g., the invalid value, expected format)
	Details map[string]interface{} `json:"details,omitempty"`

	// Cause is the underlying error, if any
	Cause error `json:"-"`
}

// Error implements the error interface
func (e *DebugError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Hint != "" {
		sb.WriteString(" | Hint: ")
		sb.WriteString(e.Hint)
	}

	return sb.String()
}

// Unwrap returns the underlying error for error chaining
func (e *DebugError) Unwrap() error {
	return e.Cause
}

// WithDetails adds details to the error
func (e *DebugError) WithDetails(key string, value interface{}) *DebugError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying cause
func (e *DebugError) WithCause(err error) *DebugError {
	e.Cause = err
	return e
}

// --- Session Errors ---

// SessionNotFound creates an error for when a session ID doesn't exist
func SessionNotFound(sessionID string) *DebugError {
	return &DebugError{
		Code:    CodeSessionNotFound,
		Message: fmt.Sprintf("session '%s' not found", sessionID),
		Hint:    "Use debug_list_sessions to see active sessions, or use debug_launch to create a new session.",
		Details: map[string]interface{}{
			"sessionId": sessionID,
		},
	}
}

// SessionLimitReached creates an error when max sessions is reached
func SessionLimitReached(maxSessions int) *DebugError {
	return &DebugError{
		Code:    CodeSessionLimitReached,
		Message: fmt.Sprintf("maximum number of sessions (%d) reached", maxSessions),
		Hint:    "Use debug_disconnect to terminate an existing session before creating a new one.",
		Details: map[string]interface{}{
			"maxSessions": maxSessions,
		},
	}
}

// SessionTerminated creates an error for commands against a finished session
func SessionTerminated(sessionID string) *DebugError {
	return &DebugError{
		Code:    CodeSessionTerminated,
		Message: fmt.Sprintf("session '%s' has terminated", sessionID),
		Hint:    "The recorded execution ran to completion. Use debug_launch to start a fresh session.",
		Details: map[string]interface{}{
			"sessionId": sessionID,
		},
	}
}

// --- Command Protocol Errors ---

// UnknownCommand creates an error for commands the dispatcher does not route
func UnknownCommand(command string) *DebugError {
	return &DebugError{
		Code:    CodeUnknownCommand,
		Message: fmt.Sprintf("unrecognized command '%s'", command),
		Hint:    "Supported commands: breakpointAdd, breakpointRemove, breakpointEnable, breakpointDisable, run, stepIn, stepOver, stepOut, stackFrames, scopes, variables, evaluate.",
		Details: map[string]interface{}{
			"command": command,
		},
	}
}

// InvalidFrameID creates an error for out-of-range frame ids
func InvalidFrameID(frameID, frameCount int) *DebugError {
	return &DebugError{
		Code:    CodeInvalidFrameID,
		Message: fmt.Sprintf("invalid frame id %d", frameID),
		Hint:    fmt.Sprintf("Frame ids run from 0 (innermost frame) to %d. Request stack frames to enumerate them.", frameCount-1),
		Details: map[string]interface{}{
			"frameId":    frameID,
			"frameCount": frameCount,
		},
	}
}

// InvalidVariableReference creates an error for unknown or stale handles
func InvalidVariableReference(ref int) *DebugError {
	return &DebugError{
		Code:    CodeInvalidVariableReference,
		Message: fmt.Sprintf("invalid variables reference %d", ref),
		Hint:    "Variable references are invalidated whenever execution resumes. Request scopes again after each stop and use the fresh references.",
		Details: map[string]interface{}{
			"variablesReference": ref,
		},
	}
}

// EvaluationFailed creates an error for expression evaluation failures
func EvaluationFailed(expression string, err error) *DebugError {
	return &DebugError{
		Code:    CodeEvaluationFailed,
		Message: fmt.Sprintf("failed to evaluate expression '%s': %v", expression, err),
		Hint:    "Check that the expression syntax is valid and that referenced variables are in scope in the selected frame.",
		Cause:   err,
		Details: map[string]interface{}{
			"expression": expression,
		},
	}
}

// WaitTimeout creates an error when waiting on a stop outlasts its deadline
func WaitTimeout(operation string, timeoutSeconds int) *DebugError {
	return &DebugError{
		Code:    CodeWaitTimeout,
		Message: fmt.Sprintf("%s timed out after %d seconds", operation, timeoutSeconds),
		Hint:    "Execution did not pause in time. It may have run to completion, or no breakpoint lies on the remaining execution path.",
		Details: map[string]interface{}{
			"operation":      operation,
			"timeoutSeconds": timeoutSeconds,
		},
	}
}

// --- Parameter Errors ---

// MissingParameter creates an error for missing required parameters
func MissingParameter(paramName, description string) *DebugError {
	return &DebugError{
		Code:    CodeMissingParameter,
		Message: fmt.Sprintf("required parameter '%s' is missing", paramName),
		Hint:    description,
		Details: map[string]interface{}{
			"parameter": paramName,
		},
	}
}

// InvalidParameter creates an error for invalid parameter values
func InvalidParameter(paramName string, value interface{}, expected string) *DebugError {
	return &DebugError{
		Code:    CodeInvalidParameter,
		Message: fmt.Sprintf("invalid value for parameter '%s': %v", paramName, value),
		Hint:    fmt.Sprintf("Expected: %s", expected),
		Details: map[string]interface{}{
			"parameter": paramName,
			"value":     value,
			"expected":  expected,
		},
	}
}

// InvalidJSON creates an error for JSON parsing failures
func InvalidJSON(paramName string, err error, example string) *DebugError {
	return &DebugError{
		Code:    CodeInvalidJSON,
		Message: fmt.Sprintf("invalid JSON in parameter '%s': %v", paramName, err),
		Hint:    fmt.Sprintf("Provide valid JSON. Example: %s", example),
		Cause:   err,
		Details: map[string]interface{}{
			"parameter": paramName,
			"example":   example,
		},
	}
}

// --- Permission Errors ---

// PermissionDenied creates an error for permission denied
func PermissionDenied(operation, mode string) *DebugError {
	var hint string
	switch operation {
	case "control":
		hint = "Execution control (breakpoints, continue, step) is disabled in read-only mode. Ask the administrator to set mode to 'full' in the configuration."
	case "evaluate":
		hint = "Expression evaluation is disabled in the current server mode. This may be intentional for security reasons."
	default:
		hint = fmt.Sprintf("This operation is not allowed in '%s' mode.", mode)
	}

	return &DebugError{
		Code:    CodePermissionDenied,
		Message: fmt.Sprintf("%s is not allowed in current server mode", operation),
		Hint:    hint,
		Details: map[string]interface{}{
			"operation": operation,
			"mode":      mode,
		},
	}
}

// --- Configuration and Input Errors ---

// ConfigInvalid creates an error for invalid configuration
func ConfigInvalid(path, reason string) *DebugError {
	return &DebugError{
		Code:    CodeConfigInvalid,
		Message: fmt.Sprintf("configuration '%s' is invalid: %s", path, reason),
		Hint:    "Check the configuration file for syntax errors and ensure all fields carry supported values.",
		Details: map[string]interface{}{
			"path":   path,
			"reason": reason,
		},
	}
}

// SourceMapInvalid creates an error for source maps that fail to parse
func SourceMapInvalid(path string, err error) *DebugError {
	return &DebugError{
		Code:    CodeSourceMapInvalid,
		Message: fmt.Sprintf("source map '%s' is invalid: %v", path, err),
		Hint:    "Ensure the file is a version 3 source map with a 'sources' array and well-formed mappings.",
		Cause:   err,
		Details: map[string]interface{}{
			"path": path,
		},
	}
}

// TraceInvalid creates an error for execution traces that fail to load
func TraceInvalid(path, reason string) *DebugError {
	return &DebugError{
		Code:    CodeTraceInvalid,
		Message: fmt.Sprintf("execution trace '%s' is invalid: %s", path, reason),
		Hint:    "Traces are JSON recordings with a 'steps' array; every step needs a location and a call stack, and scope kinds must be one of global, local, block, with.",
		Details: map[string]interface{}{
			"path":   path,
			"reason": reason,
		},
	}
}

// --- Helper for wrapping generic errors ---

// Wrap wraps a generic error with context
func Wrap(code ErrorCode, message string, hint string, err error) *DebugError {
	return &DebugError{
		Code:    code,
		Message: message,
		Hint:    hint,
		Cause:   err,
	}
}

// FromError creates a DebugError from a generic error, attempting to preserve any existing structure
func FromError(err error) *DebugError {
	var de *DebugError
	if stderrors.As(err, &de) {
		return de
	}
	return &DebugError{
		Code:    "UNKNOWN_ERROR",
		Message: err.Error(),
		Hint:    "An unexpected error occurred. Please check the error message for details.",
		Cause:   err,
	}
}
