// Package client provides the front-end half of a debug session: sequence
// allocation, response correlation, and stopped-event delivery over the
// core's request and event channels.
//
// The wire-facing front ends (the DAP bridge and the MCP tools) are built on
// this client rather than on the channels directly, so correlation and
// timeout behavior live in one place.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mstrand/haltpoint/internal/debugger"
	"github.com/mstrand/haltpoint/internal/errors"
	"github.com/mstrand/haltpoint/pkg/protocol"
)

const defaultTimeout = 10 * time.Second

// Client is the front end of one debug session. It is safe for use from
// multiple goroutines; requests are serialized, so sequence order matches
// submission order.
type Client struct {
	dbg *debugger.Debugger

	// Request sequencing and response correlation
	mu      sync.Mutex
	seq     int
	pending map[int]chan protocol.Message
	closed  bool

	// Event handling; set before execution starts
	eventHandler func(protocol.Message)

	// Stopped event handling
	stoppedChan chan *protocol.StoppedEvent
	stoppedMu   sync.Mutex

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates the client for a session and starts its read loop.
func New(dbg *debugger.Debugger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		dbg:     dbg,
		pending: make(map[int]chan protocol.Message),
		ctx:     ctx,
		cancel:  cancel,
	}

	c.wg.Add(1)
	go c.readLoop()

	return c
}

// SetEventHandler sets the handler invoked for stopped events, called from
// the read loop goroutine. Set it before execution starts.
func (c *Client) SetEventHandler(handler func(protocol.Message)) {
	c.eventHandler = handler
}

// readLoop drains the core's event channel until shutdown.
func (c *Client) readLoop() {
	defer c.wg.Done()

	events := c.dbg.Events()
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg := <-events:
			c.handleMessage(msg)
		}
	}
}

// handleMessage routes one outbound core message: stopped events to the
// waiter and the event handler, responses to their pending request.
func (c *Client) handleMessage(msg protocol.Message) {
	if ev, ok := msg.(*protocol.StoppedEvent); ok {
		c.stoppedMu.Lock()
		if c.stoppedChan != nil {
			select {
			case c.stoppedChan <- ev:
			default:
				// Waiter not draining, skip
			}
		}
		c.stoppedMu.Unlock()
		if c.eventHandler != nil {
			c.eventHandler(msg)
		}
		return
	}

	if resp, ok := msg.(protocol.ResponseMessage); ok {
		seq := resp.GetResponse().RequestSeq
		c.mu.Lock()
		if ch, ok := c.pending[seq]; ok {
			ch <- msg
			delete(c.pending, seq)
		}
		c.mu.Unlock()
		return
	}

	if c.eventHandler != nil {
		c.eventHandler(msg)
	}
}

// send submits a request without registering for a response. Resume-class
// commands produce none.
func (c *Client) send(command protocol.Command, args protocol.Arguments) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("client closed")
	}
	c.seq++
	c.dbg.Requests() <- protocol.Request{Seq: c.seq, Command: command, Arguments: args}
	return nil
}

// request submits a request and waits for its correlated response. Error
// responses come back as *errors.DebugError.
func (c *Client) request(command protocol.Command, args protocol.Arguments, timeout time.Duration) (protocol.Message, error) {
	respCh := make(chan protocol.Message, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("client closed")
	}
	c.seq++
	seq := c.seq
	c.pending[seq] = respCh
	c.dbg.Requests() <- protocol.Request{Seq: seq, Command: command, Arguments: args}
	c.mu.Unlock()

	select {
	case resp := <-respCh:
		if errResp, ok := resp.(*protocol.ErrorResponse); ok {
			return nil, &errors.DebugError{Code: errors.ErrorCode(errResp.Code), Message: errResp.Message}
		}
		return resp, nil
	case <-time.After(timeout):
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		return nil, errors.WaitTimeout(string(command), int(timeout.Seconds()))
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	}
}

// AddBreakpoints registers a batch of breakpoints. File paths are absolute.
func (c *Client) AddBreakpoints(bps []protocol.Breakpoint) ([]protocol.BreakpointState, error) {
	return c.breakpointBatch(protocol.CommandBreakpointAdd, protocol.BreakpointAddArguments{Breakpoints: bps})
}

// RemoveBreakpoints removes a batch of breakpoints.
func (c *Client) RemoveBreakpoints(bps []protocol.Breakpoint) ([]protocol.BreakpointState, error) {
	return c.breakpointBatch(protocol.CommandBreakpointRemove, protocol.BreakpointRemoveArguments{Breakpoints: bps})
}

// EnableBreakpoints enables a batch of breakpoints.
func (c *Client) EnableBreakpoints(bps []protocol.Breakpoint) ([]protocol.BreakpointState, error) {
	return c.breakpointBatch(protocol.CommandBreakpointEnable, protocol.BreakpointEnableArguments{Breakpoints: bps})
}

// DisableBreakpoints disables a batch of breakpoints.
func (c *Client) DisableBreakpoints(bps []protocol.Breakpoint) ([]protocol.BreakpointState, error) {
	return c.breakpointBatch(protocol.CommandBreakpointDisable, protocol.BreakpointDisableArguments{Breakpoints: bps})
}

func (c *Client) breakpointBatch(cmd protocol.Command, args protocol.Arguments) ([]protocol.BreakpointState, error) {
	resp, err := c.request(cmd, args, defaultTimeout)
	if err != nil {
		return nil, err
	}

	bpResp, ok := resp.(*protocol.BreakpointsResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type: %T", resp)
	}
	return bpResp.Breakpoints, nil
}

// Run resumes execution. The core sends no response; the next message is a
// stopped event if execution pauses again.
func (c *Client) Run() error {
	return c.send(protocol.CommandRun, protocol.RunArguments{})
}

// StepIn resumes execution until the next executable unit.
func (c *Client) StepIn() error {
	return c.send(protocol.CommandStepIn, protocol.StepInArguments{})
}

// StepOver resumes execution until the next unit at the current depth or
// shallower.
func (c *Client) StepOver() error {
	return c.send(protocol.CommandStepOver, protocol.StepOverArguments{})
}

// StepOut resumes execution until the current frame returns.
func (c *Client) StepOut() error {
	return c.send(protocol.CommandStepOut, protocol.StepOutArguments{})
}

// StackFrames requests the full call stack, innermost frame first.
func (c *Client) StackFrames() ([]protocol.StackFrame, error) {
	resp, err := c.request(protocol.CommandStackFrames, protocol.StackFramesArguments{}, defaultTimeout)
	if err != nil {
		return nil, err
	}

	sfResp, ok := resp.(*protocol.StackFramesResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type: %T", resp)
	}
	return sfResp.Frames, nil
}

// Scopes requests the scope chain of one frame.
func (c *Client) Scopes(frameID int) ([]protocol.Scope, error) {
	resp, err := c.request(protocol.CommandScopes, protocol.ScopesArguments{FrameID: frameID}, defaultTimeout)
	if err != nil {
		return nil, err
	}

	scResp, ok := resp.(*protocol.ScopesResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type: %T", resp)
	}
	return scResp.Scopes, nil
}

// Variables requests the bindings behind a variables reference.
func (c *Client) Variables(ref int) ([]protocol.Variable, error) {
	resp, err := c.request(protocol.CommandVariables, protocol.VariablesArguments{VariablesReference: ref}, defaultTimeout)
	if err != nil {
		return nil, err
	}

	vResp, ok := resp.(*protocol.VariablesResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type: %T", resp)
	}
	return vResp.Variables, nil
}

// Evaluate evaluates an expression in the context of a frame.
func (c *Client) Evaluate(frameID int, expression string) (*protocol.EvaluateResult, error) {
	resp, err := c.request(protocol.CommandEvaluate, protocol.EvaluateArguments{FrameID: frameID, Expression: expression}, defaultTimeout)
	if err != nil {
		return nil, err
	}

	eResp, ok := resp.(*protocol.EvaluateResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type: %T", resp)
	}
	return &eResp.EvaluateResult, nil
}

// WaitForStopped waits for the next stopped event.
func (c *Client) WaitForStopped(timeout time.Duration) (*protocol.StoppedEvent, error) {
	stoppedCh := c.installStoppedChan()
	defer c.removeStoppedChan()

	return c.awaitStopped(stoppedCh, timeout)
}

// RunAndWait resumes execution and waits for the next stop. The waiter is
// installed before the run command is sent, so a fast stop cannot be missed.
func (c *Client) RunAndWait(timeout time.Duration) (*protocol.StoppedEvent, error) {
	stoppedCh := c.installStoppedChan()
	defer c.removeStoppedChan()

	if err := c.Run(); err != nil {
		return nil, err
	}
	return c.awaitStopped(stoppedCh, timeout)
}

// StepInAndWait steps in and waits for the resulting stop.
func (c *Client) StepInAndWait(timeout time.Duration) (*protocol.StoppedEvent, error) {
	return c.stepAndWait(c.StepIn, timeout)
}

// StepOverAndWait steps over and waits for the resulting stop.
func (c *Client) StepOverAndWait(timeout time.Duration) (*protocol.StoppedEvent, error) {
	return c.stepAndWait(c.StepOver, timeout)
}

// StepOutAndWait steps out and waits for the resulting stop.
func (c *Client) StepOutAndWait(timeout time.Duration) (*protocol.StoppedEvent, error) {
	return c.stepAndWait(c.StepOut, timeout)
}

func (c *Client) stepAndWait(step func() error, timeout time.Duration) (*protocol.StoppedEvent, error) {
	stoppedCh := c.installStoppedChan()
	defer c.removeStoppedChan()

	if err := step(); err != nil {
		return nil, err
	}
	return c.awaitStopped(stoppedCh, timeout)
}

func (c *Client) installStoppedChan() chan *protocol.StoppedEvent {
	stoppedCh := make(chan *protocol.StoppedEvent, 1)
	c.stoppedMu.Lock()
	c.stoppedChan = stoppedCh
	c.stoppedMu.Unlock()
	return stoppedCh
}

func (c *Client) removeStoppedChan() {
	c.stoppedMu.Lock()
	c.stoppedChan = nil
	c.stoppedMu.Unlock()
}

func (c *Client) awaitStopped(stoppedCh chan *protocol.StoppedEvent, timeout time.Duration) (*protocol.StoppedEvent, error) {
	select {
	case ev := <-stoppedCh:
		return ev, nil
	case <-time.After(timeout):
		return nil, errors.WaitTimeout("waiting for stopped event", int(timeout.Seconds()))
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	}
}

// Close abandons the session: it closes the request channel, which ends a
// blocked command loop, and stops the read loop. Close is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.dbg.Requests())
	c.cancel()
	c.wg.Wait()
	return nil
}
