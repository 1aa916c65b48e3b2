package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lbatista/gambit/pkg/protocol"
	"github.com/lbatista/gambit/pkg/session"
	"github.com/lbatista/gambit/pkg/toolcall"
)

// Result is the outcome of one tool execution.
type Result struct {
	Success bool
	Output  string
	Error   string
}

// ExecutionError reports a call that failed at the execution stage:
// transport loss, executor timeout, or a crashed tool. Retryable unless
// wrapped as permanent by the caller.
type ExecutionError struct {
	Tool   string
	CallID string
	Cause  error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution of %s (call %s) failed: %v", e.Tool, e.CallID, e.Cause)
}

// Unwrap exposes the cause.
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Executor runs an approved, validated call and reports its outcome.
type Executor interface {
	Execute(ctx context.Context, sess *session.Session, callID string, call *toolcall.ToolCall) (Result, error)
}

// Sender delivers an envelope to the session's connected client.
type Sender interface {
	Send(env protocol.Envelope) error
}

// Remote executes calls on the connected client: it sends a toolCall
// envelope and waits for the matching toolResult, correlated by call id.
type Remote struct {
	sender  Sender
	timeout time.Duration

	mu      sync.Mutex
	waiting map[string]chan protocol.ToolResultPayload
}

// NewRemote creates a remote executor. timeout is machine-scale; zero
// means 60 seconds.
func NewRemote(sender Sender, timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Remote{
		sender:  sender,
		timeout: timeout,
		waiting: make(map[string]chan protocol.ToolResultPayload),
	}
}

// Execute sends the call to the client and blocks until its result
// arrives or the execution timeout passes.
func (r *Remote) Execute(ctx context.Context, sess *session.Session, callID string, call *toolcall.ToolCall) (Result, error) {
	payload := protocol.ToolCallPayload{
		CallID:     callID,
		Tool:       call.Name,
		Parameters: call.ParamMap(),
	}
	seq, err := sess.Append(protocol.KindToolCall, payload)
	if err != nil {
		return Result{}, &ExecutionError{Tool: call.Name, CallID: callID, Cause: err}
	}
	env, err := protocol.NewEnvelope(protocol.KindToolCall, sess.ID, seq, payload)
	if err != nil {
		return Result{}, &ExecutionError{Tool: call.Name, CallID: callID, Cause: err}
	}

	ch := make(chan protocol.ToolResultPayload, 1)
	r.mu.Lock()
	r.waiting[callID] = ch
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.waiting, callID)
		r.mu.Unlock()
	}()

	if err := r.sender.Send(env); err != nil {
		return Result{}, &ExecutionError{Tool: call.Name, CallID: callID, Cause: err}
	}

	log.Debug().Str("call", callID).Str("tool", call.Name).Str("session", sess.ID).Msg("Call dispatched")

	select {
	case res := <-ch:
		return Result{Success: res.Success, Output: res.Output, Error: res.Error}, nil
	case <-time.After(r.timeout):
		return Result{}, &ExecutionError{Tool: call.Name, CallID: callID, Cause: fmt.Errorf("no result within %s", r.timeout)}
	case <-ctx.Done():
		return Result{}, &ExecutionError{Tool: call.Name, CallID: callID, Cause: ctx.Err()}
	}
}

// Deliver routes an inbound toolResult to the waiting Execute call.
// Results for unknown call ids are dropped; the waiter already timed out
// or was cancelled.
func (r *Remote) Deliver(res protocol.ToolResultPayload) bool {
	r.mu.Lock()
	ch, ok := r.waiting[res.CallID]
	r.mu.Unlock()
	if !ok {
		log.Debug().Str("call", res.CallID).Msg("Dropping result for unknown call")
		return false
	}
	ch <- res
	return true
}
