package approval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lbatista/gambit/pkg/audit"
	"github.com/lbatista/gambit/pkg/schema"
	"github.com/lbatista/gambit/pkg/toolcall"
)

// RevalidateFunc re-runs canonicalization, schema validation, and the
// security checks over a modified call before it is allowed to execute.
// The session id selects the workspace the path checks run against.
type RevalidateFunc func(sessionID string, call *toolcall.ToolCall) error

// RequestNotifier surfaces a newly pending request to the approver side,
// typically as an approvalRequest envelope on the session's channel.
type RequestNotifier func(req *Request)

// Manager owns the approval workflow: policy evaluation, the pending
// request table, and resolution delivery back to the waiting call.
type Manager struct {
	mu      sync.RWMutex
	pending map[string]*Request

	registry   *schema.Registry
	policy     Policy
	timeout    time.Duration
	revalidate RevalidateFunc
	notify     RequestNotifier
	trail      *audit.Store
}

// ManagerConfig configures a Manager. Timeout bounds how long a call
// waits for the approver before it is denied.
type ManagerConfig struct {
	Registry   *schema.Registry
	Policy     Policy
	Timeout    time.Duration
	Revalidate RevalidateFunc
	Notify     RequestNotifier
	Trail      *audit.Store
}

// NewManager creates an approval manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &Manager{
		pending:    make(map[string]*Request),
		registry:   cfg.Registry,
		policy:     cfg.Policy,
		timeout:    cfg.Timeout,
		revalidate: cfg.Revalidate,
		notify:     cfg.Notify,
		trail:      cfg.Trail,
	}
}

// Submit runs the approval workflow for one call and blocks the calling
// goroutine until it resolves. Only the goroutine for this call waits;
// other calls in the session proceed independently. The returned call is
// the one to execute, carrying modified parameters when the approver
// changed them.
func (m *Manager) Submit(ctx context.Context, sessionID string, call *toolcall.ToolCall, risk schema.RiskLevel) (*toolcall.ToolCall, error) {
	spec, ok := m.registry.Get(call.Name)
	if !ok {
		return nil, &DeniedError{Tool: call.Name, Reason: "unknown tool"}
	}

	switch m.policy.Evaluate(spec, risk) {
	case ActionBlock:
		m.record(sessionID, call.Name, audit.EventApprovalResolved, map[string]interface{}{
			"status":   string(StatusDenied),
			"auto":     true,
			"resolver": "policy",
			"reason":   "blocked by policy",
		})
		return nil, &DeniedError{Tool: call.Name, Reason: "blocked by policy"}
	case ActionAutoApprove:
		m.record(sessionID, call.Name, audit.EventApprovalResolved, map[string]interface{}{
			"status":   string(StatusApproved),
			"auto":     true,
			"resolver": "policy",
			"risk":     risk.String(),
		})
		log.Debug().Str("tool", call.Name).Str("session", sessionID).Msg("Auto-approved")
		return call, nil
	}

	req := &Request{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Call:      call,
		Risk:      risk,
		CreatedAt: time.Now(),
		done:      make(chan Resolution, 1),
	}

	m.mu.Lock()
	m.pending[req.ID] = req
	m.mu.Unlock()

	log.Info().
		Str("request", req.ID).
		Str("tool", call.Name).
		Str("session", sessionID).
		Str("risk", risk.String()).
		Msg("Approval requested")

	if m.notify != nil {
		m.notify(req)
	}

	select {
	case res := <-req.done:
		return m.finish(req, res)
	case <-time.After(m.timeout):
		m.expire(req, "approval timed out")
		return nil, &DeniedError{Tool: call.Name, Reason: "approval timed out"}
	case <-ctx.Done():
		m.expire(req, "session closed")
		return nil, &DeniedError{Tool: call.Name, Reason: "session closed"}
	}
}

// Resolve delivers the approver's decision for a pending request.
// resolver identifies the approver in the audit trail. A modify decision
// overlays the supplied parameters onto the original call and
// re-validates the result; if revalidation fails, the request resolves as
// denied with the validation error as the reason.
func (m *Manager) Resolve(requestID string, decision Decision, resolver, note string, modified map[string]string) error {
	if !decision.Valid() {
		return fmt.Errorf("unknown decision %q", decision)
	}

	m.mu.Lock()
	req, ok := m.pending[requestID]
	if ok {
		delete(m.pending, requestID)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("no pending approval request %s", requestID)
	}

	if resolver == "" {
		resolver = "approver"
	}
	res := Resolution{Call: req.Call, Note: note, ResolvedBy: resolver}
	switch decision {
	case DecisionApprove:
		res.Status = StatusApproved
	case DecisionDeny:
		res.Status = StatusDenied
	case DecisionModify:
		modCall := overlayParams(req.Call, modified)
		if m.revalidate != nil {
			if err := m.revalidate(req.SessionID, modCall); err != nil {
				res.Status = StatusDenied
				res.Note = fmt.Sprintf("modified parameters rejected: %v", err)
				break
			}
		}
		res.Status = StatusModified
		res.Call = modCall
	}

	req.done <- res
	return nil
}

// Pending returns a snapshot of the pending requests, optionally
// filtered by session.
func (m *Manager) Pending(sessionID string) []*Request {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Request
	for _, req := range m.pending {
		if sessionID == "" || req.SessionID == sessionID {
			out = append(out, req)
		}
	}
	return out
}

// CancelSession denies every pending request of a session. Used when the
// session closes underneath waiting calls.
func (m *Manager) CancelSession(sessionID, reason string) int {
	m.mu.Lock()
	var victims []*Request
	for id, req := range m.pending {
		if req.SessionID == sessionID {
			victims = append(victims, req)
			delete(m.pending, id)
		}
	}
	m.mu.Unlock()

	for _, req := range victims {
		req.done <- Resolution{Status: StatusDenied, Call: req.Call, Note: reason, ResolvedBy: "policy"}
	}
	return len(victims)
}

// finish records the terminal outcome and maps it to the caller's view.
func (m *Manager) finish(req *Request, res Resolution) (*toolcall.ToolCall, error) {
	resolver := res.ResolvedBy
	if resolver == "" {
		resolver = "policy"
	}
	details := map[string]interface{}{
		"request":  req.ID,
		"status":   string(res.Status),
		"risk":     req.Risk.String(),
		"resolver": resolver,
	}
	if res.Note != "" {
		details["note"] = res.Note
	}
	if res.Status == StatusModified {
		details["parameters"] = res.Call.ParamMap()
	}
	m.record(req.SessionID, req.Call.Name, audit.EventApprovalResolved, details)

	log.Info().
		Str("request", req.ID).
		Str("tool", req.Call.Name).
		Str("status", string(res.Status)).
		Msg("Approval resolved")

	switch res.Status {
	case StatusApproved, StatusModified:
		return res.Call, nil
	default:
		reason := res.Note
		if reason == "" {
			reason = "denied by approver"
		}
		return nil, &DeniedError{Tool: req.Call.Name, Reason: reason}
	}
}

// expire removes a request whose caller stopped waiting. Losing the race
// against Resolve is fine: the buffered channel holds the unused
// resolution and the caller's timeout verdict stands.
func (m *Manager) expire(req *Request, reason string) {
	m.mu.Lock()
	delete(m.pending, req.ID)
	m.mu.Unlock()

	m.record(req.SessionID, req.Call.Name, audit.EventApprovalResolved, map[string]interface{}{
		"request":  req.ID,
		"status":   string(StatusDenied),
		"resolver": "policy",
		"reason":   reason,
	})
}

func (m *Manager) record(sessionID, tool string, typ audit.EventType, details map[string]interface{}) {
	if m.trail == nil {
		return
	}
	if err := m.trail.Append(sessionID, typ, tool, details); err != nil {
		log.Error().Err(err).Str("session", sessionID).Msg("Failed to write audit event")
	}
}

// overlayParams replaces the named scalar parameters of a call, keeping
// everything else. The tool name cannot change through modification;
// switching tools requires a deny and a fresh call.
func overlayParams(call *toolcall.ToolCall, modified map[string]string) *toolcall.ToolCall {
	params := make([]toolcall.Param, len(call.Params))
	copy(params, call.Params)

	for name, value := range modified {
		replaced := false
		for i := range params {
			if params[i].Name == name {
				params[i].Value = toolcall.ScalarValue(value)
				replaced = true
				break
			}
		}
		if !replaced {
			params = append(params, toolcall.Param{Name: name, Value: toolcall.ScalarValue(value)})
		}
	}
	return call.WithParams(params)
}
