package approval

import (
	"fmt"
	"time"

	"github.com/lbatista/gambit/pkg/schema"
	"github.com/lbatista/gambit/pkg/toolcall"
)

// Decision is an approver's verdict on a pending request.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionDeny    Decision = "deny"
	DecisionModify  Decision = "modify"
)

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	switch d {
	case DecisionApprove, DecisionDeny, DecisionModify:
		return true
	default:
		return false
	}
}

// Status tracks a request through its lifecycle. A request is resolved
// exactly once; every transition out of pending is terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusModified Status = "modified"
)

// Resolution is the terminal outcome of a request. Call carries the
// parameters execution must use, which differ from the original only for
// modified approvals. ResolvedBy names the approver, or "policy" for
// resolutions that never reached a human.
type Resolution struct {
	Status     Status
	Call       *toolcall.ToolCall
	Note       string
	ResolvedBy string
}

// Request is one pending approval. The resolution channel is buffered so
// the resolver never blocks on a caller that already timed out.
type Request struct {
	ID        string
	SessionID string
	Call      *toolcall.ToolCall
	Risk      schema.RiskLevel
	CreatedAt time.Time

	done chan Resolution
}

// DeniedError reports a call that will not execute because approval was
// denied, timed out, or was blocked by policy. It is permanent: the model
// must change the call, not retry it.
type DeniedError struct {
	Tool   string
	Reason string
}

// Error implements the error interface.
func (e *DeniedError) Error() string {
	return fmt.Sprintf("tool %s denied: %s", e.Tool, e.Reason)
}
