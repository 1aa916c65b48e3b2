package approval

import (
	"github.com/lbatista/gambit/pkg/schema"
)

// Action is what the policy decides before any approver is consulted.
type Action int

const (
	// ActionAsk routes the call to the approver.
	ActionAsk Action = iota
	// ActionAutoApprove lets the call through without asking.
	ActionAutoApprove
	// ActionBlock denies the call outright.
	ActionBlock
)

// Policy decides which calls need a human. Explicit per-tool lists win
// over the category rules; blocking wins over everything.
type Policy struct {
	// AutoApproveReads lets read-category and workflow-category tools
	// through without asking, provided they carry low risk.
	AutoApproveReads bool
	// AutoApprove names tools that never need approval.
	AutoApprove []string
	// AlwaysAsk names tools that always need approval, even when the
	// category rule would let them through.
	AlwaysAsk []string
	// Block names tools that are denied unconditionally.
	Block []string
}

// DefaultPolicy auto-approves reads and asks for everything else.
func DefaultPolicy() Policy {
	return Policy{AutoApproveReads: true}
}

// Evaluate decides the action for a call with the given escalated risk.
// The risk floor from the security check can force a conversation even
// for tools whose baseline would auto-approve.
func (p Policy) Evaluate(spec *schema.Spec, risk schema.RiskLevel) Action {
	if containsName(p.Block, spec.Name) {
		return ActionBlock
	}
	if containsName(p.AlwaysAsk, spec.Name) {
		return ActionAsk
	}
	if containsName(p.AutoApprove, spec.Name) {
		return ActionAutoApprove
	}
	if spec.RequiresApproval {
		return ActionAsk
	}
	if p.AutoApproveReads && risk == schema.RiskLow {
		switch spec.Category {
		case schema.CategoryRead, schema.CategoryWorkflow:
			return ActionAutoApprove
		}
	}
	return ActionAsk
}

func containsName(set []string, name string) bool {
	for _, s := range set {
		if s == name {
			return true
		}
	}
	return false
}
