package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind enumerates the envelope kinds a session exchanges.
type Kind string

const (
	KindUserText         Kind = "userText"
	KindAIText           Kind = "aiText"
	KindToolCall         Kind = "toolCall"
	KindApprovalRequest  Kind = "approvalRequest"
	KindApprovalResponse Kind = "approvalResponse"
	KindToolResult       Kind = "toolResult"
	KindError            Kind = "error"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindUserText, KindAIText, KindToolCall, KindApprovalRequest,
		KindApprovalResponse, KindToolResult, KindError:
		return true
	default:
		return false
	}
}

// Envelope is the wire record carried for one session message. Receivers
// must process envelopes of a session in non-decreasing sequence order;
// the Reorderer below restores that ordering for out-of-order arrival.
type Envelope struct {
	Kind      Kind            `json:"kind"`
	SessionID string          `json:"sessionId"`
	Seq       int64           `json:"sequenceNumber"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope builds an envelope, marshaling the payload.
func NewEnvelope(kind Kind, sessionID string, seq int64, payload interface{}) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}
	return Envelope{Kind: kind, SessionID: sessionID, Seq: seq, Payload: raw}, nil
}

// Decode unmarshals the payload into v.
func (e *Envelope) Decode(v interface{}) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Kind, err)
	}
	return nil
}

// UserTextPayload carries user input toward the model.
type UserTextPayload struct {
	Text string `json:"text"`
}

// AITextPayload carries one streamed chunk of model output. Final marks
// the end of the model's turn.
type AITextPayload struct {
	Text  string `json:"text"`
	Final bool   `json:"final,omitempty"`
}

// ToolCallPayload carries a validated, approved call to the executor side.
type ToolCallPayload struct {
	CallID     string                 `json:"callId"`
	Tool       string                 `json:"tool"`
	Parameters map[string]interface{} `json:"parameters"`
}

// ApprovalRequestPayload surfaces a pending approval to the approver.
type ApprovalRequestPayload struct {
	RequestID   string                 `json:"requestId"`
	Tool        string                 `json:"toolName"`
	RiskLevel   string                 `json:"riskLevel"`
	Parameters  map[string]interface{} `json:"parameters"`
	Description string                 `json:"description"`
}

// Decision is an approver's verdict.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionDeny    Decision = "deny"
	DecisionModify  Decision = "modify"
)

// ApprovalResponsePayload carries the approver's resolution. ResolvedBy
// identifies the approver for the audit trail.
type ApprovalResponsePayload struct {
	RequestID          string            `json:"requestId"`
	Decision           Decision          `json:"decision"`
	ResolvedBy         string            `json:"resolvedBy,omitempty"`
	Note               string            `json:"note,omitempty"`
	ModifiedParameters map[string]string `json:"modifiedParameters,omitempty"`
}

// ToolResultPayload carries the executor's outcome for one call.
type ToolResultPayload struct {
	CallID  string `json:"callId"`
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ErrorPayload describes a per-call or per-session failure in a form the
// model (or client) can act on.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	CallID  string `json:"callId,omitempty"`
}
