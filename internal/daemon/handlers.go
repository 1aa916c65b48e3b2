package daemon

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/lbatista/gambit/pkg/agent"
	"github.com/lbatista/gambit/pkg/approval"
	"github.com/lbatista/gambit/pkg/gateway"
	"github.com/lbatista/gambit/pkg/protocol"
	"github.com/lbatista/gambit/pkg/session"
)

func (d *Daemon) registerHandlers() error {
	handlers := map[protocol.Kind]gateway.EnvelopeHandler{
		protocol.KindUserText:         d.handleUserText,
		protocol.KindAIText:           d.handleAIText,
		protocol.KindApprovalResponse: d.handleApprovalResponse,
		protocol.KindToolResult:       d.handleToolResult,
	}
	for kind, handler := range handlers {
		if err := d.router.Handle(kind, handler); err != nil {
			return err
		}
	}
	return nil
}

// handleUserText records the user's message and, when a model backend is
// configured, starts a model turn for the session.
func (d *Daemon) handleUserText(_ *gateway.Client, env protocol.Envelope) error {
	var payload protocol.UserTextPayload
	if err := env.Decode(&payload); err != nil {
		return err
	}

	sess, err := d.sessions.Get(env.SessionID)
	if err != nil {
		return err
	}
	if _, err := sess.Append(protocol.KindUserText, payload); err != nil {
		return err
	}

	if d.ai != nil {
		go d.runTurn(sess)
	}
	return nil
}

// handleAIText feeds a chunk of model output produced on the client side
// through the session's pipeline.
func (d *Daemon) handleAIText(_ *gateway.Client, env protocol.Envelope) error {
	var payload protocol.AITextPayload
	if err := env.Decode(&payload); err != nil {
		return err
	}

	sess, err := d.sessions.Get(env.SessionID)
	if err != nil {
		return err
	}
	sess.Touch()

	p, ok := d.pipeline(env.SessionID)
	if !ok {
		return fmt.Errorf("session %s has no active pipeline", env.SessionID)
	}
	if _, err := sess.Append(protocol.KindAIText, payload); err != nil {
		return err
	}
	p.processText(payload.Text, payload.Final)
	return nil
}

// handleApprovalResponse resolves a pending approval request.
func (d *Daemon) handleApprovalResponse(_ *gateway.Client, env protocol.Envelope) error {
	var payload protocol.ApprovalResponsePayload
	if err := env.Decode(&payload); err != nil {
		return err
	}

	var decision approval.Decision
	switch payload.Decision {
	case protocol.DecisionApprove:
		decision = approval.DecisionApprove
	case protocol.DecisionDeny:
		decision = approval.DecisionDeny
	case protocol.DecisionModify:
		decision = approval.DecisionModify
	default:
		return fmt.Errorf("unknown decision %q", payload.Decision)
	}

	if sess, err := d.sessions.Get(env.SessionID); err == nil {
		if _, aerr := sess.Append(protocol.KindApprovalResponse, payload); aerr != nil {
			log.Warn().Str("session", env.SessionID).Err(aerr).Msg("Failed to record approval response")
		}
	}

	return d.approvals.Resolve(payload.RequestID, decision, payload.ResolvedBy, payload.Note, payload.ModifiedParameters)
}

// handleToolResult routes an execution result back to the waiting call.
func (d *Daemon) handleToolResult(_ *gateway.Client, env protocol.Envelope) error {
	var payload protocol.ToolResultPayload
	if err := env.Decode(&payload); err != nil {
		return err
	}
	d.remote.Deliver(payload)
	return nil
}

// notifyApproval surfaces a pending request to the session's client.
func (d *Daemon) notifyApproval(req *approval.Request) {
	sess, err := d.sessions.Get(req.SessionID)
	if err != nil {
		log.Warn().Str("request", req.ID).Err(err).Msg("Approval request for unknown session")
		return
	}

	payload := protocol.ApprovalRequestPayload{
		RequestID:   req.ID,
		Tool:        req.Call.Name,
		RiskLevel:   req.Risk.String(),
		Parameters:  req.Call.ParamMap(),
		Description: req.Call.String(),
	}
	seq, err := sess.Append(protocol.KindApprovalRequest, payload)
	if err != nil {
		log.Warn().Str("request", req.ID).Err(err).Msg("Failed to record approval request")
		seq = sess.NextSeq()
	}
	env, err := protocol.NewEnvelope(protocol.KindApprovalRequest, req.SessionID, seq, payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to build approval request envelope")
		return
	}
	if err := d.gateway.Send(env); err != nil {
		log.Warn().Str("request", req.ID).Err(err).Msg("Failed to deliver approval request")
	}
}

// runTurn calls the configured model with the session history and runs
// the reply through the pipeline.
func (d *Daemon) runTurn(sess *session.Session) {
	p, ok := d.pipeline(sess.ID)
	if !ok {
		return
	}

	messages := historyToMessages(sess.History())
	resp, err := d.ai.Call(context.Background(), agent.Request{
		Model:        d.config.AI.Model,
		Messages:     messages,
		Temperature:  d.config.AI.Temperature,
		MaxTokens:    d.config.AI.MaxTokens,
		SystemPrompt: d.config.AI.SystemPrompt,
	})
	if err != nil {
		p.reportError("", codeFor(err), err)
		return
	}

	payload := protocol.AITextPayload{Text: resp.Text, Final: true}
	seq, err := sess.Append(protocol.KindAIText, payload)
	if err != nil {
		log.Warn().Str("session", sess.ID).Err(err).Msg("Failed to record model reply")
		return
	}
	env, err := protocol.NewEnvelope(protocol.KindAIText, sess.ID, seq, payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to build model reply envelope")
		return
	}
	if err := d.gateway.Send(env); err != nil {
		log.Warn().Str("session", sess.ID).Err(err).Msg("Failed to deliver model reply")
	}

	p.processText(resp.Text, true)
}

func historyToMessages(history []session.Message) []agent.Message {
	var out []agent.Message
	for _, m := range history {
		switch m.Kind {
		case protocol.KindUserText:
			var p protocol.UserTextPayload
			if err := json.Unmarshal(m.Payload, &p); err == nil {
				out = append(out, agent.Message{Role: agent.RoleUser, Content: p.Text})
			}
		case protocol.KindAIText:
			var p protocol.AITextPayload
			if err := json.Unmarshal(m.Payload, &p); err == nil {
				out = append(out, agent.Message{Role: agent.RoleAssistant, Content: p.Text})
			}
		case protocol.KindToolResult:
			var p protocol.ToolResultPayload
			if err := json.Unmarshal(m.Payload, &p); err == nil {
				body := p.Output
				if !p.Success && p.Error != "" {
					body = p.Error
				}
				out = append(out, agent.Message{
					Role:    agent.RoleUser,
					Content: fmt.Sprintf("[tool result %s]\n%s", p.CallID, body),
				})
			}
		}
	}
	return out
}
