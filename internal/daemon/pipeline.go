package daemon

import (
	"context"
	"fmt"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"

	"github.com/lbatista/gambit/pkg/audit"
	"github.com/lbatista/gambit/pkg/protocol"
	"github.com/lbatista/gambit/pkg/resilience"
	"github.com/lbatista/gambit/pkg/security"
	"github.com/lbatista/gambit/pkg/session"
	"github.com/lbatista/gambit/pkg/toolcall"
)

// pipeline is the per-session processing chain: model output streams in,
// validated and approved tool calls come out the other end. One pipeline
// per session; the scanner is serialized, call handling is not.
type pipeline struct {
	daemon *Daemon
	sess   *session.Session

	scanMu  sync.Mutex
	scanner *toolcall.Scanner

	ignore   *security.IgnoreSet
	security *security.Validator
	watcher  *security.WorkspaceWatcher
}

func (d *Daemon) newPipeline(sess *session.Session) (*pipeline, error) {
	ignore := security.LoadIgnoreSet(sess.WorkspaceRoot, d.config.Security.IgnorePatterns)
	paths, err := security.NewPathValidator(sess.WorkspaceRoot, ignore)
	if err != nil {
		return nil, fmt.Errorf("failed to set up path validation: %w", err)
	}

	p := &pipeline{
		daemon:   d,
		sess:     sess,
		scanner:  toolcall.NewScanner(d.registry.Known),
		ignore:   ignore,
		security: security.NewValidator(d.registry, paths, d.commands),
	}

	watcher, err := security.NewWorkspaceWatcher(paths.Root(), ignore, d.config.Security.IgnorePatterns, func() {
		log.Warn().Str("session", sess.ID).Msg("Workspace root removed, closing session")
		if cerr := d.sessions.Close(sess.ID, "workspace root removed"); cerr != nil {
			log.Warn().Str("session", sess.ID).Err(cerr).Msg("Failed to close session")
		}
	})
	if err != nil {
		log.Warn().Str("session", sess.ID).Err(err).Msg("Workspace watcher unavailable")
	} else if err := watcher.Start(); err != nil {
		log.Warn().Str("session", sess.ID).Err(err).Msg("Failed to start workspace watcher")
	} else {
		p.watcher = watcher
	}

	return p, nil
}

func (p *pipeline) stop() {
	if p.watcher != nil {
		p.watcher.Stop()
	}
}

// processText feeds one chunk of model output through the scanner. Each
// complete call runs in its own goroutine so a call blocked on approval
// never stalls the rest of the turn.
func (p *pipeline) processText(text string, final bool) {
	p.scanMu.Lock()
	calls, err := p.scanner.Feed(text)
	var finishErr error
	if final {
		finishErr = p.scanner.Finish()
	}
	p.scanMu.Unlock()

	for _, call := range calls {
		go p.handleCall(call)
	}
	if err != nil {
		p.reportError("", codeParse, err)
	}
	if finishErr != nil {
		p.reportError("", codeParse, finishErr)
	}
}

// handleCall runs one call through the full chain: canonicalize, schema
// validate, security check, approval, execution, result delivery.
func (p *pipeline) handleCall(call *toolcall.ToolCall) {
	d := p.daemon
	callID, _ := gonanoid.New()

	canonical := d.registry.Canonicalize(call)

	if err := d.registry.ValidateErr(canonical); err != nil {
		log.Debug().Str("tool", call.Name).Str("session", p.sess.ID).Err(err).Msg("Schema validation failed")
		p.reportError(callID, codeSchema, err)
		return
	}

	risk, err := p.security.Check(canonical)
	if err != nil {
		d.recordAudit(p.sess.ID, audit.EventSecurityRejected, canonical.Name, map[string]interface{}{
			"call":   callID,
			"reason": err.Error(),
		})
		p.reportError(callID, codeSecurity, err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	approved, err := d.approvals.Submit(ctx, p.sess.ID, canonical, risk)
	if err != nil {
		p.reportError(callID, codeApproval, err)
		return
	}

	// The call joins the in-flight set only once approval is terminal;
	// the approval wait itself is cancelled through the session close hook.
	if err := p.sess.TrackCall(callID, cancel); err != nil {
		p.reportError(callID, codeSession, err)
		return
	}
	defer p.sess.FinishCall(callID)

	policy := resilience.NewPolicy(d.breakers.Get("executor:"+p.sess.ID), d.execRetry)
	var result protocol.ToolResultPayload
	execErr := policy.Execute(ctx, func(ctx context.Context) error {
		res, err := d.remote.Execute(ctx, p.sess, callID, approved)
		if err != nil {
			return err
		}
		result = protocol.ToolResultPayload{
			CallID:  callID,
			Success: res.Success,
			Output:  res.Output,
			Error:   res.Error,
		}
		return nil
	})
	if execErr != nil {
		p.reportError(callID, codeFor(execErr), execErr)
		return
	}

	if _, err := p.sess.Append(protocol.KindToolResult, result); err != nil {
		log.Warn().Str("session", p.sess.ID).Err(err).Msg("Failed to record tool result")
	}
	d.recordAudit(p.sess.ID, audit.EventToolExecuted, approved.Name, map[string]interface{}{
		"call":    callID,
		"success": result.Success,
	})
	log.Info().
		Str("session", p.sess.ID).
		Str("tool", approved.Name).
		Str("call", callID).
		Bool("success", result.Success).
		Msg("Tool call completed")
}

// reportError records a structured error in the session history and sends
// it to the session's client. Recoverable errors describe what to fix so
// the model can revise the call.
func (p *pipeline) reportError(callID, code string, err error) {
	payload := protocol.ErrorPayload{
		Code:    code,
		Message: err.Error(),
		CallID:  callID,
	}
	seq, aerr := p.sess.Append(protocol.KindError, payload)
	if aerr != nil {
		// A closing session takes no more history; the envelope still goes
		// out so the client learns why the call died.
		seq = p.sess.NextSeq()
	}
	env, berr := protocol.NewEnvelope(protocol.KindError, p.sess.ID, seq, payload)
	if berr != nil {
		log.Error().Err(berr).Msg("Failed to build error envelope")
		return
	}
	if serr := p.daemon.gateway.Send(env); serr != nil {
		log.Warn().Str("session", p.sess.ID).Err(serr).Msg("Failed to deliver error envelope")
	}
}

func (d *Daemon) recordAudit(sessionID string, typ audit.EventType, tool string, details map[string]interface{}) {
	if err := d.trail.Append(sessionID, typ, tool, details); err != nil {
		log.Error().Err(err).Str("session", sessionID).Msg("Failed to write audit event")
	}
}

// revalidate re-runs the validation chain over a modified call before the
// approval manager lets it execute.
func (d *Daemon) revalidate(sessionID string, call *toolcall.ToolCall) error {
	p, ok := d.pipeline(sessionID)
	if !ok {
		return fmt.Errorf("session %s has no active pipeline", sessionID)
	}
	canonical := d.registry.Canonicalize(call)
	if err := d.registry.ValidateErr(canonical); err != nil {
		return err
	}
	if _, err := p.security.Check(canonical); err != nil {
		return err
	}
	return nil
}
