package daemon

import (
	"errors"

	"github.com/lbatista/gambit/pkg/executor"
	"github.com/lbatista/gambit/pkg/resilience"
)

// Error codes carried in error envelopes. Recoverable codes describe a
// problem the model can fix by revising the call; the rest are terminal
// for the call.
const (
	codeParse       = "parse_error"
	codeSchema      = "schema_violation"
	codeSecurity    = "security_rejection"
	codeApproval    = "approval_denied"
	codeExecution   = "execution_failed"
	codeUnavailable = "upstream_unavailable"
	codeSession     = "session_closed"
)

// codeFor maps an execution-stage error to its envelope code.
func codeFor(err error) string {
	var open *resilience.CircuitOpenError
	if errors.As(err, &open) {
		return codeUnavailable
	}
	var exec *executor.ExecutionError
	if errors.As(err, &exec) {
		return codeExecution
	}
	return codeExecution
}
