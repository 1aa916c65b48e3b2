package daemon

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lbatista/gambit/internal/config"
	"github.com/lbatista/gambit/internal/logger"
	"github.com/lbatista/gambit/pkg/executor"
	"github.com/lbatista/gambit/pkg/protocol"
	"github.com/lbatista/gambit/pkg/resilience"
	"github.com/lbatista/gambit/pkg/security"
	"github.com/lbatista/gambit/pkg/session"
	"github.com/lbatista/gambit/pkg/toolcall"
)

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.WorkspacePath = t.TempDir()
	cfg.Logging.Console = false

	lg, err := logger.New(logger.Config{Level: "error"})
	require.NoError(t, err)

	d, err := New(cfg, lg)
	require.NoError(t, err)
	t.Cleanup(func() {
		d.trail.Close()
		lg.Close()
	})
	return d
}

func TestDaemon_OpenSessionCreatesPipeline(t *testing.T) {
	d := newTestDaemon(t)

	id, err := d.openSession("")
	require.NoError(t, err)

	sess, err := d.sessions.Get(id)
	require.NoError(t, err)
	assert.Equal(t, d.config.WorkspacePath, sess.WorkspaceRoot)

	_, ok := d.pipeline(id)
	assert.True(t, ok)
}

func TestDaemon_CloseSessionDropsPipeline(t *testing.T) {
	d := newTestDaemon(t)
	id, err := d.openSession("")
	require.NoError(t, err)

	require.NoError(t, d.sessions.Close(id, "test"))

	_, ok := d.pipeline(id)
	assert.False(t, ok)
}

func TestDaemon_OpenSessionRejectsMissingWorkspace(t *testing.T) {
	d := newTestDaemon(t)

	_, err := d.openSession("/no/such/workspace")
	assert.Error(t, err)
}

func TestDaemon_RevalidateAcceptsValidCall(t *testing.T) {
	d := newTestDaemon(t)
	id, err := d.openSession("")
	require.NoError(t, err)

	call := &toolcall.ToolCall{
		Name:   "read_file",
		Params: []toolcall.Param{{Name: "path", Value: toolcall.ScalarValue("main.go")}},
	}
	assert.NoError(t, d.revalidate(id, call))
}

func TestDaemon_RevalidateRejectsEscapingPath(t *testing.T) {
	d := newTestDaemon(t)
	id, err := d.openSession("")
	require.NoError(t, err)

	call := &toolcall.ToolCall{
		Name:   "read_file",
		Params: []toolcall.Param{{Name: "path", Value: toolcall.ScalarValue("../../etc/passwd")}},
	}
	err = d.revalidate(id, call)

	require.Error(t, err)
	assert.True(t, security.IsHardRejection(err))
}

func TestDaemon_RevalidateRejectsSchemaViolation(t *testing.T) {
	d := newTestDaemon(t)
	id, err := d.openSession("")
	require.NoError(t, err)

	assert.Error(t, d.revalidate(id, &toolcall.ToolCall{Name: "read_file"}))
}

func TestDaemon_RevalidateUnknownSession(t *testing.T) {
	d := newTestDaemon(t)

	assert.Error(t, d.revalidate("missing", &toolcall.ToolCall{Name: "read_file"}))
}

func TestCodeFor(t *testing.T) {
	open := &resilience.CircuitOpenError{Target: "executor:s1", RetryAfter: time.Second}
	assert.Equal(t, codeUnavailable, codeFor(open))

	exec := &executor.ExecutionError{Tool: "read_file", CallID: "c1", Cause: errors.New("timeout")}
	assert.Equal(t, codeExecution, codeFor(exec))

	assert.Equal(t, codeExecution, codeFor(errors.New("anything else")))
}

func TestHistoryToMessages(t *testing.T) {
	mustRaw := func(v interface{}) json.RawMessage {
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		return raw
	}
	history := []session.Message{
		{Seq: 1, Kind: protocol.KindUserText, Payload: mustRaw(protocol.UserTextPayload{Text: "fix the bug"})},
		{Seq: 2, Kind: protocol.KindAIText, Payload: mustRaw(protocol.AITextPayload{Text: "reading the file"})},
		{Seq: 3, Kind: protocol.KindToolCall, Payload: mustRaw(protocol.ToolCallPayload{CallID: "c1", Tool: "read_file"})},
		{Seq: 4, Kind: protocol.KindToolResult, Payload: mustRaw(protocol.ToolResultPayload{CallID: "c1", Success: true, Output: "package main"})},
		{Seq: 5, Kind: protocol.KindToolResult, Payload: mustRaw(protocol.ToolResultPayload{CallID: "c2", Success: false, Error: "no such file"})},
	}

	messages := historyToMessages(history)

	require.Len(t, messages, 4)
	assert.Equal(t, "fix the bug", messages[0].Content)
	assert.Equal(t, "reading the file", messages[1].Content)
	// Tool call dispatches are not replayed to the model, results are.
	assert.Contains(t, messages[2].Content, "package main")
	assert.Contains(t, messages[3].Content, "no such file")
}
