package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lbatista/gambit/pkg/schema"
	"github.com/lbatista/gambit/pkg/toolcall"
)

func newSecurityValidator(t *testing.T) *Validator {
	t.Helper()
	root := t.TempDir()
	ignore := LoadIgnoreSet(root, nil)
	paths, err := NewPathValidator(root, ignore)
	require.NoError(t, err)
	return NewValidator(schema.Default(), paths, NewCommandFilter(CommandFilterConfig{}))
}

func call(tool string, kv ...string) *toolcall.ToolCall {
	c := &toolcall.ToolCall{Name: tool}
	for i := 0; i+1 < len(kv); i += 2 {
		c.Params = append(c.Params, toolcall.Param{Name: kv[i], Value: toolcall.ScalarValue(kv[i+1])})
	}
	return c
}

func TestValidator_ReadInsideWorkspace(t *testing.T) {
	v := newSecurityValidator(t)

	risk, err := v.Check(call("read_file", "path", "main.go"))

	require.NoError(t, err)
	assert.Equal(t, schema.RiskLow, risk)
}

func TestValidator_PathEscapeIsHardRejection(t *testing.T) {
	v := newSecurityValidator(t)

	_, err := v.Check(call("read_file", "path", "../../etc/passwd"))

	require.Error(t, err)
	assert.True(t, IsHardRejection(err))
}

func TestValidator_DestructiveCommandIsHardRejection(t *testing.T) {
	v := newSecurityValidator(t)

	_, err := v.Check(call("execute_command", "command", "rm -rf /"))

	require.Error(t, err)
	var blocked *CommandBlockedError
	assert.ErrorAs(t, err, &blocked)
}

func TestValidator_CommandRiskEscalatesBaseline(t *testing.T) {
	v := newSecurityValidator(t)

	risk, err := v.Check(call("execute_command", "command", "ls -la"))

	require.NoError(t, err)
	// execute_command's baseline is already high and never goes down.
	assert.Equal(t, schema.RiskHigh, risk)
}

func TestValidator_WritePathChecked(t *testing.T) {
	v := newSecurityValidator(t)

	_, err := v.Check(call("write_to_file", "path", "../out.txt", "content", "x", "line_count", "1"))

	var traversal *PathTraversalError
	assert.ErrorAs(t, err, &traversal)
}

func TestValidator_UnknownToolHighRisk(t *testing.T) {
	v := newSecurityValidator(t)

	risk, err := v.Check(call("no_such_tool"))

	require.NoError(t, err)
	assert.Equal(t, schema.RiskHigh, risk)
}
