package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lbatista/gambit/pkg/toolcall"
)

func TestCanonicalize_ArgsWrapper(t *testing.T) {
	r := Default()

	call := &toolcall.ToolCall{
		Name: "read_file",
		Params: []toolcall.Param{
			{Name: "args", Value: toolcall.ObjectValue(
				toolcall.Field{Name: "path", Value: toolcall.ScalarValue("a.txt")},
			)},
		},
	}
	canonical := r.Canonicalize(call)

	assert.Equal(t, "a.txt", canonical.ParamText("path"))
	_, hasArgs := canonical.Param("args")
	assert.False(t, hasArgs)
}

func TestCanonicalize_GroupingElementSplicedOut(t *testing.T) {
	r := Default()

	call := &toolcall.ToolCall{
		Name: "read_file",
		Params: []toolcall.Param{
			{Name: "file", Value: toolcall.ObjectValue(
				toolcall.Field{Name: "path", Value: toolcall.ScalarValue("b.txt")},
			)},
		},
	}
	canonical := r.Canonicalize(call)

	assert.Equal(t, "b.txt", canonical.ParamText("path"))
}

func TestCanonicalize_FlatCallUntouched(t *testing.T) {
	r := Default()

	call := scalarCall("read_file", "path", "c.txt")
	canonical := r.Canonicalize(call)

	assert.Same(t, call, canonical)
}

func TestCanonicalize_Idempotent(t *testing.T) {
	r := Default()

	call := &toolcall.ToolCall{
		Name: "read_file",
		Params: []toolcall.Param{
			{Name: "args", Value: toolcall.ObjectValue(
				toolcall.Field{Name: "path", Value: toolcall.ScalarValue("d.txt")},
			)},
		},
	}
	once := r.Canonicalize(call)
	twice := r.Canonicalize(once)

	require.Equal(t, once.Params, twice.Params)
	assert.Same(t, once, twice)
}

func TestCanonicalize_UndeclaredObjectParamKept(t *testing.T) {
	r := Default()

	// An object param whose children are not declared parameters is not a
	// grouping element; it stays for validation to reject.
	call := &toolcall.ToolCall{
		Name: "read_file",
		Params: []toolcall.Param{
			{Name: "wrapper", Value: toolcall.ObjectValue(
				toolcall.Field{Name: "mystery", Value: toolcall.ScalarValue("x")},
			)},
		},
	}
	canonical := r.Canonicalize(call)

	_, kept := canonical.Param("wrapper")
	assert.True(t, kept)
}

func TestCanonicalize_UnknownToolPassedThrough(t *testing.T) {
	r := Default()

	call := scalarCall("no_such_tool", "x", "y")
	assert.Same(t, call, r.Canonicalize(call))
}
