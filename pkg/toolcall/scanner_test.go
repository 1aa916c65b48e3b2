package toolcall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanner_CallSplitAcrossChunks(t *testing.T) {
	s := NewScanner(knownTools("read_file"))

	calls, err := s.Feed("Let me look at that file. <read_file><pa")
	require.NoError(t, err)
	assert.Empty(t, calls)

	calls, err = s.Feed("th>main.go</path></read_file> Done.")
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "read_file", calls[0].Name)
	assert.Equal(t, "main.go", calls[0].ParamText("path"))
}

func TestScanner_ProseIgnored(t *testing.T) {
	s := NewScanner(knownTools("read_file"))

	calls, err := s.Feed("I will compare a < b and then proceed, no tools needed here.")

	require.NoError(t, err)
	assert.Empty(t, calls)
}

func TestScanner_UnregisteredTagsAreProse(t *testing.T) {
	s := NewScanner(knownTools("read_file"))

	calls, err := s.Feed("Here is some <em>markup</em> that is not a tool call.")

	require.NoError(t, err)
	assert.Empty(t, calls)
}

func TestScanner_MultipleCallsInOneChunk(t *testing.T) {
	s := NewScanner(knownTools("read_file", "list_files"))

	calls, err := s.Feed("<read_file><path>a</path></read_file> then <list_files><path>.</path></list_files>")

	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, "read_file", calls[0].Name)
	assert.Equal(t, "list_files", calls[1].Name)
}

func TestScanner_NoRescanOfEmittedCalls(t *testing.T) {
	s := NewScanner(knownTools("read_file"))

	calls, err := s.Feed("<read_file><path>a</path></read_file>")
	require.NoError(t, err)
	require.Len(t, calls, 1)

	// The same byte range must not produce the call again.
	calls, err = s.Feed(" trailing prose")
	require.NoError(t, err)
	assert.Empty(t, calls)
}

func TestScanner_ByteOffsetsAbsolute(t *testing.T) {
	s := NewScanner(knownTools("read_file"))

	prefix := "0123456789"
	calls, err := s.Feed(prefix + "<read_file><path>a</path></read_file>")

	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, len(prefix), calls[0].Raw.Start)
}

func TestScanner_MalformedRegionReported(t *testing.T) {
	s := NewScanner(knownTools("read_file"))

	_, err := s.Feed("<read_file><path>a</wrong></read_file>")

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}

func TestScanner_ScanningResumesAfterError(t *testing.T) {
	s := NewScanner(knownTools("read_file"))

	_, err := s.Feed("<read_file><path>a</wrong></read_file>")
	require.Error(t, err)

	calls, err := s.Feed("<read_file><path>b</path></read_file>")
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "b", calls[0].ParamText("path"))
}

func TestScanner_CallAfterMalformedRegionStillEmitted(t *testing.T) {
	s := NewScanner(knownTools("read_file"))

	calls, err := s.Feed("<read_file><path>a</path></oops></read_file><read_file><path>b.go</path></read_file>")

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	require.Len(t, calls, 1)
	assert.Equal(t, "b.go", calls[0].ParamText("path"))
	assert.NoError(t, s.Finish())
}

func TestScanner_FinishWithOpenCall(t *testing.T) {
	s := NewScanner(knownTools("read_file"))

	_, err := s.Feed("<read_file><path>a</path>")
	require.NoError(t, err)

	err = s.Finish()
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "</read_file>", perr.Expected)
	assert.Equal(t, "end of turn", perr.Found)
}

func TestScanner_FinishCleanIsNoop(t *testing.T) {
	s := NewScanner(knownTools("read_file"))

	_, err := s.Feed("just prose")
	require.NoError(t, err)
	assert.NoError(t, s.Finish())
}

func TestScanner_EntityInContent(t *testing.T) {
	s := NewScanner(knownTools("write_to_file"))

	calls, err := s.Feed("<write_to_file><path>f</path><content>&lt;x&gt;</content></write_to_file>")

	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "<x>", calls[0].ParamText("content"))
}

func TestScanner_BufferDoesNotGrowOnProse(t *testing.T) {
	s := NewScanner(knownTools("read_file"))

	for i := 0; i < 100; i++ {
		_, err := s.Feed("a long stretch of plain prose without any angle brackets at all ")
		require.NoError(t, err)
	}
	assert.Less(t, len(s.buf), 256)
}
