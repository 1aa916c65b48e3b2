package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(seq int64) Envelope {
	return Envelope{Kind: KindUserText, SessionID: "s", Seq: seq}
}

func TestReorderer_InOrderPassThrough(t *testing.T) {
	r := NewReorderer(1, 8)

	ready, err := r.Push(env(1))
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, int64(1), ready[0].Seq)

	ready, err = r.Push(env(2))
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, int64(2), ready[0].Seq)
}

func TestReorderer_BuffersGap(t *testing.T) {
	r := NewReorderer(1, 8)

	ready, err := r.Push(env(3))
	require.NoError(t, err)
	assert.Empty(t, ready)
	assert.Equal(t, 1, r.PendingCount())

	ready, err = r.Push(env(2))
	require.NoError(t, err)
	assert.Empty(t, ready)

	ready, err = r.Push(env(1))
	require.NoError(t, err)
	require.Len(t, ready, 3)
	assert.Equal(t, int64(1), ready[0].Seq)
	assert.Equal(t, int64(2), ready[1].Seq)
	assert.Equal(t, int64(3), ready[2].Seq)
	assert.Equal(t, 0, r.PendingCount())
}

func TestReorderer_DropsStaleAndDuplicate(t *testing.T) {
	r := NewReorderer(1, 8)

	_, err := r.Push(env(1))
	require.NoError(t, err)

	ready, err := r.Push(env(1))
	require.NoError(t, err)
	assert.Empty(t, ready)

	_, err = r.Push(env(3))
	require.NoError(t, err)
	ready, err = r.Push(env(3))
	require.NoError(t, err)
	assert.Empty(t, ready)
	assert.Equal(t, 1, r.PendingCount())
}

func TestReorderer_BufferLimit(t *testing.T) {
	r := NewReorderer(1, 2)

	_, err := r.Push(env(3))
	require.NoError(t, err)
	_, err = r.Push(env(4))
	require.NoError(t, err)

	_, err = r.Push(env(5))
	assert.Error(t, err)
}

func TestEnvelope_RoundTrip(t *testing.T) {
	e, err := NewEnvelope(KindToolResult, "s1", 7, ToolResultPayload{
		CallID:  "c1",
		Success: true,
		Output:  "done",
	})
	require.NoError(t, err)

	var payload ToolResultPayload
	require.NoError(t, e.Decode(&payload))
	assert.Equal(t, "c1", payload.CallID)
	assert.True(t, payload.Success)
	assert.Equal(t, "done", payload.Output)
}

func TestKind_Valid(t *testing.T) {
	assert.True(t, KindApprovalRequest.Valid())
	assert.False(t, Kind("bogus").Valid())
}
