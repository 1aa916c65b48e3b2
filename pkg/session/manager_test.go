package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lbatista/gambit/pkg/protocol"
)

func newTestManager(t *testing.T, cfg ManagerConfig) *Manager {
	t.Helper()
	return NewManager(cfg)
}

func TestManager_CreateAndGet(t *testing.T) {
	m := newTestManager(t, ManagerConfig{})
	root := t.TempDir()

	s, err := m.Create(root)
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, root, s.WorkspaceRoot)
	assert.Equal(t, StateActive, s.State())

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)
}

func TestManager_CreateRejectsMissingWorkspace(t *testing.T) {
	m := newTestManager(t, ManagerConfig{})

	_, err := m.Create("/no/such/dir")
	assert.Error(t, err)
}

func TestManager_CapacityLimit(t *testing.T) {
	m := newTestManager(t, ManagerConfig{MaxSessions: 2})
	root := t.TempDir()

	_, err := m.Create(root)
	require.NoError(t, err)
	s2, err := m.Create(root)
	require.NoError(t, err)

	_, err = m.Create(root)
	var capErr *CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 2, capErr.Limit)

	// Closing one frees a slot.
	require.NoError(t, m.Close(s2.ID, "done"))
	_, err = m.Create(root)
	assert.NoError(t, err)
}

func TestManager_GetUnknown(t *testing.T) {
	m := newTestManager(t, ManagerConfig{})

	_, err := m.Get("missing")
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestSession_SeqStrictlyIncreasing(t *testing.T) {
	m := newTestManager(t, ManagerConfig{})
	s, err := m.Create(t.TempDir())
	require.NoError(t, err)

	var last int64
	for i := 0; i < 5; i++ {
		seq, err := s.Append(protocol.KindUserText, map[string]string{"text": "hi"})
		require.NoError(t, err)
		assert.Greater(t, seq, last)
		last = seq
	}
	assert.Greater(t, s.NextSeq(), last)
}

func TestSession_ResultSeqAboveCallSeq(t *testing.T) {
	m := newTestManager(t, ManagerConfig{})
	s, err := m.Create(t.TempDir())
	require.NoError(t, err)

	callSeq, err := s.Append(protocol.KindToolCall, map[string]string{"callId": "c1"})
	require.NoError(t, err)
	resultSeq, err := s.Append(protocol.KindToolResult, map[string]string{"callId": "c1"})
	require.NoError(t, err)

	assert.Greater(t, resultSeq, callSeq)
}

func TestSession_HistoryPreservesOrder(t *testing.T) {
	m := newTestManager(t, ManagerConfig{})
	s, err := m.Create(t.TempDir())
	require.NoError(t, err)

	_, err = s.Append(protocol.KindUserText, map[string]string{"text": "a"})
	require.NoError(t, err)
	_, err = s.Append(protocol.KindAIText, map[string]string{"text": "b"})
	require.NoError(t, err)

	history := s.History()
	require.Len(t, history, 2)
	assert.Equal(t, protocol.KindUserText, history[0].Kind)
	assert.Equal(t, protocol.KindAIText, history[1].Kind)
	assert.Less(t, history[0].Seq, history[1].Seq)
}

func TestManager_CloseRunsHooksAndCancelsInFlight(t *testing.T) {
	var hookSession, hookReason string
	m := newTestManager(t, ManagerConfig{})
	m.AddCloseHook(func(sessionID, reason string) {
		hookSession = sessionID
		hookReason = reason
	})
	s, err := m.Create(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.TrackCall("c1", cancel))
	assert.Equal(t, 1, s.InFlight())

	require.NoError(t, m.Close(s.ID, "client disconnected"))

	assert.Equal(t, s.ID, hookSession)
	assert.Equal(t, "client disconnected", hookReason)
	assert.Equal(t, StateClosed, s.State())
	assert.ErrorIs(t, ctx.Err(), context.Canceled)

	_, err = m.Get(s.ID)
	assert.Error(t, err)
}

func TestSession_ClosedRejectsAppendAndTrack(t *testing.T) {
	m := newTestManager(t, ManagerConfig{})
	s, err := m.Create(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, m.Close(s.ID, "done"))

	_, err = s.Append(protocol.KindUserText, map[string]string{"text": "late"})
	var closed *ClosedError
	require.ErrorAs(t, err, &closed)
	assert.Equal(t, s.ID, closed.SessionID)

	assert.ErrorAs(t, s.TrackCall("c2", func() {}), &closed)
}

func TestManager_CloseUnknownSession(t *testing.T) {
	m := newTestManager(t, ManagerConfig{})

	var nf *NotFoundError
	assert.ErrorAs(t, m.Close("missing", "x"), &nf)
}

func TestSession_MarkIdleAndExpire(t *testing.T) {
	m := newTestManager(t, ManagerConfig{})
	s, err := m.Create(t.TempDir())
	require.NoError(t, err)

	later := time.Now().Add(15 * time.Minute)
	assert.True(t, s.markIdle(10*time.Minute, later))
	assert.Equal(t, StateIdle, s.State())

	assert.False(t, s.idleExpired(30*time.Minute, later))
	assert.True(t, s.idleExpired(30*time.Minute, time.Now().Add(45*time.Minute)))
}

func TestSession_IdleSkippedWithInFlightCalls(t *testing.T) {
	m := newTestManager(t, ManagerConfig{})
	s, err := m.Create(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.TrackCall("c1", func() {}))

	assert.False(t, s.markIdle(10*time.Minute, time.Now().Add(time.Hour)))
	assert.Equal(t, StateActive, s.State())
}

func TestSession_TouchRevivesIdle(t *testing.T) {
	m := newTestManager(t, ManagerConfig{})
	s, err := m.Create(t.TempDir())
	require.NoError(t, err)
	require.True(t, s.markIdle(10*time.Minute, time.Now().Add(time.Hour)))

	s.Touch()

	assert.Equal(t, StateActive, s.State())
}

func TestManager_SweepClosesExpiredIdle(t *testing.T) {
	m := newTestManager(t, ManagerConfig{IdleAfter: time.Nanosecond, CloseAfter: time.Nanosecond})
	s, err := m.Create(t.TempDir())
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	m.Sweep() // active -> idle
	assert.Equal(t, StateIdle, s.State())

	time.Sleep(time.Millisecond)
	m.Sweep() // idle -> closed
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 0, m.Count())
}

func TestSession_FinishCall(t *testing.T) {
	m := newTestManager(t, ManagerConfig{})
	s, err := m.Create(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.TrackCall("c1", func() {}))
	s.FinishCall("c1")

	assert.Equal(t, 0, s.InFlight())
}
