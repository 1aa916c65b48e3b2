package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lbatista/gambit/pkg/protocol"
)

func userText(sessionID string, seq int64) protocol.Envelope {
	return protocol.Envelope{Kind: protocol.KindUserText, SessionID: sessionID, Seq: seq}
}

func TestRouter_DispatchesInSequenceOrder(t *testing.T) {
	r := NewRouter()
	var seen []int64
	require.NoError(t, r.Handle(protocol.KindUserText, func(_ *Client, env protocol.Envelope) error {
		seen = append(seen, env.Seq)
		return nil
	}))

	require.NoError(t, r.Route(nil, userText("s1", 2)))
	assert.Empty(t, seen)

	require.NoError(t, r.Route(nil, userText("s1", 1)))
	assert.Equal(t, []int64{1, 2}, seen)
}

func TestRouter_SessionsReorderIndependently(t *testing.T) {
	r := NewRouter()
	var seen []string
	require.NoError(t, r.Handle(protocol.KindUserText, func(_ *Client, env protocol.Envelope) error {
		seen = append(seen, env.SessionID)
		return nil
	}))

	require.NoError(t, r.Route(nil, userText("s1", 2)))
	require.NoError(t, r.Route(nil, userText("s2", 1)))

	// s1 is still gapped, s2 went straight through.
	assert.Equal(t, []string{"s2"}, seen)
}

func TestRouter_DuplicateHandlerRejected(t *testing.T) {
	r := NewRouter()
	noop := func(*Client, protocol.Envelope) error { return nil }

	require.NoError(t, r.Handle(protocol.KindUserText, noop))
	assert.Error(t, r.Handle(protocol.KindUserText, noop))
}

func TestRouter_InvalidKindRejected(t *testing.T) {
	r := NewRouter()

	assert.Error(t, r.Handle(protocol.Kind("bogus"), func(*Client, protocol.Envelope) error { return nil }))
	assert.Error(t, r.Route(nil, protocol.Envelope{Kind: "bogus", SessionID: "s1", Seq: 1}))
}

func TestRouter_MissingSessionRejected(t *testing.T) {
	r := NewRouter()

	assert.Error(t, r.Route(nil, protocol.Envelope{Kind: protocol.KindUserText, Seq: 1}))
}

func TestRouter_UnhandledKindDropped(t *testing.T) {
	r := NewRouter()

	assert.NoError(t, r.Route(nil, userText("s1", 1)))
}

func TestRouter_DropSessionResetsSequence(t *testing.T) {
	r := NewRouter()
	var seen []int64
	require.NoError(t, r.Handle(protocol.KindUserText, func(_ *Client, env protocol.Envelope) error {
		seen = append(seen, env.Seq)
		return nil
	}))

	require.NoError(t, r.Route(nil, userText("s1", 1)))
	r.DropSession("s1")

	// A fresh session with the same id starts counting at 1 again.
	require.NoError(t, r.Route(nil, userText("s1", 1)))
	assert.Equal(t, []int64{1, 1}, seen)
}

func TestClientRegistry_BindAndLookup(t *testing.T) {
	reg := NewClientRegistry()
	c := &Client{ID: "c1"}
	reg.Add(c)
	reg.Bind("s1", "c1")

	got, ok := reg.ForSession("s1")
	require.True(t, ok)
	assert.Same(t, c, got)

	reg.Unbind("s1")
	_, ok = reg.ForSession("s1")
	assert.False(t, ok)
}

func TestClientRegistry_RemoveReturnsOrphanedSessions(t *testing.T) {
	reg := NewClientRegistry()
	reg.Add(&Client{ID: "c1"})
	reg.Add(&Client{ID: "c2"})
	reg.Bind("s1", "c1")
	reg.Bind("s2", "c1")
	reg.Bind("s3", "c2")

	orphaned := reg.Remove("c1")

	assert.ElementsMatch(t, []string{"s1", "s2"}, orphaned)
	assert.Equal(t, 1, reg.Count())
	_, ok := reg.ForSession("s3")
	assert.True(t, ok)
}

func TestClientRegistry_RebindReplaces(t *testing.T) {
	reg := NewClientRegistry()
	reg.Add(&Client{ID: "c1"})
	c2 := &Client{ID: "c2"}
	reg.Add(c2)

	reg.Bind("s1", "c1")
	reg.Bind("s1", "c2")

	got, ok := reg.ForSession("s1")
	require.True(t, ok)
	assert.Same(t, c2, got)
}
