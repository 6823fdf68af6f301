package ws

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_SendEnqueues(t *testing.T) {
	s := newSession(nil, "room-1", "u1", 2, 0, nil)
	require.NoError(t, s.Send([]byte("one")))
	require.NoError(t, s.Send([]byte("two")))
	assert.Equal(t, []byte("one"), <-s.out)
	assert.Equal(t, []byte("two"), <-s.out)
}

func TestSession_SendFullQueue(t *testing.T) {
	s := newSession(nil, "room-1", "u1", 1, 0, nil)
	require.NoError(t, s.Send([]byte("one")))
	err := s.Send([]byte("two"))
	assert.ErrorIs(t, err, ErrSlowConsumer)
}

func TestSession_States(t *testing.T) {
	s := newSession(nil, "room-1", "u1", 1, 0, nil)
	assert.Equal(t, stateConnecting, s.state.Load())
	s.markJoined()
	assert.Equal(t, stateJoined, s.state.Load())
	// markJoined never resurrects a session
	s.state.Store(stateClosed)
	s.markJoined()
	assert.Equal(t, stateClosed, s.state.Load())
}

// One member with a wedged queue must not stop delivery to the others.
func TestHub_BroadcastIsolatesSlowMember(t *testing.T) {
	h := &Hub{log: slog.Default(), registry: NewRegistry()}

	healthy1 := newSession(nil, "room-1", "u1", 4, 0, nil)
	stuck := newSession(nil, "room-1", "u2", 1, 0, nil)
	healthy2 := newSession(nil, "room-1", "u3", 4, 0, nil)
	other := newSession(nil, "room-2", "u4", 4, 0, nil)

	h.registry.Join("room-1", healthy1)
	h.registry.Join("room-1", stuck)
	h.registry.Join("room-1", healthy2)
	h.registry.Join("room-2", other)

	require.NoError(t, stuck.Send([]byte("backlog"))) // fills the queue

	h.broadcast("room-1", []byte("payload"))

	assert.Len(t, healthy1.out, 1)
	assert.Len(t, healthy2.out, 1)
	assert.Len(t, stuck.out, 1, "stuck member keeps only its backlog")
	assert.Len(t, other.out, 0, "other rooms never see the message")
}
