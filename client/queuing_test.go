package client

import (
	"testing"

	"github.com/4cecoder/arena/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventQueueDrainsInOrder(t *testing.T) {
	q := NewEventQueue(0)
	require.NoError(t, q.Enqueue(Event{Type: EventTypeConnected, Gen: 1}))
	require.NoError(t, q.Enqueue(Event{Type: EventTypeMessage, Gen: 1, Message: protocol.Connect{ID: "a"}}))
	require.NoError(t, q.Enqueue(Event{Type: EventTypeDisconnected, Gen: 1}))
	assert.Equal(t, 3, q.QueueSize())

	events := q.Drain()
	require.Len(t, events, 3)
	assert.Equal(t, EventTypeConnected, events[0].Type)
	assert.Equal(t, protocol.Connect{ID: "a"}, events[1].Message)
	assert.Equal(t, EventTypeDisconnected, events[2].Type)

	assert.Empty(t, q.Drain())
}

func TestEventQueueLimitSparesConnectionEvents(t *testing.T) {
	q := NewEventQueue(2)
	require.NoError(t, q.Enqueue(Event{Type: EventTypeMessage}))
	require.NoError(t, q.Enqueue(Event{Type: EventTypeMessage}))
	assert.ErrorIs(t, q.Enqueue(Event{Type: EventTypeMessage}), ErrQueueFull)

	require.NoError(t, q.Enqueue(Event{Type: EventTypeDisconnected}))
	assert.Equal(t, 3, q.QueueSize())

	q.ClearQueue()
	assert.Zero(t, q.QueueSize())
}
