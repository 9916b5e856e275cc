// Package client queuing.go holds the inbound event queue that hands messages
// from the transport goroutines to the render loop.
package client

import (
	"errors"

	"github.com/4cecoder/arena/protocol"
	"github.com/sasha-s/go-deadlock"
)

var ErrQueueFull = errors.New("inbound event queue full")

type EventType int

const (
	EventTypeConnected EventType = iota
	EventTypeMessage
	EventTypeDisconnected
)

func (t EventType) String() string {
	switch t {
	case EventTypeConnected:
		return "connected"
	case EventTypeMessage:
		return "message"
	case EventTypeDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is one inbound occurrence tagged with the generation of the
// connection it came from.
type Event struct {
	Type    EventType
	Gen     uint64
	Message protocol.Message
}

// EventQueue is a FIFO of events. Message events are refused once the queue
// holds limit events; connection events are always accepted so a stalled
// render loop still learns about disconnects.
type EventQueue struct {
	mu     deadlock.Mutex
	events []Event
	limit  int
}

// NewEventQueue creates a queue. A limit of zero or less means unbounded.
func NewEventQueue(limit int) *EventQueue {
	return &EventQueue{limit: limit}
}

func (q *EventQueue) Enqueue(ev Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if ev.Type == EventTypeMessage && q.limit > 0 && len(q.events) >= q.limit {
		return ErrQueueFull
	}
	q.events = append(q.events, ev)
	return nil
}

// Drain removes and returns every queued event in arrival order.
func (q *EventQueue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	events := q.events
	q.events = nil
	return events
}

func (q *EventQueue) QueueSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.events)
}

func (q *EventQueue) ClearQueue() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.events = nil
}
