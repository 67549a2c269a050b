package mqttclient

import (
	"fmt"
	"sync"
)

// EventKind enumerates what a connection reports on its event channel.
type EventKind int

const (
	// EventMessageReceived carries an application message from the broker.
	EventMessageReceived EventKind = iota + 1

	// EventConnectionLost reports that a connected session ended without a
	// Disconnect. Err holds the reason. It is always the last event.
	EventConnectionLost
)

func (k EventKind) String() string {
	switch k {
	case EventMessageReceived:
		return "message-received"
	case EventConnectionLost:
		return "connection-lost"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is one notification from a connection.
type Event struct {
	Kind    EventKind
	Message *Message // EventMessageReceived
	Err     error    // EventConnectionLost
}

// Message is an application message, inbound or outbound.
type Message struct {
	Topic   string
	Payload []byte
	QoS     uint8
	Retain  bool

	// Dup marks a redelivery of a QoS 1 or QoS 2 message.
	Dup bool
}

func (m *Message) String() string {
	return fmt.Sprintf("%s # qos=%d, retain=%t, size=%d", m.Topic, m.QoS, m.Retain, len(m.Payload))
}

// eventQueue decouples the connection loop from the consumer: push never
// blocks, events are delivered in order on out, and out is closed once the
// queue is closed and drained.
type eventQueue struct {
	mu     sync.Mutex
	items  []Event
	closed bool
	signal chan struct{}
	out    chan Event
}

func newEventQueue(buffer int) *eventQueue {
	q := &eventQueue{
		signal: make(chan struct{}, 1),
		out:    make(chan Event, buffer),
	}
	go q.pump()
	return q
}

func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()
	q.notify()
}

func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.notify()
}

func (q *eventQueue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *eventQueue) pump() {
	defer close(q.out)
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			<-q.signal
			continue
		}
		ev := q.items[0]
		q.items[0] = Event{}
		q.items = q.items[1:]
		q.mu.Unlock()
		q.out <- ev
	}
}
