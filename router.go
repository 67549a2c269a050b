package mqttclient

import (
	"context"
	"log"

	"github.com/golang-io/mqttclient/topic"
)

// Handler is called for every received message matching its topic filter.
type Handler func(*Message)

// Router dispatches received messages to the handlers whose topic filter
// matches the message topic. Messages matching no filter go to the
// fallback handler, if any.
type Router struct {
	// Logger receives the messages Serve drops. NewRouter sets log.Default().
	Logger *log.Logger

	trie     *topic.MemoryTrie[Handler]
	fallback Handler
}

func NewRouter() *Router {
	return &Router{Logger: log.Default(), trie: topic.NewMemoryTrie[Handler]()}
}

// Handle registers h for filter, replacing the handler of an identical filter.
func (r *Router) Handle(filter string, h Handler) error {
	return r.trie.Subscribe(filter, h)
}

// Remove drops the handler of filter.
func (r *Router) Remove(filter string) bool {
	return r.trie.Unsubscribe(filter)
}

// Fallback sets the handler for messages no filter matches.
func (r *Router) Fallback(h Handler) {
	r.fallback = h
}

// Route calls every matching handler and returns how many were called.
func (r *Router) Route(msg *Message) int {
	handlers := r.trie.Find(msg.Topic)
	for _, h := range handlers {
		h(msg)
	}
	if len(handlers) == 0 && r.fallback != nil {
		r.fallback(msg)
	}
	return len(handlers)
}

// Serve routes the messages of events until the channel closes or ctx is
// done. It returns the reason of a connection-lost event, nil once the
// connection was closed normally, or the context error.
func (r *Router) Serve(ctx context.Context, events <-chan Event) error {
	var lost error
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return lost
			}
			switch ev.Kind {
			case EventMessageReceived:
				if r.Route(ev.Message) == 0 && r.fallback == nil {
					r.Logger.Printf("router: no handler: topic=%s", ev.Message.Topic)
				}
			case EventConnectionLost:
				lost = lostError(ev.Err)
			}
		}
	}
}
