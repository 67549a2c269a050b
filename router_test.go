package mqttclient

import (
	"context"
	"io"
	"log"
	"testing"

	"github.com/golang-io/mqttclient/packet"
	"github.com/golang-io/mqttclient/topic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterRoute(t *testing.T) {
	r := NewRouter()
	var got []string
	require.NoError(t, r.Handle("sensor/+/temp", func(m *Message) { got = append(got, "temp:"+m.Topic) }))
	require.NoError(t, r.Handle("sensor/#", func(m *Message) { got = append(got, "all:"+m.Topic) }))
	assert.ErrorIs(t, r.Handle("sensor/#/x", func(*Message) {}), topic.ErrInvalidFilter)

	assert.Equal(t, 2, r.Route(&Message{Topic: "sensor/1/temp"}))
	assert.ElementsMatch(t, []string{"temp:sensor/1/temp", "all:sensor/1/temp"}, got)

	got = nil
	assert.Equal(t, 1, r.Route(&Message{Topic: "sensor/1/humidity"}))
	assert.Equal(t, []string{"all:sensor/1/humidity"}, got)

	assert.True(t, r.Remove("sensor/#"))
	assert.Zero(t, r.Route(&Message{Topic: "sensor/1/humidity"}))
}

func TestRouterFallback(t *testing.T) {
	r := NewRouter()
	var fallback []string
	r.Fallback(func(m *Message) { fallback = append(fallback, m.Topic) })
	require.NoError(t, r.Handle("a", func(*Message) {}))

	r.Route(&Message{Topic: "a"})
	r.Route(&Message{Topic: "b"})
	assert.Equal(t, []string{"b"}, fallback)
}

func TestRouterServe(t *testing.T) {
	h := connected(t)
	r := NewRouter()
	received := make(chan *Message, 1)
	require.NoError(t, r.Handle("x/#", func(m *Message) { received <- m }))

	done := make(chan error, 1)
	go func() { done <- r.Serve(context.Background(), h.conn.Events()) }()

	h.transport.send(t, publishPacket(0, 0))
	h.transport.send(t, &packet.PUBLISH{Message: &packet.Message{TopicName: "x/y", Content: []byte("v")}})
	m := <-received
	assert.Equal(t, "x/y", m.Topic)

	h.transport.drop(io.EOF)
	err := <-done
	assert.ErrorIs(t, err, ErrConnectionLost)
	assert.ErrorIs(t, err, io.EOF)
}

func TestRouterServeDisconnect(t *testing.T) {
	h := connected(t)
	done := make(chan error, 1)
	go func() { done <- NewRouter().Serve(context.Background(), h.conn.Events()) }()

	_, err := h.conn.Disconnect().Wait(testContext(t))
	require.NoError(t, err)
	assert.NoError(t, <-done)
}

func TestRouterServeContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewRouter().Serve(ctx, make(chan Event))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRouterServeLogsUnrouted(t *testing.T) {
	var buf syncBuffer
	r := NewRouter()
	r.Logger = log.New(&buf, "", 0)
	require.NoError(t, r.Handle("a", func(*Message) {}))

	events := make(chan Event, 2)
	events <- Event{Kind: EventMessageReceived, Message: &Message{Topic: "a"}}
	events <- Event{Kind: EventMessageReceived, Message: &Message{Topic: "z"}}
	close(events)

	require.NoError(t, r.Serve(context.Background(), events))
	assert.Equal(t, "router: no handler: topic=z\n", buf.String())
}
