package mqttclient

import (
	"bytes"
	"context"
	"io"
	"log"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/golang-io/mqttclient/packet"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

// fakeTransport records every written packet and lets the test play the broker.
type fakeTransport struct {
	mu       sync.Mutex
	onData   func([]byte)
	onClose  func(error)
	writeErr error
	closed   bool

	started chan struct{}
	writes  chan []byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		started: make(chan struct{}),
		writes:  make(chan []byte, 1024),
	}
}

func (t *fakeTransport) Start(onData func([]byte), onClose func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onData, t.onClose = onData, onClose
	close(t.started)
}

func (t *fakeTransport) Write(b []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return t.writeErr
	}
	t.writes <- bytes.Clone(b)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *fakeTransport) failWrites(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeErr = err
}

// inject delivers raw bytes as if they were read from the broker.
func (t *fakeTransport) inject(b []byte) {
	<-t.started
	t.mu.Lock()
	onData := t.onData
	t.mu.Unlock()
	onData(b)
}

// send encodes pkts into one chunk and injects it.
func (t *fakeTransport) send(tb testing.TB, pkts ...packet.Packet) {
	tb.Helper()
	var chunk []byte
	for _, pkt := range pkts {
		chunk = append(chunk, encode(tb, pkt)...)
	}
	t.inject(chunk)
}

// drop ends the stream from the broker side.
func (t *fakeTransport) drop(err error) {
	<-t.started
	t.mu.Lock()
	onClose := t.onClose
	t.mu.Unlock()
	onClose(err)
}

// next returns the next packet written by the client.
func (t *fakeTransport) next(tb testing.TB) packet.Packet {
	tb.Helper()
	select {
	case b := <-t.writes:
		pkt, err := packet.Decode(b)
		require.NoError(tb, err)
		return pkt
	case <-time.After(waitTimeout):
		tb.Fatal("no packet written")
		return nil
	}
}

// none asserts nothing was written.
func (t *fakeTransport) none(tb testing.TB) {
	tb.Helper()
	select {
	case b := <-t.writes:
		pkt, _ := packet.Decode(b)
		tb.Fatalf("unexpected packet written: %v", pkt)
	default:
	}
}

func encode(tb testing.TB, pkt packet.Packet) []byte {
	tb.Helper()
	b, err := packet.Encode(pkt)
	require.NoError(tb, err)
	return b
}

// manualScheduler fires timers only when the test advances its clock.
type manualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	s       *manualScheduler
	at      time.Duration
	every   time.Duration
	fn      func()
	stopped bool
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{}
}

func (s *manualScheduler) After(d time.Duration, fn func()) Timer {
	return s.add(d, 0, fn)
}

func (s *manualScheduler) Every(d time.Duration, fn func()) Timer {
	return s.add(d, d, fn)
}

func (s *manualScheduler) add(d, every time.Duration, fn func()) *manualTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{s: s, at: s.now + d, every: every, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// armed returns the number of timers not yet fired or stopped.
func (s *manualScheduler) armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, firing due timers in time order.
func (s *manualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()
	for {
		s.mu.Lock()
		var due *manualTimer
		for _, t := range s.timers {
			if !t.stopped && t.at <= target && (due == nil || t.at < due.at) {
				due = t
			}
		}
		if due == nil {
			s.now = target
			s.mu.Unlock()
			return
		}
		s.now = due.at
		if due.every > 0 {
			due.at += due.every
		} else {
			due.stopped = true
		}
		s.timers = slices.DeleteFunc(s.timers, func(t *manualTimer) bool { return t.stopped })
		s.mu.Unlock()
		due.fn()
	}
}

// flush waits until the connection loop handled everything posted before it.
func flush(tb testing.TB, c *Conn) {
	tb.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	_, err := c.PendingPublishes().Wait(ctx)
	if err == context.DeadlineExceeded {
		tb.Fatal("connection loop did not respond")
	}
}

func testContext(tb testing.TB) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	tb.Cleanup(cancel)
	return ctx
}

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

type harness struct {
	conn      *Conn
	transport *fakeTransport
	scheduler *manualScheduler
}

// dialFake starts a connection over a fake transport and returns once
// CONNECT was written, leaving CONNACK to the test.
func dialFake(tb testing.TB, opts ...Option) (*harness, *Future[*Conn], *packet.CONNECT) {
	tb.Helper()
	h := &harness{transport: newFakeTransport(), scheduler: newManualScheduler()}
	defaults := []Option{ClientID("c1"), KeepAlive(10), WithScheduler(h.scheduler), Logger(discardLogger())}
	c := start(h.transport, newOptions(append(defaults, opts...)...))
	h.conn = c
	connect, ok := h.transport.next(tb).(*packet.CONNECT)
	require.True(tb, ok, "first packet must be CONNECT")
	flush(tb, c)
	tb.Cleanup(func() {
		_ = c.Close()
		for range c.Events() {
		}
	})
	return h, c.connect, connect
}

// connected returns a connection the broker accepted.
func connected(tb testing.TB, opts ...Option) *harness {
	tb.Helper()
	h, f, _ := dialFake(tb, opts...)
	h.transport.send(tb, &packet.CONNACK{ReturnCode: packet.CodeAccepted})
	conn, err := f.Wait(testContext(tb))
	require.NoError(tb, err)
	require.Same(tb, h.conn, conn)
	return h
}

// nextEvent returns the next event of c.
func nextEvent(tb testing.TB, c *Conn) (Event, bool) {
	tb.Helper()
	select {
	case ev, ok := <-c.Events():
		return ev, ok
	case <-time.After(waitTimeout):
		tb.Fatal("no event")
		return Event{}, false
	}
}

// syncBuffer collects log output written from the connection loop.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
