package mqttclient

import (
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/golang-io/mqttclient/packet"
	"github.com/gorilla/websocket"
)

// testBroker is just enough of a broker to drive a client over a real
// transport: it accepts every connection, grants every subscription and
// echoes each PUBLISH back at QoS 0.
type testBroker struct {
	t testing.TB

	mu       sync.Mutex
	connects []*packet.CONNECT

	subscribed   chan []packet.Subscription
	disconnected chan struct{}

	// dropAfterSubscribe closes the connection after the first SUBACK.
	dropAfterSubscribe bool
}

func newTestBroker(t testing.TB) *testBroker {
	return &testBroker{
		t:            t,
		subscribed:   make(chan []packet.Subscription, 16),
		disconnected: make(chan struct{}, 16),
	}
}

// listen accepts TCP connections until the test ends.
func (b *testBroker) listen() net.Listener {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		b.t.Fatal(err)
	}
	b.t.Cleanup(func() { ln.Close() })
	go b.accept(ln)
	return ln
}

func (b *testBroker) accept(ln net.Listener) {
	for {
		rwc, err := ln.Accept()
		if err != nil {
			return
		}
		go b.serve(rwc)
	}
}

func (b *testBroker) clientIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.connects))
	for _, c := range b.connects {
		ids = append(ids, c.ClientID)
	}
	return ids
}

func (b *testBroker) serve(rwc io.ReadWriteCloser) {
	defer rwc.Close()
	stream := packet.NewStream(0)
	buf := make([]byte, 1024)
	for {
		n, err := rwc.Read(buf)
		if err != nil {
			return
		}
		pkts, err := stream.Feed(buf[:n])
		if err != nil {
			b.t.Errorf("broker: %v", err)
			return
		}
		for _, pkt := range pkts {
			if !b.handle(rwc, pkt) {
				return
			}
		}
	}
}

func (b *testBroker) handle(w io.Writer, pkt packet.Packet) bool {
	var replies []packet.Packet
	keep := true
	switch p := pkt.(type) {
	case *packet.CONNECT:
		b.mu.Lock()
		b.connects = append(b.connects, p)
		b.mu.Unlock()
		replies = append(replies, &packet.CONNACK{ReturnCode: packet.CodeAccepted})
	case *packet.SUBSCRIBE:
		codes := make([]packet.ReasonCode, 0, len(p.Subscriptions))
		for _, sub := range p.Subscriptions {
			code, _ := packet.SubackCode(sub.MaximumQoS)
			codes = append(codes, code)
		}
		replies = append(replies, &packet.SUBACK{PacketID: p.PacketID, ReturnCodes: codes})
		b.subscribed <- p.Subscriptions
		b.mu.Lock()
		if b.dropAfterSubscribe {
			b.dropAfterSubscribe = false
			keep = false
		}
		b.mu.Unlock()
	case *packet.UNSUBSCRIBE:
		replies = append(replies, &packet.UNSUBACK{PacketID: p.PacketID})
	case *packet.PUBLISH:
		switch p.QoS {
		case 1:
			replies = append(replies, &packet.PUBACK{PacketID: p.PacketID})
		case 2:
			replies = append(replies, &packet.PUBREC{PacketID: p.PacketID})
		}
		replies = append(replies, &packet.PUBLISH{Message: p.Message})
	case *packet.PUBREL:
		replies = append(replies, &packet.PUBCOMP{PacketID: p.PacketID})
	case *packet.PINGREQ:
		replies = append(replies, &packet.PINGRESP{})
	case *packet.DISCONNECT:
		b.disconnected <- struct{}{}
		return false
	}
	for _, reply := range replies {
		if err := reply.Pack(w); err != nil {
			return false
		}
	}
	return keep
}

// ServeHTTP upgrades to a websocket carrying MQTT in binary messages.
func (b *testBroker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{Subprotocols: []string{"mqtt"}}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.t.Errorf("broker: upgrade: %v", err)
		return
	}
	b.serve(&wsConn{Conn: ws})
}

// wsConn reads and writes a gorilla websocket as a byte stream.
type wsConn struct {
	*websocket.Conn
	r io.Reader
}

func (c *wsConn) Read(p []byte) (int, error) {
	for {
		if c.r == nil {
			_, r, err := c.NextReader()
			if err != nil {
				return 0, err
			}
			c.r = r
		}
		n, err := c.r.Read(p)
		if err == io.EOF {
			c.r = nil
			if n == 0 {
				continue
			}
			err = nil
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	if err := c.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func waitFor[T any](tb testing.TB, ch <-chan T) T {
	tb.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		tb.Fatal("timed out")
		var zero T
		return zero
	}
}
