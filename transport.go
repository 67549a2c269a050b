package mqttclient

import (
	"bytes"
	"errors"
	"io"
	"net"
	"sync"
)

// Transport is the duplex byte stream a connection runs over.
//
// Start is called once, from the connection loop, before the first Write.
// The transport then reports every inbound chunk through onData and the end
// of the stream, exactly once, through onClose. Chunks may split or join
// packets arbitrarily.
type Transport interface {
	Start(onData func([]byte), onClose func(error))
	Write(b []byte) error
	Close() error
}

// NewTransport adapts a net.Conn: a TCP, TLS or websocket connection.
func NewTransport(conn net.Conn) Transport {
	return &netTransport{conn: conn}
}

type netTransport struct {
	conn net.Conn
	once sync.Once
}

const readBufferSize = 4 * 1024

func (t *netTransport) Start(onData func([]byte), onClose func(error)) {
	t.once.Do(func() {
		go t.readLoop(onData, onClose)
	})
}

func (t *netTransport) readLoop(onData func([]byte), onClose func(error)) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := t.conn.Read(buf)
		if n > 0 {
			onData(bytes.Clone(buf[:n]))
		}
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				err = io.EOF
			}
			onClose(err)
			return
		}
	}
}

func (t *netTransport) Write(b []byte) error {
	_, err := t.conn.Write(b)
	return err
}

func (t *netTransport) Close() error {
	return t.conn.Close()
}
