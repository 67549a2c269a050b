package mqttclient

import (
	"bytes"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetTransport(t *testing.T) {
	client, server := net.Pipe()
	tr := NewTransport(client)

	var (
		mu       sync.Mutex
		received bytes.Buffer
	)
	closed := make(chan error, 1)
	tr.Start(func(b []byte) {
		mu.Lock()
		defer mu.Unlock()
		received.Write(b)
	}, func(err error) {
		closed <- err
	})
	// a second Start does not start a second reader
	tr.Start(func([]byte) { t.Error("second reader") }, func(error) {})

	go func() {
		buf := make([]byte, 16)
		n, _ := server.Read(buf)
		server.Write(buf[:n])
		server.Write([]byte(" world"))
		server.Close()
	}()
	require.NoError(t, tr.Write([]byte("hello")))

	err := waitFor(t, closed)
	assert.ErrorIs(t, err, io.EOF)
	mu.Lock()
	assert.Equal(t, "hello world", received.String())
	mu.Unlock()
	assert.NoError(t, tr.Close())
}

func TestNetTransportLocalClose(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err == nil {
			io.Copy(io.Discard, c)
			c.Close()
		}
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	tr := NewTransport(conn)
	closed := make(chan error, 1)
	tr.Start(func([]byte) {}, func(err error) { closed <- err })

	require.NoError(t, tr.Close())
	assert.ErrorIs(t, waitFor(t, closed), io.EOF, "closing our end reports EOF")
}
