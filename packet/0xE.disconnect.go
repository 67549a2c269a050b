package packet

import (
	"bytes"
	"io"
)

// DISCONNECT - Disconnect notification
//
// MQTT v3.1.1: 3.14 DISCONNECT
//
// Last packet a client sends before closing the network connection.
// Fixed header only, flags 0, remaining length 0.
type DISCONNECT struct {
	*FixedHeader `json:"FixedHeader,omitempty"`
}

func (pkt *DISCONNECT) Kind() byte {
	return 0xE
}

func (pkt *DISCONNECT) String() string {
	return "[0xE]DISCONNECT"
}

func (pkt *DISCONNECT) Pack(w io.Writer) error {
	fh, err := ensureHeader(&pkt.FixedHeader, 0xE)
	if err != nil {
		return err
	}
	buf := GetBuffer()
	defer PutBuffer(buf)
	return packWith(w, fh, buf)
}

func (pkt *DISCONNECT) Unpack(buf *bytes.Buffer) error {
	if buf.Len() != 0 {
		return malformed(0xE, "remaining length %d, want 0", buf.Len())
	}
	return nil
}
