package packet

import (
	"bytes"
	"io"
)

// PINGREQ - PING request
//
// MQTT v3.1.1: 3.12 PINGREQ
//
// Sent by the client to prove liveness; the server answers with PINGRESP.
// Fixed header only, flags 0, remaining length 0.
type PINGREQ struct {
	*FixedHeader `json:"FixedHeader,omitempty"`
}

func (pkt *PINGREQ) Kind() byte {
	return 0xC
}

func (pkt *PINGREQ) String() string {
	return "[0xC]PINGREQ"
}

func (pkt *PINGREQ) Pack(w io.Writer) error {
	fh, err := ensureHeader(&pkt.FixedHeader, 0xC)
	if err != nil {
		return err
	}
	buf := GetBuffer()
	defer PutBuffer(buf)
	return packWith(w, fh, buf)
}

func (pkt *PINGREQ) Unpack(buf *bytes.Buffer) error {
	if buf.Len() != 0 {
		return malformed(0xC, "remaining length %d, want 0", buf.Len())
	}
	return nil
}
