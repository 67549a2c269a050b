package packet

import (
	"bytes"
	"io"
)

// PINGRESP - PING response
//
// MQTT v3.1.1: 3.13 PINGRESP
//
// Server answer to a PINGREQ.
// Fixed header only, flags 0, remaining length 0.
type PINGRESP struct {
	*FixedHeader `json:"FixedHeader,omitempty"`
}

func (pkt *PINGRESP) Kind() byte {
	return 0xD
}

func (pkt *PINGRESP) String() string {
	return "[0xD]PINGRESP"
}

func (pkt *PINGRESP) Pack(w io.Writer) error {
	fh, err := ensureHeader(&pkt.FixedHeader, 0xD)
	if err != nil {
		return err
	}
	buf := GetBuffer()
	defer PutBuffer(buf)
	return packWith(w, fh, buf)
}

func (pkt *PINGRESP) Unpack(buf *bytes.Buffer) error {
	if buf.Len() != 0 {
		return malformed(0xD, "remaining length %d, want 0", buf.Len())
	}
	return nil
}
