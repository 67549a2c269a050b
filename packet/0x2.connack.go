package packet

import (
	"bytes"
	"io"
)

// CONNACK - Acknowledge connection request
//
// MQTT v3.1.1: 3.2 CONNACK
//
// Variable header: connect acknowledge flags (bit 0 session present, bits
// 7-1 reserved) followed by the connect return code. No payload.
type CONNACK struct {
	*FixedHeader `json:"FixedHeader,omitempty"`

	SessionPresent bool

	// ReturnCode is one of CodeAccepted .. CodeNotAuthorized.
	ReturnCode ReasonCode
}

func (pkt *CONNACK) Kind() byte {
	return 0x2
}

func (pkt *CONNACK) String() string {
	return "[0x2]CONNACK"
}

func (pkt *CONNACK) Pack(w io.Writer) error {
	fh, err := ensureHeader(&pkt.FixedHeader, 0x2)
	if err != nil {
		return err
	}
	if _, ok := ConnackCode(pkt.ReturnCode.Code); !ok {
		return malformed(0x2, "return code %d out of range", pkt.ReturnCode.Code)
	}
	buf := GetBuffer()
	defer PutBuffer(buf)
	buf.WriteByte(b2i(pkt.SessionPresent))
	buf.WriteByte(pkt.ReturnCode.Code)
	return packWith(w, fh, buf)
}

func (pkt *CONNACK) Unpack(buf *bytes.Buffer) error {
	if buf.Len() != 2 {
		return malformed(0x2, "remaining length %d, want 2", buf.Len())
	}
	flags, code := buf.Next(1)[0], buf.Next(1)[0]
	if flags&0xFE != 0 {
		return malformed(0x2, "reserved acknowledge flags %08b", flags)
	}
	rc, ok := ConnackCode(code)
	if !ok {
		return malformed(0x2, "return code %d out of range", code)
	}
	pkt.SessionPresent, pkt.ReturnCode = flags == 0x01, rc
	return nil
}
