package packet

import (
	"bytes"
	"fmt"
	"io"
)

// SUBACK - Subscribe acknowledgement
//
// MQTT v3.1.1: 3.9 SUBACK
//
// Variable header: packet identifier. Payload: one return code per topic
// filter of the SUBSCRIBE, in order: the granted QoS 0, 1, 2 or 0x80 failure.
type SUBACK struct {
	*FixedHeader `json:"FixedHeader,omitempty"`

	PacketID uint16 `json:"PacketID,omitempty"`

	ReturnCodes []ReasonCode `json:"ReturnCodes,omitempty"`
}

func (pkt *SUBACK) Kind() byte {
	return 0x9
}

func (pkt *SUBACK) String() string {
	return fmt.Sprintf("[0x9]SUBACK: id=%d, codes=%v", pkt.PacketID, pkt.ReturnCodes)
}

func (pkt *SUBACK) Pack(w io.Writer) error {
	fh, err := ensureHeader(&pkt.FixedHeader, 0x9)
	if err != nil {
		return err
	}
	if pkt.PacketID == 0 {
		return malformed(0x9, "packet identifier 0")
	}
	if len(pkt.ReturnCodes) == 0 {
		return malformed(0x9, "no return codes")
	}
	buf := GetBuffer()
	defer PutBuffer(buf)
	buf.Write(i2b(pkt.PacketID))
	for _, rc := range pkt.ReturnCodes {
		if _, ok := SubackCode(rc.Code); !ok {
			return malformed(0x9, "return code %#x", rc.Code)
		}
		buf.WriteByte(rc.Code)
	}
	return packWith(w, fh, buf)
}

func (pkt *SUBACK) Unpack(buf *bytes.Buffer) error {
	var err error
	if pkt.PacketID, err = readUint16(buf); err != nil {
		return malformed(0x9, "packet identifier: %v", err)
	}
	if pkt.PacketID == 0 {
		return malformed(0x9, "packet identifier 0")
	}
	for buf.Len() != 0 {
		code := buf.Next(1)[0]
		rc, ok := SubackCode(code)
		if !ok {
			return malformed(0x9, "return code %#x", code)
		}
		pkt.ReturnCodes = append(pkt.ReturnCodes, rc)
	}
	if len(pkt.ReturnCodes) == 0 {
		return malformed(0x9, "no return codes")
	}
	return nil
}
