package packet

import (
	"bytes"
	"fmt"
	"io"
)

// PUBREC - Publish received
//
// MQTT v3.1.1: 3.5 PUBREC
//
// First response of the QoS 2 flow; answered with PUBREL.
// Variable header: packet identifier. No payload.
type PUBREC struct {
	*FixedHeader `json:"FixedHeader,omitempty"`

	PacketID uint16 `json:"PacketID,omitempty"`
}

func (pkt *PUBREC) Kind() byte {
	return 0x5
}

func (pkt *PUBREC) String() string {
	return fmt.Sprintf("[0x5]PUBREC: id=%d", pkt.PacketID)
}

func (pkt *PUBREC) Pack(w io.Writer) error {
	fh, err := ensureHeader(&pkt.FixedHeader, 0x5)
	if err != nil {
		return err
	}
	return packPacketID(w, fh, pkt.PacketID)
}

func (pkt *PUBREC) Unpack(buf *bytes.Buffer) error {
	id, err := unpackPacketID(0x5, buf)
	pkt.PacketID = id
	return err
}
