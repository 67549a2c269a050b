package packet

import (
	"bytes"
	"fmt"
	"io"
)

// PUBCOMP - Publish complete
//
// MQTT v3.1.1: 3.7 PUBCOMP
//
// Last step of the QoS 2 flow.
// Variable header: packet identifier. No payload.
type PUBCOMP struct {
	*FixedHeader `json:"FixedHeader,omitempty"`

	PacketID uint16 `json:"PacketID,omitempty"`
}

func (pkt *PUBCOMP) Kind() byte {
	return 0x7
}

func (pkt *PUBCOMP) String() string {
	return fmt.Sprintf("[0x7]PUBCOMP: id=%d", pkt.PacketID)
}

func (pkt *PUBCOMP) Pack(w io.Writer) error {
	fh, err := ensureHeader(&pkt.FixedHeader, 0x7)
	if err != nil {
		return err
	}
	return packPacketID(w, fh, pkt.PacketID)
}

func (pkt *PUBCOMP) Unpack(buf *bytes.Buffer) error {
	id, err := unpackPacketID(0x7, buf)
	pkt.PacketID = id
	return err
}
