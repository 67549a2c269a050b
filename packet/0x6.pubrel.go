package packet

import (
	"bytes"
	"fmt"
	"io"
)

// PUBREL - Publish release
//
// MQTT v3.1.1: 3.6 PUBREL
//
// Second step of the QoS 2 flow. Fixed header flags are 0b0010.
// Variable header: packet identifier. No payload.
type PUBREL struct {
	*FixedHeader `json:"FixedHeader,omitempty"`

	PacketID uint16 `json:"PacketID,omitempty"`
}

func (pkt *PUBREL) Kind() byte {
	return 0x6
}

func (pkt *PUBREL) String() string {
	return fmt.Sprintf("[0x6]PUBREL: id=%d", pkt.PacketID)
}

func (pkt *PUBREL) Pack(w io.Writer) error {
	fh, err := ensureHeader(&pkt.FixedHeader, 0x6)
	if err != nil {
		return err
	}
	return packPacketID(w, fh, pkt.PacketID)
}

func (pkt *PUBREL) Unpack(buf *bytes.Buffer) error {
	id, err := unpackPacketID(0x6, buf)
	pkt.PacketID = id
	return err
}
