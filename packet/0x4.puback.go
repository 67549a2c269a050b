package packet

import (
	"bytes"
	"fmt"
	"io"
)

// PUBACK - Publish acknowledgement
//
// MQTT v3.1.1: 3.4 PUBACK
//
// QoS 1 response to a PUBLISH.
// Variable header: packet identifier. No payload.
type PUBACK struct {
	*FixedHeader `json:"FixedHeader,omitempty"`

	PacketID uint16 `json:"PacketID,omitempty"`
}

func (pkt *PUBACK) Kind() byte {
	return 0x4
}

func (pkt *PUBACK) String() string {
	return fmt.Sprintf("[0x4]PUBACK: id=%d", pkt.PacketID)
}

func (pkt *PUBACK) Pack(w io.Writer) error {
	fh, err := ensureHeader(&pkt.FixedHeader, 0x4)
	if err != nil {
		return err
	}
	return packPacketID(w, fh, pkt.PacketID)
}

func (pkt *PUBACK) Unpack(buf *bytes.Buffer) error {
	id, err := unpackPacketID(0x4, buf)
	pkt.PacketID = id
	return err
}
