package packet

import (
	"bytes"
	"fmt"
	"io"
)

// UNSUBACK - Unsubscribe acknowledgement
//
// MQTT v3.1.1: 3.11 UNSUBACK
//
// Response to an UNSUBSCRIBE.
// Variable header: packet identifier. No payload.
type UNSUBACK struct {
	*FixedHeader `json:"FixedHeader,omitempty"`

	PacketID uint16 `json:"PacketID,omitempty"`
}

func (pkt *UNSUBACK) Kind() byte {
	return 0xB
}

func (pkt *UNSUBACK) String() string {
	return fmt.Sprintf("[0xB]UNSUBACK: id=%d", pkt.PacketID)
}

func (pkt *UNSUBACK) Pack(w io.Writer) error {
	fh, err := ensureHeader(&pkt.FixedHeader, 0xB)
	if err != nil {
		return err
	}
	return packPacketID(w, fh, pkt.PacketID)
}

func (pkt *UNSUBACK) Unpack(buf *bytes.Buffer) error {
	id, err := unpackPacketID(0xB, buf)
	pkt.PacketID = id
	return err
}
