package packet

import (
	"bytes"
	"fmt"
	"io"
)

// UNSUBSCRIBE - Unsubscribe from topics
//
// MQTT v3.1.1: 3.10 UNSUBSCRIBE
//
// Fixed header flags are 0b0010. Variable header: packet identifier.
// Payload: one or more topic filters.
type UNSUBSCRIBE struct {
	*FixedHeader `json:"FixedHeader,omitempty"`

	PacketID uint16 `json:"PacketID,omitempty"`

	TopicFilters []string `json:"TopicFilters,omitempty"`
}

func (pkt *UNSUBSCRIBE) Kind() byte {
	return 0xA
}

func (pkt *UNSUBSCRIBE) String() string {
	return fmt.Sprintf("[0xA]UNSUBSCRIBE: id=%d, filters=%v", pkt.PacketID, pkt.TopicFilters)
}

func (pkt *UNSUBSCRIBE) Pack(w io.Writer) error {
	fh, err := ensureHeader(&pkt.FixedHeader, 0xA)
	if err != nil {
		return err
	}
	if pkt.PacketID == 0 {
		return malformed(0xA, "packet identifier 0")
	}
	if len(pkt.TopicFilters) == 0 {
		return malformed(0xA, "no topic filters")
	}
	buf := GetBuffer()
	defer PutBuffer(buf)
	buf.Write(i2b(pkt.PacketID))
	for _, filter := range pkt.TopicFilters {
		if filter == "" {
			return malformed(0xA, "empty topic filter")
		}
		b, err := s2b(filter)
		if err != nil {
			return malformed(0xA, "topic filter: %v", err)
		}
		buf.Write(b)
	}
	return packWith(w, fh, buf)
}

func (pkt *UNSUBSCRIBE) Unpack(buf *bytes.Buffer) error {
	var err error
	if pkt.PacketID, err = readUint16(buf); err != nil {
		return malformed(0xA, "packet identifier: %v", err)
	}
	if pkt.PacketID == 0 {
		return malformed(0xA, "packet identifier 0")
	}
	for buf.Len() != 0 {
		filter, err := readString(buf)
		if err != nil {
			return malformed(0xA, "topic filter: %v", err)
		}
		if filter == "" {
			return malformed(0xA, "empty topic filter")
		}
		pkt.TopicFilters = append(pkt.TopicFilters, filter)
	}
	if len(pkt.TopicFilters) == 0 {
		return malformed(0xA, "no topic filters")
	}
	return nil
}
