package packet

import (
	"bytes"
	"fmt"
	"io"
)

// SUBSCRIBE - Subscribe to topics
//
// MQTT v3.1.1: 3.8 SUBSCRIBE
//
// Fixed header flags are 0b0010. Variable header: packet identifier.
// Payload: one or more topic filters, each followed by a requested QoS byte
// whose upper six bits are reserved.
type SUBSCRIBE struct {
	*FixedHeader `json:"FixedHeader,omitempty"`

	PacketID uint16 `json:"PacketID,omitempty"`

	Subscriptions []Subscription `json:"Subscriptions,omitempty"`
}

// Subscription is one topic filter of a SUBSCRIBE and the QoS requested for it.
type Subscription struct {
	TopicFilter string `json:"TopicFilter,omitempty"`
	MaximumQoS  uint8  `json:"MaximumQoS,omitempty"`
}

func (pkt *SUBSCRIBE) Kind() byte {
	return 0x8
}

func (pkt *SUBSCRIBE) String() string {
	return fmt.Sprintf("[0x8]SUBSCRIBE: id=%d, subscriptions=%v", pkt.PacketID, pkt.Subscriptions)
}

func (pkt *SUBSCRIBE) Pack(w io.Writer) error {
	fh, err := ensureHeader(&pkt.FixedHeader, 0x8)
	if err != nil {
		return err
	}
	if pkt.PacketID == 0 {
		return malformed(0x8, "packet identifier 0")
	}
	if len(pkt.Subscriptions) == 0 {
		return malformed(0x8, "no topic filters")
	}

	buf := GetBuffer()
	defer PutBuffer(buf)
	buf.Write(i2b(pkt.PacketID))
	for _, sub := range pkt.Subscriptions {
		if sub.TopicFilter == "" {
			return malformed(0x8, "empty topic filter")
		}
		if sub.MaximumQoS > 2 {
			return malformed(0x8, "requested qos %d out of range", sub.MaximumQoS)
		}
		b, err := s2b(sub.TopicFilter)
		if err != nil {
			return malformed(0x8, "topic filter: %v", err)
		}
		buf.Write(b)
		buf.WriteByte(sub.MaximumQoS)
	}
	return packWith(w, fh, buf)
}

func (pkt *SUBSCRIBE) Unpack(buf *bytes.Buffer) error {
	var err error
	if pkt.PacketID, err = readUint16(buf); err != nil {
		return malformed(0x8, "packet identifier: %v", err)
	}
	if pkt.PacketID == 0 {
		return malformed(0x8, "packet identifier 0")
	}
	for buf.Len() != 0 {
		var sub Subscription
		if sub.TopicFilter, err = readString(buf); err != nil {
			return malformed(0x8, "topic filter: %v", err)
		}
		if sub.TopicFilter == "" {
			return malformed(0x8, "empty topic filter")
		}
		if sub.MaximumQoS, err = readByte(buf); err != nil {
			return malformed(0x8, "requested qos: %v", err)
		}
		if sub.MaximumQoS > 2 {
			return malformed(0x8, "requested qos byte %08b", sub.MaximumQoS)
		}
		pkt.Subscriptions = append(pkt.Subscriptions, sub)
	}
	if len(pkt.Subscriptions) == 0 {
		return malformed(0x8, "no topic filters")
	}
	return nil
}
