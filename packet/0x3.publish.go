package packet

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// PUBLISH - Publish message
//
// MQTT v3.1.1: 3.3 PUBLISH
//
// Fixed header flags carry DUP, QoS and RETAIN. Variable header: topic name,
// then the packet identifier when QoS > 0. Payload: the application message.
type PUBLISH struct {
	*FixedHeader `json:"FixedHeader,omitempty"`

	// PacketID is present only for QoS 1 and QoS 2.
	PacketID uint16 `json:"PacketID,omitempty"`

	Message *Message `json:"message,omitempty"`
}

func (pkt *PUBLISH) Kind() byte {
	return 0x3
}

func (pkt *PUBLISH) String() string {
	return fmt.Sprintf("[0x3]PUBLISH: id=%d, qos=%d, %s", pkt.PacketID, pkt.QoS, pkt.Message)
}

func (pkt *PUBLISH) Pack(w io.Writer) error {
	fh, err := ensureHeader(&pkt.FixedHeader, 0x3)
	if err != nil {
		return err
	}
	if pkt.Message == nil {
		return malformed(0x3, "no message")
	}
	if err := validTopicName(pkt.Message.TopicName); err != nil {
		return err
	}
	if fh.QoS > 0 && pkt.PacketID == 0 {
		return malformed(0x3, "packet identifier 0 with qos %d", fh.QoS)
	}

	buf := GetBuffer()
	defer PutBuffer(buf)
	topic, err := s2b(pkt.Message.TopicName)
	if err != nil {
		return malformed(0x3, "topic: %v", err)
	}
	buf.Write(topic)
	if fh.QoS != 0 {
		buf.Write(i2b(pkt.PacketID))
	}
	buf.Write(pkt.Message.Content)
	return packWith(w, fh, buf)
}

func (pkt *PUBLISH) Unpack(buf *bytes.Buffer) error {
	topic, err := readString(buf)
	if err != nil {
		return malformed(0x3, "topic: %v", err)
	}
	if err := validTopicName(topic); err != nil {
		return err
	}
	if pkt.QoS != 0 {
		if pkt.PacketID, err = readUint16(buf); err != nil {
			return malformed(0x3, "packet identifier: %v", err)
		}
		if pkt.PacketID == 0 {
			return malformed(0x3, "packet identifier 0 with qos %d", pkt.QoS)
		}
	}
	pkt.Message = &Message{TopicName: topic}
	if buf.Len() > 0 {
		pkt.Message.Content = bytes.Clone(buf.Next(buf.Len()))
	}
	return nil
}

// validTopicName rejects empty names and names carrying wildcards (MQTT-3.3.2-2).
func validTopicName(topic string) error {
	if topic == "" {
		return malformed(0x3, "empty topic name")
	}
	if strings.ContainsAny(topic, "+#") {
		return malformed(0x3, "wildcard in topic name %q", topic)
	}
	return nil
}

// Message is an application message: a topic name and its payload.
type Message struct {
	TopicName string

	Content []byte
}

func (m *Message) String() string {
	return fmt.Sprintf("%s # %s", m.TopicName, m.Content)
}
