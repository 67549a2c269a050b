package packet

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Packet is one MQTT v3.1.1 control packet.
//
// The set of implementations is closed: CONNECT, CONNACK, PUBLISH, PUBACK,
// PUBREC, PUBREL, PUBCOMP, SUBSCRIBE, SUBACK, UNSUBSCRIBE, UNSUBACK, PINGREQ,
// PINGRESP and DISCONNECT.
type Packet interface {
	// Kind returns the control packet type, byte 1 bits 7-4 of the fixed header.
	Kind() byte

	// Unpack parses the variable header and payload. The fixed header has
	// already been decoded into the packet.
	Unpack(*bytes.Buffer) error

	// Pack writes the whole packet, fixed header first.
	Pack(io.Writer) error
}

// Encode returns the wire form of pkt.
func Encode(pkt Packet) ([]byte, error) {
	var buf bytes.Buffer
	if err := pkt.Pack(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode decodes b, which must hold exactly one whole packet.
func Decode(b []byte) (Packet, error) {
	fixed := &FixedHeader{}
	n, err := fixed.Unpack(b)
	if err != nil {
		if errors.Is(err, ErrIncomplete) {
			return nil, malformed(fixed.Kind, "truncated fixed header")
		}
		return nil, err
	}
	if rest := len(b) - n; rest != int(fixed.RemainingLength) {
		return nil, malformed(fixed.Kind, "remaining length %d, have %d bytes", fixed.RemainingLength, rest)
	}

	pkt, err := newPacket(fixed)
	if err != nil {
		return nil, err
	}

	buf := GetBuffer()
	defer PutBuffer(buf)
	buf.Write(b[n:])

	if err := pkt.Unpack(buf); err != nil {
		return nil, err
	}
	if buf.Len() != 0 {
		return nil, malformed(fixed.Kind, "%d trailing bytes", buf.Len())
	}
	return pkt, nil
}

func newPacket(fixed *FixedHeader) (Packet, error) {
	switch fixed.Kind {
	case 0x1: // CONNECT - client requests a connection
		return &CONNECT{FixedHeader: fixed}, nil
	case 0x2: // CONNACK - connect acknowledgment
		return &CONNACK{FixedHeader: fixed}, nil
	case 0x3: // PUBLISH - publish message
		return &PUBLISH{FixedHeader: fixed}, nil
	case 0x4: // PUBACK - QoS 1 acknowledgment
		return &PUBACK{FixedHeader: fixed}, nil
	case 0x5: // PUBREC - QoS 2, part 1
		return &PUBREC{FixedHeader: fixed}, nil
	case 0x6: // PUBREL - QoS 2, part 2
		return &PUBREL{FixedHeader: fixed}, nil
	case 0x7: // PUBCOMP - QoS 2, part 3
		return &PUBCOMP{FixedHeader: fixed}, nil
	case 0x8: // SUBSCRIBE
		return &SUBSCRIBE{FixedHeader: fixed}, nil
	case 0x9: // SUBACK
		return &SUBACK{FixedHeader: fixed}, nil
	case 0xA: // UNSUBSCRIBE
		return &UNSUBSCRIBE{FixedHeader: fixed}, nil
	case 0xB: // UNSUBACK
		return &UNSUBACK{FixedHeader: fixed}, nil
	case 0xC: // PINGREQ
		return &PINGREQ{FixedHeader: fixed}, nil
	case 0xD: // PINGRESP
		return &PINGRESP{FixedHeader: fixed}, nil
	case 0xE: // DISCONNECT
		return &DISCONNECT{FixedHeader: fixed}, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownPacketType, fixed.Kind)
}

// packWith writes fh, sized for body, followed by body.
func packWith(w io.Writer, fh *FixedHeader, body *bytes.Buffer) error {
	if body.Len() > MaxRemainingLength {
		return malformed(fh.Kind, "%v", ErrValueTooLarge)
	}
	fh.RemainingLength = uint32(body.Len())
	if err := fh.Pack(w); err != nil {
		return err
	}
	_, err := body.WriteTo(w)
	return err
}

// ensureHeader installs the mandated header for kind when the packet has none
// and rejects a header that belongs to another kind.
func ensureHeader(fh **FixedHeader, kind byte) (*FixedHeader, error) {
	if *fh == nil {
		*fh = NewFixedHeader(kind)
	}
	if (*fh).Kind != kind {
		return nil, malformed(kind, "header kind %d", (*fh).Kind)
	}
	return *fh, nil
}

// packPacketID writes a packet whose variable header is only a packet identifier.
func packPacketID(w io.Writer, fh *FixedHeader, id uint16) error {
	if id == 0 {
		return malformed(fh.Kind, "packet identifier 0")
	}
	buf := GetBuffer()
	defer PutBuffer(buf)
	buf.Write(i2b(id))
	return packWith(w, fh, buf)
}

func unpackPacketID(kind byte, buf *bytes.Buffer) (uint16, error) {
	if buf.Len() != 2 {
		return 0, malformed(kind, "remaining length %d, want 2", buf.Len())
	}
	id, _ := readUint16(buf)
	if id == 0 {
		return 0, malformed(kind, "packet identifier 0")
	}
	return id, nil
}
