package packet

import (
	"fmt"
	"io"
)

// FixedHeader contains the values of the fixed header portion of the MQTT pkt.
// Each MQTT Control Packet contains a fixed header.
// Bit 		| 7 | 6 |	5	4	3	2	1	0
// byte1    | MQTT Control Packet type | Flags specific to each MQTT Control Packet type|
// byte2...	|    Remaining Length
type FixedHeader struct {
	// Kind MQTT Control Packet type
	// Position: byte 1, bits 7-4.
	Kind byte `json:"Kind,omitempty"`

	// Dup position: byte 1, bit 3.
	Dup uint8 `json:"Dup,omitempty"` // indicates if the packet was already sent at an earlier time.

	// QoS position: byte1, bits 2-1.
	QoS uint8 `json:"QoS,omitempty"` // indicates the quality of service expected.

	// Retain position: byte1, bit 0.
	Retain uint8 `json:"Retain,omitempty"` // whether the message should be retained.

	// RemainingLength position: starts at byte 2.
	RemainingLength uint32 `json:"RemainingLength,omitempty"` // the number of remaining bytes in the payload.
}

// NewFixedHeader returns a header for kind carrying the flags the protocol
// mandates for it: 0b0010 for PUBREL, SUBSCRIBE and UNSUBSCRIBE, zero otherwise.
func NewFixedHeader(kind byte) *FixedHeader {
	fh := &FixedHeader{Kind: kind}
	switch kind {
	case 0x6, 0x8, 0xA:
		fh.QoS = 1
	}
	return fh
}

func (pkt *FixedHeader) String() string {
	return fmt.Sprintf("%s: Len=%d", Kind[pkt.Kind], pkt.RemainingLength)
}

func (pkt *FixedHeader) flags() byte {
	return pkt.Dup<<3 | pkt.QoS<<1 | pkt.Retain
}

// validate checks the reserved flag bits of the header against its kind.
func (pkt *FixedHeader) validate() error {
	if pkt.Dup > 1 || pkt.Retain > 1 || pkt.QoS > 3 {
		return malformed(pkt.Kind, "flags out of range")
	}
	switch pkt.Kind {
	case 0x3:
		if pkt.QoS > 2 {
			return malformed(pkt.Kind, "qos %d out of range", pkt.QoS)
		}
		if pkt.QoS == 0 && pkt.Dup != 0 {
			return malformed(pkt.Kind, "dup set on qos 0 message")
		}
	case 0x6, 0x8, 0xA:
		if pkt.flags() != 0b0010 {
			return malformed(pkt.Kind, "reserved flags %04b", pkt.flags())
		}
	default:
		if pkt.flags() != 0 {
			return malformed(pkt.Kind, "reserved flags %04b", pkt.flags())
		}
	}
	return nil
}

func (pkt *FixedHeader) Pack(w io.Writer) error {
	if err := pkt.validate(); err != nil {
		return err
	}
	enc, err := EncodeLength(pkt.RemainingLength)
	if err != nil {
		return err
	}
	b := make([]byte, 1, 1+len(enc))
	b[0] = pkt.Kind<<4 | pkt.flags()
	b = append(b, enc...)
	_, err = w.Write(b)
	return err
}

// Unpack decodes the fixed header at the front of b and returns its size in bytes.
func (pkt *FixedHeader) Unpack(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, ErrIncomplete
	}
	if err := pkt.unpackFirst(b[0]); err != nil {
		return 0, err
	}

	length, n, err := DecodeLength(b[1:])
	if err != nil {
		return 0, err
	}
	pkt.RemainingLength = length
	return 1 + n, nil
}

// unpackFirst decodes and checks byte 1 of the fixed header: the packet type
// and its flags. It needs nothing else, so a bad header is rejected before
// the remaining length or body arrive.
func (pkt *FixedHeader) unpackFirst(b byte) error {
	pkt.Kind = b >> 4
	pkt.Dup = b & 0b00001000 >> 3
	pkt.QoS = b & 0b00000110 >> 1
	pkt.Retain = b & 0b00000001
	if pkt.Kind == 0x0 || pkt.Kind == 0xF {
		return fmt.Errorf("%w: %d", ErrUnknownPacketType, pkt.Kind)
	}

	// MQTT-2.2.2-2: a receiver closes the connection on invalid flags.
	return pkt.validate()
}
