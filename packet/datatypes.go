package packet

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"
)

const (
	max1 = 0x7F      // 127
	max2 = 0x3FFF    // 16383
	max3 = 0x1FFFFF  // 2097151
	max4 = 0xFFFFFFF // 268435455

	// MaxRemainingLength is the largest value the remaining length field can carry.
	MaxRemainingLength = max4

	KB = 1024 * 1
	MB = 1024 * KB
)

var (
	// ErrIncomplete reports that the continuation chain of a variable byte
	// integer is not fully buffered yet.
	ErrIncomplete = errors.New("packet: incomplete variable byte integer")

	// ErrValueTooLarge reports a value that cannot be carried by the remaining length field.
	ErrValueTooLarge = errors.New("packet: value too large for variable byte integer")

	// ErrMalformedLength reports a remaining length whose 4th byte still has the continuation bit set.
	ErrMalformedLength = errors.New("packet: malformed variable byte integer")

	errShortBuffer = errors.New("short buffer")
	errInvalidUTF8 = errors.New("invalid utf-8 string")
	errStringLen   = errors.New("string longer than 65535 bytes")
)

// Kind Control packet types. Position: byte 1, bits 7-4
var Kind = map[byte]string{
	0x0: "[0x0]RESERVED",    // Forbidden
	0x1: "[0x1]CONNECT",     // Client to Server: connection request
	0x2: "[0x2]CONNACK",     // Server to Client: connect acknowledgment
	0x3: "[0x3]PUBLISH",     // Client to Server or Server to Client Publish message
	0x4: "[0x4]PUBACK",      // Client to Server or Server to Client Publish acknowledgment
	0x5: "[0x5]PUBREC",      // Client to Server or Server to Client Publish received (assured delivery part 1)
	0x6: "[0x6]PUBREL",      // Client to Server or Server to Client Publish release (assured delivery part 2)
	0x7: "[0x7]PUBCOMP",     // Client to Server or Server to Client Publish complete (assured delivery part 3)
	0x8: "[0x8]SUBSCRIBE",   // Client to Server Client subscribe request
	0x9: "[0x9]SUBACK",      // Server to Client Subscribe acknowledgment
	0xA: "[0xA]UNSUBSCRIBE", // Client to Server Unsubscribe request
	0xB: "[0xB]UNSUBACK",    // Server to Client Unsubscribe acknowledgment
	0xC: "[0xC]PINGREQ",     // Client to Server PING request
	0xD: "[0xD]PINGRESP",    // Server to Client PING response
	0xE: "[0xE]DISCONNECT",  // Client to Server Client is disconnecting
	0xF: "[0xF]RESERVED",    // Forbidden in the baseline protocol
}

// EncodeLength encodes v as a variable byte integer: 7 bits per byte,
// least significant group first, the top bit of each byte flagging a continuation.
func EncodeLength[T ~uint32 | ~int | ~int64](v T) ([]byte, error) {
	if v < 0 || int64(v) > max4 {
		return nil, fmt.Errorf("%w: %d", ErrValueTooLarge, int64(v))
	}
	var result []byte
	switch {
	case v <= max1:
		result = make([]byte, 0, 1)
	case v <= max2:
		result = make([]byte, 0, 2)
	case v <= max3:
		result = make([]byte, 0, 3)
	default:
		result = make([]byte, 0, 4)
	}
	for {
		enc := byte(v % 128)
		v = v / 128
		if v > 0 { // if there are more data to encode, set the top bit of this byte
			enc = enc | 128
		}
		result = append(result, enc)
		if v == 0 {
			return result, nil
		}
	}
}

// DecodeLength decodes a variable byte integer from the front of b and
// returns the value together with the number of bytes it occupied.
func DecodeLength(b []byte) (uint32, int, error) {
	vbi := uint32(0)
	for i := 0; i < 4; i++ {
		if i >= len(b) {
			return 0, 0, ErrIncomplete
		}
		vbi |= uint32(b[i]&127) << (7 * i)
		if b[i]&128 == 0 {
			return vbi, i + 1, nil
		}
	}
	return 0, 0, ErrMalformedLength
}

// s2b insert length into content
func s2b[T string | []byte](s T) ([]byte, error) {
	if len(s) > 0xFFFF {
		return nil, errStringLen
	}
	b := make([]byte, 2, 2+len(s))
	binary.BigEndian.PutUint16(b, uint16(len(s)))
	return append(b, s...), nil
}

func i2b(i uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, i)
	return b
}

func b2i(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func readByte(buf *bytes.Buffer) (byte, error) {
	if buf.Len() < 1 {
		return 0, errShortBuffer
	}
	return buf.Next(1)[0], nil
}

func readUint16(buf *bytes.Buffer) (uint16, error) {
	if buf.Len() < 2 {
		return 0, errShortBuffer
	}
	return binary.BigEndian.Uint16(buf.Next(2)), nil
}

// readBytes reads a length prefixed field. The result never aliases buf and
// is nil for a zero length field.
func readBytes(buf *bytes.Buffer) ([]byte, error) {
	uLength, err := readUint16(buf)
	if err != nil {
		return nil, err
	}
	if buf.Len() < int(uLength) {
		return nil, errShortBuffer
	}
	if uLength == 0 {
		return nil, nil
	}
	return bytes.Clone(buf.Next(int(uLength))), nil
}

func readString(buf *bytes.Buffer) (string, error) {
	b, err := readBytes(buf)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) || bytes.IndexByte(b, 0x00) >= 0 {
		return "", errInvalidUTF8
	}
	return string(b), nil
}
