package packet

import (
	"errors"
	"fmt"
)

// Stream reassembles whole packets from an arbitrarily chunked byte stream.
//
// Bytes are appended by Feed and consumed from the front once a complete
// packet, including its multi byte remaining length, is buffered. A partial
// packet is never returned, but its first byte is checked as soon as it
// arrives: an unknown type or illegal flags fail without waiting for the body. A Stream is owned by one connection and is not
// safe for concurrent use.
type Stream struct {
	buf     []byte
	maxSize uint32
}

// NewStream returns a Stream rejecting packets whose remaining length exceeds
// maxSize. Zero means MaxRemainingLength.
func NewStream(maxSize uint32) *Stream {
	if maxSize == 0 || maxSize > MaxRemainingLength {
		maxSize = MaxRemainingLength
	}
	return &Stream{maxSize: maxSize}
}

// Buffered returns the number of bytes held for a packet not yet complete.
func (s *Stream) Buffered() int {
	return len(s.buf)
}

// Feed appends chunk and returns every packet it completes, in stream order.
//
// On error the packets decoded before the failure are returned with it. The
// stream cannot resynchronize after a malformed packet, so the caller is
// expected to drop the connection.
func (s *Stream) Feed(chunk []byte) ([]Packet, error) {
	s.buf = append(s.buf, chunk...)

	var pkts []Packet
	off := 0
	defer func() {
		s.compact(off)
	}()

	for off < len(s.buf) {
		b := s.buf[off:]
		var fixed FixedHeader
		if err := fixed.unpackFirst(b[0]); err != nil {
			return pkts, err
		}
		length, n, err := DecodeLength(b[1:])
		if errors.Is(err, ErrIncomplete) {
			break
		}
		if err != nil {
			return pkts, malformed(b[0]>>4, "%v", err)
		}
		if length > s.maxSize {
			return pkts, fmt.Errorf("%w: %d > %d", ErrPacketTooLarge, length, s.maxSize)
		}
		total := 1 + n + int(length)
		if len(b) < total {
			break
		}
		pkt, err := Decode(b[:total])
		if err != nil {
			return pkts, err
		}
		pkts = append(pkts, pkt)
		off += total
	}
	return pkts, nil
}

// compact drops the first n bytes, keeping the backing array when it is small.
func (s *Stream) compact(n int) {
	if n == 0 {
		return
	}
	rest := len(s.buf) - n
	if rest == 0 {
		if cap(s.buf) > maxPooled {
			s.buf = nil
		} else {
			s.buf = s.buf[:0]
		}
		return
	}
	copy(s.buf, s.buf[n:])
	s.buf = s.buf[:rest]
}

// Reset discards any buffered bytes.
func (s *Stream) Reset() {
	s.buf = nil
}
