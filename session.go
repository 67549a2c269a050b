package mqttclient

import (
	"fmt"
	"slices"

	"github.com/golang-io/mqttclient/packet"
)

// qos2State is the position of an outbound QoS 2 publish in its handshake.
type qos2State uint8

const (
	waitRec  qos2State = iota + 1 // PUBLISH sent, awaiting PUBREC
	waitComp                      // PUBREL sent, awaiting PUBCOMP
)

func (s qos2State) String() string {
	switch s {
	case waitRec:
		return "wait-rec"
	case waitComp:
		return "wait-comp"
	}
	return "none"
}

type pendingPublish struct {
	pkt      *packet.PUBLISH
	state    qos2State
	complete func(error)
}

type pendingRequest struct {
	kind     byte // SUBSCRIBE or UNSUBSCRIBE
	filters  int
	complete func([]packet.ReasonCode, error)
}

// Session is the acknowledgement bookkeeping of one connected session: the
// packet identifier allocator and the tables correlating outstanding
// requests with their acknowledgements.
//
// A Session is owned by the connection loop and is not safe for concurrent use.
type Session struct {
	nextID uint16

	qos1     map[uint16]*pendingPublish // awaiting PUBACK
	qos2     map[uint16]*pendingPublish // awaiting PUBREC, then PUBCOMP
	requests map[uint16]*pendingRequest // awaiting SUBACK or UNSUBACK

	// inbound QoS 2 messages awaiting the broker's PUBREL
	inbound *InFight
}

func newSession() *Session {
	return &Session{
		qos1:     make(map[uint16]*pendingPublish),
		qos2:     make(map[uint16]*pendingPublish),
		requests: make(map[uint16]*pendingRequest),
		inbound:  newInFight(),
	}
}

// NextID allocates the next free packet identifier: 1 first, then
// increasing, wrapping from 65535 back to 1 and skipping identifiers still
// outstanding.
func (s *Session) NextID() (uint16, error) {
	for range 0xFFFF {
		s.nextID++
		if s.nextID == 0 {
			s.nextID = 1
		}
		if !s.inUse(s.nextID) {
			return s.nextID, nil
		}
	}
	return 0, ErrIDSpaceExhausted
}

func (s *Session) inUse(id uint16) bool {
	if _, ok := s.qos1[id]; ok {
		return true
	}
	if _, ok := s.qos2[id]; ok {
		return true
	}
	_, ok := s.requests[id]
	return ok
}

// Outstanding returns the number of identifiers currently in use.
func (s *Session) Outstanding() int {
	return len(s.qos1) + len(s.qos2) + len(s.requests)
}

// TrackPublish records a QoS 1 or QoS 2 publish. complete runs once, with
// nil when the handshake finishes.
func (s *Session) TrackPublish(pkt *packet.PUBLISH, complete func(error)) {
	switch pkt.QoS {
	case 1:
		s.qos1[pkt.PacketID] = &pendingPublish{pkt: pkt, complete: complete}
	case 2:
		s.qos2[pkt.PacketID] = &pendingPublish{pkt: pkt, state: waitRec, complete: complete}
	}
	stat.InFlight.Inc()
}

// TrackRequest records a SUBSCRIBE or UNSUBSCRIBE awaiting its acknowledgement.
func (s *Session) TrackRequest(id uint16, kind byte, filters int, complete func([]packet.ReasonCode, error)) {
	s.requests[id] = &pendingRequest{kind: kind, filters: filters, complete: complete}
	stat.InFlight.Inc()
}

// Forget drops id from every table without completing it.
func (s *Session) Forget(id uint16) {
	if !s.inUse(id) {
		return
	}
	delete(s.qos1, id)
	delete(s.qos2, id)
	delete(s.requests, id)
	stat.InFlight.Dec()
}

// Puback completes the QoS 1 publish id.
func (s *Session) Puback(id uint16) error {
	op, ok := s.qos1[id]
	if !ok {
		return fmt.Errorf("%w: PUBACK for unknown packet id %d", ErrProtocolViolation, id)
	}
	s.Forget(id)
	op.complete(nil)
	return nil
}

// Pubrec moves the QoS 2 publish id to wait-comp. The caller answers with
// PUBREL; a repeated PUBREC is accepted so the PUBREL is sent again.
func (s *Session) Pubrec(id uint16) error {
	op, ok := s.qos2[id]
	if !ok {
		return fmt.Errorf("%w: PUBREC for unknown packet id %d", ErrProtocolViolation, id)
	}
	op.state = waitComp
	return nil
}

// Pubcomp completes the QoS 2 publish id.
func (s *Session) Pubcomp(id uint16) error {
	op, ok := s.qos2[id]
	if !ok || op.state != waitComp {
		return fmt.Errorf("%w: PUBCOMP for packet id %d not awaiting it", ErrProtocolViolation, id)
	}
	s.Forget(id)
	op.complete(nil)
	return nil
}

// Suback completes the SUBSCRIBE pkt.PacketID with its return codes.
func (s *Session) Suback(pkt *packet.SUBACK) error {
	op, ok := s.requests[pkt.PacketID]
	if !ok || op.kind != SUBSCRIBE {
		return fmt.Errorf("%w: SUBACK for unknown packet id %d", ErrProtocolViolation, pkt.PacketID)
	}
	s.Forget(pkt.PacketID)
	if len(pkt.ReturnCodes) != op.filters {
		op.complete(nil, fmt.Errorf("%w: SUBACK carries %d return codes for %d topic filters", ErrProtocolViolation, len(pkt.ReturnCodes), op.filters))
		return nil
	}
	op.complete(pkt.ReturnCodes, nil)
	return nil
}

// Unsuback completes the UNSUBSCRIBE id.
func (s *Session) Unsuback(id uint16) error {
	op, ok := s.requests[id]
	if !ok || op.kind != UNSUBSCRIBE {
		return fmt.Errorf("%w: UNSUBACK for unknown packet id %d", ErrProtocolViolation, id)
	}
	s.Forget(id)
	op.complete(nil, nil)
	return nil
}

// PendingPublish is a snapshot of one unacknowledged outbound publish.
type PendingPublish struct {
	PacketID uint16
	Message  *Message

	// Released is true once PUBREC arrived: only PUBREL may be resent.
	Released bool
}

// PendingPublishes returns the outstanding QoS 1 and QoS 2 publishes ordered
// by packet identifier.
func (s *Session) PendingPublishes() []PendingPublish {
	pending := make([]PendingPublish, 0, len(s.qos1)+len(s.qos2))
	for _, table := range []map[uint16]*pendingPublish{s.qos1, s.qos2} {
		for id, op := range table {
			pending = append(pending, PendingPublish{
				PacketID: id,
				Message:  messageOf(op.pkt),
				Released: op.state == waitComp,
			})
		}
	}
	slices.SortFunc(pending, func(a, b PendingPublish) int {
		return int(a.PacketID) - int(b.PacketID)
	})
	return pending
}

// Close rejects every outstanding operation with err and empties the session.
func (s *Session) Close(err error) {
	ops := make([]func(), 0, s.Outstanding())
	for _, table := range []map[uint16]*pendingPublish{s.qos1, s.qos2} {
		for _, op := range table {
			ops = append(ops, func() { op.complete(err) })
		}
	}
	for _, op := range s.requests {
		ops = append(ops, func() { op.complete(nil, err) })
	}
	stat.InFlight.Sub(float64(len(ops)))
	clear(s.qos1)
	clear(s.qos2)
	clear(s.requests)
	s.inbound = newInFight()
	for _, op := range ops {
		op()
	}
}

func messageOf(pkt *packet.PUBLISH) *Message {
	return &Message{
		Topic:   pkt.Message.TopicName,
		Payload: pkt.Message.Content,
		QoS:     pkt.QoS,
		Retain:  pkt.Retain == 1,
		Dup:     pkt.Dup == 1,
	}
}
