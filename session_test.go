package mqttclient

import (
	"errors"
	"testing"

	"github.com/golang-io/mqttclient/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publishPacket(id uint16, qos uint8) *packet.PUBLISH {
	return &packet.PUBLISH{
		FixedHeader: &packet.FixedHeader{Kind: PUBLISH, QoS: qos},
		PacketID:    id,
		Message:     &packet.Message{TopicName: "a/b", Content: []byte("x")},
	}
}

func TestSessionNextIDSequence(t *testing.T) {
	s := newSession()
	for want := uint16(1); want <= 5; want++ {
		id, err := s.NextID()
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}
}

func TestSessionNextIDWraps(t *testing.T) {
	s := newSession()
	s.nextID = 0xFFFE
	id, err := s.NextID()
	require.NoError(t, err)
	assert.Equal(t, uint16(0xFFFF), id)

	id, err = s.NextID()
	require.NoError(t, err)
	assert.Equal(t, uint16(1), id, "0 is never allocated")
}

func TestSessionNextIDSkipsOutstanding(t *testing.T) {
	s := newSession()
	s.TrackPublish(publishPacket(1, 1), func(error) {})
	s.TrackRequest(2, SUBSCRIBE, 1, func([]packet.ReasonCode, error) {})
	s.TrackPublish(publishPacket(3, 2), func(error) {})
	defer s.Close(ErrConnectionLost)

	id, err := s.NextID()
	require.NoError(t, err)
	assert.Equal(t, uint16(4), id)

	s.nextID = 0xFFFF
	id, err = s.NextID()
	require.NoError(t, err)
	assert.Equal(t, uint16(4), id, "wrap skips 1, 2 and 3")
}

func TestSessionIDSpaceExhausted(t *testing.T) {
	s := newSession()
	seen := make(map[uint16]bool, 0xFFFF)
	for range 0xFFFF {
		id, err := s.NextID()
		require.NoError(t, err)
		require.NotZero(t, id)
		require.False(t, seen[id], "id %d allocated twice", id)
		seen[id] = true
		s.TrackPublish(publishPacket(id, 1), func(error) {})
	}
	assert.Equal(t, 0xFFFF, s.Outstanding())

	_, err := s.NextID()
	assert.ErrorIs(t, err, ErrIDSpaceExhausted)

	require.NoError(t, s.Puback(777))
	id, err := s.NextID()
	require.NoError(t, err)
	assert.Equal(t, uint16(777), id)
	s.Close(ErrConnectionLost)
}

func TestSessionPuback(t *testing.T) {
	s := newSession()
	var got []error
	s.TrackPublish(publishPacket(1, 1), func(err error) { got = append(got, err) })

	require.NoError(t, s.Puback(1))
	assert.Equal(t, []error{nil}, got)
	assert.Zero(t, s.Outstanding())

	err := s.Puback(1)
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.Len(t, got, 1, "a repeated PUBACK completes nothing")
}

func TestSessionQoS2Handshake(t *testing.T) {
	s := newSession()
	done := 0
	s.TrackPublish(publishPacket(9, 2), func(err error) {
		assert.NoError(t, err)
		done++
	})

	assert.ErrorIs(t, s.Pubcomp(9), ErrProtocolViolation, "PUBCOMP before PUBREC")
	assert.ErrorIs(t, s.Puback(9), ErrProtocolViolation, "PUBACK for a QoS 2 publish")

	require.NoError(t, s.Pubrec(9))
	require.NoError(t, s.Pubrec(9), "a repeated PUBREC is answered again")

	pending := s.PendingPublishes()
	require.Len(t, pending, 1)
	assert.True(t, pending[0].Released)

	require.NoError(t, s.Pubcomp(9))
	assert.Equal(t, 1, done)
	assert.Zero(t, s.Outstanding())
	assert.ErrorIs(t, s.Pubrec(9), ErrProtocolViolation)
}

func TestSessionSuback(t *testing.T) {
	s := newSession()
	var codes []packet.ReasonCode
	s.TrackRequest(4, SUBSCRIBE, 2, func(c []packet.ReasonCode, err error) {
		require.NoError(t, err)
		codes = c
	})

	assert.ErrorIs(t, s.Unsuback(4), ErrProtocolViolation, "UNSUBACK for a SUBSCRIBE")
	require.NoError(t, s.Suback(&packet.SUBACK{PacketID: 4, ReturnCodes: []packet.ReasonCode{packet.CodeGrantedQos1, packet.CodeSubscribeFailure}}))
	assert.Equal(t, []packet.ReasonCode{packet.CodeGrantedQos1, packet.CodeSubscribeFailure}, codes)

	assert.ErrorIs(t, s.Suback(&packet.SUBACK{PacketID: 4, ReturnCodes: []packet.ReasonCode{packet.CodeGrantedQos0}}), ErrProtocolViolation)
}

func TestSessionSubackCountMismatch(t *testing.T) {
	s := newSession()
	var got error
	s.TrackRequest(1, SUBSCRIBE, 2, func(_ []packet.ReasonCode, err error) { got = err })
	require.NoError(t, s.Suback(&packet.SUBACK{PacketID: 1, ReturnCodes: []packet.ReasonCode{packet.CodeGrantedQos0}}))
	assert.ErrorIs(t, got, ErrProtocolViolation)
	assert.Zero(t, s.Outstanding())
}

func TestSessionUnsuback(t *testing.T) {
	s := newSession()
	called := false
	s.TrackRequest(3, UNSUBSCRIBE, 1, func(_ []packet.ReasonCode, err error) {
		assert.NoError(t, err)
		called = true
	})
	assert.ErrorIs(t, s.Suback(&packet.SUBACK{PacketID: 3, ReturnCodes: []packet.ReasonCode{packet.CodeGrantedQos0}}), ErrProtocolViolation)
	require.NoError(t, s.Unsuback(3))
	assert.True(t, called)
	assert.ErrorIs(t, s.Unsuback(3), ErrProtocolViolation)
}

func TestSessionPendingPublishesOrdered(t *testing.T) {
	s := newSession()
	s.TrackPublish(publishPacket(5, 2), func(error) {})
	s.TrackPublish(publishPacket(2, 1), func(error) {})
	s.TrackPublish(publishPacket(7, 1), func(error) {})
	defer s.Close(ErrConnectionLost)

	pending := s.PendingPublishes()
	require.Len(t, pending, 3)
	for i, id := range []uint16{2, 5, 7} {
		assert.Equal(t, id, pending[i].PacketID)
		assert.Equal(t, "a/b", pending[i].Message.Topic)
		assert.False(t, pending[i].Released)
	}
	assert.Equal(t, uint8(2), pending[1].Message.QoS)
}

func TestSessionClose(t *testing.T) {
	s := newSession()
	var errs []error
	s.TrackPublish(publishPacket(1, 1), func(err error) { errs = append(errs, err) })
	s.TrackPublish(publishPacket(2, 2), func(err error) { errs = append(errs, err) })
	s.TrackRequest(3, SUBSCRIBE, 1, func(_ []packet.ReasonCode, err error) { errs = append(errs, err) })
	s.TrackRequest(4, UNSUBSCRIBE, 1, func(_ []packet.ReasonCode, err error) { errs = append(errs, err) })
	s.inbound.Put(publishPacket(8, 2))

	s.Close(ErrConnectionLost)
	require.Len(t, errs, 4)
	for _, err := range errs {
		assert.True(t, errors.Is(err, ErrConnectionLost))
	}
	assert.Zero(t, s.Outstanding())
	assert.Zero(t, s.inbound.Len())

	id, err := s.NextID()
	require.NoError(t, err)
	assert.NotZero(t, id)
}

func TestSessionForget(t *testing.T) {
	s := newSession()
	s.TrackPublish(publishPacket(1, 1), func(error) { t.Fatal("forgotten publish completed") })
	s.Forget(1)
	s.Forget(1)
	assert.Zero(t, s.Outstanding())
	assert.ErrorIs(t, s.Puback(1), ErrProtocolViolation)
}
