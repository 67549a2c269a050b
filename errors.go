package mqttclient

import (
	"errors"
	"fmt"

	"github.com/golang-io/mqttclient/packet"
)

var (
	// ErrNotConnected is returned by an operation invoked outside the connected state.
	ErrNotConnected = errors.New("mqtt: not connected")

	// ErrConnectAckTimeout rejects a connect attempt the broker did not acknowledge in time.
	ErrConnectAckTimeout = errors.New("mqtt: connect ack timeout")

	// ErrKeepAliveTimeout is the reason of a connection lost because a PINGREQ went unanswered.
	ErrKeepAliveTimeout = errors.New("mqtt: keep alive timeout")

	// ErrConnectionLost rejects every operation still pending when a connection ends.
	ErrConnectionLost = errors.New("mqtt: connection lost")

	// ErrProtocolViolation reports an acknowledgement the session cannot match.
	ErrProtocolViolation = errors.New("mqtt: protocol violation")

	// ErrIDSpaceExhausted is returned when all 65535 packet identifiers are outstanding.
	ErrIDSpaceExhausted = errors.New("mqtt: packet identifier space exhausted")

	// ErrSubscribeFailure rejects a subscribe the broker answered with 0x80.
	ErrSubscribeFailure = errors.New("mqtt: subscribe failure")

	// ErrPending is returned by Future.Result while the operation is still in flight.
	ErrPending = errors.New("mqtt: operation pending")
)

// ConnectionRefusedError is returned when the broker answers CONNECT with a non zero return code.
type ConnectionRefusedError struct {
	Code packet.ReasonCode
}

func (e *ConnectionRefusedError) Error() string {
	return fmt.Sprintf("mqtt: connection refused: %s", e.Code.Reason)
}

// Unwrap exposes the return code so errors.Is(err, packet.CodeNotAuthorized) works.
func (e *ConnectionRefusedError) Unwrap() error {
	return e.Code
}

// ConnectionCorruptedError ends a connection whose inbound stream could not
// be decoded. The stream has no way to resynchronize after it.
type ConnectionCorruptedError struct {
	Err error
}

func (e *ConnectionCorruptedError) Error() string {
	return fmt.Sprintf("mqtt: connection corrupted: %v", e.Err)
}

func (e *ConnectionCorruptedError) Unwrap() error {
	return e.Err
}

// TransportWriteError rejects the operation whose packet could not be written.
type TransportWriteError struct {
	Kind byte
	Err  error
}

func (e *TransportWriteError) Error() string {
	return fmt.Sprintf("mqtt: write %s: %v", packet.Kind[e.Kind], e.Err)
}

func (e *TransportWriteError) Unwrap() error {
	return e.Err
}

// lostError is the rejection of pending operations when a connection ends for reason.
func lostError(reason error) error {
	if reason == nil || errors.Is(reason, ErrConnectionLost) {
		return ErrConnectionLost
	}
	return fmt.Errorf("%w: %w", ErrConnectionLost, reason)
}
