package packet

import (
	"errors"
	"fmt"
)

// ReasonCode is a one byte result code carried by CONNACK and SUBACK.
//
// MQTT v3.1.1: 3.2.2.3 Connect Return code, 3.9.3 Payload (SUBACK return codes)
type ReasonCode struct {
	Code   uint8
	Reason string
}

// Error implements the error interface so a refusal can be returned directly.
func (rc ReasonCode) Error() string {
	return fmt.Sprintf("%d:%s", rc.Code, rc.Reason)
}

// Connect return codes.
var (
	CodeAccepted                    = ReasonCode{Code: 0x00, Reason: "connection accepted"}
	CodeUnacceptableProtocolVersion = ReasonCode{Code: 0x01, Reason: "unacceptable protocol version"}
	CodeIdentifierRejected          = ReasonCode{Code: 0x02, Reason: "identifier rejected"}
	CodeServerUnavailable           = ReasonCode{Code: 0x03, Reason: "server unavailable"}
	CodeBadUsernameOrPassword       = ReasonCode{Code: 0x04, Reason: "bad user name or password"}
	CodeNotAuthorized               = ReasonCode{Code: 0x05, Reason: "not authorized"}
)

// Subscribe return codes.
var (
	CodeGrantedQos0      = ReasonCode{Code: 0x00, Reason: "granted qos 0"}
	CodeGrantedQos1      = ReasonCode{Code: 0x01, Reason: "granted qos 1"}
	CodeGrantedQos2      = ReasonCode{Code: 0x02, Reason: "granted qos 2"}
	CodeSubscribeFailure = ReasonCode{Code: 0x80, Reason: "subscribe failure"}
)

var connackCodes = []ReasonCode{
	CodeAccepted,
	CodeUnacceptableProtocolVersion,
	CodeIdentifierRejected,
	CodeServerUnavailable,
	CodeBadUsernameOrPassword,
	CodeNotAuthorized,
}

// ConnackCode returns the connect return code for code, if it is defined.
func ConnackCode(code uint8) (ReasonCode, bool) {
	if int(code) >= len(connackCodes) {
		return ReasonCode{}, false
	}
	return connackCodes[code], true
}

// SubackCode returns the subscribe return code for code, if it is defined.
func SubackCode(code uint8) (ReasonCode, bool) {
	switch code {
	case 0x00:
		return CodeGrantedQos0, true
	case 0x01:
		return CodeGrantedQos1, true
	case 0x02:
		return CodeGrantedQos2, true
	case 0x80:
		return CodeSubscribeFailure, true
	}
	return ReasonCode{}, false
}

var (
	// ErrMalformedPacket matches every MalformedPacketError.
	ErrMalformedPacket = errors.New("malformed packet")

	// ErrUnknownPacketType reports a fixed header type nibble outside CONNECT..DISCONNECT.
	ErrUnknownPacketType = errors.New("unknown packet type")

	// ErrPacketTooLarge reports a packet whose remaining length exceeds the configured maximum.
	ErrPacketTooLarge = errors.New("packet too large")
)

// MalformedPacketError describes a structural or enumeration violation found
// while encoding or decoding a packet of the given kind.
type MalformedPacketError struct {
	Kind   byte
	Reason string
}

func (e *MalformedPacketError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrMalformedPacket, Kind[e.Kind], e.Reason)
}

func (e *MalformedPacketError) Is(target error) bool {
	return target == ErrMalformedPacket
}

func malformed(kind byte, format string, args ...any) error {
	return &MalformedPacketError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}
