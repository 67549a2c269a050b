// Package mqttclient is an MQTT 3.1.1 client protocol engine.
//
// A Conn runs one connection over any byte Transport: it frames the inbound
// stream, answers the QoS handshakes, keeps the connection alive and reports
// received messages and connection loss as Events. Client adds broker URLs,
// reconnection and topic routing on top of it.
package mqttclient

// Control packet types. Position: byte 1, bits 7-4
const (
	RESERVED    byte = 0x0
	CONNECT     byte = 0x1
	CONNACK     byte = 0x2
	PUBLISH     byte = 0x3
	PUBACK      byte = 0x4
	PUBREC      byte = 0x5
	PUBREL      byte = 0x6
	PUBCOMP     byte = 0x7
	SUBSCRIBE   byte = 0x8
	SUBACK      byte = 0x9
	UNSUBSCRIBE byte = 0xA
	UNSUBACK    byte = 0xB
	PINGREQ     byte = 0xC
	PINGRESP    byte = 0xD
	DISCONNECT  byte = 0xE
)
