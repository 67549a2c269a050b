package packet

import (
	"bytes"
	"io"
)

// CONNECT - Client requests a connection to a Server
//
// MQTT v3.1.1: 3.1 CONNECT
//
// Variable header: protocol name, protocol level, connect flags, keep alive.
// Payload, in this order and each only when its flag is set: client
// identifier, will topic, will message, user name, password.
type CONNECT struct {
	*FixedHeader

	// Protocol is the protocol name and level. Nil packs as V311.
	Protocol *Version

	CleanSession bool

	// KeepAlive is the maximum interval in seconds between two control packets sent by the client.
	KeepAlive uint16

	ClientID string `json:"ClientID,omitempty"`

	// Will is the message the server publishes when the connection is lost.
	// Nil, or a nil Will.Message, means no will.
	Will *Will `json:"Will,omitempty"`

	Username string `json:"Username,omitempty"`

	Password string `json:"Password,omitempty"`
}

// Will describes the last will and testament of a client.
type Will struct {
	TopicName string
	Message   []byte
	QoS       uint8
	Retain    bool
}

func (pkt *CONNECT) Kind() byte {
	return 0x1
}

func (pkt *CONNECT) String() string {
	return "[0x1]CONNECT"
}

// Flags returns the connect flags byte the packet encodes to.
func (pkt *CONNECT) Flags() ConnectFlags {
	uf := b2i(pkt.Username != "") // UserNameFlag - bit 7
	pf := b2i(pkt.Password != "") // PasswordFlag - bit 6
	wr := uint8(0)                // WillRetain - bit 5
	wq := uint8(0)                // WillQoS - bits 4-3
	wf := uint8(0)                // WillFlag - bit 2
	cs := b2i(pkt.CleanSession)   // CleanSession - bit 1
	if pkt.hasWill() {
		wf, wq, wr = 1, pkt.Will.QoS, b2i(pkt.Will.Retain)
	}
	return ConnectFlags(uf<<7 | pf<<6 | wr<<5 | wq<<3 | wf<<2 | cs<<1)
}

// hasWill reports whether the will flag is set: a will topic and a will
// message are both present. An empty, non nil message is a valid will.
func (pkt *CONNECT) hasWill() bool {
	return pkt.Will != nil && pkt.Will.TopicName != "" && pkt.Will.Message != nil
}

func (pkt *CONNECT) Pack(w io.Writer) error {
	fh, err := ensureHeader(&pkt.FixedHeader, 0x1)
	if err != nil {
		return err
	}
	if pkt.Protocol == nil {
		pkt.Protocol = V311
	}
	if len(pkt.ClientID) > pkt.Protocol.MaxClientIDLength {
		return malformed(0x1, "client identifier longer than %d bytes", pkt.Protocol.MaxClientIDLength)
	}
	if pkt.Will != nil && pkt.Will.QoS > 2 {
		return malformed(0x1, "will qos %d out of range", pkt.Will.QoS)
	}
	if pkt.Will != nil && pkt.Will.TopicName == "" {
		return malformed(0x1, "empty will topic")
	}
	if pkt.Password != "" && pkt.Username == "" {
		return malformed(0x1, "password without user name")
	}

	buf := GetBuffer()
	defer PutBuffer(buf)

	fields := [][]byte{[]byte(pkt.Protocol.Name)}
	if err := writeFields(buf, fields...); err != nil {
		return malformed(0x1, "protocol name: %v", err)
	}
	buf.WriteByte(pkt.Protocol.Level)
	buf.WriteByte(byte(pkt.Flags()))
	buf.Write(i2b(pkt.KeepAlive))

	fields = [][]byte{[]byte(pkt.ClientID)}
	if pkt.hasWill() {
		fields = append(fields, []byte(pkt.Will.TopicName), pkt.Will.Message)
	}
	if pkt.Username != "" {
		fields = append(fields, []byte(pkt.Username))
	}
	if pkt.Password != "" {
		fields = append(fields, []byte(pkt.Password))
	}
	if err := writeFields(buf, fields...); err != nil {
		return malformed(0x1, "payload: %v", err)
	}
	return packWith(w, fh, buf)
}

func (pkt *CONNECT) Unpack(buf *bytes.Buffer) error {
	name, err := readString(buf)
	if err != nil {
		return malformed(0x1, "protocol name: %v", err)
	}
	level, err := readByte(buf)
	if err != nil {
		return malformed(0x1, "protocol level: %v", err)
	}
	version, ok := LookupVersion(name, level)
	if !ok {
		return malformed(0x1, "unsupported protocol %q level %d", name, level)
	}
	pkt.Protocol = version

	flags, err := readByte(buf)
	if err != nil {
		return malformed(0x1, "connect flags: %v", err)
	}
	cf := ConnectFlags(flags)
	if cf.Reserved() != 0 {
		return malformed(0x1, "reserved connect flag set")
	}
	if cf.WillQoS() > 2 {
		return malformed(0x1, "will qos %d out of range", cf.WillQoS())
	}
	if !cf.WillFlag() && (cf.WillQoS() != 0 || cf.WillRetain()) {
		return malformed(0x1, "will qos or retain without will flag")
	}
	if cf.PasswordFlag() && !cf.UserNameFlag() {
		return malformed(0x1, "password flag without user name flag")
	}
	pkt.CleanSession = cf.CleanSession()

	if pkt.KeepAlive, err = readUint16(buf); err != nil {
		return malformed(0x1, "keep alive: %v", err)
	}

	if pkt.ClientID, err = readString(buf); err != nil {
		return malformed(0x1, "client identifier: %v", err)
	}
	if len(pkt.ClientID) > version.MaxClientIDLength {
		return malformed(0x1, "client identifier longer than %d bytes", version.MaxClientIDLength)
	}

	if cf.WillFlag() {
		will := &Will{QoS: cf.WillQoS(), Retain: cf.WillRetain()}
		if will.TopicName, err = readString(buf); err != nil {
			return malformed(0x1, "will topic: %v", err)
		}
		if will.TopicName == "" {
			return malformed(0x1, "empty will topic")
		}
		if will.Message, err = readBytes(buf); err != nil {
			return malformed(0x1, "will message: %v", err)
		}
		if will.Message == nil {
			will.Message = []byte{}
		}
		pkt.Will = will
	}

	if cf.UserNameFlag() {
		if pkt.Username, err = readString(buf); err != nil {
			return malformed(0x1, "user name: %v", err)
		}
	}
	if cf.PasswordFlag() {
		password, err := readBytes(buf)
		if err != nil {
			return malformed(0x1, "password: %v", err)
		}
		pkt.Password = string(password)
	}
	return nil
}

// ConnectFlags is the connect flags byte of the CONNECT variable header.
//
// Bit 7: User Name Flag; bit 6: Password Flag; bit 5: Will Retain;
// bits 4-3: Will QoS; bit 2: Will Flag; bit 1: Clean Session; bit 0: reserved.
type ConnectFlags uint8

func (f ConnectFlags) Reserved() uint8 {
	return uint8(f) & 0x01
}

func (f ConnectFlags) CleanSession() bool {
	return (uint8(f) & 0x02) == 0x02
}

func (f ConnectFlags) WillFlag() bool {
	return (uint8(f) & 0x04) == 0x04
}

func (f ConnectFlags) WillQoS() uint8 {
	return (uint8(f) & 0x18) >> 3
}

func (f ConnectFlags) WillRetain() bool {
	return (uint8(f) & 0x20) == 0x20
}

func (f ConnectFlags) PasswordFlag() bool {
	return (uint8(f) & 0x40) == 0x40
}

func (f ConnectFlags) UserNameFlag() bool {
	return (uint8(f) & 0x80) == 0x80
}

func writeFields(buf *bytes.Buffer, fields ...[]byte) error {
	for _, field := range fields {
		b, err := s2b(field)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}
