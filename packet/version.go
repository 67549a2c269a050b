package packet

import "unicode/utf8"

const (
	VERSION31  byte = 0x3
	VERSION311 byte = 0x4
)

// Version identifies the protocol spoken on one connection. Values are
// immutable and shared by every packet of that connection.
type Version struct {
	Name              string // protocol name carried in CONNECT
	Level             byte   // protocol level carried in CONNECT
	MaxClientIDLength int    // longest client identifier the version guarantees
}

var (
	// V311 is the baseline protocol, MQTT v3.1.1.
	V311 = &Version{Name: "MQTT", Level: VERSION311, MaxClientIDLength: 23}

	// V31 is MQTT v3.1, accepted for brokers that still require it.
	V31 = &Version{Name: "MQIsdp", Level: VERSION31, MaxClientIDLength: 23}
)

// LookupVersion returns the shared Version for a protocol name and level.
func LookupVersion(name string, level byte) (*Version, bool) {
	for _, v := range []*Version{V311, V31} {
		if v.Name == name && v.Level == level {
			return v, true
		}
	}
	return nil, false
}

// ClientID truncates id to the version's maximum client identifier length,
// never splitting a multi-byte rune.
func (v *Version) ClientID(id string) string {
	if len(id) <= v.MaxClientIDLength {
		return id
	}
	n := v.MaxClientIDLength
	for n > 0 && !utf8.RuneStart(id[n]) {
		n--
	}
	return id[:n]
}

func (v *Version) String() string {
	return v.Name
}
