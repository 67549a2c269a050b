package mqttclient

import (
	"github.com/golang-io/mqttclient/packet"
)

// InFight holds inbound QoS 2 messages acknowledged with PUBREC and not yet
// released by the broker's PUBREL. It is owned by one connection loop.
type InFight struct {
	maps map[uint16]*packet.PUBLISH
}

func newInFight() *InFight {
	return &InFight{
		maps: make(map[uint16]*packet.PUBLISH),
	}
}

// Get removes and returns the message held under id.
func (i *InFight) Get(id uint16) (*packet.PUBLISH, bool) {
	pkt, ok := i.maps[id]
	if ok {
		delete(i.maps, id)
	}
	return pkt, ok
}

// Put stores pkt. It reports false, keeping the first copy, when a message
// with the same identifier is already held: the broker is redelivering.
func (i *InFight) Put(pkt *packet.PUBLISH) bool {
	if _, ok := i.maps[pkt.PacketID]; ok {
		return false
	}
	i.maps[pkt.PacketID] = pkt
	return true
}

func (i *InFight) Len() int {
	return len(i.maps)
}
