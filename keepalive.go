package mqttclient

import (
	"time"

	"github.com/golang-io/mqttclient/packet"
)

// keepAlive sends PINGREQ every interval while the connection is up and
// ends the connection when a PINGRESP does not arrive within one interval.
// All methods run on the connection loop.
type keepAlive struct {
	c        *Conn
	interval time.Duration

	ticker   Timer
	response Timer
	gen      uint64 // invalidates callbacks of stopped response timers
}

func newKeepAlive(c *Conn, interval time.Duration) *keepAlive {
	return &keepAlive{c: c, interval: interval}
}

func (k *keepAlive) start() {
	if k.interval <= 0 || k.ticker != nil {
		return
	}
	k.ticker = k.c.options.Scheduler.Every(k.interval, func() {
		k.c.post(k.tick)
	})
}

func (k *keepAlive) tick() {
	if k.c.state != StateConnected || k.response != nil {
		return
	}
	if err := k.c.write(&packet.PINGREQ{}); err != nil {
		k.c.lost(err)
		return
	}
	k.gen++
	gen := k.gen
	k.response = k.c.options.Scheduler.After(k.interval, func() {
		k.c.post(func() { k.expired(gen) })
	})
}

func (k *keepAlive) expired(gen uint64) {
	if gen != k.gen || k.response == nil {
		return
	}
	k.response = nil
	stat.KeepAliveTimeouts.Inc()
	k.c.logger("client keep alive timeout: client_id=%s, interval=%s", k.c.id, k.interval)
	k.c.lost(ErrKeepAliveTimeout)
}

// pong disarms the response timer.
func (k *keepAlive) pong() {
	if k.response == nil {
		return
	}
	k.response.Stop()
	k.response = nil
	k.gen++
}

func (k *keepAlive) stop() {
	if k.ticker != nil {
		k.ticker.Stop()
		k.ticker = nil
	}
	k.pong()
}
