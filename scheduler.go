package mqttclient

import (
	"sync"
	"time"
)

// Timer is a cancellable scheduled callback.
type Timer interface {
	// Stop cancels the timer. It reports whether the call stopped it.
	Stop() bool
}

// Scheduler arms the timers a connection needs: the connect ack timeout and
// the keep-alive tick and response timers. Callbacks may run on any
// goroutine; the connection hands them to its own loop.
type Scheduler interface {
	After(d time.Duration, fn func()) Timer
	Every(d time.Duration, fn func()) Timer
}

// DefaultScheduler runs timers on the runtime timer heap.
var DefaultScheduler Scheduler = systemScheduler{}

type systemScheduler struct{}

func (systemScheduler) After(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

func (systemScheduler) Every(d time.Duration, fn func()) Timer {
	t := &ticker{ticker: time.NewTicker(d), stop: make(chan struct{})}
	go t.run(fn)
	return t
}

type ticker struct {
	ticker *time.Ticker
	stop   chan struct{}
	once   sync.Once
}

func (t *ticker) run(fn func()) {
	for {
		select {
		case <-t.ticker.C:
			fn()
		case <-t.stop:
			return
		}
	}
}

func (t *ticker) Stop() bool {
	stopped := false
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.stop)
		stopped = true
	})
	return stopped
}
