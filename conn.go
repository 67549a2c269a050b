package mqttclient

import (
	"bytes"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/golang-io/mqttclient/packet"
)

// A ConnState is the state of a client connection.
type ConnState int

const (
	// StateDisconnected is the state before CONNECT is sent and after the
	// connection ended. A Conn that returned to it is finished.
	StateDisconnected ConnState = iota

	// StateConnectSent waits for the broker's CONNACK.
	StateConnectSent

	// StateConnected allows publish, subscribe, unsubscribe and ping.
	StateConnected

	// StateDisconnecting is entered once DISCONNECT is written, until the
	// transport is closed.
	StateDisconnecting
)

var stateName = map[ConnState]string{
	StateDisconnected:  "disconnected",
	StateConnectSent:   "connect-sent",
	StateConnected:     "connected",
	StateDisconnecting: "disconnecting",
}

func (c ConnState) String() string {
	return stateName[c]
}

// Conn is one MQTT connection lifetime, from CONNECT to the end of the
// transport. A Conn is not reused: once it is back in StateDisconnected a
// new one has to be connected.
//
// Every method is safe for concurrent use. Operations are handed to the
// connection loop, which owns the stream, the session and the state, and
// return a Future without blocking.
type Conn struct {
	options   Options
	transport Transport
	logger    Logf

	actions chan func()
	exited  chan struct{}
	closing atomic.Bool
	posting atomic.Int32
	aborted atomic.Bool // set by Close, acted on by the loop
	inHook  atomic.Bool // OnConnState is running on the loop
	events  *eventQueue

	curState atomic.Uint64 // packed (unix time<<8|uint8(ConnState))

	// Owned by the loop.
	state      ConnState
	id         string
	stream     *packet.Stream
	session    *Session
	connect    *Future[*Conn]
	connecting chan struct{} // closed once id is set
	connack    Timer
	connackID  uint64
	keepAlive  *keepAlive
	pings      []*Future[struct{}]
	finished   bool
}

// Logf is the printf style logger the connection writes to.
type Logf func(format string, args ...any)

// Connect starts a connection over t and sends CONNECT. The future resolves
// with the connection once the broker accepts it.
func Connect(t Transport, opts ...Option) *Future[*Conn] {
	return start(t, newOptions(opts...)).connect
}

// start runs the connection loop and queues CONNECT.
func start(t Transport, options Options) *Conn {
	c := newConn(t, options)
	go c.loop()
	if !c.post(c.sendConnect) {
		c.connect.reject(ErrConnectionLost)
	}
	return c
}

func newConn(t Transport, options Options) *Conn {
	c := &Conn{
		options:    options,
		transport:  t,
		logger:     options.Logger.Printf,
		actions:    make(chan func(), 64),
		exited:     make(chan struct{}),
		events:     newEventQueue(options.EventBuffer),
		stream:     packet.NewStream(options.MaxPacketSize),
		connect:    newFuture[*Conn](),
		connecting: make(chan struct{}),
	}
	c.keepAlive = newKeepAlive(c, time.Duration(options.KeepAlive)*time.Second)
	return c
}

// Events returns the connection's event channel. It is closed after the
// connection ends and every event was received. The channel must be
// drained for the connection's resources to be released.
func (c *Conn) Events() <-chan Event {
	return c.events.out
}

// State returns the current connection state.
func (c *Conn) State() ConnState {
	state, _ := c.getState()
	return state
}

func (c *Conn) getState() (state ConnState, unixSec int64) {
	packedState := c.curState.Load()
	return ConnState(packedState & 0xFF), int64(packedState >> 8)
}

func (c *Conn) setState(state ConnState) {
	if state == c.state {
		return
	}
	switch {
	case state == StateConnected:
		stat.ActiveConnections.Inc()
	case c.state == StateConnected:
		stat.ActiveConnections.Dec()
	}
	c.state = state
	packedState := uint64(time.Now().Unix()<<8) | uint64(state)
	c.curState.Store(packedState)
	if hook := c.options.OnConnState; hook != nil {
		c.inHook.Store(true)
		hook(c, state)
		c.inHook.Store(false)
	}
}

// Done is closed once the connection loop has exited.
func (c *Conn) Done() <-chan struct{} {
	return c.exited
}

// ClientID returns the client identifier sent in CONNECT. It is set once
// the connect attempt started.
func (c *Conn) ClientID() string {
	<-c.connecting
	return c.id
}

func (c *Conn) loop() {
	for fn := range c.actions {
		fn()
		if c.aborted.Load() && !c.finished {
			c.logger("client closed: client_id=%s", c.id)
			c.teardown(ErrConnectionLost)
		}
		if c.finished {
			break
		}
	}

	// Run what was posted before the loop stopped accepting work, so every
	// operation settles: they all find the connection disconnected.
	c.closing.Store(true)
	for {
		select {
		case fn := <-c.actions:
			fn()
			continue
		default:
		}
		if c.posting.Load() == 0 {
			break
		}
		runtime.Gosched()
	}
	close(c.exited)
}

// post hands fn to the connection loop. It reports false once the loop
// stopped accepting work.
func (c *Conn) post(fn func()) bool {
	c.posting.Add(1)
	defer c.posting.Add(-1)
	if c.closing.Load() {
		return false
	}
	c.actions <- fn
	return true
}

func (c *Conn) sendConnect() {
	o := c.options
	c.id = o.ClientID
	if c.id == "" {
		c.id = o.Version.ClientID(o.IDGenerator())
	} else if len(c.id) > o.Version.MaxClientIDLength {
		c.id = o.Version.ClientID(c.id)
		c.logger("client id truncated: client_id=%s, max=%d", c.id, o.Version.MaxClientIDLength)
	}
	close(c.connecting)

	c.transport.Start(
		func(b []byte) { c.post(func() { c.received(b) }) },
		func(err error) { c.post(func() { c.lost(err) }) },
	)

	connect := &packet.CONNECT{
		Protocol:     o.Version,
		CleanSession: o.CleanSession,
		KeepAlive:    o.KeepAlive,
		ClientID:     c.id,
		Will:         o.Will,
		Username:     o.Username,
		Password:     o.Password,
	}
	c.logger("client attempting to connect: client_id=%s, version=%s, keepalive=%d", c.id, o.Version, o.KeepAlive)
	if err := c.write(connect); err != nil {
		c.logger("client connect packet send failed: client_id=%s, error=%v", c.id, err)
		c.teardown(err)
		return
	}
	c.setState(StateConnectSent)

	c.connackID++
	id := c.connackID
	c.connack = o.Scheduler.After(o.ConnectTimeout, func() {
		c.post(func() { c.connackTimeout(id) })
	})
}

func (c *Conn) connackTimeout(id uint64) {
	if c.state != StateConnectSent || id != c.connackID {
		return
	}
	c.logger("client connect timeout: client_id=%s, timeout=%s", c.id, c.options.ConnectTimeout)
	c.teardown(ErrConnectAckTimeout)
}

func (c *Conn) stopConnackTimer() {
	if c.connack != nil {
		c.connack.Stop()
		c.connack = nil
	}
	c.connackID++
}

// write encodes pkt and writes it to the transport. Encoding errors are
// returned as is, transport errors as *TransportWriteError.
func (c *Conn) write(pkt packet.Packet) error {
	var buf bytes.Buffer
	if err := pkt.Pack(&buf); err != nil {
		return err
	}
	if err := c.transport.Write(buf.Bytes()); err != nil {
		return &TransportWriteError{Kind: pkt.Kind(), Err: err}
	}
	stat.PacketSent.Inc()
	stat.ByteSent.Add(float64(buf.Len()))
	return nil
}

// received feeds one inbound chunk through the framer.
func (c *Conn) received(b []byte) {
	if c.finished {
		return
	}
	stat.ByteReceived.Add(float64(len(b)))
	pkts, err := c.stream.Feed(b)
	for _, pkt := range pkts {
		stat.PacketReceived.Inc()
		c.handle(pkt)
		if c.finished {
			return
		}
	}
	if err != nil {
		c.logger("client stream corrupted: client_id=%s, error=%v", c.id, err)
		c.lost(&ConnectionCorruptedError{Err: err})
	}
}

func (c *Conn) handle(pkt packet.Packet) {
	if c.state == StateConnectSent {
		if connack, ok := pkt.(*packet.CONNACK); ok {
			c.handleConnack(connack)
			return
		}
		c.violation(fmt.Errorf("%w: %s before CONNACK", ErrProtocolViolation, packet.Kind[pkt.Kind()]))
		return
	}

	switch p := pkt.(type) {
	case *packet.PUBLISH:
		c.handlePublish(p)
	case *packet.PUBACK:
		c.violation(c.session.Puback(p.PacketID))
	case *packet.PUBREC:
		c.handlePubrec(p)
	case *packet.PUBREL:
		c.handlePubrel(p)
	case *packet.PUBCOMP:
		c.violation(c.session.Pubcomp(p.PacketID))
	case *packet.SUBACK:
		c.violation(c.session.Suback(p))
	case *packet.UNSUBACK:
		c.violation(c.session.Unsuback(p.PacketID))
	case *packet.PINGRESP:
		c.handlePingresp()
	case *packet.CONNACK:
		c.violation(fmt.Errorf("%w: CONNACK on an established connection", ErrProtocolViolation))
	case *packet.CONNECT, *packet.SUBSCRIBE, *packet.UNSUBSCRIBE, *packet.PINGREQ, *packet.DISCONNECT:
		// only a client sends these; the broker is not speaking MQTT to us
		c.lost(&ConnectionCorruptedError{Err: fmt.Errorf("%w: broker sent %s", ErrProtocolViolation, packet.Kind[pkt.Kind()])})
	default:
		panic(fmt.Sprintf("unknown packet type: %T", p))
	}
}

// violation logs a non fatal protocol violation. A nil err is ignored.
func (c *Conn) violation(err error) {
	if err == nil {
		return
	}
	stat.ProtocolViolations.Inc()
	c.logger("client protocol violation: client_id=%s, error=%v", c.id, err)
}

func (c *Conn) handleConnack(p *packet.CONNACK) {
	c.stopConnackTimer()
	if p.ReturnCode.Code != packet.CodeAccepted.Code {
		c.logger("client connect failed: client_id=%s, return_code=%v", c.id, p.ReturnCode)
		c.teardown(&ConnectionRefusedError{Code: p.ReturnCode})
		return
	}
	c.session = newSession()
	c.setState(StateConnected)
	c.keepAlive.start()
	c.logger("client connected successfully: client_id=%s, session_present=%t", c.id, p.SessionPresent)
	c.connect.resolve(c)
}

func (c *Conn) handlePublish(p *packet.PUBLISH) {
	switch p.QoS {
	case 0:
		c.deliver(p)
	case 1:
		if err := c.write(&packet.PUBACK{PacketID: p.PacketID}); err != nil {
			c.logger("client puback send failed: client_id=%s, packet_id=%d, error=%v", c.id, p.PacketID, err)
		}
		c.deliver(p)
	case 2:
		if !c.session.inbound.Put(p) {
			c.logger("client qos2 redelivery: client_id=%s, packet_id=%d", c.id, p.PacketID)
		}
		if err := c.write(&packet.PUBREC{PacketID: p.PacketID}); err != nil {
			c.logger("client pubrec send failed: client_id=%s, packet_id=%d, error=%v", c.id, p.PacketID, err)
		}
	}
}

func (c *Conn) handlePubrel(p *packet.PUBREL) {
	pub, ok := c.session.inbound.Get(p.PacketID)
	// PUBCOMP is owed even for an unknown id: the PUBREL may repeat one already completed.
	if err := c.write(&packet.PUBCOMP{PacketID: p.PacketID}); err != nil {
		c.logger("client pubcomp send failed: client_id=%s, packet_id=%d, error=%v", c.id, p.PacketID, err)
	}
	if !ok {
		c.violation(fmt.Errorf("%w: PUBREL for unknown packet id %d", ErrProtocolViolation, p.PacketID))
		return
	}
	c.deliver(pub)
}

func (c *Conn) handlePubrec(p *packet.PUBREC) {
	if err := c.session.Pubrec(p.PacketID); err != nil {
		c.violation(err)
		return
	}
	if err := c.write(&packet.PUBREL{PacketID: p.PacketID}); err != nil {
		c.logger("client pubrel send failed: client_id=%s, packet_id=%d, error=%v", c.id, p.PacketID, err)
		c.failPublish(p.PacketID, err)
	}
}

// failPublish rejects the outstanding publish id with err.
func (c *Conn) failPublish(id uint16, err error) {
	for _, table := range []map[uint16]*pendingPublish{c.session.qos1, c.session.qos2} {
		if op, ok := table[id]; ok {
			c.session.Forget(id)
			op.complete(err)
			return
		}
	}
}

func (c *Conn) handlePingresp() {
	c.keepAlive.pong()
	if len(c.pings) == 0 {
		return
	}
	f := c.pings[0]
	c.pings[0] = nil
	c.pings = c.pings[1:]
	f.resolve(struct{}{})
}

func (c *Conn) deliver(p *packet.PUBLISH) {
	msg := messageOf(p)
	c.logger("client received: client_id=%s, topic=%s, qos=%d, size=%d", c.id, msg.Topic, msg.QoS, len(msg.Payload))
	c.events.push(Event{Kind: EventMessageReceived, Message: msg})
}

// Publish sends msg. The future resolves once the message is written for
// QoS 0, on PUBACK for QoS 1 and on PUBCOMP for QoS 2.
func (c *Conn) Publish(msg *Message) *Future[struct{}] {
	f := newFuture[struct{}]()
	if !c.post(func() { c.publish(msg, f) }) {
		f.reject(ErrNotConnected)
	}
	return f
}

func (c *Conn) publish(msg *Message, f *Future[struct{}]) {
	if c.state != StateConnected {
		f.reject(ErrNotConnected)
		return
	}
	if msg.QoS > 2 {
		f.reject(fmt.Errorf("mqtt: publish qos %d out of range", msg.QoS))
		return
	}
	pkt := &packet.PUBLISH{
		FixedHeader: &packet.FixedHeader{Kind: PUBLISH, QoS: msg.QoS},
		Message:     &packet.Message{TopicName: msg.Topic, Content: msg.Payload},
	}
	if msg.Retain {
		pkt.Retain = 1
	}
	if msg.Dup && msg.QoS > 0 {
		pkt.Dup = 1
	}
	if msg.QoS == 0 {
		if err := c.write(pkt); err != nil {
			f.reject(err)
			return
		}
		f.resolve(struct{}{})
		return
	}

	id, err := c.session.NextID()
	if err != nil {
		f.reject(err)
		return
	}
	pkt.PacketID = id
	c.session.TrackPublish(pkt, func(err error) { f.complete(struct{}{}, err) })
	if err := c.write(pkt); err != nil {
		c.session.Forget(id)
		f.reject(err)
		return
	}
	c.logger("client publish: client_id=%s, topic=%s, qos=%d, packet_id=%d, size=%d", c.id, msg.Topic, msg.QoS, id, len(msg.Payload))
}

// Subscribe subscribes to one topic filter and resolves with the granted
// QoS. A 0x80 return code rejects it with ErrSubscribeFailure.
func (c *Conn) Subscribe(filter string, qos uint8) *Future[uint8] {
	f := newFuture[uint8]()
	subscriptions := []packet.Subscription{{TopicFilter: filter, MaximumQoS: qos}}
	complete := func(codes []packet.ReasonCode, err error) {
		switch {
		case err != nil:
			f.reject(err)
		case codes[0].Code == packet.CodeSubscribeFailure.Code:
			f.reject(fmt.Errorf("%w: %s: %w", ErrSubscribeFailure, filter, codes[0]))
		default:
			f.resolve(codes[0].Code)
		}
	}
	if !c.post(func() { c.subscribe(subscriptions, complete) }) {
		f.reject(ErrNotConnected)
	}
	return f
}

// SubscribeMulti subscribes to every filter in one SUBSCRIBE and resolves
// with the return codes in request order.
func (c *Conn) SubscribeMulti(subscriptions ...packet.Subscription) *Future[[]packet.ReasonCode] {
	f := newFuture[[]packet.ReasonCode]()
	if !c.post(func() { c.subscribe(subscriptions, f.complete) }) {
		f.reject(ErrNotConnected)
	}
	return f
}

func (c *Conn) subscribe(subscriptions []packet.Subscription, complete func([]packet.ReasonCode, error)) {
	if c.state != StateConnected {
		complete(nil, ErrNotConnected)
		return
	}
	id, err := c.session.NextID()
	if err != nil {
		complete(nil, err)
		return
	}
	pkt := &packet.SUBSCRIBE{PacketID: id, Subscriptions: subscriptions}
	c.session.TrackRequest(id, SUBSCRIBE, len(subscriptions), complete)
	if err := c.write(pkt); err != nil {
		c.session.Forget(id)
		complete(nil, err)
		return
	}
	c.logger("client attempting to subscribe: client_id=%s, packet_id=%d, subscriptions=%v", c.id, id, subscriptions)
}

// Unsubscribe removes topic filters and resolves on UNSUBACK.
func (c *Conn) Unsubscribe(filters ...string) *Future[struct{}] {
	f := newFuture[struct{}]()
	if !c.post(func() { c.unsubscribe(filters, f) }) {
		f.reject(ErrNotConnected)
	}
	return f
}

func (c *Conn) unsubscribe(filters []string, f *Future[struct{}]) {
	if c.state != StateConnected {
		f.reject(ErrNotConnected)
		return
	}
	id, err := c.session.NextID()
	if err != nil {
		f.reject(err)
		return
	}
	pkt := &packet.UNSUBSCRIBE{PacketID: id, TopicFilters: filters}
	c.session.TrackRequest(id, UNSUBSCRIBE, len(filters), func(_ []packet.ReasonCode, err error) {
		f.complete(struct{}{}, err)
	})
	if err := c.write(pkt); err != nil {
		c.session.Forget(id)
		f.reject(err)
		return
	}
	c.logger("client attempting to unsubscribe: client_id=%s, packet_id=%d, filters=%v", c.id, id, filters)
}

// Ping sends PINGREQ and resolves on the next PINGRESP.
func (c *Conn) Ping() *Future[struct{}] {
	f := newFuture[struct{}]()
	if !c.post(func() { c.ping(f) }) {
		f.reject(ErrNotConnected)
	}
	return f
}

func (c *Conn) ping(f *Future[struct{}]) {
	if c.state != StateConnected {
		f.reject(ErrNotConnected)
		return
	}
	if err := c.write(&packet.PINGREQ{}); err != nil {
		f.reject(err)
		return
	}
	c.pings = append(c.pings, f)
}

// PendingPublishes returns the QoS 1 and QoS 2 publishes still awaiting
// their acknowledgement, for a caller driven redelivery policy.
func (c *Conn) PendingPublishes() *Future[[]PendingPublish] {
	f := newFuture[[]PendingPublish]()
	if !c.post(func() {
		if c.session == nil {
			f.resolve(nil)
			return
		}
		f.resolve(c.session.PendingPublishes())
	}) {
		f.reject(ErrNotConnected)
	}
	return f
}

// Redeliver resends every outstanding publish with the DUP flag set, or
// PUBREL for QoS 2 publishes already received by the broker. The original
// futures stay pending. It resolves with the number of packets resent.
func (c *Conn) Redeliver() *Future[int] {
	f := newFuture[int]()
	if !c.post(func() { c.redeliver(f) }) {
		f.reject(ErrNotConnected)
	}
	return f
}

func (c *Conn) redeliver(f *Future[int]) {
	if c.state != StateConnected {
		f.reject(ErrNotConnected)
		return
	}
	n := 0
	for _, pending := range c.session.PendingPublishes() {
		var pkt packet.Packet = &packet.PUBREL{PacketID: pending.PacketID}
		if !pending.Released {
			op := c.session.qos1[pending.PacketID]
			if op == nil {
				op = c.session.qos2[pending.PacketID]
			}
			op.pkt.Dup = 1
			pkt = op.pkt
		}
		if err := c.write(pkt); err != nil {
			c.failPublish(pending.PacketID, err)
			continue
		}
		n++
	}
	f.resolve(n)
}

// Disconnect sends DISCONNECT and closes the transport. Operations still
// pending are rejected with ErrConnectionLost. No connection-lost event is emitted.
func (c *Conn) Disconnect() *Future[struct{}] {
	f := newFuture[struct{}]()
	if !c.post(func() { c.disconnect(f) }) {
		f.reject(ErrNotConnected)
	}
	return f
}

func (c *Conn) disconnect(f *Future[struct{}]) {
	if c.state != StateConnected {
		f.reject(ErrNotConnected)
		return
	}
	c.logger("client attempting to disconnect: client_id=%s", c.id)
	err := c.write(&packet.DISCONNECT{})
	c.setState(StateDisconnecting)
	c.teardown(ErrConnectionLost)
	if err != nil {
		f.reject(err)
		return
	}
	c.logger("client disconnected successfully: client_id=%s", c.id)
	f.resolve(struct{}{})
}

// Close aborts the connection without DISCONNECT and waits for the loop to
// exit. Pending operations are rejected with ErrConnectionLost.
//
// Called from an OnConnState hook, Close does not wait: the hook runs on the
// loop, which closes the connection once the hook returns.
func (c *Conn) Close() error {
	c.aborted.Store(true)
	if c.inHook.Load() {
		return nil
	}
	c.post(func() {})
	<-c.exited
	return nil
}

// lost ends the connection after an unexpected transport close, a corrupted
// stream or a keep-alive timeout.
func (c *Conn) lost(reason error) {
	if c.finished {
		return
	}
	if reason == nil {
		reason = errors.New("transport closed")
	}
	c.logger("client connection lost: client_id=%s, state=%s, reason=%v", c.id, c.state, reason)
	if c.state != StateConnected {
		c.teardown(lostError(reason))
		return
	}
	stat.ConnectionsLost.Inc()
	c.teardown(lostError(reason), Event{Kind: EventConnectionLost, Err: reason})
}

// teardown stops the timers, closes the transport, rejects everything
// pending with err and finishes the connection. final events are the last
// ones delivered.
func (c *Conn) teardown(err error, final ...Event) {
	if c.finished {
		return
	}
	c.stopConnackTimer()
	c.keepAlive.stop()
	if closeErr := c.transport.Close(); closeErr != nil {
		c.logger("client transport close: client_id=%s, error=%v", c.id, closeErr)
	}
	c.stream.Reset()
	if c.session != nil {
		c.session.Close(err)
	}
	for _, f := range c.pings {
		f.reject(err)
	}
	c.pings = nil
	c.connect.reject(err)
	c.setState(StateDisconnected)
	c.finished = true
	for _, ev := range final {
		c.events.push(ev)
	}
	c.events.close()
}
