package mqttclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/golang-io/mqttclient/packet"
	"golang.org/x/net/websocket"
	"golang.org/x/sync/errgroup"
)

// A Client dials the broker named by its URL and runs connections over the
// resulting transport. It reconnects in ConnectAndSubscribe and routes
// received messages to the handlers registered with Handle.
//
// Clients are safe for concurrent use by multiple goroutines.
type Client struct {
	// URL is the broker address. Its scheme selects the transport: mqtt and
	// tcp for plain TCP, mqtts and tls for TLS, ws and wss for websocket,
	// whose path defaults to /mqtt.
	URL *url.URL

	// DialContext specifies the dial function for creating unencrypted TCP connections.
	// If DialContext is nil, then the client dials using package net.
	DialContext func(ctx context.Context, network, addr string) (net.Conn, error)

	// DialTLSContext specifies an optional dial function for creating TLS connections.
	// The returned net.Conn is assumed to already be past the TLS handshake.
	DialTLSContext func(ctx context.Context, network, addr string) (net.Conn, error)

	// TLSClientConfig specifies the TLS configuration to use with tls.Client.
	// If nil, the TLSConfig option is used.
	TLSClientConfig *tls.Config

	// RetryInterval is the pause between reconnect attempts. Zero means 3s.
	RetryInterval time.Duration

	options Options
	router  *Router

	mu   sync.Mutex
	conn *Conn
}

func New(opts ...Option) *Client {
	options := newOptions(opts...)
	var err error
	client := &Client{
		options:         options,
		router:          NewRouter(),
		TLSClientConfig: options.TLSConfig,
	}
	client.router.Logger = options.Logger
	if client.URL, err = url.Parse(options.URL); err != nil {
		panic(err)
	}
	return client
}

// Dial connects to host:port over TCP and waits for the broker to accept the
// connection. The caller must drain Conn.Events.
func Dial(ctx context.Context, host string, port int, opts ...Option) (*Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	return New(append(opts, URL("mqtt://"+addr))...).Connect(ctx)
}

// Handle routes messages whose topic matches filter to h.
func (c *Client) Handle(filter string, h Handler) error {
	return c.router.Handle(filter, h)
}

// OnMessage sets the handler for messages no filter matches.
func (c *Client) OnMessage(h Handler) {
	c.router.Fallback(h)
}

// Conn returns the current connection, nil between connections.
func (c *Client) Conn() *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Client) setConn(conn *Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

// Publish sends msg on the current connection and waits for its completion.
func (c *Client) Publish(ctx context.Context, msg *Message) error {
	conn := c.Conn()
	if conn == nil {
		return ErrNotConnected
	}
	_, err := conn.Publish(msg).Wait(ctx)
	return err
}

// Transport dials the broker and returns the transport a Conn runs over.
func (c *Client) Transport(ctx context.Context) (Transport, error) {
	rwc, err := c.dial(ctx, c.URL.Scheme, c.URL.Host)
	if err != nil {
		return nil, err
	}
	return NewTransport(rwc), nil
}

func (c *Client) dial(ctx context.Context, scheme, addr string) (net.Conn, error) {
	// 用户自定义拨号优先
	if c.DialContext != nil && (scheme == "tcp" || scheme == "mqtt") {
		con, err := c.DialContext(ctx, "tcp", addr)
		if con == nil && err == nil {
			err = errors.New("mqtt: Client.DialContext hook returned (nil, nil)")
		}
		return con, err
	}
	if c.DialTLSContext != nil && (scheme == "tls" || scheme == "mqtts") {
		con, err := c.DialTLSContext(ctx, "tcp", addr)
		if con == nil && err == nil {
			err = errors.New("mqtt: Client.DialTLSContext hook returned (nil, nil)")
		}
		return con, err
	}

	switch scheme {
	case "mqtt", "tcp":
		return (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	case "mqtts", "tls":
		return (&tls.Dialer{Config: c.TLSClientConfig}).DialContext(ctx, "tcp", addr)
	case "ws", "wss":
		// 构造 WebSocket URL，默认路径 /mqtt
		path := c.URL.Path
		if path == "" {
			path = "/mqtt"
		}
		loc := &url.URL{Scheme: scheme, Host: addr, Path: path}
		// 兼容 Origin 要求
		originScheme := "http"
		if scheme == "wss" {
			originScheme = "https"
		}
		origin := &url.URL{Scheme: originScheme, Host: addr}

		cfg, err := websocket.NewConfig(loc.String(), origin.String())
		if err != nil {
			return nil, err
		}
		// 协商 mqtt 子协议，二进制帧
		cfg.Protocol = []string{"mqtt"}
		if scheme == "wss" {
			cfg.TlsConfig = c.TLSClientConfig
		}
		ws, err := cfg.DialContext(ctx)
		if err != nil {
			return nil, err
		}
		ws.PayloadType = websocket.BinaryFrame
		return ws, nil
	default:
		return nil, fmt.Errorf("mqtt: unsupported scheme %q", scheme)
	}
}

// Connect dials the broker and waits for CONNACK. The caller must drain
// Conn.Events. If ctx ends first the connection is closed.
func (c *Client) Connect(ctx context.Context) (*Conn, error) {
	c.options.Logger.Printf("client attempting to dial: server=%s", c.URL.Host)
	t, err := c.Transport(ctx)
	if err != nil {
		c.options.Logger.Printf("client dial failed: server=%s, error=%v", c.URL.Host, err)
		return nil, err
	}
	conn := start(t, c.options)
	if _, err := conn.connect.Wait(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// ConnectAndSubscribe keeps a connection up until ctx is done: it connects,
// subscribes to the Subscribe option's topic filters, routes messages and
// reconnects after the connection is lost.
func (c *Client) ConnectAndSubscribe(ctx context.Context) error {
	interval := c.RetryInterval
	if interval == 0 {
		interval = 3 * time.Second
	}
	timer := time.NewTimer(0)
	defer timer.Stop()
	count := 0
	for {
		select {
		case <-ctx.Done():
			c.options.Logger.Printf("client context done: server=%s", c.URL.Host)
			return ctx.Err()
		case <-timer.C:
			timer.Reset(interval)
		}
		if err := c.connectAndSubscribe(ctx); err != nil && ctx.Err() == nil {
			count++
			if count == 1 || count%10 == 0 {
				c.options.Logger.Printf("client connect and subscribe error[%d]: server=%s, error=%v", count, c.URL.Host, err)
			}
		} else {
			count = 0
		}
	}
}

func (c *Client) connectAndSubscribe(ctx context.Context) error {
	conn, err := c.Connect(ctx)
	if err != nil {
		return err
	}
	c.setConn(conn)
	defer c.setConn(nil)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		// runs until the event channel closes so the connection is always drained
		return c.router.Serve(context.Background(), conn.Events())
	})
	group.Go(func() error {
		select {
		case <-gctx.Done():
			if _, err := conn.Disconnect().Wait(context.Background()); err != nil && !errors.Is(err, ErrNotConnected) {
				return err
			}
			return nil
		case <-conn.Done():
			return nil
		}
	})
	group.Go(func() error {
		if err := c.subscribe(gctx, conn); err != nil {
			conn.Close()
			return err
		}
		return nil
	})
	return group.Wait()
}

func (c *Client) subscribe(ctx context.Context, conn *Conn) error {
	if len(c.options.Subscriptions) == 0 {
		return nil
	}
	subscriptions := make([]packet.Subscription, 0, len(c.options.Subscriptions))
	for _, sub := range c.options.Subscriptions {
		subscriptions = append(subscriptions, packet.Subscription{TopicFilter: sub.Topic, MaximumQoS: sub.QoS})
	}
	codes, err := conn.SubscribeMulti(subscriptions...).Wait(ctx)
	if err != nil {
		return err
	}
	for i, code := range codes {
		if code.Code == packet.CodeSubscribeFailure.Code {
			c.options.Logger.Printf("client subscribe failed: client_id=%s, topic=%s", conn.ClientID(), subscriptions[i].TopicFilter)
			return fmt.Errorf("%w: %s", ErrSubscribeFailure, subscriptions[i].TopicFilter)
		}
	}
	c.options.Logger.Printf("client subscribed successfully: client_id=%s, subscriptions=%v", conn.ClientID(), subscriptions)
	return nil
}

// Close closes the current connection, if any.
func (c *Client) Close() error {
	if conn := c.Conn(); conn != nil {
		return conn.Close()
	}
	return nil
}
