package mqttclient

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/golang-io/mqttclient/packet"
	"github.com/golang-io/requests"
	"github.com/google/uuid"
)

// Config is the file form of the client options.
type Config struct {
	URL            string         `json:"URL"`
	ClientID       string         `json:"ClientID"`
	Version        string         `json:"Version"`
	CleanSession   *bool          `json:"CleanSession"`
	KeepAlive      *uint16        `json:"KeepAlive"`
	ConnectTimeout string         `json:"ConnectTimeout"`
	Username       string         `json:"Username"`
	Password       string         `json:"Password"`
	Will           *WillConfig    `json:"Will"`
	Subscriptions  []Subscription `json:"Subscriptions"`
	MaxPacketSize  uint32         `json:"MaxPacketSize"`
	HTTP           string         `json:"HTTP"` // metrics listen url, empty disables it
}

type WillConfig struct {
	Topic   string `json:"Topic"`
	Message string `json:"Message"`
	QoS     uint8  `json:"QoS"`
	Retain  bool   `json:"Retain"`
}

// Subscription is one topic filter the Client subscribes to after each connect.
type Subscription struct {
	Topic string `json:"Topic"`
	QoS   uint8  `json:"QoS"`
}

// LoadConfig reads a JSON config file.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	config := &Config{}
	if err := json.Unmarshal(b, config); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return config, nil
}

// Options converts the config into options, leaving unset fields at their defaults.
func (c *Config) Options() ([]Option, error) {
	var opts []Option
	if c.URL != "" {
		opts = append(opts, URL(c.URL))
	}
	if c.ClientID != "" {
		opts = append(opts, ClientID(c.ClientID))
	}
	if c.Version != "" {
		v, err := lookupVersion(c.Version)
		if err != nil {
			return nil, err
		}
		opts = append(opts, Version(v))
	}
	if c.CleanSession != nil {
		opts = append(opts, CleanSession(*c.CleanSession))
	}
	if c.KeepAlive != nil {
		opts = append(opts, KeepAlive(*c.KeepAlive))
	}
	if c.ConnectTimeout != "" {
		d, err := time.ParseDuration(c.ConnectTimeout)
		if err != nil {
			return nil, fmt.Errorf("parse ConnectTimeout: %w", err)
		}
		opts = append(opts, ConnectTimeout(d))
	}
	if c.Username != "" || c.Password != "" {
		opts = append(opts, Credentials(c.Username, c.Password))
	}
	if c.Will != nil {
		opts = append(opts, Will(c.Will.Topic, []byte(c.Will.Message), c.Will.QoS, c.Will.Retain))
	}
	if len(c.Subscriptions) != 0 {
		opts = append(opts, Subscribe(c.Subscriptions...))
	}
	if c.MaxPacketSize != 0 {
		opts = append(opts, MaxPacketSize(c.MaxPacketSize))
	}
	return opts, nil
}

type Options struct {
	URL            string // broker url used by Client: mqtt, tcp, mqtts, tls, ws or wss
	ClientID       string // generated by IDGenerator when empty
	Version        *packet.Version
	CleanSession   bool
	KeepAlive      uint16 // seconds, 0 disables keep-alive
	ConnectTimeout time.Duration
	Will           *packet.Will
	Username       string
	Password       string
	Subscriptions  []Subscription

	IDGenerator func() string
	Logger      *log.Logger
	Scheduler   Scheduler
	TLSConfig   *tls.Config

	// MaxPacketSize bounds the remaining length of inbound packets.
	MaxPacketSize uint32

	// EventBuffer is the capacity of the channel returned by Conn.Events.
	EventBuffer int

	// OnConnState is called from the connection loop on every state change.
	// It must not block: waiting on a Future of the same connection inside
	// it deadlocks. Close is allowed and takes effect once the hook returns.
	OnConnState func(*Conn, ConnState)
}

type Option func(*Options)

func newOptions(opts ...Option) Options {
	options := Options{
		URL:            "mqtt://127.0.0.1:1883",
		Version:        packet.V311,
		CleanSession:   true,
		KeepAlive:      10,
		ConnectTimeout: 10 * time.Second,
		IDGenerator:    DefaultIDGenerator,
		Logger:         log.Default(),
		Scheduler:      DefaultScheduler,
		MaxPacketSize:  packet.MaxRemainingLength,
		EventBuffer:    64,
	}
	for _, o := range opts {
		o(&options)
	}
	return options
}

// DefaultIDGenerator returns "mqtt-" followed by a requests generated id.
func DefaultIDGenerator() string {
	return "mqtt-" + requests.GenId()
}

// UUIDGenerator returns "mqtt-" followed by 18 hex digits of a random UUID,
// 23 bytes in total.
func UUIDGenerator() string {
	return "mqtt-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:18]
}

func URL(url string) Option {
	return func(o *Options) {
		o.URL = url
	}
}

func ClientID(id string) Option {
	return func(o *Options) {
		o.ClientID = id
	}
}

// Version selects the protocol: "3.1.1", "3.1", a protocol level byte or a *packet.Version.
func Version[T ~string | ~byte | *packet.Version](version T) Option {
	return func(o *Options) {
		switch v := any(version).(type) {
		case *packet.Version:
			o.Version = v
		case byte:
			switch v {
			case packet.VERSION311:
				o.Version = packet.V311
			case packet.VERSION31:
				o.Version = packet.V31
			default:
				panic(fmt.Errorf("version = %d not support", v))
			}
		case string:
			pv, err := lookupVersion(v)
			if err != nil {
				panic(err)
			}
			o.Version = pv
		}
	}
}

func lookupVersion(v string) (*packet.Version, error) {
	switch v {
	case "3.1.1":
		return packet.V311, nil
	case "3.1":
		return packet.V31, nil
	}
	return nil, fmt.Errorf("version = %s not support", v)
}

func CleanSession(clean bool) Option {
	return func(o *Options) {
		o.CleanSession = clean
	}
}

// KeepAlive sets the keep-alive interval in seconds.
func KeepAlive(seconds uint16) Option {
	return func(o *Options) {
		o.KeepAlive = seconds
	}
}

func ConnectTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.ConnectTimeout = d
	}
}

// Will sets the last will. A nil message means no will.
func Will(topic string, message []byte, qos uint8, retain bool) Option {
	return func(o *Options) {
		o.Will = &packet.Will{TopicName: topic, Message: message, QoS: qos, Retain: retain}
	}
}

func Credentials(username, password string) Option {
	return func(o *Options) {
		o.Username, o.Password = username, password
	}
}

// Subscribe adds topic filters the Client subscribes to after every connect.
func Subscribe(subscriptions ...Subscription) Option {
	return func(o *Options) {
		o.Subscriptions = append(o.Subscriptions, subscriptions...)
	}
}

func IDGenerator(fn func() string) Option {
	return func(o *Options) {
		o.IDGenerator = fn
	}
}

func Logger(logger *log.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithScheduler replaces the timer source, typically with a manual one in tests.
func WithScheduler(s Scheduler) Option {
	return func(o *Options) {
		o.Scheduler = s
	}
}

func TLSConfig(config *tls.Config) Option {
	return func(o *Options) {
		o.TLSConfig = config
	}
}

func MaxPacketSize(size uint32) Option {
	return func(o *Options) {
		o.MaxPacketSize = size
	}
}

func EventBuffer(n int) Option {
	return func(o *Options) {
		o.EventBuffer = n
	}
}

func OnConnState(fn func(*Conn, ConnState)) Option {
	return func(o *Options) {
		o.OnConnState = fn
	}
}
