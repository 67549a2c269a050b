package mqttclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/golang-io/requests"
)

// Forwarder relays received messages to an HTTP endpoint as JSON. It does
// not retry: a message the endpoint fails to accept is logged and dropped.
type Forwarder struct {
	// Logger receives the failures of Handler. NewForwarder sets log.Default().
	Logger *log.Logger

	endpoint string
	sess     *requests.Session
}

// ForwardedMessage is the JSON body posted for each message.
type ForwardedMessage struct {
	Topic   string `json:"topic"`
	Payload []byte `json:"payload"`
	QoS     uint8  `json:"qos"`
	Retain  bool   `json:"retain,omitempty"`
	Dup     bool   `json:"dup,omitempty"`
}

func NewForwarder(endpoint string, timeout time.Duration) *Forwarder {
	return &Forwarder{
		Logger:   log.Default(),
		endpoint: endpoint,
		sess:     requests.New(requests.Timeout(timeout)),
	}
}

// Send posts msg and fails unless the endpoint answers 200.
func (f *Forwarder) Send(ctx context.Context, msg *Message) error {
	content, err := json.Marshal(&ForwardedMessage{
		Topic:   msg.Topic,
		Payload: msg.Payload,
		QoS:     msg.QoS,
		Retain:  msg.Retain,
		Dup:     msg.Dup,
	})
	if err != nil {
		return err
	}
	resp, err := f.sess.DoRequest(ctx,
		requests.URL(f.endpoint),
		requests.Header("content-type", "application/json"),
		requests.Body(content),
	)
	if err != nil {
		return err
	}
	if resp.StatusCode != 200 {
		return fmt.Errorf("forward %s: status code=%v", msg.Topic, resp.StatusCode)
	}
	return nil
}

// Handler returns a Handler forwarding every message it is called with.
func (f *Forwarder) Handler() Handler {
	return func(msg *Message) {
		if err := f.Send(context.Background(), msg); err != nil {
			f.Logger.Printf("forward failed: endpoint=%s, topic=%s, error=%v", f.endpoint, msg.Topic, err)
		}
	}
}
