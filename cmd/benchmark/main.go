package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/golang-io/mqttclient"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

func main() {
	var (
		url      = flag.String("url", "mqtt://127.0.0.1:1883", "Broker url")
		clients  = flag.Int("clients", 10, "Number of concurrent connections")
		perSec   = flag.Float64("rate", 100, "Messages per second per connection")
		qos      = flag.Uint("qos", 1, "Quality of service of published messages")
		duration = flag.Duration("duration", 10*time.Second, "How long to publish")
	)
	flag.Parse()

	var published, received atomic.Int64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()
	group, ctx := errgroup.WithContext(ctx)
	for i := 0; i < *clients; i++ {
		topic := fmt.Sprintf("benchmark/%02d", i)
		group.Go(func() error {
			conn, err := mqttclient.New(mqttclient.URL(*url)).Connect(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			go func() {
				for ev := range conn.Events() {
					if ev.Kind == mqttclient.EventMessageReceived {
						received.Add(1)
					}
				}
			}()
			defer conn.Disconnect()

			if _, err := conn.Subscribe(topic, uint8(*qos)).Wait(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			limiter := rate.NewLimiter(rate.Limit(*perSec), 1)
			for limiter.Wait(ctx) == nil {
				msg := &mqttclient.Message{Topic: topic, Payload: []byte("hello world"), QoS: uint8(*qos)}
				if _, err := conn.Publish(msg).Wait(ctx); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				published.Add(1)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		log.Fatal(err)
	}
	seconds := duration.Seconds()
	log.Printf("benchmark done: clients=%d, published=%d (%.0f/s), received=%d (%.0f/s)",
		*clients, published.Load(), float64(published.Load())/seconds, received.Load(), float64(received.Load())/seconds)
}
