package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/golang-io/mqttclient"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

type pubFlags struct {
	topic   string
	message string
	qos     uint8
	retain  bool
	count   int
	rate    float64
}

func pubCmd(global *globalFlags) *cobra.Command {
	flags := &pubFlags{}
	cmd := &cobra.Command{
		Use:   "pub",
		Short: "Publish messages to a topic",
		Example: `  mqtt-client pub -u mqtt://127.0.0.1:1883 -t a/b -m hello
  mqtt-client pub -t a/b -m tick --count 0 --rate 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.topic == "" {
				return fmt.Errorf("--topic is required")
			}
			opts, httpURL, err := global.options(cmd)
			if err != nil {
				return err
			}
			return run(httpURL, func(ctx context.Context) error {
				return publish(ctx, mqttclient.New(opts...), flags)
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&flags.topic, "topic", "t", "", "Topic name to publish to")
	f.StringVarP(&flags.message, "message", "m", "", "Message payload")
	f.Uint8VarP(&flags.qos, "qos", "q", 0, "Quality of service: 0, 1 or 2")
	f.BoolVarP(&flags.retain, "retain", "r", false, "Set the retain flag")
	f.IntVarP(&flags.count, "count", "n", 1, "Number of messages, 0 publishes until interrupted")
	f.Float64Var(&flags.rate, "rate", 1, "Messages per second when publishing more than one")
	return cmd
}

func publish(ctx context.Context, client *mqttclient.Client, flags *pubFlags) error {
	conn, err := client.Connect(ctx)
	if err != nil {
		return err
	}
	go func() {
		for ev := range conn.Events() {
			if ev.Kind == mqttclient.EventConnectionLost {
				log.Printf("connection lost: %v", ev.Err)
			}
		}
	}()
	defer func() {
		waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Disconnect().Wait(waitCtx); err != nil {
			log.Printf("disconnect: %v", err)
		}
	}()

	limiter := rate.NewLimiter(rate.Limit(flags.rate), 1)
	for i := 0; flags.count == 0 || i < flags.count; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil
		}
		msg := &mqttclient.Message{
			Topic:   flags.topic,
			Payload: []byte(flags.message),
			QoS:     flags.qos,
			Retain:  flags.retain,
		}
		if _, err := conn.Publish(msg).Wait(ctx); err != nil {
			return fmt.Errorf("publish %d: %w", i, err)
		}
		log.Printf("published: %s", msg)
	}
	return nil
}
