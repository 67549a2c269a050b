package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/golang-io/mqttclient"
	"github.com/spf13/cobra"
)

func subCmd(global *globalFlags) *cobra.Command {
	var (
		topics  []string
		qos     uint8
		forward string
	)
	cmd := &cobra.Command{
		Use:     "sub",
		Short:   "Subscribe to topic filters and print received messages",
		Example: `  mqtt-client sub -u ws://127.0.0.1:8083/mqtt -t 'sensor/+/temp' -t 'alarm/#' -q 1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, httpURL, err := global.options(cmd)
			if err != nil {
				return err
			}
			for _, topic := range topics {
				opts = append(opts, mqttclient.Subscribe(mqttclient.Subscription{Topic: topic, QoS: qos}))
			}
			client := mqttclient.New(opts...)
			var forwarder mqttclient.Handler
			if forward != "" {
				forwarder = mqttclient.NewForwarder(forward, 5*time.Second).Handler()
			}
			client.OnMessage(func(msg *mqttclient.Message) {
				fmt.Printf("%s %s\n", msg.Topic, msg.Payload)
				if forwarder != nil {
					forwarder(msg)
				}
			})
			return run(httpURL, func(ctx context.Context) error {
				err := client.ConnectAndSubscribe(ctx)
				log.Printf("subscriber stopped: %v", err)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringArrayVarP(&topics, "topic", "t", nil, "Topic filter to subscribe to, repeatable")
	f.Uint8VarP(&qos, "qos", "q", 0, "Maximum quality of service: 0, 1 or 2")
	f.StringVar(&forward, "forward", "", "Also post every message as JSON to this http url")
	return cmd
}
