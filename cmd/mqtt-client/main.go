package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang-io/mqttclient"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	config    string
	url       string
	clientID  string
	keepAlive uint16
	username  string
	password  string
	http      string
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	flags := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:           "mqtt-client",
		Short:         "Publish to and subscribe from an MQTT 3.1.1 broker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", "", "Path to a JSON config file")
	pf.StringVarP(&flags.url, "url", "u", "", "Broker url: mqtt://, mqtts://, ws:// or wss://")
	pf.StringVarP(&flags.clientID, "client-id", "i", "", "Client identifier, generated when empty")
	pf.Uint16VarP(&flags.keepAlive, "keepalive", "k", 10, "Keep-alive interval in seconds, 0 disables it")
	pf.StringVar(&flags.username, "username", "", "User name")
	pf.StringVar(&flags.password, "password", "", "Password")
	pf.StringVar(&flags.http, "http", "", "Serve /metrics on this url, e.g. http://127.0.0.1:9090")

	rootCmd.AddCommand(pubCmd(flags), subCmd(flags))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// options merges the config file with the flags set on the command line.
func (f *globalFlags) options(cmd *cobra.Command) ([]mqttclient.Option, string, error) {
	var opts []mqttclient.Option
	httpURL := f.http
	if f.config != "" {
		config, err := mqttclient.LoadConfig(f.config)
		if err != nil {
			return nil, "", err
		}
		if opts, err = config.Options(); err != nil {
			return nil, "", err
		}
		if httpURL == "" {
			httpURL = config.HTTP
		}
	}
	changed := cmd.Flags().Changed
	if changed("url") {
		opts = append(opts, mqttclient.URL(f.url))
	}
	if changed("client-id") {
		opts = append(opts, mqttclient.ClientID(f.clientID))
	}
	if changed("keepalive") || f.config == "" {
		opts = append(opts, mqttclient.KeepAlive(f.keepAlive))
	}
	if changed("username") || changed("password") {
		opts = append(opts, mqttclient.Credentials(f.username, f.password))
	}
	return opts, httpURL, nil
}

// run runs fn with a context cancelled on SIGINT or SIGTERM, next to the
// metrics server when httpURL is set. Everything stops once fn returns.
func run(httpURL string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		ignore := make(chan os.Signal, 1)
		sign := make(chan os.Signal, 1)

		signal.Notify(ignore, syscall.SIGHUP) // 终端挂起或者控制进程终止(hang up)
		signal.Notify(sign, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

		select {
		case <-ctx.Done():
			return nil
		case sig := <-sign:
			return fmt.Errorf("got sign: %s", sig)
		}
	})
	if httpURL != "" {
		group.Go(func() error {
			return mqttclient.Httpd(ctx, httpURL)
		})
		group.Go(func() error {
			mqttclient.Metrics().RefreshUptime(ctx)
			return nil
		})
	}
	group.Go(func() error {
		defer cancel()
		return fn(ctx)
	})
	return group.Wait()
}
