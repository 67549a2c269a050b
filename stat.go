package mqttclient

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/golang-io/requests"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Stat struct {
	Uptime             prometheus.Counter
	ActiveConnections  prometheus.Gauge
	InFlight           prometheus.Gauge
	PacketReceived     prometheus.Counter
	ByteReceived       prometheus.Counter
	PacketSent         prometheus.Counter
	ByteSent           prometheus.Counter
	ProtocolViolations prometheus.Counter
	KeepAliveTimeouts  prometheus.Counter
	ConnectionsLost    prometheus.Counter

	once sync.Once
}

var (
	stat = &Stat{
		Uptime:             prometheus.NewCounter(prometheus.CounterOpts{Name: "mqtt_client_uptime_seconds", Help: "The uptime in seconds"}),
		ActiveConnections:  prometheus.NewGauge(prometheus.GaugeOpts{Name: "mqtt_client_active_connections", Help: "The number of connections in the connected state"}),
		InFlight:           prometheus.NewGauge(prometheus.GaugeOpts{Name: "mqtt_client_inflight_packets", Help: "The number of packet identifiers awaiting an acknowledgement"}),
		PacketReceived:     prometheus.NewCounter(prometheus.CounterOpts{Name: "mqtt_client_received_packets", Help: "The total number of received MQTT packets"}),
		ByteReceived:       prometheus.NewCounter(prometheus.CounterOpts{Name: "mqtt_client_received_bytes", Help: "The total number of received MQTT bytes"}),
		PacketSent:         prometheus.NewCounter(prometheus.CounterOpts{Name: "mqtt_client_send_packets", Help: "The total number of send MQTT packets"}),
		ByteSent:           prometheus.NewCounter(prometheus.CounterOpts{Name: "mqtt_client_send_bytes", Help: "The total number of send MQTT bytes"}),
		ProtocolViolations: prometheus.NewCounter(prometheus.CounterOpts{Name: "mqtt_client_protocol_violations", Help: "The total number of unmatched acknowledgements"}),
		KeepAliveTimeouts:  prometheus.NewCounter(prometheus.CounterOpts{Name: "mqtt_client_keepalive_timeouts", Help: "The total number of unanswered PINGREQ"}),
		ConnectionsLost:    prometheus.NewCounter(prometheus.CounterOpts{Name: "mqtt_client_connections_lost", Help: "The total number of connections lost without DISCONNECT"}),
	}
)

// Metrics returns the process wide client metrics.
func Metrics() *Stat {
	return stat
}

func ServerLog(ctx context.Context, stat *requests.Stat) {
	b, err := json.Marshal(stat.Request.Body)
	log.Printf("%s # body=%s, resp=%v, err=%v", stat.Print(), b, stat.Response.Body, err)
}

// Httpd serves /metrics and pprof on url until ctx is done.
func Httpd(ctx context.Context, url string) error {
	stat.Register()
	mux := requests.NewServeMux(requests.URL(url), requests.Logf(ServerLog))
	mux.Route("/metrics", promhttp.Handler())
	mux.Pprof()
	s := requests.NewServer(ctx, mux, requests.OnStart(func(s *http.Server) {
		log.Printf("http serve: %s", s.Addr)
	}))
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Stat) RefreshUptime(ctx context.Context) {
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			s.Uptime.Inc()
		}
	}
}

// Register adds the metrics to the default prometheus registry. Only the first call has effect.
func (s *Stat) Register() {
	s.once.Do(func() {
		prometheus.MustRegister(
			s.Uptime,
			s.ActiveConnections,
			s.InFlight,
			s.PacketReceived,
			s.ByteReceived,
			s.PacketSent,
			s.ByteSent,
			s.ProtocolViolations,
			s.KeepAliveTimeouts,
			s.ConnectionsLost,
		)
	})
}
