// Package metrics exports protocol activity to Prometheus. Collector
// implements multivu.Recorder; Handler serves /metrics and /status.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Zereker/multivu"
)

// Config configures a Collector.
type Config struct {
	// Namespace prefixes every metric name. Default: "multivu".
	Namespace string
	// ConstLabels are added to every metric.
	ConstLabels prometheus.Labels
	// Registerer receives the metrics. Default: prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

// Option configures a Collector.
type Option func(*Config)

// NamespaceOption sets the metric namespace.
func NamespaceOption(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// ConstLabelsOption sets constant labels, for example the instrument flavor.
func ConstLabelsOption(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// RegistererOption sets the registry the metrics are registered with.
func RegistererOption(r prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registerer = r
	}
}

// Collector records protocol events as Prometheus metrics.
type Collector struct {
	framesReceived *prometheus.CounterVec
	framesSent     *prometheus.CounterVec
	bytesSent      *prometheus.CounterVec
	sendRetries    *prometheus.CounterVec
	domainErrors   *prometheus.CounterVec
	connected      prometheus.Gauge
	connections    prometheus.Counter
}

var _ multivu.Recorder = (*Collector)(nil)

// New creates a Collector and registers its metrics.
func New(opts ...Option) *Collector {
	cfg := Config{
		Namespace:  "multivu",
		Registerer: prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	factory := promauto.With(cfg.Registerer)
	return &Collector{
		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "frames_received_total",
			Help:        "Frames decoded, by role and action.",
			ConstLabels: cfg.ConstLabels,
		}, []string{"role", "action"}),

		framesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "frames_sent_total",
			Help:        "Frames queued for sending, by role and action.",
			ConstLabels: cfg.ConstLabels,
		}, []string{"role", "action"}),

		bytesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "bytes_sent_total",
			Help:        "Encoded frame bytes queued for sending, by role.",
			ConstLabels: cfg.ConstLabels,
		}, []string{"role"}),

		sendRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "send_retries_total",
			Help:        "Send attempts retried after a socket failure, by role.",
			ConstLabels: cfg.ConstLabels,
		}, []string{"role"}),

		domainErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "command_errors_total",
			Help:        "Commands answered with an instrument error, by action.",
			ConstLabels: cfg.ConstLabels,
		}, []string{"action"}),

		connected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Name:        "client_connected",
			Help:        "1 while a peer is connected.",
			ConstLabels: cfg.ConstLabels,
		}),

		connections: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "connections_total",
			Help:        "Connections established.",
			ConstLabels: cfg.ConstLabels,
		}),
	}
}

func (c *Collector) FrameReceived(role multivu.Role, action string) {
	c.framesReceived.WithLabelValues(role.String(), actionLabel(action)).Inc()
}

func (c *Collector) FrameSent(role multivu.Role, action string, bytes int) {
	c.framesSent.WithLabelValues(role.String(), actionLabel(action)).Inc()
	c.bytesSent.WithLabelValues(role.String()).Add(float64(bytes))
}

func (c *Collector) SendRetry(role multivu.Role) {
	c.sendRetries.WithLabelValues(role.String()).Inc()
}

func (c *Collector) DomainError(action string) {
	c.domainErrors.WithLabelValues(actionLabel(action)).Inc()
}

func (c *Collector) ConnectionChanged(connected bool) {
	if connected {
		c.connected.Set(1)
		c.connections.Inc()
		return
	}
	c.connected.Set(0)
}

var knownActions = map[string]bool{
	multivu.ActionStart: true,
	multivu.ActionClose: true,
	multivu.ActionExit:  true,
	"TEMP":              true,
	"FIELD":             true,
	"CHAMBER":           true,
	"SDO":               true,
	"AUXTEMP":           true,
}

// actionLabel bounds label cardinality: client-chosen actions outside the
// known set are counted as "other".
func actionLabel(action string) string {
	a := strings.ToUpper(action)
	if knownActions[strings.TrimSuffix(a, "?")] {
		return a
	}
	return "other"
}
