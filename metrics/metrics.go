// Package metrics defines the gateway's Prometheus collectors. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"errors"
	"time"

	"github.com/ggoodman/kritor-gateway/bot"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "kritor"

// Handler outcome labels.
const (
	StatusOK    = "ok"
	StatusError = "error"
	StatusPanic = "panic"
)

// Metrics holds the gateway's counters and histograms.
type Metrics struct {
	EventsReceived     *prometheus.CounterVec   // by category
	HandlerRuns        *prometheus.CounterVec   // by service, category and status
	HandlerDuration    *prometheus.HistogramVec // by service
	TransactionsRouted *prometheus.CounterVec   // by service
	Connections        *prometheus.CounterVec   // by stream and result
	ActiveStreams      *prometheus.GaugeVec     // by stream
}

// New creates the collectors without registering them.
func New() *Metrics {
	return &Metrics{
		EventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "received_total",
			Help:      "Total number of events received from cores",
		}, []string{"category"}),

		HandlerRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "handler_runs_total",
			Help:      "Total number of handler invocations",
		}, []string{"service", "category", "status"}), // status: ok, error, panic

		HandlerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "handler_duration_seconds",
			Help:      "Handler invocation duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"service"}),

		TransactionsRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "transactions_routed_total",
			Help:      "Total number of messages routed to a transaction owner",
		}, []string{"service"}),

		Connections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "connections_total",
			Help:      "Total number of core stream connections",
		}, []string{"stream", "result"}), // result: accepted, rejected

		ActiveStreams: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "active_streams",
			Help:      "Current number of open core streams",
		}, []string{"stream"}),
	}
}

// Register registers every collector with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, c := range []prometheus.Collector{
		m.EventsReceived, m.HandlerRuns, m.HandlerDuration,
		m.TransactionsRouted, m.Connections, m.ActiveStreams,
	} {
		errs = append(errs, reg.Register(c))
	}
	return errors.Join(errs...)
}

func (m *Metrics) EventReceived(category string) {
	if m == nil {
		return
	}
	m.EventsReceived.WithLabelValues(category).Inc()
}

func (m *Metrics) HandlerRun(service, category, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HandlerRuns.WithLabelValues(service, category, status).Inc()
	m.HandlerDuration.WithLabelValues(service).Observe(d.Seconds())
}

func (m *Metrics) TransactionRouted(service string) {
	if m == nil {
		return
	}
	m.TransactionsRouted.WithLabelValues(service).Inc()
}

func (m *Metrics) Connection(stream, result string) {
	if m == nil {
		return
	}
	m.Connections.WithLabelValues(stream, result).Inc()
}

// StreamOpened increments the open stream gauge and returns the matching
// decrement.
func (m *Metrics) StreamOpened(stream string) (closed func()) {
	if m == nil {
		return func() {}
	}
	g := m.ActiveStreams.WithLabelValues(stream)
	g.Inc()
	return g.Dec
}

// SessionCollector exports per-session counters read from a bot.Registry
// at scrape time.
type SessionCollector struct {
	registry *bot.Registry

	sessions     *prometheus.Desc
	sent         *prometheus.Desc
	received     *prometheus.Desc
	pending      *prometheus.Desc
	dropped      *prometheus.Desc
	transactions *prometheus.Desc
	uptime       *prometheus.Desc
}

func NewSessionCollector(registry *bot.Registry) *SessionCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "session", name), help, []string{"account"}, nil)
	}
	return &SessionCollector{
		registry:     registry,
		sessions:     prometheus.NewDesc(prometheus.BuildFQName(namespace, "session", "live"), "Number of live sessions", nil, nil),
		sent:         desc("commands_sent_total", "Commands pushed to the core"),
		received:     desc("events_received_total", "Events received from the core"),
		pending:      desc("commands_pending", "Commands awaiting a response"),
		dropped:      desc("events_dropped_total", "Event deliveries dropped because a subscriber lagged"),
		transactions: desc("transactions", "Active conversation transactions"),
		uptime:       desc("uptime_seconds", "Seconds since the core connected"),
	}
}

func (c *SessionCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sessions
	ch <- c.sent
	ch <- c.received
	ch <- c.pending
	ch <- c.dropped
	ch <- c.transactions
	ch <- c.uptime
}

func (c *SessionCollector) Collect(ch chan<- prometheus.Metric) {
	bots := c.registry.List()
	ch <- prometheus.MustNewConstMetric(c.sessions, prometheus.GaugeValue, float64(len(bots)))
	for _, b := range bots {
		info := b.Info()
		id := info.AccountID
		ch <- prometheus.MustNewConstMetric(c.sent, prometheus.CounterValue, float64(info.Sent), id)
		ch <- prometheus.MustNewConstMetric(c.received, prometheus.CounterValue, float64(info.Received), id)
		ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(info.Pending), id)
		ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(info.Dropped), id)
		ch <- prometheus.MustNewConstMetric(c.transactions, prometheus.GaugeValue, float64(info.Transactions), id)
		ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, info.Uptime.Seconds(), id)
	}
}

var _ prometheus.Collector = (*SessionCollector)(nil)
