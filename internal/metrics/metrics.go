// Package metrics provides Prometheus metrics for scans, notifications,
// triggers, check-ins and access validation.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lcrostarosa/legacyvault/internal/deadman"
)

const namespace = "legacyvault"

// Metrics implements deadman.Observer on its own registry.
type Metrics struct {
	scansTotal       prometheus.Counter
	scanDuration     prometheus.Histogram
	scanSwitches     *prometheus.CounterVec // by action
	scanErrors       prometheus.Counter
	lastScanTime     prometheus.Gauge
	notifications    *prometheus.CounterVec // by kind, status
	triggersTotal    prometheus.Counter
	checkInsTotal    prometheus.Counter
	accessValidation *prometheus.CounterVec // by outcome

	registry *prometheus.Registry
}

var _ deadman.Observer = (*Metrics)(nil)

// New creates the metrics and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() (*Metrics, error) {
	return NewWithRegistry(prometheus.NewRegistry(), true)
}

// NewWithRegistry registers on registry. runtime adds the Go and process
// collectors.
func NewWithRegistry(registry *prometheus.Registry, runtime bool) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	if runtime {
		if err := registry.Register(collectors.NewGoCollector()); err != nil {
			return nil, fmt.Errorf("failed to register go collector: %w", err)
		}
		if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
			return nil, fmt.Errorf("failed to register process collector: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.scansTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scans_total",
		Help:      "Total number of completed inactivity scans",
	})
	m.scanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scan_duration_seconds",
		Help:      "Wall time of a full inactivity scan",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
	})
	m.scanSwitches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scan_switches_total",
		Help:      "Switches processed by scans, by resulting action",
	}, []string{"action"})
	m.scanErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scan_switch_errors_total",
		Help:      "Per-switch errors recorded by scans",
	})
	m.lastScanTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_scan_timestamp_seconds",
		Help:      "Unix time at which the last scan finished",
	})
	m.notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Recorded notification attempts by kind and status",
	}, []string{"kind", "status"})
	m.triggersTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "switch_triggers_total",
		Help:      "Switches transitioned into the triggered state",
	})
	m.checkInsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "check_ins_total",
		Help:      "Successful owner check-ins",
	})
	m.accessValidation = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "access_validations_total",
		Help:      "Access token validations by outcome",
	}, []string{"outcome"})
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.scansTotal.Describe(ch)
	m.scanDuration.Describe(ch)
	m.scanSwitches.Describe(ch)
	m.scanErrors.Describe(ch)
	m.lastScanTime.Describe(ch)
	m.notifications.Describe(ch)
	m.triggersTotal.Describe(ch)
	m.checkInsTotal.Describe(ch)
	m.accessValidation.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.scansTotal.Collect(ch)
	m.scanDuration.Collect(ch)
	m.scanSwitches.Collect(ch)
	m.scanErrors.Collect(ch)
	m.lastScanTime.Collect(ch)
	m.notifications.Collect(ch)
	m.triggersTotal.Collect(ch)
	m.checkInsTotal.Collect(ch)
	m.accessValidation.Collect(ch)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ScanCompleted(report *deadman.ScanReport, elapsed time.Duration) {
	m.scansTotal.Inc()
	m.scanDuration.Observe(elapsed.Seconds())
	for _, r := range report.Results {
		m.scanSwitches.WithLabelValues(string(r.Action)).Inc()
	}
	m.scanErrors.Add(float64(len(report.Errors)))
	m.lastScanTime.Set(float64(report.FinishedAt.Unix()))
}

func (m *Metrics) NotificationRecorded(kind deadman.NotificationKind, status deadman.NotificationStatus) {
	m.notifications.WithLabelValues(string(kind), string(status)).Inc()
}

func (m *Metrics) SwitchTriggered() {
	m.triggersTotal.Inc()
}

func (m *Metrics) CheckedIn() {
	m.checkInsTotal.Inc()
}

func (m *Metrics) AccessValidated(outcome string) {
	m.accessValidation.WithLabelValues(outcome).Inc()
}
