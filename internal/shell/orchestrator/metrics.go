package orchestrator

import (
	"time"

	"github.com/artpar/stackup/internal/core/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for service lifecycle operations.
// A nil *Metrics records nothing.
type Metrics struct {
	starts        *prometheus.CounterVec   // By service and result (started/failed)
	startDuration *prometheus.HistogramVec // By service, launch through readiness
	stops         *prometheus.CounterVec   // By service and result (stopped/failed)
	probes        *prometheus.CounterVec   // By service and result (ok/fail)
	probeDuration *prometheus.HistogramVec // By service
	running       prometheus.Gauge         // Services currently started by this process
}

// NewMetrics creates lifecycle metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		starts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stackup",
			Subsystem: "service",
			Name:      "starts_total",
			Help:      "Total number of service start attempts",
		}, []string{"service", "result"}),

		startDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stackup",
			Subsystem: "service",
			Name:      "start_duration_seconds",
			Help:      "Time from launch until the service is ready",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"service"}),

		stops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stackup",
			Subsystem: "service",
			Name:      "stops_total",
			Help:      "Total number of service stop attempts",
		}, []string{"service", "result"}),

		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stackup",
			Subsystem: "health",
			Name:      "probes_total",
			Help:      "Total number of health probes run",
		}, []string{"service", "result"}),

		probeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stackup",
			Subsystem: "health",
			Name:      "probe_duration_seconds",
			Help:      "Health probe duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"service"}),

		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stackup",
			Subsystem: "service",
			Name:      "running",
			Help:      "Number of services currently started by this process",
		}),
	}

	for _, c := range []prometheus.Collector{m.starts, m.startDuration, m.stops, m.probes, m.probeDuration, m.running} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) recordStart(service string, ok bool, took time.Duration) {
	if m == nil {
		return
	}
	if !ok {
		m.starts.WithLabelValues(service, "failed").Inc()
		return
	}
	m.starts.WithLabelValues(service, "started").Inc()
	m.startDuration.WithLabelValues(service).Observe(took.Seconds())
}

// recordRunning moves the running gauge when a session launches or stops
// one of its containers.
func (m *Metrics) recordRunning(delta float64) {
	if m == nil {
		return
	}
	m.running.Add(delta)
}

func (m *Metrics) recordStop(service string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.stops.WithLabelValues(service, "failed").Inc()
		return
	}
	m.stops.WithLabelValues(service, "stopped").Inc()
}

func (m *Metrics) recordProbe(service string, res domain.ProbeResult) {
	if m == nil {
		return
	}
	result := "fail"
	if res.OK {
		result = "ok"
	}
	m.probes.WithLabelValues(service, result).Inc()
	m.probeDuration.WithLabelValues(service).Observe(res.Duration.Seconds())
}
