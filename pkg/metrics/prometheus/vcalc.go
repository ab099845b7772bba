package prometheus

import (
	"time"

	"github.com/marmos91/vcalc/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// vcalcMetrics is the Prometheus implementation of metrics.VCalcMetrics.
type vcalcMetrics struct {
	activeConnections      prometheus.Gauge
	connectionsAccepted    prometheus.Counter
	connectionsClosed      prometheus.Counter
	connectionsForceClosed prometheus.Counter
	authTotal              *prometheus.CounterVec
	authDuration           prometheus.Histogram
	batchesTotal           *prometheus.CounterVec
	batchDuration          prometheus.Histogram
	vectorsTotal           prometheus.Counter
	elementsTotal          prometheus.Counter
}

// NewVCalcMetrics creates a new Prometheus-backed VCalcMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewVCalcMetrics() metrics.VCalcMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopVCalcMetrics()
	}
	return newVCalcMetrics(metrics.GetRegistry())
}

func newVCalcMetrics(reg prometheus.Registerer) *vcalcMetrics {
	factory := promauto.With(reg)

	return &vcalcMetrics{
		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vcalc_active_connections",
			Help: "Current number of open client connections",
		}),
		connectionsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "vcalc_connections_accepted_total",
			Help: "Total number of client connections accepted",
		}),
		connectionsClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "vcalc_connections_closed_total",
			Help: "Total number of client connections closed",
		}),
		connectionsForceClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "vcalc_connections_force_closed_total",
			Help: "Total number of connections force-closed during shutdown timeout",
		}),
		authTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vcalc_authentications_total",
			Help: "Completed authentication handshakes by outcome",
		}, []string{"outcome"}),
		authDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vcalc_authentication_duration_milliseconds",
			Help:    "Duration of authentication handshakes in milliseconds",
			Buckets: []float64{1, 10, 100, 1000, 10000},
		}),
		batchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vcalc_batches_total",
			Help: "Vector batches served by status",
		}, []string{"status"}),
		batchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vcalc_batch_duration_milliseconds",
			Help:    "Duration of vector batches in milliseconds",
			Buckets: []float64{1, 10, 100, 1000, 10000, 60000},
		}),
		vectorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "vcalc_vectors_total",
			Help: "Total vectors answered",
		}),
		elementsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "vcalc_elements_total",
			Help: "Total vector elements consumed",
		}),
	}
}

func (m *vcalcMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *vcalcMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

func (m *vcalcMetrics) RecordConnectionForceClosed() {
	m.connectionsForceClosed.Inc()
}

func (m *vcalcMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *vcalcMetrics) RecordAuthentication(outcome string, duration time.Duration) {
	m.authTotal.WithLabelValues(outcome).Inc()
	m.authDuration.Observe(float64(duration.Microseconds()) / 1000)
}

func (m *vcalcMetrics) RecordBatch(vectors uint32, elements uint64, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.batchesTotal.WithLabelValues(status).Inc()
	m.batchDuration.Observe(float64(duration.Microseconds()) / 1000)
	m.vectorsTotal.Add(float64(vectors))
	m.elementsTotal.Add(float64(elements))
}
