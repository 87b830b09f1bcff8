// Package metrics exports request, operation and connection metrics to
// Prometheus. Values are fed from eventbus events.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	eventbus "github.com/hanpama/graphserve/internal/eventbus"
	events "github.com/hanpama/graphserve/internal/events"
)

const namespace = "graphserve"

const (
	LabelMethod        = "method"
	LabelCode          = "code"
	LabelOperationType = "operation_type"
	LabelTransport     = "transport"
	LabelOutcome       = "outcome"
)

// Collector holds the metric vectors. It is safe for concurrent use.
type Collector struct {
	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	batchSize         prometheus.Histogram
	wsConnections     prometheus.Gauge
}

// NewCollector registers the graphserve metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "number of HTTP requests by method and status code",
		}, []string{LabelMethod, LabelCode}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "latency of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{LabelMethod}),
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graphql",
			Name:      "operations_total",
			Help:      "number of executed operations by type, transport and outcome",
		}, []string{LabelOperationType, LabelTransport, LabelOutcome}),
		operationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "graphql",
			Name:      "operation_duration_seconds",
			Help:      "execution time of operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{LabelOperationType}),
		batchSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "graphql",
			Name:      "batch_size",
			Help:      "number of operations per batched request",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100},
		}),
		wsConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "active_connections",
			Help:      "number of open WebSocket connections",
		}),
	}
}

// Subscribe feeds c from the global event bus.
func (c *Collector) Subscribe() (unsubscribe func()) {
	unsubs := []func(){
		eventbus.Subscribe(func(_ context.Context, e events.HTTPFinish) {
			c.requests.WithLabelValues(e.Request.Method, strconv.Itoa(e.Status)).Inc()
			c.requestDuration.WithLabelValues(e.Request.Method).Observe(e.Duration.Seconds())
		}),
		eventbus.Subscribe(func(_ context.Context, e events.GraphQLBatch) {
			c.batchSize.Observe(float64(e.Size))
		}),
		eventbus.Subscribe(func(_ context.Context, e events.GraphQLFinish) {
			outcome := "ok"
			if len(e.Errors) > 0 {
				outcome = "error"
			}
			c.operations.WithLabelValues(e.OperationType, string(e.Transport), outcome).Inc()
			c.operationDuration.WithLabelValues(e.OperationType).Observe(e.Duration.Seconds())
		}),
		eventbus.Subscribe(func(context.Context, events.WSConnect) { c.wsConnections.Inc() }),
		eventbus.Subscribe(func(context.Context, events.WSDisconnect) { c.wsConnections.Dec() }),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
