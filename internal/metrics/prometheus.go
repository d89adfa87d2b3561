package metrics

import (
	"sync"

	"github.com/case-management-suite/consumer/api"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements api.MetricsCollector backed by Prometheus.
// Collectors are registered lazily on first use.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	subscribes       *prometheus.CounterVec
	recoveries       *prometheus.CounterVec
	cancels          *prometheus.CounterVec
	teardownFailures *prometheus.CounterVec
	deliveries       *prometheus.CounterVec
	dropped          *prometheus.CounterVec
	acks             *prometheus.CounterVec
	consuming        *prometheus.GaugeVec
}

var _ api.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a collector registering on reg, or on
// prometheus.DefaultRegisterer when reg is nil. The namespace defaults to
// "consumer".
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "consumer"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.subscribes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "channel",
			Name:      "subscribes_total",
			Help:      "Subscribe attempts by queue and result.",
		}, []string{"queue", "result"})
		p.recoveries = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "channel",
			Name:      "recoveries_total",
			Help:      "Subscription recoveries after reconnect by queue and result.",
		}, []string{"queue", "result"})
		p.cancels = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "channel",
			Name:      "cancels_total",
			Help:      "Subscriptions torn down by queue.",
		}, []string{"queue"})
		p.teardownFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "channel",
			Name:      "teardown_failures_total",
			Help:      "Broker side cancel failures swallowed during teardown.",
		}, []string{"queue"})
		p.deliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "delivery",
			Name:      "dispatched_total",
			Help:      "Messages handed to the registered handler.",
		}, []string{"queue"})
		p.dropped = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "delivery",
			Name:      "dropped_total",
			Help:      "Messages discarded because no handler was registered.",
		}, []string{"queue"})
		p.acks = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "delivery",
			Name:      "acks_total",
			Help:      "Cumulative acknowledgments by queue and result.",
		}, []string{"queue", "result"})
		p.consuming = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "channel",
			Name:      "consuming",
			Help:      "1 while the channel holds an active subscription.",
		}, []string{"queue"})

		p.reg.MustRegister(
			p.subscribes,
			p.recoveries,
			p.cancels,
			p.teardownFailures,
			p.deliveries,
			p.dropped,
			p.acks,
			p.consuming,
		)
	})
}

func result(success bool) string {
	if success {
		return "success"
	}

	return "failure"
}

func (p *PrometheusCollector) RecordSubscribe(queue string, success bool) {
	p.ensureRegistered()
	p.subscribes.WithLabelValues(queue, result(success)).Inc()
}

func (p *PrometheusCollector) RecordRecovery(queue string, success bool) {
	p.ensureRegistered()
	p.recoveries.WithLabelValues(queue, result(success)).Inc()
}

func (p *PrometheusCollector) RecordCancel(queue string) {
	p.ensureRegistered()
	p.cancels.WithLabelValues(queue).Inc()
}

func (p *PrometheusCollector) RecordTeardownFailure(queue string) {
	p.ensureRegistered()
	p.teardownFailures.WithLabelValues(queue).Inc()
}

func (p *PrometheusCollector) RecordDelivery(queue string) {
	p.ensureRegistered()
	p.deliveries.WithLabelValues(queue).Inc()
}

func (p *PrometheusCollector) RecordDropped(queue string) {
	p.ensureRegistered()
	p.dropped.WithLabelValues(queue).Inc()
}

func (p *PrometheusCollector) RecordAck(queue string, success bool) {
	p.ensureRegistered()
	p.acks.WithLabelValues(queue, result(success)).Inc()
}

func (p *PrometheusCollector) SetConsuming(queue string, consuming bool) {
	p.ensureRegistered()
	v := 0.0
	if consuming {
		v = 1
	}
	p.consuming.WithLabelValues(queue).Set(v)
}
