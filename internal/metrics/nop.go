package metrics

import "github.com/case-management-suite/consumer/api"

// NopMetrics discards all metrics.
type NopMetrics struct{}

var _ api.MetricsCollector = (*NopMetrics)(nil)

func NewNop() *NopMetrics {
	return &NopMetrics{}
}

func (n *NopMetrics) RecordSubscribe(_ /* queue */ string, _ /* success */ bool) {}

func (n *NopMetrics) RecordRecovery(_ /* queue */ string, _ /* success */ bool) {}

func (n *NopMetrics) RecordCancel(_ /* queue */ string) {}

func (n *NopMetrics) RecordTeardownFailure(_ /* queue */ string) {}

func (n *NopMetrics) RecordDelivery(_ /* queue */ string) {}

func (n *NopMetrics) RecordDropped(_ /* queue */ string) {}

func (n *NopMetrics) RecordAck(_ /* queue */ string, _ /* success */ bool) {}

func (n *NopMetrics) SetConsuming(_ /* queue */ string, _ /* consuming */ bool) {}
