package api

// MetricsCollector records the activity of incoming channels.
type MetricsCollector interface {
	RecordSubscribe(queue string, success bool)
	RecordRecovery(queue string, success bool)
	RecordCancel(queue string)
	RecordTeardownFailure(queue string)
	RecordDelivery(queue string)
	RecordDropped(queue string)
	RecordAck(queue string, success bool)
	SetConsuming(queue string, consuming bool)
}
