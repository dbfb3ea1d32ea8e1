package core

// MetricsReporter receives notice of every frame a Machine's Tap
// resolves on a tick, so a scenario runner can track delivery and drop
// counts without internal/core importing any concrete metrics package.
// A Machine holds one, defaulting to a no-op, and calls it directly
// from Awake at the point AcceptIncoming succeeds or fails.
type MetricsReporter interface {
	// IncMessagesDelivered reports that a frame was demultiplexed to the
	// named protocol without error.
	IncMessagesDelivered(protocol ProtocolId)
	// IncMessagesDropped reports that a frame could not be delivered,
	// tagged with a short, low-cardinality reason.
	IncMessagesDropped(reason string)
}

type noopMetrics struct{}

func (noopMetrics) IncMessagesDelivered(ProtocolId) {}
func (noopMetrics) IncMessagesDropped(string)       {}
