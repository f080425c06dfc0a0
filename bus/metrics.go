package bus

import "time"

// Reasons an inbound message is discarded.
const (
	DiscardUndecodable     = "undecodable"
	DiscardChannelMismatch = "channel_mismatch"
	DiscardUnknownKind     = "unknown_kind"
)

// Metrics receives protocol events from a bus. See the metrics package for a
// Prometheus implementation.
type Metrics interface {
	EnvelopeSent(kind Kind)
	EnvelopeReceived(kind Kind)
	EnvelopeDiscarded(reason string)
	UnmatchedResponse()
	UnimplementedCommand()
	CallStarted(command string)
	CallFinished(command string, d time.Duration)
}

// NopMetrics discards all events.
type NopMetrics struct{}

func (NopMetrics) EnvelopeSent(Kind) {}
func (NopMetrics) EnvelopeReceived(Kind) {}
func (NopMetrics) EnvelopeDiscarded(string) {}
func (NopMetrics) UnmatchedResponse() {}
func (NopMetrics) UnimplementedCommand() {}
func (NopMetrics) CallStarted(string) {}
func (NopMetrics) CallFinished(string, time.Duration) {}
