package metrics

import "time"

// Authentication outcomes recorded by RecordAuthentication.
const (
	AuthOutcomeOK       = "ok"
	AuthOutcomeRejected = "rejected"
	AuthOutcomeError    = "error"
)

// VCalcMetrics provides observability for the vcalc adapter.
//
// This interface is optional - if not provided to the adapter, a no-op
// implementation is used with zero overhead.
type VCalcMetrics interface {
	// RecordConnectionAccepted increments the total accepted connections counter.
	RecordConnectionAccepted()

	// RecordConnectionClosed increments the total closed connections counter.
	RecordConnectionClosed()

	// RecordConnectionForceClosed counts connections closed by shutdown timeout.
	RecordConnectionForceClosed()

	// SetActiveConnections updates the current connection count.
	SetActiveConnections(count int32)

	// RecordAuthentication counts one finished handshake by outcome.
	// Unknown logins and wrong secrets are both AuthOutcomeRejected.
	RecordAuthentication(outcome string, duration time.Duration)

	// RecordBatch records one vector batch: the vectors answered, the elements
	// consumed, how long it took and whether it failed.
	RecordBatch(vectors uint32, elements uint64, duration time.Duration, err error)
}

// NewNoopVCalcMetrics returns a VCalcMetrics that records nothing.
func NewNoopVCalcMetrics() VCalcMetrics {
	return noopVCalcMetrics{}
}

type noopVCalcMetrics struct{}

func (noopVCalcMetrics) RecordConnectionAccepted()                        {}
func (noopVCalcMetrics) RecordConnectionClosed()                          {}
func (noopVCalcMetrics) RecordConnectionForceClosed()                     {}
func (noopVCalcMetrics) SetActiveConnections(int32)                       {}
func (noopVCalcMetrics) RecordAuthentication(string, time.Duration)       {}
func (noopVCalcMetrics) RecordBatch(uint32, uint64, time.Duration, error) {}
