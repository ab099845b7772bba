package logger

import (
	"time"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements.
const (
	KeyProtocol = "protocol"
	KeyClient   = "client"  // remote address of the peer
	KeyLogin    = "login"   // login name as sent by the client
	KeyState    = "state"   // authentication session state
	KeyOutcome  = "outcome" // authentication outcome: ok, rejected, error
	KeyVectors  = "vectors"
	KeyElements = "elements"
	KeyActive   = "active" // active connection count
	KeyPort     = "port"
	KeyPath     = "path"
	KeySource   = "source"
	KeyBackend  = "backend"
	KeyRecords  = "records"
	KeyLine     = "line"
	KeyDuration = "duration_ms"
	KeyError    = "error"
)

// Duration returns duration since start time in milliseconds
func Duration(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

