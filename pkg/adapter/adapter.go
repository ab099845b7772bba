package adapter

import (
	"context"

	"github.com/marmos91/vcalc/pkg/credentials"
)

// Adapter represents a protocol-specific listener managed by server.Server.
//
// Lifecycle:
//  1. Creation: Adapter is created with protocol-specific configuration
//  2. Store injection: SetStore() provides the shared credential store
//  3. Startup: Serve() starts the listener and blocks until shutdown
//  4. Shutdown: Stop() initiates graceful shutdown with timeout
//
// Thread safety:
// Implementations must be safe for concurrent use. SetStore() is called
// once before Serve(), but Stop() may be called concurrently with Serve().
type Adapter interface {
	// Serve starts the listener and blocks until the context is cancelled
	// or an unrecoverable error occurs.
	//
	// When the context is cancelled, Serve must initiate graceful shutdown:
	//   - Stop accepting new connections
	//   - Wait for active sessions to complete (with timeout)
	//   - Force-close whatever remains
	//
	// If Serve returns before context cancellation, the server treats it as
	// a fatal error and stops all other adapters.
	Serve(ctx context.Context) error

	// SetStore injects the credential store. Called exactly once before Serve().
	SetStore(store credentials.Store)

	// Stop initiates graceful shutdown. It must be idempotent, safe to call
	// concurrently with Serve(), and respect the context deadline.
	Stop(ctx context.Context) error

	// Protocol returns the human-readable protocol name for logging and metrics.
	Protocol() string

	// Port returns the TCP port the adapter listens on. Before Serve() binds,
	// it returns the configured port.
	Port() int
}
