// Package server runs protocol adapters against a shared credential store.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/vcalc/internal/logger"
	"github.com/marmos91/vcalc/pkg/adapter"
	"github.com/marmos91/vcalc/pkg/credentials"
)

// DefaultStopTimeout bounds the Stop calls issued during shutdown.
const DefaultStopTimeout = 30 * time.Second

// Server manages the lifecycle of protocol adapters that share one
// credential store.
//
// Lifecycle:
//  1. Creation: New() with the loaded credential store
//  2. Registration: AddAdapter() for each listener
//  3. Startup: Serve() starts all adapters concurrently
//  4. Shutdown: context cancellation stops all adapters
//
// The server does not own the store; the caller closes it after Serve returns.
type Server struct {
	store credentials.Store
	log   *logger.Logger

	stopTimeout time.Duration

	// mu protects adapters and served
	mu       sync.Mutex
	adapters []adapter.Adapter
	served   bool
}

// Option customizes a Server.
type Option func(*Server)

// WithStopTimeout overrides DefaultStopTimeout.
func WithStopTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.stopTimeout = d
		}
	}
}

// New creates a Server serving the given store.
//
// Panics if store is nil (indicates programmer error).
func New(store credentials.Store, log *logger.Logger, opts ...Option) *Server {
	if store == nil {
		panic("credential store cannot be nil")
	}

	s := &Server{
		store:       store,
		log:         log,
		stopTimeout: DefaultStopTimeout,
		adapters:    make([]adapter.Adapter, 0, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddAdapter injects the store into a and registers it. Adapters must differ
// in protocol and port.
//
// Panics if a is nil or Serve() has already been called.
func (s *Server) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		panic("cannot add adapter after Serve() has been called")
	}

	protocol := a.Protocol()
	port := a.Port()

	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if port != 0 && existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter", port, existing.Protocol())
		}
	}

	a.SetStore(s.store)
	s.adapters = append(s.adapters, a)

	s.log.Info("Registered adapter", logger.KeyProtocol, protocol, logger.KeyPort, port)
	return nil
}

// Serve starts all registered adapters and blocks until ctx is cancelled or
// an adapter fails.
//
// Returns ctx.Err() after a shutdown triggered by cancellation, or the
// failing adapter's error. In both cases every adapter has been stopped and
// its Serve has returned.
//
// Serve must be called at most once.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return errors.New("server: Serve() has already been called")
	}
	s.served = true

	if len(s.adapters) == 0 {
		s.mu.Unlock()
		return errors.New("no adapters registered; call AddAdapter() before Serve()")
	}
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	s.mu.Unlock()

	s.log.Info("Starting server", "adapters", len(adapters), logger.KeyRecords, s.store.Len())

	// Buffered so failing adapters never block
	errChan := make(chan adapterError, len(adapters))

	var wg sync.WaitGroup
	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			protocol := a.Protocol()
			err := a.Serve(ctx)

			switch {
			case err == nil:
				s.log.Info("Adapter stopped", logger.KeyProtocol, protocol)
			case ctx.Err() != nil:
				s.log.Warn("Adapter shutdown incomplete", logger.KeyProtocol, protocol, logger.KeyError, err)
			default:
				s.log.Error("Adapter failed", logger.KeyProtocol, protocol, logger.KeyError, err)
				errChan <- adapterError{protocol: protocol, err: err}
			}
		}(adp)
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		s.log.Info("Shutdown signal received", "reason", ctx.Err())
		s.stopAllAdapters(adapters)
		shutdownErr = ctx.Err()

	case adapterErr := <-errChan:
		s.log.Error("Adapter failed, stopping all adapters", logger.KeyProtocol, adapterErr.protocol)
		s.stopAllAdapters(adapters)
		shutdownErr = fmt.Errorf("%s adapter error: %w", adapterErr.protocol, adapterErr.err)
	}

	s.log.Debug("Waiting for all adapters to complete shutdown")
	wg.Wait()

	s.log.Info("Server stopped")
	return shutdownErr
}

type adapterError struct {
	protocol string
	err      error
}

// stopAllAdapters stops adapters in reverse registration order. Each Stop
// shares one stopTimeout budget.
func (s *Server) stopAllAdapters(adapters []adapter.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
	defer cancel()

	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]
		protocol := adp.Protocol()

		if err := adp.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error("Error stopping adapter", logger.KeyProtocol, protocol, logger.KeyError, err)
		} else {
			s.log.Debug("Adapter stopped", logger.KeyProtocol, protocol, logger.KeyPort, adp.Port())
		}
	}
}

// Adapters returns a snapshot of the registered adapters.
func (s *Server) Adapters() []adapter.Adapter {
	s.mu.Lock()
	defer s.mu.Unlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}
