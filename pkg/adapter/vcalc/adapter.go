// Package vcalc implements the vcalc TCP adapter: it accepts connections,
// authenticates each client with the salted challenge-response handshake and
// then serves one vector batch before closing the connection.
package vcalc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/vcalc/internal/logger"
	"github.com/marmos91/vcalc/internal/protocol/auth"
	"github.com/marmos91/vcalc/internal/protocol/vector"
	"github.com/marmos91/vcalc/pkg/credentials"
	"github.com/marmos91/vcalc/pkg/metrics"
)

// DefaultPort is the listening port used when none is configured.
const DefaultPort = 33333

// Adapter accepts vcalc connections and serves each on its own goroutine.
//
// Every handler goroutine is tracked. On shutdown the listener is closed,
// in-flight sessions get ShutdownTimeout to finish and any that remain are
// force-closed, so Serve never returns while handlers still own sockets
// unless the timeout was exceeded.
type Adapter struct {
	config Config

	listenerMu sync.Mutex
	listener   net.Listener
	boundPort  atomic.Int32

	store   credentials.Store
	engine  *auth.HashEngine
	vectors *vector.Handler
	metrics metrics.VCalcMetrics
	log     *logger.Logger

	// activeConns tracks handler goroutines for graceful shutdown.
	activeConns sync.WaitGroup

	// activeConnections maps remote address to net.Conn for forced closure.
	activeConnections sync.Map

	connCount atomic.Int32

	// connSemaphore bounds concurrent connections. Nil means unlimited.
	connSemaphore chan struct{}

	shutdownOnce sync.Once
	shutdown     chan struct{}

	// shutdownCtx is cancelled only once ShutdownTimeout has expired, so
	// batches already running are served in full during the grace period.
	shutdownCtx    context.Context
	cancelRequests context.CancelFunc

	started atomic.Bool
	ready   chan struct{}
	done    chan struct{}
}

// Config configures the vcalc adapter.
//
// Zero values for MaxConnections, ReadTimeout, WriteTimeout, MaxVectors and
// MaxVectorLength mean unlimited. Operators exposed to untrusted networks
// should set them; without limits a slow or hostile client can hold a
// connection and its goroutine indefinitely.
type Config struct {
	// Port is the TCP port to listen on. Zero asks the OS for a free port.
	Port int `mapstructure:"port" validate:"min=1,max=65535" yaml:"port"`

	// MaxConnections limits concurrently served connections.
	MaxConnections int `mapstructure:"max_connections" validate:"min=0" yaml:"max_connections"`

	// ReadTimeout bounds each read from a client, including the wait for
	// the login and the hash.
	ReadTimeout time.Duration `mapstructure:"read_timeout" validate:"min=0" yaml:"read_timeout"`

	// WriteTimeout bounds each write to a client.
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"min=0" yaml:"write_timeout"`

	// ShutdownTimeout is how long in-flight sessions may run after shutdown
	// begins before their sockets are force-closed.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// MetricsLogInterval is the period of the connection count log line.
	// Zero disables it.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" validate:"min=0" yaml:"metrics_log_interval"`

	// MaxVectors rejects batches declaring more vectors than this.
	MaxVectors uint32 `mapstructure:"max_vectors" yaml:"max_vectors"`

	// MaxVectorLength rejects vectors declaring more elements than this.
	MaxVectorLength uint32 `mapstructure:"max_vector_length" yaml:"max_vector_length"`
}

func (c *Config) applyDefaults() {
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}

func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid MaxConnections %d: must be >= 0", c.MaxConnections)
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("invalid ReadTimeout %v: must be >= 0", c.ReadTimeout)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("invalid WriteTimeout %v: must be >= 0", c.WriteTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	if c.MetricsLogInterval < 0 {
		return fmt.Errorf("invalid MetricsLogInterval %v: must be >= 0", c.MetricsLogInterval)
	}
	return nil
}

// New creates an adapter. A nil collector selects no-op metrics.
func New(config Config, collector metrics.VCalcMetrics, log *logger.Logger) (*Adapter, error) {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid vcalc config: %w", err)
	}

	log = log.With(logger.KeyProtocol, "vcalc")

	var connSemaphore chan struct{}
	if config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, config.MaxConnections)
		log.Debug("Connection limit configured", "max_connections", config.MaxConnections)
	} else {
		log.Debug("Connection limit: unlimited")
	}

	if collector == nil {
		collector = metrics.NewNoopVCalcMetrics()
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	return &Adapter{
		config:  config,
		engine:  auth.NewHashEngine(),
		vectors: vector.NewHandler(vector.Limits{
			MaxVectors:      config.MaxVectors,
			MaxVectorLength: config.MaxVectorLength,
		}, log),
		metrics:        collector,
		log:            log,
		connSemaphore:  connSemaphore,
		shutdown:       make(chan struct{}),
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
		ready:          make(chan struct{}),
		done:           make(chan struct{}),
	}, nil
}

// SetStore injects the credential store consulted by every handshake.
func (s *Adapter) SetStore(store credentials.Store) {
	s.store = store
	s.log.Debug("Credential store configured", logger.KeyRecords, store.Len())
}

// Serve binds the listener and runs the accept loop until ctx is cancelled
// or Stop is called. It must be called at most once.
func (s *Adapter) Serve(ctx context.Context) error {
	if s.store == nil {
		close(s.ready)
		return errors.New("vcalc adapter: credential store not set")
	}

	s.started.Store(true)
	defer close(s.done)
	defer s.cancelRequests()

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		close(s.ready)
		return fmt.Errorf("failed to create vcalc listener on port %d: %w", s.config.Port, err)
	}

	s.listenerMu.Lock()
	s.listener = listener
	s.listenerMu.Unlock()

	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		s.boundPort.Store(int32(tcpAddr.Port))
	}
	close(s.ready)

	// Stop may have run before the listener existed.
	select {
	case <-s.shutdown:
		_ = listener.Close()
		return nil
	default:
	}

	s.log.Info("vcalc server listening", logger.KeyPort, s.Port())
	s.log.Debug("vcalc config",
		"max_connections", s.config.MaxConnections,
		"read_timeout", s.config.ReadTimeout,
		"write_timeout", s.config.WriteTimeout,
		"max_vectors", s.config.MaxVectors,
		"max_vector_length", s.config.MaxVectorLength)

	go func() {
		select {
		case <-ctx.Done():
			s.log.Info("vcalc shutdown signal received", "reason", ctx.Err())
			s.initiateShutdown()
		case <-s.shutdown:
		}
	}()

	if s.config.MetricsLogInterval > 0 {
		go s.logMetrics()
	}

	for {
		if s.connSemaphore != nil {
			select {
			case s.connSemaphore <- struct{}{}:
			case <-s.shutdown:
				return s.gracefulShutdown()
			}
		}

		tcpConn, err := listener.Accept()
		if err != nil {
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}

			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
				s.log.Debug("Error accepting connection", logger.KeyError, err)
				continue
			}
		}

		s.activeConns.Add(1)
		currentConns := s.connCount.Add(1)

		connAddr := tcpConn.RemoteAddr().String()
		s.activeConnections.Store(connAddr, tcpConn)

		s.metrics.RecordConnectionAccepted()
		s.metrics.SetActiveConnections(currentConns)

		s.log.Debug("Connection accepted", logger.KeyClient, connAddr, logger.KeyActive, currentConns)

		conn := newConnection(s, tcpConn)
		go func(addr string) {
			defer func() {
				s.activeConnections.Delete(addr)
				s.activeConns.Done()
				remaining := s.connCount.Add(-1)
				if s.connSemaphore != nil {
					<-s.connSemaphore
				}

				s.metrics.RecordConnectionClosed()
				s.metrics.SetActiveConnections(remaining)
				s.log.Debug("Connection closed", logger.KeyClient, addr, logger.KeyActive, remaining)
			}()

			conn.Serve(s.shutdownCtx)
		}(connAddr)
	}
}

// initiateShutdown stops the accept loop. Handlers keep running. Idempotent.
func (s *Adapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		s.log.Debug("vcalc shutdown initiated")

		close(s.shutdown)

		s.listenerMu.Lock()
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				s.log.Debug("Error closing listener", logger.KeyError, err)
			}
		}
		s.listenerMu.Unlock()
	})
}

// gracefulShutdown waits up to ShutdownTimeout for handlers, then
// force-closes what remains.
func (s *Adapter) gracefulShutdown() error {
	activeCount := s.connCount.Load()
	s.log.Info("vcalc graceful shutdown: waiting for active connections",
		logger.KeyActive, activeCount, "timeout", s.config.ShutdownTimeout)

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("vcalc graceful shutdown complete")
		return nil

	case <-time.After(s.config.ShutdownTimeout):
		remaining := s.connCount.Load()
		s.log.Warn("vcalc shutdown timeout exceeded, forcing closure",
			logger.KeyActive, remaining, "timeout", s.config.ShutdownTimeout)

		s.forceCloseConnections()
		<-done

		return fmt.Errorf("vcalc shutdown timeout: %d connections force-closed", remaining)
	}
}

func (s *Adapter) forceCloseConnections() {
	s.cancelRequests()

	closedCount := 0
	s.activeConnections.Range(func(key, value any) bool {
		addr := key.(string)
		conn := value.(net.Conn)

		if err := conn.Close(); err != nil {
			s.log.Debug("Error force-closing connection", logger.KeyClient, addr, logger.KeyError, err)
		} else {
			closedCount++
			s.metrics.RecordConnectionForceClosed()
		}
		return true
	})

	if closedCount > 0 {
		s.log.Info("Force-closed connections", "count", closedCount)
	}
}

// Stop initiates shutdown and waits for Serve to return or ctx to expire.
// On expiry the remaining connections are force-closed.
func (s *Adapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	if !s.started.Load() {
		return nil
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		s.log.Warn("vcalc stop deadline exceeded", logger.KeyActive, s.connCount.Load(), logger.KeyError, ctx.Err())
		s.forceCloseConnections()
		return ctx.Err()
	}
}

func (s *Adapter) logMetrics() {
	ticker := time.NewTicker(s.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.log.Info("vcalc metrics", logger.KeyActive, s.connCount.Load())
		}
	}
}

// Ready is closed once the listener is bound, or when Serve fails before
// binding it.
func (s *Adapter) Ready() <-chan struct{} {
	return s.ready
}

// GetActiveConnections returns the number of connections being served.
func (s *Adapter) GetActiveConnections() int32 {
	return s.connCount.Load()
}

// Port returns the bound port once listening, the configured port before.
func (s *Adapter) Port() int {
	if p := s.boundPort.Load(); p != 0 {
		return int(p)
	}
	return s.config.Port
}

func (s *Adapter) Protocol() string {
	return "vcalc"
}
