package vcalc

import (
	"context"
	"errors"
	"io"
	"net"
	"runtime/debug"
	"time"

	"github.com/marmos91/vcalc/internal/logger"
	"github.com/marmos91/vcalc/internal/protocol/auth"
	"github.com/marmos91/vcalc/pkg/metrics"
)

// connection serves one client: handshake, then at most one vector batch.
type connection struct {
	adapter *Adapter
	conn    net.Conn
	rw      io.ReadWriter
	log     *logger.Logger
}

func newConnection(adapter *Adapter, conn net.Conn) *connection {
	return &connection{
		adapter: adapter,
		conn:    conn,
		rw: &deadlineConn{
			Conn:         conn,
			readTimeout:  adapter.config.ReadTimeout,
			writeTimeout: adapter.config.WriteTimeout,
		},
		log: adapter.log.With(logger.KeyClient, conn.RemoteAddr().String()),
	}
}

// Serve runs the connection to completion and always closes the socket.
// A panic is confined to this connection.
func (c *connection) Serve(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Panic in connection handler", "panic", r, "stack", string(debug.Stack()))
		}
		_ = c.conn.Close()
	}()

	if !c.authenticate() {
		return
	}

	start := time.Now()
	stats, err := c.adapter.vectors.Serve(ctx, c.rw)
	c.adapter.metrics.RecordBatch(stats.Vectors, stats.Elements, time.Since(start), err)

	if err != nil {
		c.logFailure("Batch aborted", err,
			logger.KeyVectors, stats.Vectors,
			"declared", stats.Declared)
		return
	}

	c.log.Info("Batch served",
		logger.KeyVectors, stats.Vectors,
		logger.KeyElements, stats.Elements,
		logger.KeyDuration, logger.Duration(start))
}

// authenticate runs the handshake and reports whether the batch may follow.
func (c *connection) authenticate() bool {
	start := time.Now()
	session := auth.NewSession(c.rw, c.adapter.store, c.adapter.engine, c.log)
	err := session.Authenticate()

	switch {
	case err != nil:
		c.adapter.metrics.RecordAuthentication(metrics.AuthOutcomeError, time.Since(start))
		c.logFailure("Authentication aborted", err, logger.KeyState, session.State().String())
		return false

	case session.State() == auth.StateAuthenticated:
		c.adapter.metrics.RecordAuthentication(metrics.AuthOutcomeOK, time.Since(start))
		c.log.Info("Client authenticated", logger.KeyLogin, session.Login())
		return true

	default:
		c.adapter.metrics.RecordAuthentication(metrics.AuthOutcomeRejected, time.Since(start))
		c.log.Info("Authentication failed", logger.KeyLogin, session.Login())
		return false
	}
}

// logFailure picks a level by cause: peer disconnects, timeouts and shutdown
// are routine; anything else is a warning. Hash engine failures are errors.
func (c *connection) logFailure(msg string, err error, args ...any) {
	args = append(args, logger.KeyError, err)

	var netErr net.Error
	switch {
	case errors.Is(err, auth.ErrHashEngine):
		c.log.Error(msg, args...)
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		c.log.Debug(msg+": closed by client", args...)
	case errors.As(err, &netErr) && netErr.Timeout():
		c.log.Debug(msg+": timed out", args...)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.log.Debug(msg+": cancelled", args...)
	default:
		c.log.Warn(msg, args...)
	}
}

// deadlineConn arms a fresh read or write deadline before every I/O call
// when the corresponding timeout is set.
type deadlineConn struct {
	net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if c.readTimeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(p)
}

func (c *deadlineConn) Write(p []byte) (int, error) {
	if c.writeTimeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(p)
}
